package config

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func TestLoadUsesDefaultsWithNoOverrides(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	v := viper.New()
	BindFlags(fs, v)

	c, err := Load(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ROBCapacity != Defaults().ROBCapacity {
		t.Fatalf("expected default ROB capacity, got %d", c.ROBCapacity)
	}
}

func TestLoadHonorsFlagOverride(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	v := viper.New()
	BindFlags(fs, v)

	if err := fs.Set("rob-capacity", "256"); err != nil {
		t.Fatalf("failed to set flag: %v", err)
	}
	c, err := Load(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ROBCapacity != 256 {
		t.Fatalf("expected overridden ROB capacity 256, got %d", c.ROBCapacity)
	}
}
