package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/suprax-sim/suprax/internal/config"
)

var (
	cfgFile string
	v       = viper.New()
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "supraxsim",
		Short: "cycle-accurate RV64GC multi-core simulator",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (overrides flags where set)")
	config.BindFlags(root.PersistentFlags(), v)

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			v.SetConfigFile(cfgFile)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("reading config file: %w", err)
			}
		}
		return nil
	}

	root.AddCommand(newRunCmd(), newConfigCmd())
	return root
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "print the resolved core configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := config.Load(v)
			if err != nil {
				return err
			}
			fmt.Printf("%+v\n", p)
			return nil
		},
	}
}

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}
