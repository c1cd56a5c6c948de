// Package config loads CoreParams, the simulator's tunable knobs, the
// way keskad-loco's manifest shows the ecosystem wiring viper for a CLI
// tool: environment variables and an optional config file override
// compiled-in defaults, with pflag binding so cmd/supraxsim's flags and
// the config file agree on the same keys.
package config

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// CoreParams mirrors XiangShanParam's field list: pipeline widths,
// structure depths, cache/bus geometry, and predictor table sizes.
type CoreParams struct {
	NumCores int `mapstructure:"num-cores"`

	FetchWidth    int `mapstructure:"fetch-width"`
	DecodeWidth   int `mapstructure:"decode-width"`
	DispatchWidth int `mapstructure:"dispatch-width"`
	IssueWidth    int `mapstructure:"issue-width"`
	CommitWidth   int `mapstructure:"commit-width"`

	ROBCapacity int `mapstructure:"rob-capacity"`
	RSCapacity  int `mapstructure:"rs-capacity"`
	LDQCapacity int `mapstructure:"ldq-capacity"`
	STQCapacity int `mapstructure:"stq-capacity"`

	PhysIntRegs   int `mapstructure:"phys-int-regs"`
	PhysFloatRegs int `mapstructure:"phys-float-regs"`

	L1MSHRCapacity int `mapstructure:"l1-mshr-capacity"`
	L1NumLines     int `mapstructure:"l1-num-lines"`
	L2IndexLatency int `mapstructure:"l2-index-latency"`
	L2IndexWidth   int `mapstructure:"l2-index-width"`
	L2NumLines     int `mapstructure:"l2-num-lines"`

	MemQueueDepth   int `mapstructure:"mem-queue-depth"`
	MemBytesPerTick int `mapstructure:"mem-bytes-per-tick"`

	FTBWays          int `mapstructure:"ftb-ways"`
	UBTBWays         int `mapstructure:"ubtb-ways"`
	RASPredSize      int `mapstructure:"ras-pred-size"`
	RASCommittedSize int `mapstructure:"ras-committed-size"`
}

// Defaults returns the compiled-in baseline, the values
// XiangShanParam's constructor itself falls back to.
func Defaults() CoreParams {
	return CoreParams{
		NumCores: 1,

		FetchWidth:    4,
		DecodeWidth:   4,
		DispatchWidth: 4,
		IssueWidth:    4,
		CommitWidth:   4,

		ROBCapacity: 128,
		RSCapacity:  64,
		LDQCapacity: 32,
		STQCapacity: 32,

		PhysIntRegs:   160,
		PhysFloatRegs: 160,

		L1MSHRCapacity: 8,
		L1NumLines:     64,
		L2IndexLatency: 4,
		L2IndexWidth:   1,
		L2NumLines:     256,

		MemQueueDepth:   4,
		MemBytesPerTick: 8,

		FTBWays:          4,
		UBTBWays:         32,
		RASPredSize:      32,
		RASCommittedSize: 16,
	}
}

// BindFlags registers every CoreParams field as a pflag so cmd/supraxsim
// can expose --fetch-width etc. directly, and viper picks up whichever
// value (flag, env, file, default) wins per its usual precedence.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) {
	d := Defaults()
	fs.Int("num-cores", d.NumCores, "number of simulated cores")
	fs.Int("fetch-width", d.FetchWidth, "instructions fetched per tick")
	fs.Int("decode-width", d.DecodeWidth, "instructions decoded per tick")
	fs.Int("dispatch-width", d.DispatchWidth, "instructions dispatched per tick")
	fs.Int("issue-width", d.IssueWidth, "instructions issued per tick")
	fs.Int("commit-width", d.CommitWidth, "instructions committed per tick")
	fs.Int("rob-capacity", d.ROBCapacity, "reorder buffer entries")
	fs.Int("rs-capacity", d.RSCapacity, "reservation station entries")
	fs.Int("ldq-capacity", d.LDQCapacity, "load queue entries")
	fs.Int("stq-capacity", d.STQCapacity, "store queue entries")
	fs.Int("phys-int-regs", d.PhysIntRegs, "physical integer registers")
	fs.Int("phys-float-regs", d.PhysFloatRegs, "physical floating point registers")
	fs.Int("l1-mshr-capacity", d.L1MSHRCapacity, "L1 MSHR entries")
	fs.Int("l1-num-lines", d.L1NumLines, "L1 cache lines per core")
	fs.Int("l2-index-latency", d.L2IndexLatency, "L2 directory index latency in ticks")
	fs.Int("l2-index-width", d.L2IndexWidth, "L2 directory requests admitted per tick")
	fs.Int("l2-num-lines", d.L2NumLines, "L2 directory tracked-line table capacity")
	fs.Int("mem-queue-depth", d.MemQueueDepth, "memory node request queue depth")
	fs.Int("mem-bytes-per-tick", d.MemBytesPerTick, "memory node bytes serviced per tick")
	fs.Int("ftb-ways", d.FTBWays, "fetch target buffer associativity")
	fs.Int("ubtb-ways", d.UBTBWays, "micro-BTB entry count")
	fs.Int("ras-pred-size", d.RASPredSize, "speculative RAS stack depth")
	fs.Int("ras-committed-size", d.RASCommittedSize, "committed RAS stack depth")

	v.BindPFlags(fs)
	v.SetEnvPrefix("SUPRAXSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// Load materializes CoreParams from viper's resolved configuration
// (flags > env > config file > defaults, viper's own precedence order).
func Load(v *viper.Viper) (CoreParams, error) {
	c := Defaults()
	if err := v.Unmarshal(&c); err != nil {
		return CoreParams{}, err
	}
	return c, nil
}
