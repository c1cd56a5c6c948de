package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/suprax-sim/suprax/internal/config"
	"github.com/suprax-sim/suprax/internal/image"
	"github.com/suprax-sim/suprax/internal/metrics"
	"github.com/suprax-sim/suprax/internal/sim"
	"github.com/suprax-sim/suprax/internal/simid"
)

func newRunCmd() *cobra.Command {
	var imagePath string
	var ticks int
	var memBytes int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "load a flat memory image and simulate it for a fixed tick budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := config.Load(v)
			if err != nil {
				return err
			}

			img, err := image.Load(imagePath, 0)
			if err != nil {
				return fmt.Errorf("loading image: %w", err)
			}

			reg := metrics.NewRegistry(prometheus.NewRegistry())
			sys := sim.NewSystem(p, sim.SystemParams{
				MemBytes:   make([]byte, memBytes),
				Translator: img,
				Device:     img,
				SysHandler: sim.HaltOnTrap{},
				Control:    sim.AlwaysRunning{},
				Metrics:    reg,
			})

			runID := simid.NewRunID()
			log := logrus.WithField("run", runID)
			log.WithFields(logrus.Fields{
				"cores": p.NumCores,
				"ticks": ticks,
				"image": imagePath,
			}).Info("starting simulation")

			sys.Run(ticks)

			log.Info("simulation finished")
			return nil
		},
	}
	cmd.Flags().StringVar(&imagePath, "image", "", "path to a flat RV64GC memory image (required)")
	cmd.Flags().IntVar(&ticks, "ticks", 100000, "number of cycles to simulate")
	cmd.Flags().IntVar(&memBytes, "mem-bytes", 64<<20, "simulated main memory size in bytes")
	cmd.MarkFlagRequired("image")
	return cmd
}
