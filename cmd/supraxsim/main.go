// Command supraxsim runs the multi-core RV64GC simulator from a flat
// memory image for a fixed tick budget, logging when the run starts and
// finishes. It does not stop early when cores halt and does not print
// statistics.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.WithError(err).Error("supraxsim failed")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
