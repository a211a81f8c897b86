package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/fenwicklabs/pipeline-orchestrator/internal/clock"
	"github.com/fenwicklabs/pipeline-orchestrator/internal/config"
	"github.com/fenwicklabs/pipeline-orchestrator/internal/supervisor"
)

// runSupervise is the default invocation: load config, acquire the instance
// lock, and run until SIGINT/SIGTERM requests a graceful shutdown.
func runSupervise(path string) error {
	log := logrus.NewEntry(logrus.StandardLogger())

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	clk := clock.NewRealClock(nil)

	sup, err := supervisor.Open(cfg, clk, log)
	if err != nil {
		return err
	}
	defer sup.Close()

	sup.StartupNotice(clk.Now())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return sup.Run(ctx)
}
