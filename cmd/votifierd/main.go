/*
Usage:

	votifierd -config ./config.json
	votifierd -config ./config.json -env ./votifier.env -exec
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/danl5/govotifier"
	"github.com/danl5/govotifier/pkg/config"
	"github.com/danl5/govotifier/pkg/log"
	"github.com/danl5/govotifier/pkg/reward"
)

var (
	// configPath is the votifier config file, created with defaults if missing
	configPath = flag.String("config", "config.json", "config file path")
	// envFile optionally overrides config values with VOTIFIER_* variables
	envFile = flag.String("env", ".env", "env file path")
	// execRewards runs reward commands as processes instead of logging them
	execRewards = flag.Bool("exec", false, "execute reward commands")
	// shutdownTimeout bounds the wait for in-flight connections
	shutdownTimeout = flag.Duration("shutdown-timeout", 10*time.Second, "graceful shutdown timeout")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, created, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if err := config.ApplyEnv(cfg, *envFile); err != nil {
		return err
	}

	logger := log.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if created {
		path, _ := filepath.Abs(*configPath)
		logger.Info("======================================")
		logger.Info("created new config with random token")
		logger.Info("config location: " + path)
		logger.Info("======================================")
	}

	var executor reward.Executor = reward.LogExecutor{Logger: logger}
	if *execRewards {
		executor = reward.ExecExecutor{}
	}
	rewarder, err := reward.New(reward.OptionsFrom(cfg), executor, reward.LogBroadcaster{Logger: logger}, logger)
	if err != nil {
		return err
	}

	v, err := govotifier.NewVotifier(cfg, rewarder, logger)
	if err != nil {
		return err
	}
	if err := v.Run(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-v.Errors():
		logger.Error("votifier failed", "error", err.Error())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), *shutdownTimeout)
	defer cancel()
	if err := v.Stop(shutdownCtx); err != nil {
		logger.Warn("connections still open at shutdown", "error", err.Error())
	}
	return nil
}
