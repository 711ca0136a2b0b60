package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"postpilot/internal/config"
	"postpilot/internal/eventbus"
	"postpilot/internal/scheduler"
	"postpilot/internal/store"
	logx "postpilot/pkg/logx"
)

var (
	cfgPath string

	cfgMgr *config.Manager
	cfg    *config.Config
	logSvc *logx.Service
	log    logx.Logger
)

var rootCmd = &cobra.Command{
	Use:   "postpilot",
	Short: "Social post queue and scheduler",
	Long: "Postpilot queues externally generated posts, assigns publish slots under\n" +
		"window/spacing/quota constraints, and drains due posts to the configured\n" +
		"platform with retry and backoff. Every post requires explicit approval\n" +
		"before it can be scheduled.",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "./postpilot.yaml", "path to config file (yaml or json)")
}

// loadConfig loads and validates configuration (called by commands that need it).
func loadConfig() error {
	cfgMgr = config.NewManager(cfgPath)
	c, err := cfgMgr.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	cfg = c

	logSvc, log = logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	cfgMgr.SetLogger(log.With(logx.String("comp", "config")))
	cfgMgr.SetValidator(func(ctx context.Context, c *config.Config) error {
		return c.Validate()
	})
	return nil
}

func closeLogging() {
	if logSvc != nil {
		_ = logSvc.Close()
	}
}

func openStore() (store.Store, error) {
	busy, err := config.ParseDuration("store.busy_timeout", cfg.Store.BusyTimeout)
	if err != nil {
		return nil, err
	}
	return store.Open(store.Config{
		Driver:      cfg.Store.Driver,
		Path:        cfg.Store.Path,
		BusyTimeout: busy,
	}, log.With(logx.String("comp", "store")))
}

func newScheduler(st store.Store, bus eventbus.Bus) (*scheduler.Service, error) {
	policy, err := cfg.Scheduling.BuildPolicy()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Scheduling.Location()
	if err != nil {
		return nil, err
	}
	return scheduler.New(scheduler.Options{
		Store:    st,
		Policy:   policy,
		Location: loc,
		Bus:      bus,
		Log:      log.With(logx.String("comp", "scheduler")),
	}), nil
}
