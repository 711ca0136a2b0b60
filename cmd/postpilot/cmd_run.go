package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"postpilot/internal/config"
	"postpilot/internal/eventbus"
	"postpilot/internal/publisher"
	logx "postpilot/pkg/logx"
)

var (
	runDaemon   bool
	runInterval string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Publish due entries",
	Long: "Drain all currently-due entries once and exit, or keep draining on an\n" +
		"interval with --daemon. Exactly one daemon may run against a store at a\n" +
		"time; a second instance may double-post.",
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runDaemon, "daemon", false, "keep running until interrupted")
	runCmd.Flags().StringVar(&runInterval, "interval", "", "wake spec (Go duration or cron expression); overrides config")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	defer closeLogging()

	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	client, err := publisher.NewClient(cfg.Publisher.Client, log.With(logx.String("comp", "client")))
	if err != nil {
		return err
	}
	settings, err := cfg.Publisher.Backoff.Parse()
	if err != nil {
		return err
	}

	spec := cfg.Publisher.Interval
	if runInterval != "" {
		spec = runInterval
	}
	if spec == "" {
		spec = "60s"
	}
	wake, err := config.ParseSchedule(spec)
	if err != nil {
		return err
	}

	bus := eventbus.New()
	loop := publisher.NewLoop(publisher.Options{
		Store:       st,
		Client:      client,
		Bus:         bus,
		Log:         log.With(logx.String("comp", "publisher")),
		MaxAttempts: cfg.Publisher.MaxAttempts,
		Backoff:     publisher.NewBackoff(settings),
		RatePerMin:  cfg.Publisher.RatePerMin,
		Wake:        wake,
	})

	if !runDaemon {
		sum, err := loop.RunOnce(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Posted:  %d\n", sum.Posted)
		fmt.Printf("Retried: %d\n", sum.Retried)
		fmt.Printf("Failed:  %d\n", sum.Failed)
		if sum.Skipped > 0 {
			fmt.Printf("Skipped: %d (backing off)\n", sum.Skipped)
		}
		return nil
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return loop.Run(gctx) })
	g.Go(func() error { return cfgMgr.Watch(gctx) })
	g.Go(func() error {
		// Apply logging changes from config reloads without restarting.
		updates := cfgMgr.Subscribe(1)
		defer cfgMgr.Unsubscribe(updates)
		for {
			select {
			case <-gctx.Done():
				return nil
			case c, ok := <-updates:
				if !ok {
					return nil
				}
				logSvc.Apply(logx.Config{
					Level:   c.Logging.Level,
					Console: c.Logging.Console,
					File: logx.FileConfig{
						Enabled: c.Logging.File.Enabled,
						Path:    c.Logging.File.Path,
					},
				})
				log.Info("logging configuration reloaded", logx.String("level", c.Logging.Level))
			}
		}
	})

	log.Info("daemon running", logx.String("wake", spec), logx.String("client", client.Name()))
	return g.Wait()
}
