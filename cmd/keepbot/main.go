package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"keepbot/internal/bootstrap"
	"keepbot/internal/config"
	"keepbot/internal/logging"
	"keepbot/internal/messenger"
	"keepbot/internal/reconcile"
	"keepbot/internal/store"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "keepbot",
	Short: "Owner-authoritative keeper for chat thread attributes",
	Long: `keepbot watches color, emoji, and nickname changes on the owner's
conversations. Changes made by the owner become the new intended state;
changes made by anyone else are reverted to the stored state.

Credentials come from the config file or KEEPBOT_EMAIL / KEEPBOT_PASSWORD.`,
	SilenceUsage: true,
	RunE:         run,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print stored row counts per table",
	RunE:  runStatus,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "keepbot.yaml", "path to YAML config file")
	rootCmd.AddCommand(statusCmd)
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := logging.Initialize(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File); err != nil {
		return err
	}
	defer logging.Sync()

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	client := messenger.NewBridgeClient(cfg.BridgeURL, messenger.WithMaxTries(cfg.MaxTries))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess, err := bootstrap.Run(ctx, st, client, bootstrap.Credentials{
		Email:    cfg.Email,
		Password: cfg.Password,
	})
	if err != nil {
		return err
	}
	logging.Boot("authenticated as %s", sess.UserID)

	if !cfg.Listen {
		logging.Boot("listening disabled, exiting after bootstrap")
		return nil
	}

	events, err := client.Listen(ctx)
	if err != nil {
		return err
	}
	engine := reconcile.New(st, client, sess.UserID, reconcile.WithCorrectTimeout(cfg.CorrectTimeoutDuration()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return engine.Run(gctx, events)
	})
	g.Go(func() error {
		return logStatsLoop(gctx, st)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// logStatsLoop periodically logs store row counts in service mode.
func logStatsLoop(ctx context.Context, st *store.Store) error {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			stats, err := st.Stats()
			if err != nil {
				logging.StoreDebug("stats read failed: %v", err)
				continue
			}
			logging.StoreDebug("store stats: %v", stats)
		}
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.Stats()
	if err != nil {
		return err
	}

	tables := make([]string, 0, len(stats))
	for table := range stats {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	for _, table := range tables {
		fmt.Fprintf(cmd.OutOrStdout(), "%-12s %d\n", table, stats[table])
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
