// Package cli implements escrowctl, the operator tool for the escrow engine.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/harvest-market/escrow/internal/app"
	"github.com/harvest-market/escrow/internal/config"
	"github.com/harvest-market/escrow/internal/db"
	"github.com/harvest-market/escrow/internal/events"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:           "escrowctl",
	Short:         "Operate the pre-order escrow engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func logger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// session is a live connection for commands that touch the database.
// Events go nowhere; the CLI never talks to redis.
type session struct {
	cfg    *config.Config
	pool   *pgxpool.Pool
	stores app.Stores
	svc    *app.Services
	log    *zap.Logger
}

func connect(ctx context.Context) (*session, error) {
	log := logger()
	cfg := config.Load()
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, "escrowctl", log)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	stores := app.PostgresStores(pool)
	svc, err := app.NewServices(cfg, stores, events.NopPublisher{}, log)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &session{cfg: cfg, pool: pool, stores: stores, svc: svc, log: log}, nil
}

func (s *session) Close() { s.pool.Close() }

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
