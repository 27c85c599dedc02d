// Command triagectl administers a cardiotriage deployment: schema
// migrations, API keys and the model activation protocol.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/cardiotriage/internal/cache"
	"github.com/kiranshivaraju/cardiotriage/internal/config"
	"github.com/kiranshivaraju/cardiotriage/internal/registry"
	"github.com/kiranshivaraju/cardiotriage/internal/store"
	"github.com/spf13/cobra"
)

const lockTTL = 30 * time.Second

var errMemoryStore = errors.New("triagectl needs a persistent store; set STORE_DRIVER=postgres")

// app holds what subcommands share. Tests replace open and migrate.
type app struct {
	out     io.Writer
	open    func(ctx context.Context) (store.Store, func(), error)
	migrate func(databaseURL, dir string) error
	// redisURL enables the activation lock for registry mutations.
	redisURL string
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{out: os.Stdout, open: openPostgres, migrate: store.RunMigrations}
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "triagectl",
		Short:         "Administer the cardiotriage service",
		SilenceUsage:  true,
	}
	root.SetOut(a.out)
	root.PersistentFlags().StringVar(&a.redisURL, "redis-url", os.Getenv("REDIS_URL"),
		"Redis URL used for the activation lock; empty disables locking")

	root.AddCommand(migrateCmd(a))
	root.AddCommand(keysCmd(a))
	root.AddCommand(modelsCmd(a))
	root.AddCommand(infraCmd(a))
	return root
}

func migrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			db, err := config.LoadDatabase()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if db.Driver == "memory" {
				return errMemoryStore
			}
			if err := a.migrate(db.URL, dir); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
	upCmd.Flags().String("dir", "migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)
	return cmd
}

// withStore opens the store for one command and closes it afterwards.
func (a *app) withStore(cmd *cobra.Command, fn func(ctx context.Context, st store.Store) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	st, closeStore, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(ctx, st)
}

// withRegistry is withStore for activation commands. The registry takes the
// shared activation lock when a Redis URL is configured.
func (a *app) withRegistry(cmd *cobra.Command, fn func(ctx context.Context, reg *registry.Service) error) error {
	return a.withStore(cmd, func(ctx context.Context, st store.Store) error {
		var opts []registry.Option
		if a.redisURL != "" {
			c, err := cache.NewRedisCache(a.redisURL)
			if err != nil {
				return fmt.Errorf("create redis cache: %w", err)
			}
			defer c.Close()
			opts = append(opts, registry.WithLocker(c, lockTTL))
		}
		return fn(ctx, registry.NewService(st, opts...))
	})
}

func openPostgres(ctx context.Context) (store.Store, func(), error) {
	db, err := config.LoadDatabase()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if db.Driver == "memory" {
		return nil, nil, errMemoryStore
	}
	pool, err := store.Connect(ctx, db)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return store.NewPostgresStore(pool), pool.Close, nil
}
