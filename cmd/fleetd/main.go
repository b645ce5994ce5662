// cmd/fleetd/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fleetmaint/internal/config"
	"fleetmaint/internal/db"
	"fleetmaint/internal/db/migrate"
	"fleetmaint/internal/eventstore"
	"fleetmaint/internal/logger"
	"fleetmaint/internal/machine"
	"fleetmaint/internal/server"
	"fleetmaint/internal/telemetry"
	"fleetmaint/internal/version"
)

func main() {
	root := &cobra.Command{
		Use:           "fleetd",
		Short:         "Machine registry and maintenance alarm service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), migrateCmd())
	version.AddCommand(root)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		logger.ErrorKV(ctx, "fleetd failed", "error", err)
		logger.Sync()
		stop()
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back the database schema",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{migrate.Up, migrate.Down},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger.Configure(cfg.LogLevel, cfg.LogFormat)
			defer logger.Sync()

			if err := migrate.Run(cfg.DatabaseURL, args[0]); err != nil {
				return err
			}
			logger.InfoKV(cmd.Context(), "migrations applied", "direction", args[0])
			return nil
		},
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Configure(cfg.LogLevel, cfg.LogFormat)
	defer logger.Sync()

	providers, err := telemetry.NewProviders(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		return err
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	policies, err := config.LoadPolicies(cfg.PolicyFile)
	if err != nil {
		return err
	}

	deps := server.Deps{
		Transitions: policies.Transitions,
		Access:      policies.Access,
		Limiter:     server.NewClientRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}

	switch cfg.Store {
	case config.StorePostgres:
		if cfg.MigrateOnStart {
			if err := migrate.Run(cfg.DatabaseURL, migrate.Up); err != nil {
				return err
			}
		}
		conn, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer conn.Close()

		deps.Store = machine.NewPostgresRepository(conn, eventstore.New(conn))
		deps.Health = conn
	default:
		logger.WarnKV(ctx, "using in-memory store; data is lost on restart")
		deps.Store = machine.NewMemoryRepository()
	}

	logger.InfoKV(ctx, "starting fleetd",
		"addr", cfg.ListenAddr(),
		"store", cfg.Store,
		"version", version.Version,
	)

	return server.New(cfg.ListenAddr(), server.NewRouter(deps), cfg.ShutdownTimeout).Run(ctx)
}
