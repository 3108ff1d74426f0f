// Command relay runs the development backend: the ticket REST API and the
// realtime channel the vendor client syncs against.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/vendorhub/ticket-sync/internal/api/http"
	"github.com/vendorhub/ticket-sync/internal/api/http/handlers"
	"github.com/vendorhub/ticket-sync/internal/api/ws"
	"github.com/vendorhub/ticket-sync/internal/auth"
	"github.com/vendorhub/ticket-sync/internal/config"
	"github.com/vendorhub/ticket-sync/internal/domain"
	"github.com/vendorhub/ticket-sync/internal/events"
	"github.com/vendorhub/ticket-sync/internal/hub"
	"github.com/vendorhub/ticket-sync/internal/observability"
	"github.com/vendorhub/ticket-sync/internal/persistence"
	"github.com/vendorhub/ticket-sync/internal/service"
	"github.com/vendorhub/ticket-sync/internal/worker"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "relay",
		Short:        "Development relay for the ticket sync client",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
	root.AddCommand(newServeCmd(), newTokenCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API and the realtime channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func newTokenCmd() *cobra.Command {
	var (
		subject string
		role    string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a credential signed with AUTH_JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tokens := auth.NewTokenManager(cfg.Relay.JWTSecret, cfg.Relay.TokenTTL)
			token, expires, err := tokens.GenerateToken(subject, domain.SenderRole(role))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "vendor-1", "subject id carried by the token")
	cmd.Flags().StringVar(&role, "role", string(domain.SenderVendor), "vendor, customer or admin")
	return cmd
}

func serve(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), persistence.DefaultMigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	realtimeHub := hub.New(logger, 0)

	var broadcaster hub.Broadcaster = realtimeHub
	var bridge *hub.RedisBridge
	if redis != nil {
		bridge = hub.NewRedisBridge(redis.Client, redis.Channel, realtimeHub, logger)
		broadcaster = bridge
	}

	ticketRepo, messageRepo := pg.Repositories()
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  ticketRepo,
		MessageRepo: messageRepo,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	notifications := service.NewNotificationService(dispatcher, broadcaster, logger)
	worker.StartNotificationWorker(ctx, notifications, bridge, logger)

	tokens := auth.NewTokenManager(cfg.Relay.JWTSecret, cfg.Relay.TokenTTL)
	authMiddleware := auth.NewAuthMiddleware(tokens)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name, DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.Relay.RequestTimeout)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(handlers.HealthDeps{
			ServiceName: cfg.App.Name,
			Version:     cfg.App.Version,
			Postgres:    pg,
			Redis:       redis,
			Hub:         realtimeHub,
			Metrics:     metrics,
		}),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		AuthMiddleware: authMiddleware,
	})

	mux := http.NewServeMux()
	mux.Handle("/ws", ws.NewHandler(authMiddleware, ticketService, realtimeHub, cfg.Relay.AllowedOrigins, logger, metrics))
	realtimeServer := &http.Server{
		Addr:              cfg.Relay.RealtimeAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("rest api listening", zap.String("addr", cfg.Relay.Addr()))
		if err := app.Listen(cfg.Relay.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()
	go func() {
		logger.Info("realtime listening", zap.String("addr", realtimeServer.Addr))
		if err := realtimeServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("realtime listen", zap.Error(err))
		}
	}()

	waitForShutdown(ctx, logger)
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	_ = realtimeServer.Shutdown(shutdownCtx)
	_ = app.ShutdownWithContext(shutdownCtx)
	return nil
}

func waitForShutdown(ctx context.Context, logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("shutting down", zap.Error(ctx.Err()))
	}
}
