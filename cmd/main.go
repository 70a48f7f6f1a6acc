package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_cart/lineitems/configs"
	"github.com/fjod/go_cart/lineitems/internal/checkout"
	cartgrpc "github.com/fjod/go_cart/lineitems/internal/grpc"
	h "github.com/fjod/go_cart/lineitems/internal/http"
	"github.com/fjod/go_cart/lineitems/internal/logging"
	"github.com/fjod/go_cart/lineitems/internal/session"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
)

const shutdownTimeout = 10 * time.Second

var (
	configDir string
	envName   string
)

var rootCmd = &cobra.Command{
	Use:           "lineitems",
	Short:         "Cart line item service",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the cart HTTP and gRPC APIs",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Prepare the configured store (schema migrations, indexes) and exit",
	RunE:  runMigrate,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "configs", "directory holding base.yaml")
	rootCmd.PersistentFlags().StringVar(&envName, "env", os.Getenv("APP_ENV"), "config overlay to apply, e.g. dev or prod")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("lineitems failed", "error", err)
		os.Exit(1)
	}
}

func setup() (configs.Config, *slog.Logger, error) {
	cfg, err := configs.Load(configDir, envName)
	if err != nil {
		return configs.Config{}, nil, err
	}
	return cfg, logging.Init(cfg.App.Name, cfg.App.LogFile, cfg.App.LogLevel), nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}
	logger.Info("service stopped")
	return nil
}

// runMigrate opens the backend, which applies migrations and indexes on the
// way, then closes it again.
func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	b, err := openBackend(cmd.Context(), cfg, logging.New("persistence"))
	if err != nil {
		return err
	}
	b.Close(cmd.Context())
	logger.Info("store ready", "backend", cfg.Store.Backend)
	return nil
}

func run(ctx context.Context, cfg configs.Config, logger *slog.Logger) error {
	b, err := openBackend(ctx, cfg, logging.New("persistence"))
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		b.Close(closeCtx)
	}()

	carts := session.NewManager(b.kv,
		session.WithKeyPrefix(cfg.Store.KeyPrefix),
		session.WithLogger(logging.New("store")),
		session.WithIdleTTL(cfg.Store.IdleTTL),
	)
	go carts.Run(ctx)

	var co h.Checkouter
	if len(cfg.Kafka.Brokers) > 0 {
		pub := checkout.NewKafkaPublisher(cfg.Kafka.CheckoutTopic, cfg.Kafka.Brokers...)
		defer pub.Close()
		co = checkout.NewService(carts, pub, cfg.Checkout.Currency, logging.New("checkout"))

		if cfg.Kafka.CompletedTopic != "" {
			consumer := checkout.NewConsumer(carts, cfg.Kafka.CompletedTopic, cfg.Kafka.GroupID,
				logging.New("checkout-consumer"), cfg.Kafka.Brokers...)
			defer consumer.Close()
			go consumer.Run(ctx)
		}
		logger.Info("checkout enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.CheckoutTopic)
	} else {
		logger.Warn("kafka brokers not configured, checkout disabled")
	}

	srv := &http.Server{
		Addr: cfg.App.HTTPAddr,
		Handler: h.NewRouter(h.NewCartHandler(carts, co, cfg.HTTP.RequestTimeout), h.RouterConfig{
			RequestTimeout: cfg.HTTP.RequestTimeout,
			MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		}),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	var grpcServer *grpc.Server
	errCh := make(chan error, 2)

	if cfg.App.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.App.GRPCAddr)
		if err != nil {
			return err
		}
		grpcServer = grpc.NewServer(
			grpc.StatsHandler(otelgrpc.NewServerHandler()),
			grpc.UnaryInterceptor(cartgrpc.LoggingInterceptor(logging.New("grpc"))),
		)
		cartgrpc.RegisterCartServiceServer(grpcServer, cartgrpc.NewCartServer(carts))
		// lists service names only; the JSON service registers no file descriptors
		reflection.Register(grpcServer)

		go func() {
			logger.Info("grpc listening", "addr", cfg.App.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				errCh <- err
			}
		}()
	}

	go func() {
		logger.Info("http listening", "addr", cfg.App.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		logger.Error("server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	return srv.Shutdown(shutdownCtx)
}
