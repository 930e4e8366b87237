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

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/pipefilter/internal/config"
	"github.com/alfredjeanlab/pipefilter/internal/events"
	"github.com/alfredjeanlab/pipefilter/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the HTTP and gRPC compile servers",
	Long:    "Start the servers. Configuration comes from PIPEFILTER_* environment variables.",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
		slog.SetDefault(logger)

		srv := server.New(logger)
		publisher := events.MultiPublisher{srv.Events()}
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				return err
			}
			publisher = append(publisher, pub)
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			logger.Info("events disabled (PIPEFILTER_NATS_URL not set)")
		}

		spec := compilerSpec{
			Catalog: catalogSpec{
				Source:      cfg.Catalog,
				DatabaseURL: cfg.DatabaseURL,
				S3Region:    cfg.S3Region,
				S3Endpoint:  cfg.S3Endpoint,
			},
			Filters:   cfg.Filters,
			Names:     cfg.NameConverter,
			Logger:    logger,
			Publisher: publisher,
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		c, err := buildCompiler(ctx, spec)
		if err != nil {
			publisher.Close()
			return err
		}
		srv.SetCompiler(c)
		logger.Info("compiler ready", "catalog", spec.Catalog, "resources", len(c.Resources()))

		reload := func(reason string) {
			c, err := buildCompiler(ctx, spec)
			if err != nil {
				logger.Error("reload failed, keeping previous compiler", "reason", reason, "err", err)
				return
			}
			srv.SetCompiler(c)
			logger.Info("compiler reloaded", "reason", reason, "resources", len(c.Resources()))
		}
		reloader := startReloader(ctx, cfg, logger, reload)

		grpcServer := server.NewGRPCServer(srv, cfg.AuthToken)
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			publisher.Close()
			return err
		}
		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "err", err)
			}
		}()

		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           srv.NewHTTPHandler(cfg.AuthToken),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		<-ctx.Done()
		logger.Info("shutting down")

		<-reloader
		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		logger.Info("shutdown complete")
		return nil
	},
}

// startReloader rebuilds the compiler every cfg.ReloadInterval and whenever
// a catalog replacement is announced on NATS. The returned channel is closed
// once ctx is done and the reloader has stopped.
func startReloader(ctx context.Context, cfg *config.Config, logger *slog.Logger, reload func(reason string)) <-chan struct{} {
	done := make(chan struct{})

	var tick <-chan time.Time
	if cfg.ReloadInterval > 0 {
		ticker := time.NewTicker(cfg.ReloadInterval)
		tick = ticker.C
		context.AfterFunc(ctx, ticker.Stop)
	}

	var announced <-chan events.Message
	var sub *events.NATSSubscriber
	if cfg.NATSURL != "" {
		var err error
		sub, err = events.NewNATSSubscriber(cfg.NATSURL)
		if err != nil {
			logger.Error("catalog announcements disabled", "err", err)
		} else {
			ch, cancel, err := sub.Subscribe(events.TopicCatalogReplaced)
			if err != nil {
				logger.Error("catalog announcements disabled", "err", err)
			} else {
				announced = ch
				context.AfterFunc(ctx, cancel)
			}
		}
	}

	go func() {
		defer close(done)
		if sub != nil {
			defer sub.Close()
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick:
				reload("interval")
			case _, ok := <-announced:
				if !ok {
					announced = nil
					continue
				}
				reload(events.TopicCatalogReplaced)
			}
		}
	}()
	return done
}
