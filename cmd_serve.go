package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/CrestNiraj12/rantfeed/app"
	"github.com/CrestNiraj12/rantfeed/infra/auth"
	"github.com/CrestNiraj12/rantfeed/infra/config"
	"github.com/CrestNiraj12/rantfeed/infra/docstore"
	"github.com/CrestNiraj12/rantfeed/infra/docstore/memory"
	"github.com/CrestNiraj12/rantfeed/infra/docstore/postgres"
	"github.com/CrestNiraj12/rantfeed/infra/docstore/sqlite"
	"github.com/CrestNiraj12/rantfeed/infra/httpapi"
	"github.com/CrestNiraj12/rantfeed/infra/media"
)

const shutdownTimeout = 10 * time.Second

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return c.serve(ctx)
		},
	}
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the document store schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Opening a persistent store migrates it.
			store, err := openStore(cmd.Context(), c.cfg.Store, c.logger)
			if err != nil {
				return err
			}
			defer store.Close()
			c.logger.Info("store schema is up to date", zap.String("driver", c.cfg.Store.Driver))
			return nil
		},
	}
}

func (c *cli) serve(ctx context.Context) error {
	if err := c.cfg.RequireServe(); err != nil {
		return err
	}
	log := c.logger

	// 1. Build infrastructure.
	store, err := openStore(ctx, c.cfg.Store, log)
	if err != nil {
		return err
	}
	defer store.Close()

	verifier, err := auth.NewJWTVerifier(c.cfg.Auth.JWTSecret)
	if err != nil {
		return err
	}

	var (
		blobs      app.BlobStore
		mediaFiles http.Handler
	)
	switch c.cfg.Media.Backend {
	case "s3":
		s3, err := media.NewS3Store(ctx, c.cfg.Media.S3Bucket, c.cfg.Media.S3Region)
		if err != nil {
			return err
		}
		blobs = s3
	default:
		local, err := media.NewLocalStore(c.cfg.Media.Dir, c.cfg.Media.BaseURL)
		if err != nil {
			return err
		}
		blobs, mediaFiles = local, local.Handler()
	}

	// 2. Build services.
	svc := httpapi.Services{
		Engine:   app.NewToggleEngine(store, log),
		Posts:    app.NewPostService(store, blobs, media.Processor{}, log),
		Profiles: app.NewProfileService(store, log),
		Timeline: app.NewTimelineService(store, app.TimelineOptions{
			DefaultLimit: c.cfg.Timeline.Limit,
			PollInterval: c.cfg.Timeline.PollInterval,
		}, log),
	}

	// 3. Run until a signal arrives.
	srv := &http.Server{
		Addr:              c.cfg.ListenAddr,
		Handler:           httpapi.NewRouter(svc, verifier, httpapi.Options{Media: mediaFiles}, log),
		ReadHeaderTimeout: 10 * time.Second,
		// Streams run on hijacked connections that Shutdown does not track;
		// deriving request contexts from ctx ends them with the server.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr), zap.String("store", c.cfg.Store.Driver))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// openStore opens the configured document store. Persistent stores are
// migrated on open.
func openStore(ctx context.Context, cfg config.StoreConfig, log *zap.Logger) (docstore.Store, error) {
	policy := docstore.DefaultRetryPolicy.WithAttempts(cfg.RetryAttempts)
	switch cfg.Driver {
	case "memory":
		log.Warn("using the in-memory store; data is lost on exit")
		return memory.New(policy), nil
	case "sqlite":
		return sqlite.Open(ctx, cfg.SQLitePath, policy, log)
	case "postgres":
		return postgres.Open(ctx, postgres.Options{
			DSN:      cfg.PostgresDSN,
			MaxConns: cfg.PostgresMaxConns,
			Policy:   policy,
		}, log)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
