// Command edge answers every call with a temporary redirect to a live
// instance of the configured service type.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"mini-redirect/cache"
	"mini-redirect/config"
	"mini-redirect/edge"
	"mini-redirect/middleware"
	"mini-redirect/redirect"
	"mini-redirect/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logger := cfg.Logger(os.Stdout).With().Str("cmd", "edge").Str("service_type", cfg.ServiceType).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("edge stopped")
	}
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	st, err := cfg.OpenStore(ctx, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	svc := cache.New(st, cache.WithLogger(logger))
	r := redirect.NewRandom(svc, cfg.ServiceType,
		redirect.WithMemoryTTL(cfg.MemoryTTL),
		redirect.WithLogger(logger),
	)

	var mws []middleware.Middleware
	if cfg.RateLimit > 0 {
		mws = append(mws, middleware.RateLimit(cfg.RateLimit, cfg.RateBurst))
	}
	if cfg.RequestTimeout > 0 {
		mws = append(mws, middleware.Timeout(cfg.RequestTimeout))
	}

	a, err := edge.New(edge.Options{
		Redirector:        r,
		Logger:            logger,
		Middleware:        mws,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
	})
	if err != nil {
		return err
	}
	a.Handle("", "/*", "", nil)

	srv := server.NewServer(cfg.ListenAddr, a, logger)
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ctx) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info().Msg("shutting down")
	if err := srv.Shutdown(shutdownTimeout); err != nil {
		return err
	}
	return <-errc
}
