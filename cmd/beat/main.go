// Command beat runs one advertised instance of the configured service type.
// While it is up its heartbeat keeps it in the live set that edges redirect
// to; on SIGINT or SIGTERM it withdraws before draining requests.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"mini-redirect/cache"
	"mini-redirect/config"
	"mini-redirect/heart"
	"mini-redirect/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logger := cfg.Logger(os.Stdout).With().Str("cmd", "beat").Str("service_type", cfg.ServiceType).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("instance stopped")
	}
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	st, err := cfg.OpenStore(ctx, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	instance := cfg.InstanceName
	if instance == "" {
		instance = advertisedName(cfg.ListenAddr)
	}
	logger = logger.With().Str("instance", instance).Logger()

	hb, err := heart.New(
		heart.WithCacheService(cache.New(st, cache.WithLogger(logger))),
		heart.WithServiceType(cfg.ServiceType),
		heart.WithInstanceName(instance),
		heart.WithHeartRate(cfg.HeartRate),
		heart.WithTTLRatio(cfg.TTLRatio),
		heart.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "%s %s served by %s\n", r.Method, r.URL.RequestURI(), instance)
	})

	srv := server.NewServer(cfg.ListenAddr, mux, logger)
	srv.Advertise(hb)
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ctx) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info().Msg("withdrawing")
	if err := srv.Shutdown(shutdownTimeout); err != nil {
		return err
	}
	return <-errc
}

// advertisedName is the local address with the listen port, the authority
// callers are redirected to.
func advertisedName(listenAddr string) string {
	_, port, err := net.SplitHostPort(listenAddr)
	if err != nil || port == "" {
		return heart.LocalName()
	}
	return net.JoinHostPort(heart.LocalName(), port)
}
