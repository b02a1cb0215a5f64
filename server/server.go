// Package server runs an HTTP handler as an advertised instance of a service
// type, with graceful shutdown.
//
// Lifecycle:
//
//	Serve    → heartbeat starts (instance joins the live set) → accept loop
//	Shutdown → heartbeat stops and the marker is removed (redirectors stop
//	           sending callers here) → listener closes → in-flight requests
//	           drain, bounded by the timeout
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"mini-redirect/heart"
)

// Server wraps an http.Server.
type Server struct {
	http     *http.Server
	beat     *heart.Heartbeat // nil when this process is not advertised
	log      zerolog.Logger
	shutdown atomic.Bool // set before closing so Serve reports an orderly stop
}

func NewServer(addr string, h http.Handler, log zerolog.Logger) *Server {
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// Advertise makes Serve keep hb beating while the server is up.
func (s *Server) Advertise(hb *heart.Heartbeat) {
	s.beat = hb
}

// Serve listens on the configured address.
func (s *Server) Serve(ctx context.Context) error {
	l, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, l)
}

// ServeListener blocks until Shutdown is called or the listener fails.
func (s *Server) ServeListener(ctx context.Context, l net.Listener) error {
	if s.beat != nil {
		if err := s.beat.Start(ctx); err != nil {
			l.Close()
			return fmt.Errorf("server: start heartbeat: %w", err)
		}
	}

	s.log.Info().Str("addr", l.Addr().String()).Msg("serving")
	err := s.http.Serve(l)
	if s.shutdown.Load() && errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	if s.beat != nil {
		s.beat.Stop()
	}
	return err
}

// Shutdown withdraws the instance from the live set first, then stops
// accepting connections and waits up to timeout for in-flight requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if s.beat != nil {
		s.beat.Stop()
		if _, err := s.beat.Deregister(ctx); err != nil {
			s.log.Warn().Err(err).Msg("deregister failed, marker will expire on its own")
		}
	}

	s.shutdown.Store(true)
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("timeout waiting for ongoing requests to finish: %w", err)
	}
	s.log.Info().Msg("server stopped")
	return nil
}
