// Package server provides the importable fixture app for TV/Remote pairing
// tests: the TV and Remote pages, the /signal websocket hub that pairs them,
// and a WebRTC receiver for share-only Remotes.
// E2E tests start and stop it programmatically without running main().
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds server configuration options.
type Config struct {
	Addr         string         // Listen address (e.g., ":8080" or ":0" for random port)
	ReadTimeout  time.Duration  // HTTP read timeout
	WriteTimeout time.Duration  // HTTP write timeout
	JoinCodeTTL  time.Duration  // Lifetime of a TV join code before rotation
	Logger       zerolog.Logger // Defaults to a no-op logger
}

// DefaultConfig returns a configuration suitable for testing.
// Uses ":0" to bind to a random available port.
func DefaultConfig() Config {
	return Config{
		Addr:         ":0",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		JoinCodeTTL:  5 * time.Minute,
		Logger:       zerolog.Nop(),
	}
}

// Server is the fixture app.
type Server struct {
	httpServer *http.Server
	hub        *Hub
	shares     *shareRegistry
	log        zerolog.Logger

	listener net.Listener
	addr     string
	mu       sync.Mutex
	running  bool
}

// NewServer creates a new server with the given configuration.
// The server is not started until Start() is called.
func NewServer(cfg Config) (*Server, error) {
	if cfg.JoinCodeTTL < 0 {
		return nil, errors.New("join code TTL must not be negative")
	}

	s := &Server{
		hub:    NewHub(HubConfig{JoinCodeTTL: cfg.JoinCodeTTL}, cfg.Logger),
		shares: newShareRegistry(),
		log:    cfg.Logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/tv/calendar", servePage(TVPage))
	mux.HandleFunc("/remote/join", servePage(RemotePage))
	mux.Handle("/signal", s.hub)
	mux.HandleFunc("/share/offer", s.handleShareOffer)
	mux.HandleFunc("/share/stats", s.handleShareStats)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

func servePage(html string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write([]byte(html))
	}
}

// Hub returns the signaling hub.
func (s *Server) Hub() *Hub { return s.hub }

// Start begins listening and serving HTTP requests.
// Returns the actual address the server is listening on (useful when port is 0).
// This method is non-blocking - the server runs in a goroutine.
func (s *Server) Start() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return s.addr, nil
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen: %w", err)
	}

	s.listener = ln
	s.addr = ln.Addr().String()
	s.running = true

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("serve")
		}
	}()

	s.log.Info().Str("addr", s.addr).Msg("fixture app listening")
	return s.addr, nil
}

// Shutdown disconnects all signaling peers and gracefully stops HTTP.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	// Hijacked websocket connections are not tracked by http.Server.
	if err := s.hub.Close(); err != nil && !errors.Is(err, ErrHubClosed) {
		return err
	}
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the address the server is listening on.
// Returns empty string if server is not running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// BaseURL returns an http://localhost:<port> URL for the running server.
// Browsers need localhost for a secure context (getUserMedia).
func (s *Server) BaseURL() string {
	addr := s.Addr()
	if addr == "" {
		return ""
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return ""
	}
	return "http://localhost:" + port
}
