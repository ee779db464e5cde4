// Package httpserver exposes sessions, uploads, conversions, results and
// preferences over a JSON HTTP API.
package httpserver

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"time"

	"formatconv/logger"
	"formatconv/prefs"
	"formatconv/publisher"
	"formatconv/session"
)

type Config struct {
	AllowOrigin string
	JWTSecret   string
	TokenTTL    time.Duration
	MaxFiles    int
	// AutoDownload tells clients to fetch results as soon as they are
	// published.
	AutoDownload bool
}

type Server struct {
	cfg      Config
	secret   []byte
	sessions *session.Manager
	results  publisher.Store
	prefs    prefs.Store
	now      func() time.Time
}

func New(cfg Config, sessions *session.Manager, results publisher.Store, store prefs.Store) (*Server, error) {
	if sessions == nil || results == nil || store == nil {
		return nil, errors.New("httpserver needs sessions, a result store and a preference store")
	}
	if cfg.AllowOrigin == "" {
		cfg.AllowOrigin = "*"
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 50
	}
	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generating token secret: %w", err)
		}
		logger.Warn(context.Background(), "no jwt secret configured; tokens will not survive a restart")
	}
	return &Server{
		cfg:      cfg,
		secret:   secret,
		sessions: sessions,
		results:  results,
		prefs:    store,
		now:      time.Now,
	}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("POST /api/files", s.handleSelect)
	mux.HandleFunc("DELETE /api/files", s.handleReset)
	mux.HandleFunc("PUT /api/format", s.handleSetFormat)
	mux.HandleFunc("POST /api/format/swap", s.handleSwap)
	mux.HandleFunc("POST /api/convert", s.handleConvert)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /results/{id}", s.handleResult)
	mux.HandleFunc("GET /api/prefs/{key}", s.handleGetPref)
	mux.HandleFunc("PUT /api/prefs/{key}", s.handleSetPref)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return requestID(cors(s.cfg.AllowOrigin, mux))
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, addr string, h http.Handler, readTimeout, shutdownTimeout time.Duration) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       readTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "server listening", logger.Fields{"addr": addr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return <-errCh
}
