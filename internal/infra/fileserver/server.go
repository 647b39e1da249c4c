package fileserver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"telegram-media-downloader/internal/config"
	"telegram-media-downloader/internal/domain/ports/adapter"
)

var _ adapter.LinkPublisher = (*Server)(nil)

type link struct {
	filePath  string
	expiresAt time.Time
}

// Server publishes local artifacts under random single-use-style tokens and
// serves them over HTTP. Links expire after the configured TTL; the files
// themselves are owned by the storage cleanup worker.
type Server struct {
	cfg *config.FileServerConfig
	log *zerolog.Logger

	mu    sync.Mutex
	links map[string]link

	httpServer *http.Server
}

func New(cfg *config.FileServerConfig, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "FileServer").Logger()
	return &Server{
		cfg:   cfg,
		log:   &l,
		links: make(map[string]link),
	}
}

// Router exposes the server's routes so main can mount extra handlers
// (metrics, health) on the same listener.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/d/{token}", s.handleDownload)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// Start serves the given handler on the configured port until ctx is done.
func (s *Server) Start(ctx context.Context, handler http.Handler) error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	s.log.Info().Int("port", s.cfg.Port).Msg("file server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Publish registers the file under a fresh token and returns the public URL.
func (s *Server) Publish(filePath string) (string, error) {
	if _, err := os.Stat(filePath); err != nil {
		return "", fmt.Errorf("publish %s: %w", filePath, err)
	}
	token, err := newToken()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.links[token] = link{filePath: filePath, expiresAt: time.Now().Add(s.cfg.LinkTTL)}
	s.pruneLocked()
	s.mu.Unlock()

	base := strings.TrimRight(s.cfg.BaseURL, "/")
	return base + "/d/" + token, nil
}

func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	s.mu.Lock()
	lk, ok := s.links[token]
	if ok && time.Now().After(lk.expiresAt) {
		delete(s.links, token)
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	if _, err := os.Stat(lk.filePath); err != nil {
		s.log.Warn().Str("file", lk.filePath).Msg("published file no longer on disk")
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", filepath.Base(lk.filePath)))
	http.ServeFile(w, r, lk.filePath)
}

// pruneLocked drops expired links. Caller holds the mutex.
func (s *Server) pruneLocked() {
	now := time.Now()
	for token, lk := range s.links {
		if now.After(lk.expiresAt) {
			delete(s.links, token)
		}
	}
}
