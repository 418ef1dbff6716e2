// Package server exposes the classifier catalog over HTTP.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"trove/catalog/internal/domain"
	"trove/catalog/internal/render"
)

const (
	listPath     = "/classifiers/"
	fragmentPath = "/classifiers/fragment"
	refreshPath  = "/classifiers/refresh"
	healthPath   = "/healthz"
)

// CatalogService is the part of the catalog service the handlers need.
type CatalogService interface {
	Classifiers(ctx context.Context) (*domain.Catalog, error)
	RequestRefresh(ctx context.Context, reason string, force bool) (string, error)
}

type Options struct {
	SearchPath   string
	StaticPath   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Server struct {
	service  CatalogService
	renderer *render.Renderer
	memo     *render.Memo
	opts     Options
	mux      *http.ServeMux
}

func New(service CatalogService, renderer *render.Renderer, memo *render.Memo, opts Options) *Server {
	if opts.SearchPath == "" {
		opts.SearchPath = "/search/"
	}
	if opts.StaticPath == "" {
		opts.StaticPath = "/static/"
	}

	s := &Server{
		service:  service,
		renderer: renderer,
		memo:     memo,
		opts:     opts,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, listPath, http.StatusFound)
	})
	s.mux.HandleFunc("GET "+strings.TrimSuffix(listPath, "/"), func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, listPath, http.StatusMovedPermanently)
	})
	s.mux.HandleFunc("GET "+listPath+"{$}", s.handleClassifiers)
	s.mux.HandleFunc("GET "+fragmentPath, s.handleFragment)
	s.mux.HandleFunc("POST "+refreshPath, s.handleRefresh)
	s.mux.HandleFunc("GET "+exactPattern(s.opts.SearchPath), s.handleSearch)
	s.mux.HandleFunc("GET "+healthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	s.mux.Handle("GET "+s.opts.StaticPath, http.StripPrefix(s.opts.StaticPath, http.FileServer(http.FS(render.Static()))))
}

// exactPattern keeps a trailing-slash path from matching its whole subtree.
func exactPattern(path string) string {
	if strings.HasSuffix(path, "/") {
		return path + "{$}"
	}
	return path
}

// Handler returns the routes wrapped in request logging.
func (s *Server) Handler() http.Handler {
	return logRequests(s.mux)
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("🌐 Serving classifiers on http://%s%s", addr, listPath)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	log.Info("🛑 HTTP server stopped")
	return nil
}

// currentCatalog reports a missing catalog as unavailable instead of
// failing: the list degrades to empty and the page shell says so.
func (s *Server) currentCatalog(ctx context.Context) (*domain.Catalog, bool) {
	catalog, err := s.service.Classifiers(ctx)
	if err != nil {
		log.Warnf("⚠️ Serving empty classifier list: %v", err)
		return nil, true
	}
	return catalog, false
}

func (s *Server) handleClassifiers(w http.ResponseWriter, r *http.Request) {
	catalog, unavailable := s.currentCatalog(r.Context())

	fragment, err := s.memo.Fragment(catalog)
	if err != nil {
		s.renderError(w, err)
		return
	}

	page := render.Page{
		Count:       catalog.Len(),
		Unavailable: unavailable,
		Fragment:    fragment,
	}
	if catalog != nil {
		page.FetchedAt = catalog.FetchedAt
	}

	var buf bytes.Buffer
	if err := s.renderer.RenderPage(&buf, page); err != nil {
		s.renderError(w, err)
		return
	}
	writeHTML(w, buf.Bytes())
}

func (s *Server) handleFragment(w http.ResponseWriter, r *http.Request) {
	catalog, _ := s.currentCatalog(r.Context())

	fragment, err := s.memo.Fragment(catalog)
	if err != nil {
		s.renderError(w, err)
		return
	}
	writeHTML(w, []byte(fragment))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	page := render.SearchPage{
		Query:    domain.ParseSearchQuery(r.URL.Query()),
		ListPath: listPath,
	}

	var buf bytes.Buffer
	if err := s.renderer.RenderSearch(&buf, page); err != nil {
		s.renderError(w, err)
		return
	}
	writeHTML(w, buf.Bytes())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "1" || r.URL.Query().Get("force") == "true"

	id, err := s.service.RequestRefresh(r.Context(), "http", force)
	if err != nil {
		log.Errorf("❌ Failed to queue refresh: %v", err)
		http.Error(w, "refresh could not be queued", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte(id))
}

func (s *Server) renderError(w http.ResponseWriter, err error) {
	log.Errorf("❌ Render failed: %v", err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func writeHTML(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(body)
}
