package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/shaharia-lab/devgate/internal/assets"
	"github.com/shaharia-lab/devgate/internal/build"
	"github.com/shaharia-lab/devgate/internal/compat"
	"github.com/shaharia-lab/devgate/internal/config"
	"github.com/shaharia-lab/devgate/internal/devproxy"
	"github.com/shaharia-lab/devgate/internal/metrics"
)

// Deps are the collaborators the server routes to.
type Deps struct {
	Config  *config.AppConfig
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// ClientEnv serves the public env snapshot. Optional.
	ClientEnv http.Handler

	// FrontendFS is the built client bundle, used in production mode.
	FrontendFS fs.FS
}

// Server is the devgate HTTP server.
type Server struct {
	cfg        *config.AppConfig
	logger     *slog.Logger
	handler    http.Handler
	httpServer *http.Server
}

// New creates a new Server. In development and test modes the app routes go
// through the compatibility guard to the Vite dev server; in production they
// are served from FrontendFS.
func New(d Deps) (*Server, error) {
	s := &Server{
		cfg:    d.Config,
		logger: d.Logger,
	}

	app, err := s.appHandler(d)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(d.Metrics.Middleware)
	// CORS covers devgate's own endpoints only. Preflights for app routes go
	// through the guard to Vite, which answers them itself.
	r.Use(middleware.Maybe(cors.Handler(cors.Options{
		AllowedOrigins:   d.Config.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}), isOwnEndpoint))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", d.Metrics.Handler())

	r.Route("/__devgate", func(r chi.Router) {
		r.Get("/version", handleVersion)
		if d.ClientEnv != nil {
			r.Get("/env.json", d.ClientEnv.ServeHTTP)
		}
	})

	r.Handle("/*", app)

	s.handler = otelhttp.NewHandler(r, "devgate",
		otelhttp.WithSpanNameFormatter(spanName),
	)
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", d.Config.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run starts the HTTP server and blocks until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	lc := &net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("shutting down server")
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// isOwnEndpoint reports whether r targets a route devgate answers itself
// rather than the proxied or bundled app.
func isOwnEndpoint(r *http.Request) bool {
	p := r.URL.Path
	return p == "/health" || p == "/metrics" || strings.HasPrefix(p, "/__devgate/")
}

// spanName names server spans by method. Paths are left out: dev server
// module paths are unbounded.
func spanName(_ string, r *http.Request) string {
	return "HTTP " + r.Method
}

// appHandler picks what serves the application routes for the configured mode.
func (s *Server) appHandler(d Deps) (http.Handler, error) {
	if !d.Config.GuardEnabled() {
		if d.FrontendFS == nil {
			return nil, fmt.Errorf("production mode needs a client bundle: set DEVGATE_DIST_DIR or build with the embedded bundle")
		}
		return assets.Handler(d.FrontendFS), nil
	}

	proxy, err := devproxy.New(d.Config.ViteURL, d.Logger)
	if err != nil {
		return nil, err
	}
	guard := compat.New(
		compat.WithObserver(d.Metrics),
		compat.WithLogger(d.Logger),
	)
	return guard.Middleware(proxy), nil
}

// requestLogger is a chi middleware that logs each incoming request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"mode":   s.cfg.Mode,
	})
}

func handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, build.Fields())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
