package http

import (
	stdcontext "context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"baletrack/infrastructure/sqlite"
	"baletrack/production/batches"
	"baletrack/production/items"
	"baletrack/production/products"
	"baletrack/production/quads"
	"baletrack/production/shared/context"
	"baletrack/production/stocktake"
)

var ShutdownTimeout = 2 * time.Second

// Services are the feature services the route table binds to.
type Services struct {
	Products  *products.Service
	Items     *items.Service
	Batches   *batches.Service
	Quads     *quads.Service
	Stocktake *stocktake.Service
}

// Server bundles dependencies and route wiring.
type Server struct {
	Addr   string
	ln     net.Listener
	server *http.Server
	router *chi.Mux

	DB       *sqlite.DB
	Services Services
	Logger   *zap.Logger
}

// NewServer creates a new http server.
func NewServer(addr string, db *sqlite.DB, svc Services, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		Addr:     addr,
		router:   chi.NewRouter(),
		DB:       db,
		Services: svc,
		Logger:   logger.Named("http"),
		server: &http.Server{
			MaxHeaderBytes:    1 << 20,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	// Secure headers first.
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			next.ServeHTTP(w, r)
		})
	})

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.RequestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(context.ActorMiddleware)

	s.router.Get("/health", s.health)

	s.router.Route("/api", func(r chi.Router) {
		s.RegisterProductRoutes(r)
		s.RegisterItemRoutes(r)
		s.RegisterBatchRoutes(r)
		s.RegisterQuadRoutes(r)
		s.RegisterInventoryRoutes(r)
	})

	s.server.Handler = s.router
	return s
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.DB != nil {
		if err := s.DB.Ping(r.Context()); err != nil {
			s.Logger.Error("health check failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db unavailable"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// RequestLogger logs one line per request through zap.
func (s *Server) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		defer func() {
			s.Logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(started)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("actor", context.Actor(r.Context())))
		}()
		next.ServeHTTP(ww, r)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	var err error
	if s.ln, err = net.Listen("tcp", s.Addr); err != nil {
		return err
	}
	go func() {
		if err := s.server.Serve(s.ln); err != nil && err != http.ErrServerClosed {
			s.Logger.Error("http server stopped", zap.Error(err))
		}
	}()
	return nil
}

// ListenAddr returns the bound address once started.
func (s *Server) ListenAddr() string {
	if s.ln == nil {
		return s.Addr
	}
	return s.ln.Addr().String()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	if s.ln == nil {
		return fmt.Errorf("HTTP server has not been started or is already stopped")
	}
	ctx, cancel := stdcontext.WithTimeout(stdcontext.Background(), ShutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %v", err)
	}
	s.ln = nil
	return nil
}
