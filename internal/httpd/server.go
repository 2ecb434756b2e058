// Package httpd exposes the tenant engines over HTTP.
//
// Every operation is a POST with a JSON body under /{owner}/..., mirroring
// the engine's operation set one-to-one. Authentication is two-layered:
// a session credential (issued by login, presented as a bearer token)
// authenticates the user, and a filesystem-handle credential (issued by
// fs/fsget) names a union view, which the engine re-validates against the
// caller's grants on every file operation.
package httpd

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/driftfs/driftfs/internal/logger"
	"github.com/driftfs/driftfs/internal/owner"
	"github.com/driftfs/driftfs/internal/ratelimiter"
	"github.com/driftfs/driftfs/pkg/metrics"
	"github.com/driftfs/driftfs/pkg/vfs"
)

// Config contains HTTP server settings.
type Config struct {
	Listen          string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
	AllowedOrigins  []string

	// LoginRate is the sustained login attempts per second allowed per
	// tenant and client address. Zero disables throttling.
	LoginRate  float64
	LoginBurst int
}

// Server is the HTTP front of a tenant pool.
type Server struct {
	pool         *owner.Pool
	sessions     *SessionManager
	fsTokens     *FSTokenCodec
	cfg          Config
	loginLimiter *ratelimiter.Limiter
	metrics      metrics.HTTPMetrics

	httpServer *http.Server
}

// NewServer wires the router and returns a server ready to listen.
func NewServer(pool *owner.Pool, sessions *SessionManager, fsTokens *FSTokenCodec, cfg Config) *Server {
	s := &Server{
		pool:         pool,
		sessions:     sessions,
		fsTokens:     fsTokens,
		cfg:          cfg,
		loginLimiter: ratelimiter.New(cfg.LoginRate, cfg.LoginBurst),
		metrics:      metrics.NewHTTPMetrics(),
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Listen,
		Handler:      s.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Router builds the route tree. Exposed for tests.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)
	r.Use(s.bodyLimitMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(requestLogger)

	r.Route("/{owner}", func(r chi.Router) {
		r.Post("/login", s.handleLogin)

		r.Route("/{pool}", func(r chi.Router) {
			r.Use(s.sessionMiddleware)

			r.Post("/resume", s.handleResume)
			r.Post("/sesdetail", s.handleSesDetail)
			r.Post("/logout", s.handleLogout)

			r.Post("/useradd", s.handleUserAdd)
			r.Post("/usermod", s.handleUserMod)
			r.Post("/userdel", s.handleUserDel)
			r.Post("/userlist", s.handleUserList)

			r.Post("/fs", s.handleFS)
			r.Post("/fsget", s.handleFSGet)
			r.Post("/fsresume", s.handleFSResume)
			r.Post("/fsadd", s.handleFSAdd)
			r.Post("/fsmod", s.handleFSMod)
			r.Post("/fsdel", s.handleFSDel)
			r.Post("/fslist", s.handleFSList)
			r.Post("/fsdetail", s.handleFSDetail)
			r.Post("/grant", s.handleGrant)

			r.Post("/readdir", s.handleReaddir)
			r.Post("/stat", s.handleStat)
			r.Post("/writefile", s.handleWriteFile)
			r.Post("/readfile", s.handleReadFile)
			r.Post("/unlink", s.handleUnlink)
			r.Post("/move", s.handleMove)
		})
	})
	return r
}

// ListenAndServe runs the server until the context is cancelled, then
// shuts down gracefully within the configured timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		logger.Info("http server listening on %s", s.cfg.Listen)
		errc <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	logger.Info("http server shutting down")
	return s.httpServer.Shutdown(shutdownCtx)
}

// ============================================================================
// Middleware
// ============================================================================

// requestContext carries the authenticated session through a request.
type requestContext struct {
	owner       string
	pool        string
	engineToken string
}

type contextKey string

const sessionContextKey contextKey = "driftfs_session"

// sessionMiddleware authenticates the bearer credential against the pool
// id in the URL and checks the session belongs to the addressed tenant.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerName := chi.URLParam(r, "owner")
		pool := chi.URLParam(r, "pool")

		token, ok := bearerToken(r)
		if !ok {
			writeError(w, &vfs.StoreError{Code: vfs.ErrInvalidToken, Message: "Missing bearer token."})
			return
		}
		sessionOwner, engineToken, err := s.sessions.Lookup(pool, token)
		if err != nil {
			writeError(w, err)
			return
		}
		if sessionOwner != ownerName {
			writeError(w, &vfs.StoreError{Code: vfs.ErrInvalidToken, Message: "Invalid session."})
			return
		}

		reqCtx := &requestContext{owner: ownerName, pool: pool, engineToken: engineToken}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionContextKey, reqCtx)))
	})
}

// session returns the request's authenticated session context.
func session(r *http.Request) *requestContext {
	return r.Context().Value(sessionContextKey).(*requestContext)
}

func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
		return "", false
	}
	return auth[len(prefix):], true
}

// corsMiddleware answers preflight requests and stamps allowed origins.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// bodyLimitMiddleware caps request body size.
func (s *Server) bodyLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.MaxBodyBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// metricsMiddleware records request counts, durations, and in-flight
// gauge per route pattern.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.metrics.RecordRequestStart()
		defer s.metrics.RecordRequestEnd()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.RecordRequest(route, ww.Status(), time.Since(start))
	})
}

// requestLogger logs one line per request at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("%s %s (%s)", r.Method, r.URL.Path, time.Since(start))
	})
}
