package amounts

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IDGenerator generates unique request IDs
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// uuidGenerator generates random UUIDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// ServerConfig configures the HTTP surface
type ServerConfig struct {
	BasicAuth BasicAuth
	// Model names the configured model provider in health responses
	Model string
	// BatchLimit caps how many documents of a batch request run at once
	BatchLimit int
}

// Server handles HTTP requests for amount extraction
type Server struct {
	pipeline *Pipeline
	cfg      ServerConfig
	mux      *http.ServeMux
	ids      IDGenerator
	clock    TimeSource
}

// NewServer creates a new Server with default mux
func NewServer(pipeline *Pipeline, cfg ServerConfig) *Server {
	return NewServerWithMux(pipeline, cfg, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(pipeline *Pipeline, cfg ServerConfig, mux *http.ServeMux) *Server {
	return NewServerWithDeps(pipeline, cfg, mux, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServerWithDeps creates a new Server with custom dependencies for testing
func NewServerWithDeps(pipeline *Pipeline, cfg ServerConfig, mux *http.ServeMux, ids IDGenerator, clock TimeSource) *Server {
	s := &Server{
		pipeline: pipeline,
		cfg:      cfg,
		mux:      mux,
		ids:      ids,
		clock:    clock,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.cfg.BasicAuth.Username == "" && s.cfg.BasicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	return credentials[0] == s.cfg.BasicAuth.Username && credentials[1] == s.cfg.BasicAuth.Password
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type requestIDKey struct{}

// requestIDMiddleware tags every request with an ID that is echoed in the
// X-Request-ID header and attached to its log lines
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = s.ids.Generate()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// requestLogger returns the default logger tagged with the request ID
func requestLogger(r *http.Request) *slog.Logger {
	if id, ok := r.Context().Value(requestIDKey{}).(string); ok {
		return slog.With("request_id", id)
	}
	return slog.Default()
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Bill Amounts"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("POST /api/amount-extraction/step1", s.requireAuth(s.handleStep(StageTokens)))
	s.mux.HandleFunc("POST /api/amount-extraction/step2", s.requireAuth(s.handleStep(StageNormalize)))
	s.mux.HandleFunc("POST /api/amount-extraction/step3", s.requireAuth(s.handleStep(StageClassify)))
	s.mux.HandleFunc("POST /api/amount-extraction/step4", s.requireAuth(s.handleStep(StageFinal)))
	s.mux.HandleFunc("POST /api/amount-extraction/pipeline", s.requireAuth(s.handlePipeline))
	s.mux.HandleFunc("POST /api/amount-extraction/batch", s.requireAuth(s.handleBatch))
}

// Handler returns the mux wrapped with the CORS and request ID middleware
func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(s.requestIDMiddleware(s.mux))
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}
