package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"trendai/internal/config"
	"trendai/internal/core"
	"trendai/internal/log"
	"trendai/internal/metrics"
	"trendai/internal/middleware/ratelimit"
	"trendai/internal/middleware/security"
	"trendai/internal/middleware/trace"
	"trendai/internal/services"

	"github.com/go-chi/cors"
)

// ReadyCheck is an extra dependency probed by /readyz.
type ReadyCheck func(ctx context.Context) error

// Options wires a Server. Imports, Metrics and Checks are optional.
type Options struct {
	Addr           string
	Trends         *services.TrendService
	Imports        *services.ImportService
	Metrics        *metrics.Metrics
	Logger         *log.Logger
	PublicDB       config.PublicDB
	AllowedOrigins []string
	Checks         map[string]ReadyCheck

	// Requests per minute and client IP; 0 uses 600 for reads and 60 for writes.
	ReadLimit  int
	WriteLimit int
}

// Server is the dashboard API.
type Server struct {
	http.Server

	trends   *services.TrendService
	imports  *services.ImportService
	metrics  *metrics.Metrics
	logger   *log.Logger
	publicDB config.PublicDB
	checks   map[string]ReadyCheck

	detector     *security.Detector
	tracer       *trace.Middleware
	readLimiter  *ratelimit.Limiter
	writeLimiter *ratelimit.Limiter

	started      time.Time
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 600
	}
	if opts.WriteLimit <= 0 {
		opts.WriteLimit = 60
	}

	s := &Server{
		trends:       opts.Trends,
		imports:      opts.Imports,
		metrics:      opts.Metrics,
		logger:       logger,
		publicDB:     opts.PublicDB,
		checks:       opts.Checks,
		detector:     security.NewDetector(),
		readLimiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.ReadLimit}),
		writeLimiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.WriteLimit}),
		started:      time.Now(),
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, logger)

	mux := http.NewServeMux()
	s.routes(mux)

	var handler http.Handler = mux
	handler = corsMiddleware(opts.AllowedOrigins)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = ratelimit.ByMethod(map[string]*ratelimit.Limiter{
		http.MethodPost:   s.writeLimiter,
		http.MethodPut:    s.writeLimiter,
		http.MethodDelete: s.writeLimiter,
	}, s.readLimiter, s.detector.ExtractClientIP, s.onRateLimit)(handler)
	handler = s.detectSuspicious(handler)
	handler = log.RequestIDMiddleware(logger, trace.RequestIDFromRequest)(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16, // 64KB
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	s.handle(mux, "GET /api/health", s.handleHealth)
	s.handle(mux, "GET /healthz", s.handleHealth)
	s.handle(mux, "GET /readyz", s.handleReady)
	s.handle(mux, "GET /api/test-db", s.handleTestDB)

	s.handle(mux, "GET /api/item-color", s.handleTrend(core.DimColor))
	s.handle(mux, "GET /api/item-pattern", s.handleTrend(core.DimPattern))
	s.handle(mux, "GET /api/item-type-keywords", s.handleTrend(core.DimCategoryL3, "category_l1"))
	s.handle(mux, "GET /api/item-type-items", s.handleTrend(core.DimItemType, "category_l3"))
	s.handle(mux, "GET /api/item-type-meta", s.handleItemTypeMeta)
	s.handle(mux, "GET /api/item-type-categories", s.handleItemTypeCategories)
	s.handle(mux, "GET /api/item-detail", s.handleItemDetail)
	s.handle(mux, "GET /api/mood-rate", s.handleMoodRate)
	s.handle(mux, "GET /api/mood-keywords", s.handleMoodKeywords)

	s.handle(mux, "GET /api/color-images", s.handleImages(core.DimColor))
	s.handle(mux, "GET /api/pattern-images", s.handleImages(core.DimPattern))
	s.handle(mux, "GET /api/detail-images", s.handleImages(core.DimDetail))

	s.handle(mux, "GET /api/trends/{dimension}/snapshot", s.handleSnapshot)
	s.handle(mux, "POST /api/trends/refresh", s.handleRefresh)

	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("route not found").RequestID(r.Context()).Write(w)
	})
}

// handle registers h and records its status and latency under the route pattern.
func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		s.metrics.ObserveHTTP(pattern, r.Method, rec.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	TooManyRequestsError().RequestID(r.Context()).Write(w)
}

// detectSuspicious logs probing requests; they are still served.
func (s *Server) detectSuspicious(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.DetectSuspiciousRequest(r) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request detected",
				log.FieldClientIP, s.detector.ExtractClientIP(r),
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldUserAgent, r.Header.Get("User-Agent"))
		}
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"http://localhost:3001"}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}

// Shutdown stops the rate limiters and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.readLimiter.Stop()
		s.writeLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
