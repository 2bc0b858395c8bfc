package http

import (
	"context"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"fintrack/internal/ledger"
	applog "fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	appweb "fintrack/web"
)

// Options tunes the middleware around the ledger routes.
type Options struct {
	CORSAllowedOrigins []string
	RateLimitPerMinute int
	TrustedProxies     []string
	Logger             *applog.Logger
}

type Server struct {
	http.Server
	ledger    *ledger.Ledger
	templates *template.Template
	limiter   *ratelimit.Limiter
	detector  *security.Detector
	tracer    *trace.Middleware
	logger    *applog.Logger
	started   time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, l *ledger.Ledger, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.FromSlog(slog.Default(), applog.ComponentHTTP)
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	limitCfg := ratelimit.DefaultConfig()
	limitCfg.RequestsPerMinute = opts.RateLimitPerMinute

	s := &Server{
		ledger:   l,
		limiter:  ratelimit.NewLimiter(limitCfg),
		detector: security.NewDetector(),
		logger:   logger,
		started:  time.Now(),
	}
	for _, cidr := range opts.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", applog.FieldError, err, "cidr", cidr)
		}
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	// Parse embedded templates at startup.
	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", applog.FieldError, err)
	}
	s.templates = t

	mux := http.NewServeMux()

	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		logger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /transactions", s.handleListTransactions)
	mux.HandleFunc("POST /transactions", s.handleCreateTransaction)
	mux.HandleFunc("DELETE /transactions/{id}", s.handleDeleteTransaction)
	mux.HandleFunc("GET /summary", s.handleSummary)

	// Form fallbacks for the dashboard, which runs without scripts.
	mux.HandleFunc("POST /ui/transactions", s.handleFormCreate)
	mux.HandleFunc("POST /ui/transactions/{id}/delete", s.handleFormDelete)

	var handler http.Handler = mux
	handler = s.limiter.Middleware(s.detector.ExtractClientIP, writeRateLimited)(handler)
	handler = security.CORS(security.DefaultCORSConfig(opts.CORSAllowedOrigins))(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.detector.Middleware(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func writeRateLimited(w http.ResponseWriter, r *http.Request) {
	secs, _ := strconv.Atoi(w.Header().Get("Retry-After"))
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path,
		applog.FieldComponent, applog.ComponentRateLimit)
	TooManyRequestsError(time.Duration(secs) * time.Second).Write(w)
}

// Shutdown gracefully shuts down the server and the limiter's cleanup loop.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
