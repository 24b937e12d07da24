package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/MimeLyc/srt-batch-translator/internal/config"
	"github.com/MimeLyc/srt-batch-translator/internal/jobs"
	"github.com/MimeLyc/srt-batch-translator/internal/llm"
	"github.com/MimeLyc/srt-batch-translator/internal/service"
	"github.com/MimeLyc/srt-batch-translator/internal/translator"
	"github.com/MimeLyc/srt-batch-translator/pkg/log"
)

// maxTranslateBody bounds the JSON body of a synchronous translation.
const maxTranslateBody = 10 << 20

type translationService interface {
	TranslateContent(ctx context.Context, content string, req service.Request) (*service.Translation, error)
	ListModels(ctx context.Context) ([]llm.ModelInfo, error)
	NewFileJob(source string, payload jobs.JobPayload) (jobs.EnqueueRequest, error)
	Outcomes(ctx context.Context, jobID string) ([]translator.Outcome, error)
}

type jobQueue interface {
	Enqueue(req jobs.EnqueueRequest) (*jobs.TranslationJob, bool)
	Get(id string) (*jobs.TranslationJob, bool)
	List() []*jobs.TranslationJob
}

type scanScheduler interface {
	Scan(ctx context.Context) (int, error)
	NextScan() time.Time
}

type runtimeSettingsStore interface {
	GetRuntimeSettings() (config.RuntimeSettings, error)
	UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error)
}

type runtimeSettingsApplier func(next config.RuntimeSettings) error

type Server struct {
	svc       translationService
	queue     jobQueue
	scheduler scanScheduler
	settings  runtimeSettingsStore
	apply     runtimeSettingsApplier

	corsOrigins []string

	router chi.Router
	server *http.Server
}

type Option func(*Server)

func WithScheduler(scheduler scanScheduler) Option {
	return func(s *Server) {
		s.scheduler = scheduler
	}
}

func WithRuntimeSettingsStore(store runtimeSettingsStore) Option {
	return func(s *Server) {
		s.settings = store
	}
}

func WithRuntimeSettingsApplier(apply runtimeSettingsApplier) Option {
	return func(s *Server) {
		s.apply = apply
	}
}

// WithCORSOrigins restricts cross-origin access. Empty allows any origin
// without credentials.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

func NewServer(svc translationService, queue jobQueue, opts ...Option) *Server {
	s := &Server{
		svc:   svc,
		queue: queue,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(cors.Handler(corsOptions(s.corsOrigins)))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/models", s.handleListModels)
		r.With(chimw.RequestSize(maxTranslateBody)).Post("/translate", s.handleTranslate)

		r.Get("/jobs", s.handleListJobs)
		r.Post("/jobs", s.handleCreateJob)
		r.Get("/jobs/stream", s.handleJobStream)
		r.Get("/jobs/{id}", s.handleJobDetail)
		r.Get("/jobs/{id}/outcomes", s.handleJobOutcomes)
		r.Get("/jobs/{id}/download", s.handleJobDownload)

		r.Post("/scan", s.handleScan)

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handleUpdateSettings)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	s.router = r
}

func corsOptions(allowedOrigins []string) cors.Options {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	allowCreds := true
	for _, o := range allowedOrigins {
		if o == "*" {
			allowCreds = false
			break
		}
	}

	return cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: allowCreds,
		MaxAge:           300,
	}
}

// quiet paths are only logged when they fail
var quietPaths = map[string]bool{
	"/api/health":      true,
	"/api/jobs/stream": true,
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		if quietPaths[r.URL.Path] && status < 400 {
			return
		}
		log.Info("%s %s %d %s", r.Method, r.URL.Path, status, time.Since(start).Round(time.Millisecond))
	})
}
