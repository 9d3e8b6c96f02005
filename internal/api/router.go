package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"snapreview/internal/analytics"
	"snapreview/internal/autofeedback"
	"snapreview/internal/domain"
	"snapreview/internal/generator"
	"snapreview/internal/places"
	"snapreview/internal/subscription"
	"snapreview/pkg/config"
	"snapreview/pkg/events"
	"snapreview/pkg/health"
	"snapreview/pkg/logging"
	"snapreview/pkg/metrics"
)

// Deps bundles everything the router needs.
type Deps struct {
	Cfg      *config.Config
	Repo     domain.Repository
	Gen      *generator.Generator
	Tracker  *analytics.Tracker
	Batch    *autofeedback.Service
	Gate     *subscription.Gate
	Resolver *places.Resolver
	Events   events.EventStore
	Health   *health.Manager
	Logger   *logging.Logger
}

// NewRouter wires all routes.
func NewRouter(d Deps) *mux.Router {
	r := mux.NewRouter()
	r.Use(requestLogMiddleware(d.Logger))

	b := r.PathPrefix("/api/businesses/{id}").Subrouter()
	b.HandleFunc("/generate-feedback", GenerateFeedbackHandler(d.Repo, d.Gen)).Methods("POST")
	b.HandleFunc("/generate-live-feedback", GenerateLiveFeedbackHandler(d.Repo, d.Gen)).Methods("POST")
	b.HandleFunc("/feedback", ListFeedbackHandler(d.Repo)).Methods("GET")
	b.HandleFunc("/add-feedback", AddFeedbackHandler(d.Repo)).Methods("POST")
	b.HandleFunc("/feedback/{feedbackID}", DeleteFeedbackHandler(d.Repo)).Methods("DELETE")
	b.HandleFunc("/track-copy", TrackCopyHandler(d.Tracker, d.Repo, d.Events, d.Logger)).Methods("POST")
	b.HandleFunc("/track-scan", TrackScanHandler(d.Repo, d.Tracker, d.Events, d.Logger)).Methods("POST")
	b.HandleFunc("/analytics", AnalyticsHandler(d.Tracker)).Methods("GET")
	b.HandleFunc("/reviews", SubmitReviewHandler(d.Repo, d.Tracker, d.Events, d.Logger)).Methods("POST")
	b.HandleFunc("/language-preferences", GetLanguagePreferencesHandler(d.Repo)).Methods("GET")
	b.HandleFunc("/language-preferences", PutLanguagePreferencesHandler(d.Repo)).Methods("PUT")
	b.HandleFunc("/subscription", SubscriptionHandler(d.Gate)).Methods("GET")
	b.HandleFunc("/events", EventsHandler(d.Events)).Methods("GET")
	b.HandleFunc("/review-target", ReviewTargetHandler(d.Repo, d.Gate, d.Resolver)).Methods("GET")

	cron := r.PathPrefix("/api/cron").Subrouter()
	cron.Use(CronAuthMiddleware(d.Cfg.CronSecretToken))
	cron.HandleFunc("/auto-feedback", TriggerAutoFeedbackHandler(d.Batch, d.Events, d.Logger)).Methods("POST")
	cron.HandleFunc("/auto-feedback", AutoFeedbackStatusHandler(d.Batch)).Methods("GET")

	if d.Health != nil {
		r.HandleFunc("/health", d.Health.Handler()).Methods("GET")
	}
	if d.Cfg.MetricsEnabled {
		r.Handle(d.Cfg.MetricsPath, metrics.Default.Handler()).Methods("GET")
	}
	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func requestLogMiddleware(logger *logging.Logger) mux.MiddlewareFunc {
	log := logger.Component("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			metrics.Default.Counter("http_requests_total", "HTTP requests served").Inc()
			log.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", time.Since(start).Milliseconds())
		})
	}
}
