// Package api holds the HTTP surface: route handlers, the cron trigger and
// the router wiring. Handlers are thin; they validate input, call one
// service and shape the response.
package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"snapreview/internal/analytics"
	"snapreview/internal/domain"
	"snapreview/internal/generator"
	"snapreview/internal/models"
	"snapreview/internal/places"
	"snapreview/internal/subscription"
	"snapreview/pkg/events"
	"snapreview/pkg/logging"
)

// businessID extracts and validates the UUID path parameter. A handler that
// gets ok=false has already written the 400.
func businessID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := mux.Vars(r)["id"]
	if err := models.ValidateBusinessID(id); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid business ID format")
		return "", false
	}
	return id, true
}

// requireActiveBusiness loads the business and rejects unknown or inactive
// ones with a 404.
func requireActiveBusiness(ctx context.Context, w http.ResponseWriter, repo domain.BusinessRepository, id string) (*models.Business, bool) {
	b, err := repo.GetBusinessCtx(ctx, id)
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	if b == nil || b.Status != models.BusinessActive {
		writeError(w, http.StatusNotFound, "Business not found or inactive")
		return nil, false
	}
	return b, true
}

type generateRequest struct {
	LanguageCode string `json:"language_code"`
}

type generateResponse struct {
	Feedback   string `json:"feedback"`
	Source     string `json:"source"`
	FeedbackID *int64 `json:"feedback_id,omitempty"`
}

// GenerateFeedbackHandler serves the QR page's feedback request. Stored
// pool first: a random pre-generated feedback is cheaper and instant. Only
// an empty pool falls through to the live pipeline.
func GenerateFeedbackHandler(repo domain.Repository, gen *generator.Generator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := businessID(w, r)
		if !ok {
			return
		}
		var req generateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeDomainError(w, err)
			return
		}
		if req.LanguageCode == "" {
			writeError(w, http.StatusBadRequest, "Language code is required")
			return
		}

		b, ok := requireActiveBusiness(r.Context(), w, repo, id)
		if !ok {
			return
		}

		stored, err := repo.GetRandomFeedbacksCtx(r.Context(), id, req.LanguageCode, 1)
		if err == nil && len(stored) > 0 {
			writeJSON(w, http.StatusOK, generateResponse{
				Feedback:   stored[0].Feedback,
				Source:     "stored",
				FeedbackID: &stored[0].ID,
			})
			return
		}

		res := gen.Generate(r.Context(), generator.Request{
			BusinessName: b.Name,
			BusinessType: deref(b.BusinessType),
			Tags:         deref(b.Tags),
			LanguageCode: req.LanguageCode,
		})
		writeJSON(w, http.StatusOK, generateResponse{Feedback: res.Feedback, Source: res.Source})
	}
}

// GenerateLiveFeedbackHandler always runs the live pipeline, bypassing the
// stored pool. Used by the regenerate button.
func GenerateLiveFeedbackHandler(repo domain.Repository, gen *generator.Generator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := businessID(w, r)
		if !ok {
			return
		}
		var req generateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeDomainError(w, err)
			return
		}
		if req.LanguageCode == "" {
			writeError(w, http.StatusBadRequest, "Language code is required")
			return
		}
		b, ok := requireActiveBusiness(r.Context(), w, repo, id)
		if !ok {
			return
		}
		res := gen.Generate(r.Context(), generator.Request{
			BusinessName: b.Name,
			BusinessType: deref(b.BusinessType),
			Tags:         deref(b.Tags),
			LanguageCode: req.LanguageCode,
		})
		writeJSON(w, http.StatusOK, generateResponse{Feedback: res.Feedback, Source: res.Source})
	}
}

// ListFeedbackHandler returns up to three random stored feedback texts,
// optionally filtered by ?language_code=.
func ListFeedbackHandler(repo domain.FeedbackRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := businessID(w, r)
		if !ok {
			return
		}
		lang := r.URL.Query().Get("language_code")
		rows, err := repo.GetRandomFeedbacksCtx(r.Context(), id, lang, 3)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		texts := make([]string, 0, len(rows))
		for _, f := range rows {
			texts = append(texts, f.Feedback)
		}
		writeJSON(w, http.StatusOK, map[string]any{"feedbacks": texts})
	}
}

type addFeedbackRequest struct {
	Feedback     string `json:"feedback"`
	LanguageCode string `json:"language_code"`
}

// AddFeedbackHandler stores one manually written feedback.
func AddFeedbackHandler(repo domain.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := businessID(w, r)
		if !ok {
			return
		}
		var req addFeedbackRequest
		if err := decodeJSON(r, &req); err != nil {
			writeDomainError(w, err)
			return
		}
		if err := models.ValidateFeedbackText(req.Feedback); err != nil {
			writeDomainError(w, err)
			return
		}
		if req.LanguageCode == "" {
			req.LanguageCode = "en"
		}
		if _, ok := requireActiveBusiness(r.Context(), w, repo, id); !ok {
			return
		}
		f, err := repo.InsertFeedbackCtx(r.Context(), id, strings.TrimSpace(req.Feedback), req.LanguageCode)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "feedback": f})
	}
}

// DeleteFeedbackHandler removes one stored feedback owned by the business.
func DeleteFeedbackHandler(repo domain.FeedbackRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := businessID(w, r)
		if !ok {
			return
		}
		feedbackID, err := strconv.ParseInt(mux.Vars(r)["feedbackID"], 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid feedback ID")
			return
		}
		deleted, err := repo.DeleteFeedbackCtx(r.Context(), id, feedbackID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if !deleted {
			writeError(w, http.StatusNotFound, "Feedback not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

type trackCopyRequest struct {
	LanguageCode string `json:"language_code"`
	FeedbackID   *int64 `json:"feedback_id"`
}

type trackCopyResponse struct {
	Success         bool                    `json:"success"`
	Analytics       models.CopyAnalytics    `json:"analytics"`
	BusinessMetrics *models.BusinessMetrics `json:"businessMetrics,omitempty"`
	Warning         string                  `json:"warning,omitempty"`
}

// TrackCopyHandler records a copy event. The copy to the clipboard already
// happened client-side, so a persistence failure reports success=false with
// a warning instead of pretending the copy failed.
func TrackCopyHandler(tracker *analytics.Tracker, repo domain.MetricsRepository, store events.EventStore, logger *logging.Logger) http.HandlerFunc {
	log := logger.Component("api")
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := businessID(w, r)
		if !ok {
			return
		}
		var req trackCopyRequest
		if err := decodeJSON(r, &req); err != nil {
			writeDomainError(w, err)
			return
		}
		if req.LanguageCode == "" {
			writeError(w, http.StatusBadRequest, "Language code is required")
			return
		}

		res, err := tracker.RecordCopy(r.Context(), id, req.LanguageCode, req.FeedbackID)
		if err != nil {
			log.Error("copy tracking failed", "business_id", id, "error", err)
			writeJSON(w, http.StatusInternalServerError, trackCopyResponse{
				Success: false,
				Analytics: models.CopyAnalytics{
					LanguageBreakdown:     map[string]int64{},
					CurrentLanguageCopies: 1,
				},
				Warning: "Tracking failed but copy operation completed",
			})
			return
		}

		if store != nil {
			appendEvent(r.Context(), store, log, events.CopyTracked{
				Base:             events.Base{Ts: time.Now(), BID: id},
				LanguageCode:     req.LanguageCode,
				LanguageCopies:   res.LanguageCopies,
				TotalCopies:      res.TotalCopies,
				FeedbackConsumed: res.FeedbackConsumed,
			})
		}

		m, _ := repo.GetBusinessMetricsCtx(r.Context(), id)
		writeJSON(w, http.StatusOK, trackCopyResponse{
			Success: true,
			Analytics: models.CopyAnalytics{
				TotalCopies:           res.TotalCopies,
				LanguageBreakdown:     res.Breakdown,
				CurrentLanguageCopies: res.LanguageCopies,
			},
			BusinessMetrics: m,
		})
	}
}

// TrackScanHandler records one QR scan for an active business.
func TrackScanHandler(repo domain.BusinessRepository, tracker *analytics.Tracker, store events.EventStore, logger *logging.Logger) http.HandlerFunc {
	log := logger.Component("api")
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := businessID(w, r)
		if !ok {
			return
		}
		active, err := repo.BusinessActiveCtx(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if !active {
			writeError(w, http.StatusNotFound, "Business not found or inactive")
			return
		}

		m, err := tracker.RecordScan(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if store != nil && m != nil {
			appendEvent(r.Context(), store, log, events.ScanTracked{
				Base:           events.Base{Ts: time.Now(), BID: id},
				TotalScans:     m.TotalQRScans,
				ConversionRate: m.ConversionRate,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message":    "QR scan tracked successfully",
			"businessId": id,
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// AnalyticsHandler serves the aggregate metrics, language breakdown and
// recent activity for a business.
func AnalyticsHandler(tracker *analytics.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := businessID(w, r)
		if !ok {
			return
		}
		overview, err := tracker.GetOverview(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, overview)
	}
}

type submitReviewRequest struct {
	CustomerName  *string `json:"customer_name"`
	CustomerPhone *string `json:"customer_phone"`
	Rating        float64 `json:"rating"`
	ReviewText    *string `json:"review_text"`
}

// SubmitReviewHandler stores a customer review and refreshes the business
// aggregates.
func SubmitReviewHandler(repo domain.BusinessRepository, tracker *analytics.Tracker, store events.EventStore, logger *logging.Logger) http.HandlerFunc {
	log := logger.Component("api")
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := businessID(w, r)
		if !ok {
			return
		}
		var req submitReviewRequest
		if err := decodeJSON(r, &req); err != nil {
			writeDomainError(w, err)
			return
		}
		if err := models.ValidateRating(req.Rating); err != nil {
			writeDomainError(w, err)
			return
		}
		if req.ReviewText != nil {
			if err := models.ValidateFeedbackText(*req.ReviewText); err != nil {
				writeDomainError(w, err)
				return
			}
		}
		if _, ok := requireActiveBusiness(r.Context(), w, repo, id); !ok {
			return
		}

		review := &models.Review{
			BusinessID:    id,
			CustomerName:  req.CustomerName,
			CustomerPhone: req.CustomerPhone,
			Rating:        req.Rating,
			ReviewText:    req.ReviewText,
			IPAddress:     clientIP(r),
			UserAgent:     r.UserAgent(),
			IsApproved:    true,
		}
		if err := tracker.SubmitReview(r.Context(), review); err != nil {
			writeDomainError(w, err)
			return
		}
		if store != nil {
			appendEvent(r.Context(), store, log, events.ReviewSubmitted{
				Base:     events.Base{Ts: time.Now(), BID: id},
				ReviewID: review.ID,
				Rating:   review.Rating,
			})
		}
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "review": review})
	}
}

type languagePreferencesRequest struct {
	Preferences []models.LanguagePreference `json:"preferences"`
}

// GetLanguagePreferencesHandler lists the configured languages.
func GetLanguagePreferencesHandler(repo domain.BusinessRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := businessID(w, r)
		if !ok {
			return
		}
		prefs, err := repo.GetLanguagePreferencesCtx(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if prefs == nil {
			prefs = []models.LanguagePreference{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"preferences": prefs})
	}
}

// PutLanguagePreferencesHandler replaces the language set for a business.
func PutLanguagePreferencesHandler(repo domain.BusinessRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := businessID(w, r)
		if !ok {
			return
		}
		var req languagePreferencesRequest
		if err := decodeJSON(r, &req); err != nil {
			writeDomainError(w, err)
			return
		}
		if len(req.Preferences) == 0 {
			writeError(w, http.StatusBadRequest, "At least one language preference is required")
			return
		}
		for i := range req.Preferences {
			req.Preferences[i].BusinessID = id
			if req.Preferences[i].LanguageCode == "" {
				writeError(w, http.StatusBadRequest, "Language code is required for every preference")
				return
			}
		}
		if _, ok := requireActiveBusiness(r.Context(), w, repo, id); !ok {
			return
		}
		if err := repo.ReplaceLanguagePreferencesCtx(r.Context(), id, req.Preferences); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "preferences": req.Preferences})
	}
}

// SubscriptionHandler reports the gate verdict for a business. Blocked
// subscriptions still return 200; the payload carries the verdict.
func SubscriptionHandler(gate *subscription.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := businessID(w, r)
		if !ok {
			return
		}
		st, err := gate.Check(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		resp := map[string]any{"subscription": st}
		if !st.Active {
			resp["message"] = st.Message()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// ReviewTargetHandler resolves the Google review destination, gated on the
// subscription.
func ReviewTargetHandler(repo domain.BusinessRepository, gate *subscription.Gate, resolver *places.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := businessID(w, r)
		if !ok {
			return
		}
		st, err := gate.Check(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if !st.Active {
			writeJSON(w, http.StatusForbidden, map[string]any{"error": st.Message()})
			return
		}
		b, ok := requireActiveBusiness(r.Context(), w, repo, id)
		if !ok {
			return
		}
		target, rerr := resolver.Resolve(r.Context(), b)
		if rerr != nil {
			writeDomainError(w, rerr)
			return
		}
		if target == nil {
			writeError(w, http.StatusNotFound, "No Google review destination configured for this business")
			return
		}
		writeJSON(w, http.StatusOK, target)
	}
}

// EventsHandler lists the recent audit trail for a business, newest first.
// ?limit= caps the page (default 100, max 500).
func EventsHandler(store events.EventStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := businessID(w, r)
		if !ok {
			return
		}
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 500 {
				writeError(w, http.StatusBadRequest, "Limit must be between 1 and 500")
				return
			}
			limit = n
		}
		if store == nil {
			writeJSON(w, http.StatusOK, map[string]any{"events": []events.StoredEvent{}})
			return
		}
		evs, err := store.ListByBusiness(r.Context(), id, limit)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if evs == nil {
			evs = []events.StoredEvent{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": evs})
	}
}

func appendEvent(ctx context.Context, store events.EventStore, log *logging.Logger, e events.Event) {
	if err := store.Append(ctx, e); err != nil {
		log.Warn("event append failed", "type", e.Type(), "error", err)
	}
}

func clientIP(r *http.Request) string {
	if v := r.Header.Get("X-Forwarded-For"); v != "" {
		if i := strings.IndexByte(v, ','); i > 0 {
			return strings.TrimSpace(v[:i])
		}
		return strings.TrimSpace(v)
	}
	if v := r.Header.Get("X-Real-IP"); v != "" {
		return v
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i > 0 {
		host = host[:i]
	}
	return host
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
