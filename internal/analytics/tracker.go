// Package analytics records copy and scan events and serves the per-business
// usage breakdown. Copy tracking is the one write path with multi-table
// consistency requirements, so it runs through a unit of work.
package analytics

import (
	"context"
	"time"

	"snapreview/internal/domain"
	"snapreview/internal/models"
	"snapreview/pkg/logging"
	"snapreview/pkg/metrics"
)

// CopyResult is the post-commit snapshot returned to the copy endpoint.
type CopyResult struct {
	LanguageCopies   int64            `json:"language_copies"`
	TotalCopies      int64            `json:"total_copies"`
	Breakdown        map[string]int64 `json:"breakdown"`
	FeedbackConsumed bool             `json:"feedback_consumed"`
}

// Overview aggregates everything the analytics endpoint reports.
type Overview struct {
	Metrics        *models.BusinessMetrics    `json:"metrics,omitempty"`
	LanguageStats  []models.LanguageCopyStat  `json:"language_stats"`
	RecentActivity []models.DailyCopyActivity `json:"recent_activity"`
}

type Tracker struct {
	uowf   domain.UnitOfWorkFactory
	repo   domain.Repository
	logger *logging.Logger
}

func NewTracker(uowf domain.UnitOfWorkFactory, repo domain.Repository, logger *logging.Logger) *Tracker {
	return &Tracker{uowf: uowf, repo: repo, logger: logger.Component("analytics")}
}

// RecordCopy registers one copy event in a single transaction: counter
// upsert, optional deletion of the consumed stored feedback, aggregate
// update, then a snapshot read so the response reflects the committed
// state. Any step failing rolls the whole event back.
func (t *Tracker) RecordCopy(ctx context.Context, businessID, languageCode string, consumedFeedbackID *int64) (*CopyResult, error) {
	start := time.Now()

	uow, err := t.uowf.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	langCount, err := uow.UpsertCopyMetric(ctx, businessID, languageCode)
	if err != nil {
		return nil, err
	}

	consumed := false
	if consumedFeedbackID != nil {
		if err := uow.DeleteConsumedFeedback(ctx, businessID, *consumedFeedbackID); err != nil {
			return nil, err
		}
		consumed = true
	}

	if err := uow.EnsureMetricsRow(ctx, businessID); err != nil {
		return nil, err
	}
	if err := uow.UpdateTotalCopyCount(ctx, businessID); err != nil {
		return nil, err
	}

	total, breakdown, err := uow.CopyBreakdown(ctx, businessID)
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, err
	}

	metrics.Default.Counter("copies_tracked_total", "Copy events recorded").Inc()
	t.logger.Timed("copy recorded", start,
		"business_id", businessID, "language", languageCode, "consumed", consumed)

	return &CopyResult{
		LanguageCopies:   langCount,
		TotalCopies:      total,
		Breakdown:        breakdown,
		FeedbackConsumed: consumed,
	}, nil
}

// RecordScan registers one QR scan. The aggregate row is created on the
// first scan a business ever receives; later scans increment the counter
// and refresh the conversion rate.
func (t *Tracker) RecordScan(ctx context.Context, businessID string) (*models.BusinessMetrics, error) {
	start := time.Now()

	uow, err := t.uowf.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	if err := uow.IncrementScan(ctx, businessID); err != nil {
		return nil, err
	}
	m, err := uow.BusinessMetrics(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}

	metrics.Default.Counter("scans_tracked_total", "QR scan events recorded").Inc()
	t.logger.Timed("scan recorded", start, "business_id", businessID)
	return m, nil
}

// SubmitReview stores a customer review and refreshes the aggregates in the
// same transaction.
func (t *Tracker) SubmitReview(ctx context.Context, review *models.Review) error {
	start := time.Now()

	uow, err := t.uowf.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.InsertReview(ctx, review); err != nil {
		return err
	}
	if err := uow.EnsureMetricsRow(ctx, review.BusinessID); err != nil {
		return err
	}
	if err := uow.RecalcReviewAggregates(ctx, review.BusinessID); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return err
	}

	metrics.Default.Counter("reviews_submitted_total", "Reviews stored").Inc()
	t.logger.Timed("review submitted", start,
		"business_id", review.BusinessID, "rating", review.Rating)
	return nil
}

// GetOverview builds the analytics response. A business with no activity
// yet gets empty collections rather than an error.
func (t *Tracker) GetOverview(ctx context.Context, businessID string) (*Overview, error) {
	m, err := t.repo.GetBusinessMetricsCtx(ctx, businessID)
	if err != nil {
		return nil, err
	}
	stats, err := t.repo.GetLanguageCopyStatsCtx(ctx, businessID)
	if err != nil {
		return nil, err
	}
	activity, err := t.repo.GetRecentCopyActivityCtx(ctx, businessID, 30)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = []models.LanguageCopyStat{}
	}
	if activity == nil {
		activity = []models.DailyCopyActivity{}
	}
	return &Overview{Metrics: m, LanguageStats: stats, RecentActivity: activity}, nil
}
