package domain

import (
	"context"

	"snapreview/internal/models"
)

// UnitOfWork coordinates the multi-step tracking writes within a single
// database transaction. Copy tracking touches three tables (counter upsert,
// optional feedback deletion, aggregate snapshot) and must land atomically.
//
// Typical usage:
//
//	uow, err := factory.Begin(ctx)
//	if err != nil { ... }
//	defer uow.Rollback()
//	count, err := uow.UpsertCopyMetric(ctx, id, lang)
//	...
//	if err := uow.Commit(); err != nil { ... }
//
// NOTE: Keep the transaction as short as possible.
type UnitOfWork interface {
	Commit() error
	Rollback() error

	UpsertCopyMetric(ctx context.Context, businessID, languageCode string) (int64, error)
	DeleteConsumedFeedback(ctx context.Context, businessID string, feedbackID int64) error
	CopyBreakdown(ctx context.Context, businessID string) (int64, map[string]int64, error)
	UpdateTotalCopyCount(ctx context.Context, businessID string) error

	EnsureMetricsRow(ctx context.Context, businessID string) error
	IncrementScan(ctx context.Context, businessID string) error
	BusinessMetrics(ctx context.Context, businessID string) (*models.BusinessMetrics, error)

	InsertReview(ctx context.Context, review *models.Review) error
	RecalcReviewAggregates(ctx context.Context, businessID string) error
}

// UnitOfWorkFactory starts new UnitOfWork instances. A returned UnitOfWork
// is already begun.
type UnitOfWorkFactory interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}
