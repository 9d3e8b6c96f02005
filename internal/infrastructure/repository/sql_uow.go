package repository

import (
	"context"
	"database/sql"
	"fmt"

	"snapreview/internal/domain"
	"snapreview/internal/models"
	"snapreview/pkg/database"
)

// SQLUnitOfWorkFactory starts SQL-backed UnitOfWork transactions.
type SQLUnitOfWorkFactory struct {
	db *database.DB
}

func NewSQLUnitOfWorkFactory(db *database.DB) *SQLUnitOfWorkFactory {
	return &SQLUnitOfWorkFactory{db: db}
}

// Ensure interface conformance
var _ domain.UnitOfWorkFactory = (*SQLUnitOfWorkFactory)(nil)

func (f *SQLUnitOfWorkFactory) Begin(ctx context.Context) (domain.UnitOfWork, error) {
	tx, err := f.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("uow: begin tx: %w", err)
	}
	return &SQLUnitOfWork{db: f.db, tx: tx}, nil
}

// SQLUnitOfWork coordinates operations using a single *sql.Tx.
type SQLUnitOfWork struct {
	db *database.DB
	tx *sql.Tx
	// simple guard to avoid double commit/rollback
	closed bool
}

var _ domain.UnitOfWork = (*SQLUnitOfWork)(nil)

func (u *SQLUnitOfWork) Commit() error {
	if u.closed {
		return nil
	}
	u.closed = true
	return u.tx.Commit()
}

func (u *SQLUnitOfWork) Rollback() error {
	if u.closed {
		return nil
	}
	u.closed = true
	return u.tx.Rollback()
}

func (u *SQLUnitOfWork) UpsertCopyMetric(ctx context.Context, businessID, languageCode string) (int64, error) {
	return u.db.UpsertCopyMetricTx(ctx, u.tx, businessID, languageCode)
}

func (u *SQLUnitOfWork) DeleteConsumedFeedback(ctx context.Context, businessID string, feedbackID int64) error {
	return u.db.DeleteFeedbackTx(ctx, u.tx, businessID, feedbackID)
}

func (u *SQLUnitOfWork) CopyBreakdown(ctx context.Context, businessID string) (int64, map[string]int64, error) {
	return u.db.GetCopyBreakdownTx(ctx, u.tx, businessID)
}

func (u *SQLUnitOfWork) UpdateTotalCopyCount(ctx context.Context, businessID string) error {
	return u.db.UpdateTotalCopyCountTx(ctx, u.tx, businessID)
}

func (u *SQLUnitOfWork) EnsureMetricsRow(ctx context.Context, businessID string) error {
	return u.db.EnsureMetricsRowTx(ctx, u.tx, businessID)
}

func (u *SQLUnitOfWork) IncrementScan(ctx context.Context, businessID string) error {
	return u.db.IncrementScanTx(ctx, u.tx, businessID)
}

func (u *SQLUnitOfWork) BusinessMetrics(ctx context.Context, businessID string) (*models.BusinessMetrics, error) {
	return u.db.GetBusinessMetricsTx(ctx, u.tx, businessID)
}

func (u *SQLUnitOfWork) InsertReview(ctx context.Context, review *models.Review) error {
	return u.db.InsertReviewTx(ctx, u.tx, review)
}

func (u *SQLUnitOfWork) RecalcReviewAggregates(ctx context.Context, businessID string) error {
	return u.db.RecalcReviewAggregatesTx(ctx, u.tx, businessID)
}
