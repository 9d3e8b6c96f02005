package repository

import (
	"context"

	"snapreview/internal/domain"
	"snapreview/internal/models"
	"snapreview/pkg/database"
)

// SQLRepository implements domain.Repository over pkg/database.
type SQLRepository struct {
	db *database.DB
}

func NewSQLRepository(db *database.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

// Ensure interface conformance
var _ domain.Repository = (*SQLRepository)(nil)

// BusinessRepository

func (r *SQLRepository) GetBusinessCtx(ctx context.Context, businessID string) (*models.Business, error) {
	return r.db.GetBusinessCtx(ctx, businessID)
}

func (r *SQLRepository) BusinessActiveCtx(ctx context.Context, businessID string) (bool, error) {
	return r.db.BusinessActiveCtx(ctx, businessID)
}

func (r *SQLRepository) GetBusinessesWithLanguagePreferencesCtx(ctx context.Context) ([]models.BusinessLanguage, error) {
	return r.db.GetBusinessesWithLanguagePreferencesCtx(ctx)
}

func (r *SQLRepository) GetLanguagePreferencesCtx(ctx context.Context, businessID string) ([]models.LanguagePreference, error) {
	return r.db.GetLanguagePreferencesCtx(ctx, businessID)
}

func (r *SQLRepository) ReplaceLanguagePreferencesCtx(ctx context.Context, businessID string, prefs []models.LanguagePreference) error {
	return r.db.ReplaceLanguagePreferencesCtx(ctx, businessID, prefs)
}

// FeedbackRepository

func (r *SQLRepository) CountFeedbackCtx(ctx context.Context, businessID, languageCode string) (int, error) {
	return r.db.CountFeedbackCtx(ctx, businessID, languageCode)
}

func (r *SQLRepository) GetRandomFeedbacksCtx(ctx context.Context, businessID, languageCode string, limit int) ([]models.Feedback, error) {
	return r.db.GetRandomFeedbacksCtx(ctx, businessID, languageCode, limit)
}

func (r *SQLRepository) InsertFeedbackCtx(ctx context.Context, businessID, text, languageCode string) (*models.Feedback, error) {
	return r.db.InsertFeedbackCtx(ctx, businessID, text, languageCode)
}

func (r *SQLRepository) InsertFeedbackBatchCtx(ctx context.Context, businessID string, texts []string, languageCode string) (int, error) {
	return r.db.InsertFeedbackBatchCtx(ctx, businessID, texts, languageCode)
}

func (r *SQLRepository) DeleteFeedbackCtx(ctx context.Context, businessID string, feedbackID int64) (bool, error) {
	return r.db.DeleteFeedbackCtx(ctx, businessID, feedbackID)
}

// MetricsRepository

func (r *SQLRepository) GetBusinessMetricsCtx(ctx context.Context, businessID string) (*models.BusinessMetrics, error) {
	return r.db.GetBusinessMetricsCtx(ctx, businessID)
}

func (r *SQLRepository) GetLanguageCopyStatsCtx(ctx context.Context, businessID string) ([]models.LanguageCopyStat, error) {
	return r.db.GetLanguageCopyStatsCtx(ctx, businessID)
}

func (r *SQLRepository) GetRecentCopyActivityCtx(ctx context.Context, businessID string, days int) ([]models.DailyCopyActivity, error) {
	return r.db.GetRecentCopyActivityCtx(ctx, businessID, days)
}
