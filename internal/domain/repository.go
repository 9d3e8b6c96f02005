package domain

import (
	"context"

	"snapreview/internal/models"
)

// BusinessRepository defines data access for businesses and their language
// preferences.
type BusinessRepository interface {
	GetBusinessCtx(ctx context.Context, businessID string) (*models.Business, error)
	BusinessActiveCtx(ctx context.Context, businessID string) (bool, error)
	GetBusinessesWithLanguagePreferencesCtx(ctx context.Context) ([]models.BusinessLanguage, error)
	GetLanguagePreferencesCtx(ctx context.Context, businessID string) ([]models.LanguagePreference, error)
	ReplaceLanguagePreferencesCtx(ctx context.Context, businessID string, prefs []models.LanguagePreference) error
}

// FeedbackRepository defines access to the stored feedback pool.
type FeedbackRepository interface {
	CountFeedbackCtx(ctx context.Context, businessID, languageCode string) (int, error)
	GetRandomFeedbacksCtx(ctx context.Context, businessID, languageCode string, limit int) ([]models.Feedback, error)
	InsertFeedbackCtx(ctx context.Context, businessID, text, languageCode string) (*models.Feedback, error)
	InsertFeedbackBatchCtx(ctx context.Context, businessID string, texts []string, languageCode string) (int, error)
	DeleteFeedbackCtx(ctx context.Context, businessID string, feedbackID int64) (bool, error)
}

// MetricsRepository defines the read side of copy and scan analytics.
type MetricsRepository interface {
	GetBusinessMetricsCtx(ctx context.Context, businessID string) (*models.BusinessMetrics, error)
	GetLanguageCopyStatsCtx(ctx context.Context, businessID string) ([]models.LanguageCopyStat, error)
	GetRecentCopyActivityCtx(ctx context.Context, businessID string, days int) ([]models.DailyCopyActivity, error)
}

// Repository aggregates the repos commonly required by services.
type Repository interface {
	BusinessRepository
	FeedbackRepository
	MetricsRepository
}
