package models

import (
	"time"
)

// CopyMetric maps to business_copy_metrics: one row per
// (business, language), incremented atomically on every copy.
type CopyMetric struct {
	BusinessID        string     `json:"business_id" db:"business_id"`
	LanguageCode      string     `json:"language_code" db:"language_code"`
	CopyCount         int64      `json:"copy_count" db:"copy_count"`
	LastCopyTimestamp *time.Time `json:"last_copy_timestamp,omitempty" db:"last_copy_timestamp"`
}

// BusinessMetrics maps to business_metrics: one aggregate row per business,
// recomputed on scan and review events.
type BusinessMetrics struct {
	BusinessID     string     `json:"business_id" db:"business_id"`
	TotalCopyCount int64      `json:"total_copy_count" db:"total_copy_count"`
	TotalQRScans   int64      `json:"total_qr_scans" db:"total_qr_scans"`
	TotalReviews   int64      `json:"total_reviews" db:"total_reviews"`
	AverageRating  float64    `json:"average_rating" db:"average_rating"`
	ConversionRate float64    `json:"conversion_rate" db:"conversion_rate"`
	LastUpdated    *time.Time `json:"last_updated,omitempty" db:"last_updated"`
}

// CopyAnalytics is the snapshot returned after a copy is tracked.
type CopyAnalytics struct {
	TotalCopies           int64            `json:"totalCopies"`
	LanguageBreakdown     map[string]int64 `json:"languageBreakdown"`
	CurrentLanguageCopies int64            `json:"currentLanguageCopies"`
}

// DailyCopyActivity is a per-day copy total used by the analytics endpoint.
type DailyCopyActivity struct {
	Date   string `json:"date"`
	Copies int64  `json:"copies"`
}

// LanguageCopyStat is a per-language line in the analytics breakdown.
type LanguageCopyStat struct {
	LanguageCode      string     `json:"language_code"`
	LanguageName      string     `json:"language_name"`
	CopyCount         int64      `json:"copy_count"`
	LastCopyTimestamp *time.Time `json:"last_copy_timestamp,omitempty"`
}
