package models

import (
	"time"
)

// BusinessStatus values stored in businesses.status.
const (
	BusinessActive   = "active"
	BusinessInactive = "inactive"
)

type Business struct {
	ID                    string     `json:"id" db:"id"`
	Name                  string     `json:"name" db:"name"`
	BusinessType          *string    `json:"business_type,omitempty" db:"business_type"`
	Tags                  *string    `json:"tags,omitempty" db:"tags"`
	Status                string     `json:"status" db:"status"`
	SubscriptionStatus    *string    `json:"subscription_status,omitempty" db:"subscription_status"`
	SubscriptionPlan      *string    `json:"subscription_plan,omitempty" db:"subscription_plan"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at,omitempty" db:"subscription_expires_at"`
	QRCodesEnabled        *bool      `json:"qr_codes_enabled,omitempty" db:"qr_codes_enabled"`
	GooglePlaceID         *string    `json:"google_place_id,omitempty" db:"google_place_id"`
	CreatedAt             *time.Time `json:"created_at,omitempty" db:"created_at"`
}

// LanguagePreference maps to business_language_preferences.
// (business_id, language_code) is unique.
type LanguagePreference struct {
	BusinessID   string `json:"business_id" db:"business_id"`
	LanguageCode string `json:"language_code" db:"language_code"`
	LanguageName string `json:"language_name" db:"language_name"`
}

// BusinessLanguage is one row of the businesses x language preferences
// cross-product consumed by the batch generator.
type BusinessLanguage struct {
	BusinessID   string  `json:"business_id"`
	BusinessName string  `json:"business_name"`
	BusinessType *string `json:"business_type,omitempty"`
	Tags         *string `json:"tags,omitempty"`
	LanguageCode string  `json:"language_code"`
	LanguageName string  `json:"language_name"`
}
