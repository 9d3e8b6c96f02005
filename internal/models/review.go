package models

import (
	"math"
	"time"

	errs "snapreview/pkg/errors"
)

// Review maps to the reviews table. IP and user agent are kept for spam
// checks only and never rendered back to customers.
type Review struct {
	ID            int64     `json:"id" db:"id"`
	BusinessID    string    `json:"business_id" db:"business_id"`
	CustomerName  *string   `json:"customer_name,omitempty" db:"customer_name"`
	CustomerPhone *string   `json:"customer_phone,omitempty" db:"customer_phone"`
	Rating        float64   `json:"rating" db:"rating"`
	ReviewText    *string   `json:"review_text,omitempty" db:"review_text"`
	IPAddress     string    `json:"-" db:"ip_address"`
	UserAgent     string    `json:"-" db:"user_agent"`
	IsApproved    bool      `json:"is_approved" db:"is_approved"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// ValidateRating accepts 1..5 in half-star increments.
func ValidateRating(r float64) error {
	if r < 1 || r > 5 {
		return errs.NewValidation("models.ValidateRating", "rating must be between 1 and 5", nil)
	}
	doubled := r * 2
	if doubled != math.Trunc(doubled) {
		return errs.NewValidation("models.ValidateRating", "rating must be in half-star increments", nil)
	}
	return nil
}
