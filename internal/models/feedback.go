package models

import (
	"strings"
	"time"

	errs "snapreview/pkg/errors"
)

// MaxFeedbackLength bounds stored feedback text.
const MaxFeedbackLength = 1000

// Feedback maps to business_feedbacks: a review snippet offered to a
// customer to copy into the external review platform. Rows are created by
// the batch generator, the live generator (when saving) or a manual add,
// and removed when a customer consumes them.
type Feedback struct {
	ID           int64     `json:"id" db:"id"`
	BusinessID   string    `json:"business_id" db:"business_id"`
	Feedback     string    `json:"feedback" db:"feedback"`
	LanguageCode string    `json:"language_code" db:"language_code"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// ValidateFeedbackText enforces the stored-feedback invariants.
func ValidateFeedbackText(text string) error {
	t := strings.TrimSpace(text)
	if t == "" {
		return errs.NewValidation("models.ValidateFeedbackText", "feedback is required", nil)
	}
	if len(t) > MaxFeedbackLength {
		return errs.NewValidation("models.ValidateFeedbackText", "feedback must be 1000 characters or less", nil)
	}
	return nil
}
