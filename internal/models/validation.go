package models

import (
	"github.com/google/uuid"

	errs "snapreview/pkg/errors"
)

// ValidateBusinessID checks the UUID format used for business identifiers.
// Handlers call this before touching the database so malformed IDs are
// rejected without a round trip.
func ValidateBusinessID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errs.NewValidation("models.ValidateBusinessID", "invalid business ID format", err)
	}
	return nil
}
