package events

import (
	"context"
	"encoding/json"
	"time"
)

// Event is the base interface for business activity audit events.
// Keep payloads small, use JSON-friendly fields.
type Event interface {
	Type() string
	BusinessID() string
	Timestamp() time.Time
	MarshalData() ([]byte, error)
}

// Base contains common event metadata.
type Base struct {
	Ts  time.Time `json:"ts"`
	BID string    `json:"business_id"`
}

func (b Base) Timestamp() time.Time { return b.Ts }
func (b Base) BusinessID() string   { return b.BID }

// --- Concrete events ---

const (
	TypeCopyTracked     = "business.copy.tracked"
	TypeScanTracked     = "business.scan.tracked"
	TypeReviewSubmitted = "business.review.submitted"
	TypeBatchCompleted  = "autofeedback.run.completed"
)

// CopyTracked is emitted after a copy event commits.
type CopyTracked struct {
	Base
	LanguageCode     string `json:"language_code"`
	LanguageCopies   int64  `json:"language_copies"`
	TotalCopies      int64  `json:"total_copies"`
	FeedbackConsumed bool   `json:"feedback_consumed"`
}

func (e CopyTracked) Type() string                 { return TypeCopyTracked }
func (e CopyTracked) MarshalData() ([]byte, error) { return json.Marshal(e) }

// ScanTracked is emitted after a QR scan commits.
type ScanTracked struct {
	Base
	TotalScans     int64   `json:"total_scans"`
	ConversionRate float64 `json:"conversion_rate"`
}

func (e ScanTracked) Type() string                 { return TypeScanTracked }
func (e ScanTracked) MarshalData() ([]byte, error) { return json.Marshal(e) }

// ReviewSubmitted is emitted when a customer review lands.
type ReviewSubmitted struct {
	Base
	ReviewID int64   `json:"review_id"`
	Rating   float64 `json:"rating"`
}

func (e ReviewSubmitted) Type() string                 { return TypeReviewSubmitted }
func (e ReviewSubmitted) MarshalData() ([]byte, error) { return json.Marshal(e) }

// BatchCompleted summarizes one auto-feedback run. BusinessID is empty; the
// run spans all businesses.
type BatchCompleted struct {
	Base
	ProcessedBusinesses int    `json:"processed_businesses"`
	FeedbacksGenerated  int    `json:"feedbacks_generated"`
	FromTemplates       int    `json:"from_templates"`
	DurationMS          int64  `json:"duration_ms"`
	Message             string `json:"message"`
}

func (e BatchCompleted) Type() string                 { return TypeBatchCompleted }
func (e BatchCompleted) MarshalData() ([]byte, error) { return json.Marshal(e) }

// EventStore defines persistence and listing.
// Implementations must guarantee ordering per business.
type EventStore interface {
	Append(ctx context.Context, e Event) error
	ListByBusiness(ctx context.Context, businessID string, limit int) ([]StoredEvent, error)
}

// StoredEvent is a durable representation.
// Seq is a monotonic order within the DB.
type StoredEvent struct {
	Seq        int64           `json:"seq"`
	BusinessID string          `json:"business_id"`
	Type       string          `json:"type"`
	Ts         time.Time       `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}
