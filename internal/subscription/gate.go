// Package subscription decides whether a business may serve its QR code
// surfaces. Deployments that predate the subscription migration have none
// of the subscription columns; those businesses are treated as active so an
// upgrade never bricks existing QR codes.
package subscription

import (
	"context"
	"time"

	"snapreview/internal/domain"
	"snapreview/internal/models"
	"snapreview/pkg/logging"
)

// Status is the gate's verdict for one business.
type Status struct {
	Active             bool       `json:"is_active"`
	QRCodesEnabled     bool       `json:"qr_codes_enabled"`
	SubscriptionStatus string     `json:"subscription_status"`
	SubscriptionPlan   string     `json:"subscription_plan"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
	BusinessName       string     `json:"business_name"`
	Reason             string     `json:"reason,omitempty"`
}

// Statuses that permit QR access.
var activeStatuses = map[string]bool{
	"active": true,
	"trial":  true,
}

type Gate struct {
	repo   domain.BusinessRepository
	logger *logging.Logger
	now    func() time.Time
}

func NewGate(repo domain.BusinessRepository, logger *logging.Logger) *Gate {
	return &Gate{repo: repo, logger: logger.Component("subscription"), now: time.Now}
}

// Check evaluates the subscription state of a business. It never returns a
// business error for a blocked subscription; the Status carries the verdict
// and a user-facing reason.
func (g *Gate) Check(ctx context.Context, businessID string) (*Status, error) {
	b, err := g.repo.GetBusinessCtx(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return &Status{
			SubscriptionStatus: "not_found",
			SubscriptionPlan:   "none",
			BusinessName:       "Unknown",
			Reason:             "Business not found",
		}, nil
	}

	if b.Status != models.BusinessActive {
		return &Status{
			SubscriptionStatus: strOr(b.SubscriptionStatus, "inactive"),
			SubscriptionPlan:   strOr(b.SubscriptionPlan, "none"),
			ExpiresAt:          b.SubscriptionExpiresAt,
			BusinessName:       b.Name,
			Reason:             "Business account is inactive",
		}, nil
	}

	// Pre-migration schema: no subscription data means full access.
	if b.SubscriptionStatus == nil {
		return &Status{
			Active:             true,
			QRCodesEnabled:     true,
			SubscriptionStatus: "active",
			SubscriptionPlan:   "basic",
			BusinessName:       b.Name,
		}, nil
	}

	subStatus := strOr(b.SubscriptionStatus, "active")
	subActive := activeStatuses[subStatus]

	expired := false
	if b.SubscriptionExpiresAt != nil {
		expired = g.now().After(*b.SubscriptionExpiresAt)
	}

	qrEnabled := true
	if b.QRCodesEnabled != nil {
		qrEnabled = *b.QRCodesEnabled
	}

	st := &Status{
		Active:             subActive && !expired && qrEnabled,
		QRCodesEnabled:     qrEnabled,
		SubscriptionStatus: subStatus,
		SubscriptionPlan:   strOr(b.SubscriptionPlan, "basic"),
		ExpiresAt:          b.SubscriptionExpiresAt,
		BusinessName:       b.Name,
	}
	switch {
	case !subActive:
		st.Reason = "Subscription is " + subStatus
	case expired:
		st.Reason = "Subscription has expired"
	case !qrEnabled:
		st.Reason = "QR codes are disabled for this business"
	}

	if !st.Active {
		g.logger.Info("qr access blocked",
			"business_id", businessID, "status", subStatus, "reason", st.Reason)
	}
	return st, nil
}

// Message returns the user-facing explanation for a blocked status.
func (s *Status) Message() string {
	if s.Reason != "" {
		return s.Reason
	}
	switch s.SubscriptionStatus {
	case "cancelled":
		return "This business subscription has been cancelled. Please contact support to reactivate."
	case "expired":
		return "This business subscription has expired. Please renew to continue using QR codes."
	case "suspended":
		return "This business account has been suspended. Please contact support."
	case "not_found":
		return "Business not found or invalid QR code."
	default:
		return "QR code access is currently unavailable for this business."
	}
}

func strOr(p *string, def string) string {
	if p == nil || *p == "" {
		return def
	}
	return *p
}
