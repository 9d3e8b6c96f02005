package subscription

import (
	"context"
	"errors"
	"testing"
	"time"

	"snapreview/internal/models"
	"snapreview/pkg/logging"
)

type fakeBusinessRepo struct {
	business *models.Business
	err      error
}

func (f *fakeBusinessRepo) GetBusinessCtx(ctx context.Context, id string) (*models.Business, error) {
	return f.business, f.err
}
func (f *fakeBusinessRepo) BusinessActiveCtx(context.Context, string) (bool, error) {
	return false, nil
}
func (f *fakeBusinessRepo) GetBusinessesWithLanguagePreferencesCtx(context.Context) ([]models.BusinessLanguage, error) {
	return nil, nil
}
func (f *fakeBusinessRepo) GetLanguagePreferencesCtx(context.Context, string) ([]models.LanguagePreference, error) {
	return nil, nil
}
func (f *fakeBusinessRepo) ReplaceLanguagePreferencesCtx(context.Context, string, []models.LanguagePreference) error {
	return nil
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func newGate(b *models.Business, err error) *Gate {
	g := NewGate(&fakeBusinessRepo{business: b, err: err}, logging.NewNop())
	g.now = func() time.Time { return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC) }
	return g
}

func TestCheck(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	tests := []struct {
		name       string
		business   *models.Business
		wantActive bool
		wantStatus string
		wantReason string
	}{
		{
			name:       "not found",
			business:   nil,
			wantActive: false,
			wantStatus: "not_found",
			wantReason: "Business not found",
		},
		{
			name:       "inactive account",
			business:   &models.Business{Name: "Chai Corner", Status: models.BusinessInactive},
			wantActive: false,
			wantStatus: "inactive",
			wantReason: "Business account is inactive",
		},
		{
			name:       "pre-migration schema gets full access",
			business:   &models.Business{Name: "Chai Corner", Status: models.BusinessActive},
			wantActive: true,
			wantStatus: "active",
		},
		{
			name: "active subscription",
			business: &models.Business{
				Name: "Chai Corner", Status: models.BusinessActive,
				SubscriptionStatus: strPtr("active"), QRCodesEnabled: boolPtr(true),
			},
			wantActive: true,
			wantStatus: "active",
		},
		{
			name: "trial counts as active",
			business: &models.Business{
				Name: "Chai Corner", Status: models.BusinessActive,
				SubscriptionStatus: strPtr("trial"), QRCodesEnabled: boolPtr(true),
			},
			wantActive: true,
			wantStatus: "trial",
		},
		{
			name: "cancelled subscription",
			business: &models.Business{
				Name: "Chai Corner", Status: models.BusinessActive,
				SubscriptionStatus: strPtr("cancelled"),
			},
			wantActive: false,
			wantStatus: "cancelled",
			wantReason: "Subscription is cancelled",
		},
		{
			name: "expired by date",
			business: &models.Business{
				Name: "Chai Corner", Status: models.BusinessActive,
				SubscriptionStatus:    strPtr("active"),
				SubscriptionExpiresAt: &past,
				QRCodesEnabled:        boolPtr(true),
			},
			wantActive: false,
			wantStatus: "active",
			wantReason: "Subscription has expired",
		},
		{
			name: "future expiry still active",
			business: &models.Business{
				Name: "Chai Corner", Status: models.BusinessActive,
				SubscriptionStatus:    strPtr("active"),
				SubscriptionExpiresAt: &future,
				QRCodesEnabled:        boolPtr(true),
			},
			wantActive: true,
			wantStatus: "active",
		},
		{
			name: "qr codes disabled",
			business: &models.Business{
				Name: "Chai Corner", Status: models.BusinessActive,
				SubscriptionStatus: strPtr("active"),
				QRCodesEnabled:     boolPtr(false),
			},
			wantActive: false,
			wantStatus: "active",
			wantReason: "QR codes are disabled for this business",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGate(tt.business, nil)
			st, err := g.Check(context.Background(), "b1")
			if err != nil {
				t.Fatalf("Check() error = %v", err)
			}
			if st.Active != tt.wantActive {
				t.Errorf("Active = %v, want %v", st.Active, tt.wantActive)
			}
			if st.SubscriptionStatus != tt.wantStatus {
				t.Errorf("SubscriptionStatus = %q, want %q", st.SubscriptionStatus, tt.wantStatus)
			}
			if st.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", st.Reason, tt.wantReason)
			}
		})
	}
}

func TestCheckPropagatesRepoError(t *testing.T) {
	g := newGate(nil, errors.New("connection refused"))
	if _, err := g.Check(context.Background(), "b1"); err == nil {
		t.Fatal("Check() returned nil error on repo failure")
	}
}

func TestMessage(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		want   string
	}{
		{"reason wins", Status{Reason: "Subscription has expired"}, "Subscription has expired"},
		{"cancelled", Status{SubscriptionStatus: "cancelled"}, "This business subscription has been cancelled. Please contact support to reactivate."},
		{"expired", Status{SubscriptionStatus: "expired"}, "This business subscription has expired. Please renew to continue using QR codes."},
		{"suspended", Status{SubscriptionStatus: "suspended"}, "This business account has been suspended. Please contact support."},
		{"not found", Status{SubscriptionStatus: "not_found"}, "Business not found or invalid QR code."},
		{"default", Status{SubscriptionStatus: "weird"}, "QR code access is currently unavailable for this business."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Message(); got != tt.want {
				t.Errorf("Message() = %q, want %q", got, tt.want)
			}
		})
	}
}
