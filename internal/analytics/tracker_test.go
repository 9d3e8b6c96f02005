package analytics

import (
	"context"
	"errors"
	"testing"

	"snapreview/internal/domain"
	"snapreview/internal/models"
	"snapreview/pkg/logging"
)

type fakeUow struct {
	calls      []string
	committed  bool
	rolledBack bool

	upsertCount int64
	deleteErr   error
	breakdown   map[string]int64
	total       int64
	metrics     *models.BusinessMetrics
	scanErr     error
}

func (u *fakeUow) Commit() error {
	u.calls = append(u.calls, "commit")
	u.committed = true
	return nil
}

func (u *fakeUow) Rollback() error {
	if !u.committed {
		u.rolledBack = true
	}
	return nil
}

func (u *fakeUow) UpsertCopyMetric(ctx context.Context, businessID, lang string) (int64, error) {
	u.calls = append(u.calls, "upsert")
	return u.upsertCount, nil
}

func (u *fakeUow) DeleteConsumedFeedback(ctx context.Context, businessID string, id int64) error {
	u.calls = append(u.calls, "delete")
	return u.deleteErr
}

func (u *fakeUow) CopyBreakdown(ctx context.Context, businessID string) (int64, map[string]int64, error) {
	u.calls = append(u.calls, "breakdown")
	return u.total, u.breakdown, nil
}

func (u *fakeUow) UpdateTotalCopyCount(ctx context.Context, businessID string) error {
	u.calls = append(u.calls, "total")
	return nil
}

func (u *fakeUow) EnsureMetricsRow(ctx context.Context, businessID string) error {
	u.calls = append(u.calls, "ensure")
	return nil
}

func (u *fakeUow) IncrementScan(ctx context.Context, businessID string) error {
	u.calls = append(u.calls, "scan")
	return u.scanErr
}

func (u *fakeUow) BusinessMetrics(ctx context.Context, businessID string) (*models.BusinessMetrics, error) {
	u.calls = append(u.calls, "metrics")
	return u.metrics, nil
}

func (u *fakeUow) InsertReview(ctx context.Context, r *models.Review) error {
	u.calls = append(u.calls, "review")
	r.ID = 7
	return nil
}

func (u *fakeUow) RecalcReviewAggregates(ctx context.Context, businessID string) error {
	u.calls = append(u.calls, "recalc")
	return nil
}

type fakeUowFactory struct {
	uow      *fakeUow
	beginErr error
}

func (f *fakeUowFactory) Begin(ctx context.Context) (domain.UnitOfWork, error) {
	return f.uow, f.beginErr
}

func int64Ptr(v int64) *int64 { return &v }

func TestRecordCopyCommitsAllStepsInOrder(t *testing.T) {
	uow := &fakeUow{
		upsertCount: 4,
		total:       9,
		breakdown:   map[string]int64{"en": 4, "hi": 5},
	}
	tr := NewTracker(&fakeUowFactory{uow: uow}, nil, logging.NewNop())

	res, err := tr.RecordCopy(context.Background(), "b1", "en", int64Ptr(42))
	if err != nil {
		t.Fatalf("RecordCopy() error = %v", err)
	}
	want := []string{"upsert", "delete", "ensure", "total", "breakdown", "commit"}
	if len(uow.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", uow.calls, want)
	}
	for i := range want {
		if uow.calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", uow.calls, want)
		}
	}
	if !res.FeedbackConsumed {
		t.Error("FeedbackConsumed = false")
	}
	if res.LanguageCopies != 4 || res.TotalCopies != 9 {
		t.Errorf("snapshot = %+v", res)
	}
	if uow.rolledBack {
		t.Error("transaction rolled back after commit")
	}
}

func TestRecordCopyWithoutConsumedFeedback(t *testing.T) {
	uow := &fakeUow{upsertCount: 1, total: 1, breakdown: map[string]int64{"en": 1}}
	tr := NewTracker(&fakeUowFactory{uow: uow}, nil, logging.NewNop())

	res, err := tr.RecordCopy(context.Background(), "b1", "en", nil)
	if err != nil {
		t.Fatalf("RecordCopy() error = %v", err)
	}
	if res.FeedbackConsumed {
		t.Error("FeedbackConsumed = true without a feedback ID")
	}
	for _, c := range uow.calls {
		if c == "delete" {
			t.Error("delete step ran without a feedback ID")
		}
	}
}

func TestRecordCopyRollsBackOnFailure(t *testing.T) {
	uow := &fakeUow{deleteErr: errors.New("deadlock")}
	tr := NewTracker(&fakeUowFactory{uow: uow}, nil, logging.NewNop())

	_, err := tr.RecordCopy(context.Background(), "b1", "en", int64Ptr(42))
	if err == nil {
		t.Fatal("RecordCopy() succeeded despite delete failure")
	}
	if uow.committed {
		t.Error("transaction committed despite failure")
	}
	if !uow.rolledBack {
		t.Error("transaction not rolled back")
	}
}

func TestRecordScan(t *testing.T) {
	uow := &fakeUow{metrics: &models.BusinessMetrics{BusinessID: "b1", TotalQRScans: 3}}
	tr := NewTracker(&fakeUowFactory{uow: uow}, nil, logging.NewNop())

	m, err := tr.RecordScan(context.Background(), "b1")
	if err != nil {
		t.Fatalf("RecordScan() error = %v", err)
	}
	if m.TotalQRScans != 3 {
		t.Errorf("TotalQRScans = %d", m.TotalQRScans)
	}
	if !uow.committed {
		t.Error("scan transaction not committed")
	}
}

func TestSubmitReviewRecalculatesAggregates(t *testing.T) {
	uow := &fakeUow{}
	tr := NewTracker(&fakeUowFactory{uow: uow}, nil, logging.NewNop())

	r := &models.Review{BusinessID: "b1", Rating: 4.5}
	if err := tr.SubmitReview(context.Background(), r); err != nil {
		t.Fatalf("SubmitReview() error = %v", err)
	}
	if r.ID != 7 {
		t.Errorf("review ID not filled, got %d", r.ID)
	}
	want := []string{"review", "ensure", "recalc", "commit"}
	if len(uow.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", uow.calls, want)
	}
}
