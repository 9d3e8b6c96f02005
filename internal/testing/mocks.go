package testutil

import (
	"context"
	"sync"
	"time"

	"snapreview/internal/domain"
	"snapreview/internal/models"
)

// MockRepo implements domain.Repository in memory for handler and service
// tests. Feedback pools are keyed by businessID+"/"+languageCode.
type MockRepo struct {
	Mu         sync.Mutex
	Businesses map[string]*models.Business
	Prefs      map[string][]models.LanguagePreference
	Feedback   map[string][]models.Feedback
	Metrics    map[string]*models.BusinessMetrics
	Err        error

	nextID int64
}

func NewMockRepo() *MockRepo {
	return &MockRepo{
		Businesses: map[string]*models.Business{},
		Prefs:      map[string][]models.LanguagePreference{},
		Feedback:   map[string][]models.Feedback{},
		Metrics:    map[string]*models.BusinessMetrics{},
	}
}

func poolKey(businessID, languageCode string) string { return businessID + "/" + languageCode }

func (m *MockRepo) GetBusinessCtx(ctx context.Context, businessID string) (*models.Business, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Businesses[businessID], nil
}

func (m *MockRepo) BusinessActiveCtx(ctx context.Context, businessID string) (bool, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	b, ok := m.Businesses[businessID]
	return ok && b.Status == models.BusinessActive, nil
}

func (m *MockRepo) GetBusinessesWithLanguagePreferencesCtx(ctx context.Context) ([]models.BusinessLanguage, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []models.BusinessLanguage
	for id, b := range m.Businesses {
		if b.Status != models.BusinessActive {
			continue
		}
		for _, p := range m.Prefs[id] {
			out = append(out, models.BusinessLanguage{
				BusinessID:   id,
				BusinessName: b.Name,
				BusinessType: b.BusinessType,
				Tags:         b.Tags,
				LanguageCode: p.LanguageCode,
				LanguageName: p.LanguageName,
			})
		}
	}
	return out, nil
}

func (m *MockRepo) GetLanguagePreferencesCtx(ctx context.Context, businessID string) ([]models.LanguagePreference, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Prefs[businessID], nil
}

func (m *MockRepo) ReplaceLanguagePreferencesCtx(ctx context.Context, businessID string, prefs []models.LanguagePreference) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Prefs[businessID] = prefs
	return nil
}

func (m *MockRepo) CountFeedbackCtx(ctx context.Context, businessID, languageCode string) (int, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	return len(m.Feedback[poolKey(businessID, languageCode)]), nil
}

func (m *MockRepo) GetRandomFeedbacksCtx(ctx context.Context, businessID, languageCode string, limit int) ([]models.Feedback, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var pool []models.Feedback
	if languageCode != "" {
		pool = m.Feedback[poolKey(businessID, languageCode)]
	} else {
		for k, fs := range m.Feedback {
			if len(k) > len(businessID) && k[:len(businessID)+1] == businessID+"/" {
				pool = append(pool, fs...)
			}
		}
	}
	if limit > 0 && len(pool) > limit {
		pool = pool[:limit]
	}
	out := make([]models.Feedback, len(pool))
	copy(out, pool)
	return out, nil
}

func (m *MockRepo) InsertFeedbackCtx(ctx context.Context, businessID, text, languageCode string) (*models.Feedback, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	m.nextID++
	f := models.Feedback{
		ID:           m.nextID,
		BusinessID:   businessID,
		Feedback:     text,
		LanguageCode: languageCode,
		CreatedAt:    time.Now(),
	}
	k := poolKey(businessID, languageCode)
	m.Feedback[k] = append(m.Feedback[k], f)
	return &f, nil
}

func (m *MockRepo) InsertFeedbackBatchCtx(ctx context.Context, businessID string, texts []string, languageCode string) (int, error) {
	for _, t := range texts {
		if _, err := m.InsertFeedbackCtx(ctx, businessID, t, languageCode); err != nil {
			return 0, err
		}
	}
	return len(texts), nil
}

func (m *MockRepo) DeleteFeedbackCtx(ctx context.Context, businessID string, feedbackID int64) (bool, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	for k, fs := range m.Feedback {
		for i, f := range fs {
			if f.ID == feedbackID && f.BusinessID == businessID {
				m.Feedback[k] = append(fs[:i], fs[i+1:]...)
				return true, nil
			}
		}
	}
	return false, nil
}

func (m *MockRepo) GetBusinessMetricsCtx(ctx context.Context, businessID string) (*models.BusinessMetrics, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Metrics[businessID], nil
}

func (m *MockRepo) GetLanguageCopyStatsCtx(ctx context.Context, businessID string) ([]models.LanguageCopyStat, error) {
	return nil, m.Err
}

func (m *MockRepo) GetRecentCopyActivityCtx(ctx context.Context, businessID string, days int) ([]models.DailyCopyActivity, error) {
	return nil, m.Err
}

var _ domain.Repository = (*MockRepo)(nil)

// MockUnitOfWork records the transactional calls it receives in order.
// Failure injection is per method name via Errs.
type MockUnitOfWork struct {
	Mu        sync.Mutex
	Calls     []string
	Errs      map[string]error
	Committed bool
	RolledBck bool

	CopyCount int64
	Metrics   *models.BusinessMetrics
	Review    *models.Review
}

func NewMockUnitOfWork() *MockUnitOfWork {
	return &MockUnitOfWork{Errs: map[string]error{}, CopyCount: 1}
}

func (u *MockUnitOfWork) call(name string) error {
	u.Mu.Lock()
	defer u.Mu.Unlock()
	u.Calls = append(u.Calls, name)
	return u.Errs[name]
}

func (u *MockUnitOfWork) Commit() error {
	if err := u.call("commit"); err != nil {
		return err
	}
	u.Mu.Lock()
	u.Committed = true
	u.Mu.Unlock()
	return nil
}

func (u *MockUnitOfWork) Rollback() error {
	u.Mu.Lock()
	defer u.Mu.Unlock()
	if !u.Committed {
		u.RolledBck = true
	}
	return nil
}

func (u *MockUnitOfWork) UpsertCopyMetric(ctx context.Context, businessID, languageCode string) (int64, error) {
	if err := u.call("upsert"); err != nil {
		return 0, err
	}
	return u.CopyCount, nil
}

func (u *MockUnitOfWork) DeleteConsumedFeedback(ctx context.Context, businessID string, feedbackID int64) error {
	return u.call("delete")
}

func (u *MockUnitOfWork) CopyBreakdown(ctx context.Context, businessID string) (int64, map[string]int64, error) {
	if err := u.call("breakdown"); err != nil {
		return 0, nil, err
	}
	return u.CopyCount, map[string]int64{"en": u.CopyCount}, nil
}

func (u *MockUnitOfWork) UpdateTotalCopyCount(ctx context.Context, businessID string) error {
	return u.call("total")
}

func (u *MockUnitOfWork) EnsureMetricsRow(ctx context.Context, businessID string) error {
	return u.call("ensure")
}

func (u *MockUnitOfWork) IncrementScan(ctx context.Context, businessID string) error {
	return u.call("scan")
}

func (u *MockUnitOfWork) BusinessMetrics(ctx context.Context, businessID string) (*models.BusinessMetrics, error) {
	if err := u.call("metrics"); err != nil {
		return nil, err
	}
	if u.Metrics != nil {
		return u.Metrics, nil
	}
	return &models.BusinessMetrics{BusinessID: businessID}, nil
}

func (u *MockUnitOfWork) InsertReview(ctx context.Context, review *models.Review) error {
	if err := u.call("review"); err != nil {
		return err
	}
	review.ID = 1
	review.CreatedAt = time.Now()
	u.Mu.Lock()
	u.Review = review
	u.Mu.Unlock()
	return nil
}

func (u *MockUnitOfWork) RecalcReviewAggregates(ctx context.Context, businessID string) error {
	return u.call("recalc")
}

var _ domain.UnitOfWork = (*MockUnitOfWork)(nil)

// MockUoWFactory returns the same MockUnitOfWork from every Begin.
type MockUoWFactory struct {
	Uow      *MockUnitOfWork
	BeginErr error
}

func NewMockUoWFactory() *MockUoWFactory {
	return &MockUoWFactory{Uow: NewMockUnitOfWork()}
}

func (f *MockUoWFactory) Begin(ctx context.Context) (domain.UnitOfWork, error) {
	if f.BeginErr != nil {
		return nil, f.BeginErr
	}
	return f.Uow, nil
}

var _ domain.UnitOfWorkFactory = (*MockUoWFactory)(nil)
