package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"snapreview/internal/analytics"
	"snapreview/internal/autofeedback"
	"snapreview/internal/bank"
	"snapreview/internal/generator"
	"snapreview/internal/models"
	"snapreview/internal/places"
	"snapreview/internal/prompts"
	"snapreview/internal/subscription"
	testutil "snapreview/internal/testing"
	"snapreview/pkg/circuit"
	"snapreview/pkg/config"
	"snapreview/pkg/events"
	"snapreview/pkg/logging"
)

const testBusinessID = "3f2c1a84-9b7d-4e5f-8a6b-0c1d2e3f4a5b"

type stubCompletion struct {
	content string
	err     error
}

func (s *stubCompletion) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: s.content}},
		},
	}, nil
}

type fakeEventStore struct {
	mu     sync.Mutex
	stored []events.StoredEvent
}

func (f *fakeEventStore) Append(ctx context.Context, e events.Event) error {
	data, err := e.MarshalData()
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, events.StoredEvent{
		Seq:        int64(len(f.stored) + 1),
		BusinessID: e.BusinessID(),
		Type:       e.Type(),
		Ts:         e.Timestamp(),
		Payload:    data,
	})
	return nil
}

func (f *fakeEventStore) ListByBusiness(ctx context.Context, businessID string, limit int) ([]events.StoredEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []events.StoredEvent
	for i := len(f.stored) - 1; i >= 0 && len(out) < limit; i-- {
		if f.stored[i].BusinessID == businessID {
			out = append(out, f.stored[i])
		}
	}
	return out, nil
}

type blockingGen struct {
	release chan struct{}
}

func (g *blockingGen) Generate(ctx context.Context, req generator.Request) generator.Result {
	select {
	case <-g.release:
	case <-ctx.Done():
	}
	return generator.Result{Feedback: "ok", Source: generator.SourceTemplate}
}

type testEnv struct {
	repo   *testutil.MockRepo
	uowf   *testutil.MockUoWFactory
	stub   *stubCompletion
	events *fakeEventStore
	router http.Handler
}

func newTestEnv(t *testing.T, cfg *config.Config, batchGen autofeedback.Generator) *testEnv {
	t.Helper()
	nop := logging.NewNop()
	if cfg == nil {
		cfg = &config.Config{}
	}
	cfg.OpenRouterModel = "openai/gpt-4o-mini"
	cfg.OpenRouterTemperature = 0.9
	cfg.OpenRouterMaxTokens = 150
	cfg.OpenRouterTimeout = 2 * time.Second

	pm, err := prompts.NewManager()
	if err != nil {
		t.Fatalf("prompts.NewManager() error = %v", err)
	}
	bk, err := bank.New()
	if err != nil {
		t.Fatalf("bank.New() error = %v", err)
	}
	stub := &stubCompletion{content: "Great place, friendly staff and quick service."}
	breaker := circuit.New(circuit.Config{
		Name:             "openrouter-test",
		OperationTimeout: 2 * time.Second,
		OpenFor:          time.Second,
	}, nop)
	gen := generator.NewWithClient(stub, cfg, pm, bk, breaker, nop)

	repo := testutil.NewMockRepo()
	uowf := testutil.NewMockUoWFactory()
	tracker := analytics.NewTracker(uowf, repo, nop)
	if batchGen == nil {
		batchGen = gen
	}
	batch := autofeedback.NewService(repo, batchGen, nop)
	gate := subscription.NewGate(repo, nop)
	resolver, err := places.NewResolver("", nop)
	if err != nil {
		t.Fatalf("places.NewResolver() error = %v", err)
	}

	store := &fakeEventStore{}
	router := NewRouter(Deps{
		Cfg:      cfg,
		Repo:     repo,
		Gen:      gen,
		Tracker:  tracker,
		Batch:    batch,
		Gate:     gate,
		Resolver: resolver,
		Events:   store,
		Logger:   nop,
	})
	return &testEnv{repo: repo, uowf: uowf, stub: stub, events: store, router: router}
}

func (e *testEnv) addActiveBusiness(id, name string) {
	e.repo.Businesses[id] = &models.Business{ID: id, Name: name, Status: models.BusinessActive}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestBusinessIDValidation(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rec := env.do(t, "GET", "/api/businesses/not-a-uuid/feedback", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error"] != "Invalid business ID format" {
		t.Fatalf("error = %v", body["error"])
	}
}

func TestGenerateFeedbackStoredFirst(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.addActiveBusiness(testBusinessID, "Chai Corner")
	ctx := context.Background()
	if _, err := env.repo.InsertFeedbackCtx(ctx, testBusinessID, "Lovely chai, will return.", "en"); err != nil {
		t.Fatalf("seed feedback: %v", err)
	}

	rec := env.do(t, "POST", "/api/businesses/"+testBusinessID+"/generate-feedback",
		map[string]string{"language_code": "en"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["source"] != "stored" {
		t.Fatalf("source = %v, want stored", body["source"])
	}
	if body["feedback"] != "Lovely chai, will return." {
		t.Fatalf("feedback = %v", body["feedback"])
	}
	if _, ok := body["feedback_id"]; !ok {
		t.Fatal("stored response must carry feedback_id")
	}
}

func TestGenerateFeedbackLiveWhenPoolEmpty(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.addActiveBusiness(testBusinessID, "Chai Corner")

	rec := env.do(t, "POST", "/api/businesses/"+testBusinessID+"/generate-feedback",
		map[string]string{"language_code": "en"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["source"] != generator.SourceAI {
		t.Fatalf("source = %v, want %s", body["source"], generator.SourceAI)
	}
	if body["feedback"] != env.stub.content {
		t.Fatalf("feedback = %v", body["feedback"])
	}
}

func TestGenerateFeedbackRequiresLanguage(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.addActiveBusiness(testBusinessID, "Chai Corner")
	rec := env.do(t, "POST", "/api/businesses/"+testBusinessID+"/generate-feedback",
		map[string]string{}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGenerateFeedbackUnknownBusiness(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rec := env.do(t, "POST", "/api/businesses/"+testBusinessID+"/generate-feedback",
		map[string]string{"language_code": "en"}, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestAddAndDeleteFeedback(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.addActiveBusiness(testBusinessID, "Chai Corner")

	rec := env.do(t, "POST", "/api/businesses/"+testBusinessID+"/add-feedback",
		map[string]string{"feedback": "Hand-written praise."}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	fb, ok := body["feedback"].(map[string]any)
	if !ok {
		t.Fatalf("feedback payload missing: %v", body)
	}
	if fb["language_code"] != "en" {
		t.Fatalf("language_code = %v, want default en", fb["language_code"])
	}

	fid := int64(fb["id"].(float64))
	rec = env.do(t, "DELETE", "/api/businesses/"+testBusinessID+"/feedback/1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d (id %d)", rec.Code, fid)
	}
	rec = env.do(t, "DELETE", "/api/businesses/"+testBusinessID+"/feedback/1", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}
}

func TestAddFeedbackRejectsEmpty(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.addActiveBusiness(testBusinessID, "Chai Corner")
	rec := env.do(t, "POST", "/api/businesses/"+testBusinessID+"/add-feedback",
		map[string]string{"feedback": "   "}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestTrackCopySuccess(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.addActiveBusiness(testBusinessID, "Chai Corner")
	env.uowf.Uow.CopyCount = 7

	rec := env.do(t, "POST", "/api/businesses/"+testBusinessID+"/track-copy",
		map[string]any{"language_code": "en"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Fatalf("success = %v", body["success"])
	}
	analyticsBody, ok := body["analytics"].(map[string]any)
	if !ok {
		t.Fatalf("analytics missing: %v", body)
	}
	if analyticsBody["currentLanguageCopies"] != float64(7) {
		t.Fatalf("currentLanguageCopies = %v, want 7", analyticsBody["currentLanguageCopies"])
	}
	if !env.uowf.Uow.Committed {
		t.Fatal("copy tracking must commit the transaction")
	}
}

func TestTrackCopyDegradedResponse(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.addActiveBusiness(testBusinessID, "Chai Corner")
	env.uowf.Uow.Errs["upsert"] = context.DeadlineExceeded

	rec := env.do(t, "POST", "/api/businesses/"+testBusinessID+"/track-copy",
		map[string]any{"language_code": "en"}, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["success"] != false {
		t.Fatalf("success = %v, want false", body["success"])
	}
	if body["warning"] != "Tracking failed but copy operation completed" {
		t.Fatalf("warning = %v", body["warning"])
	}
	analyticsBody := body["analytics"].(map[string]any)
	if analyticsBody["currentLanguageCopies"] != float64(1) {
		t.Fatalf("degraded currentLanguageCopies = %v, want 1", analyticsBody["currentLanguageCopies"])
	}
	if !env.uowf.Uow.RolledBck {
		t.Fatal("failed copy tracking must roll back")
	}
}

func TestTrackScan(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.addActiveBusiness(testBusinessID, "Chai Corner")

	rec := env.do(t, "POST", "/api/businesses/"+testBusinessID+"/track-scan", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["message"] != "QR scan tracked successfully" {
		t.Fatalf("message = %v", body["message"])
	}
	if body["businessId"] != testBusinessID {
		t.Fatalf("businessId = %v", body["businessId"])
	}
}

func TestTrackScanUnknownBusiness(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rec := env.do(t, "POST", "/api/businesses/"+testBusinessID+"/track-scan", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestSubmitReview(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.addActiveBusiness(testBusinessID, "Chai Corner")

	rec := env.do(t, "POST", "/api/businesses/"+testBusinessID+"/reviews",
		map[string]any{"rating": 4.5, "review_text": "Really good."}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if env.uowf.Uow.Review == nil {
		t.Fatal("review was not persisted")
	}
	if env.uowf.Uow.Review.Rating != 4.5 {
		t.Fatalf("rating = %v", env.uowf.Uow.Review.Rating)
	}
	if !env.uowf.Uow.Review.IsApproved {
		t.Fatal("review must be auto-approved")
	}
}

func TestSubmitReviewRejectsBadRating(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.addActiveBusiness(testBusinessID, "Chai Corner")
	for _, rating := range []float64{0, 5.5, 4.3} {
		rec := env.do(t, "POST", "/api/businesses/"+testBusinessID+"/reviews",
			map[string]any{"rating": rating}, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("rating %v: status = %d, want 400", rating, rec.Code)
		}
	}
}

func TestLanguagePreferencesRoundTrip(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.addActiveBusiness(testBusinessID, "Chai Corner")

	rec := env.do(t, "PUT", "/api/businesses/"+testBusinessID+"/language-preferences",
		map[string]any{"preferences": []map[string]string{
			{"language_code": "en", "language_name": "English"},
			{"language_code": "hi", "language_name": "Hindi"},
		}}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, "GET", "/api/businesses/"+testBusinessID+"/language-preferences", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	prefs := body["preferences"].([]any)
	if len(prefs) != 2 {
		t.Fatalf("preferences len = %d, want 2", len(prefs))
	}
	first := prefs[0].(map[string]any)
	if first["business_id"] != testBusinessID {
		t.Fatalf("business_id not stamped: %v", first)
	}
}

func TestPutLanguagePreferencesRequiresOne(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.addActiveBusiness(testBusinessID, "Chai Corner")
	rec := env.do(t, "PUT", "/api/businesses/"+testBusinessID+"/language-preferences",
		map[string]any{"preferences": []map[string]string{}}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSubscriptionEndpoint(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	cancelled := "cancelled"
	env.repo.Businesses[testBusinessID] = &models.Business{
		ID:                 testBusinessID,
		Name:               "Chai Corner",
		Status:             models.BusinessActive,
		SubscriptionStatus: &cancelled,
	}

	rec := env.do(t, "GET", "/api/businesses/"+testBusinessID+"/subscription", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 even when blocked", rec.Code)
	}
	body := decodeBody(t, rec)
	sub := body["subscription"].(map[string]any)
	if sub["is_active"] != false {
		t.Fatalf("is_active = %v, want false", sub["is_active"])
	}
	if body["message"] == nil || body["message"] == "" {
		t.Fatal("blocked subscription must carry a message")
	}
}

func TestReviewTargetBlockedSubscription(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	expired := "expired"
	env.repo.Businesses[testBusinessID] = &models.Business{
		ID:                 testBusinessID,
		Name:               "Chai Corner",
		Status:             models.BusinessActive,
		SubscriptionStatus: &expired,
	}
	rec := env.do(t, "GET", "/api/businesses/"+testBusinessID+"/review-target", nil, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestReviewTargetWithoutPlaceID(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.addActiveBusiness(testBusinessID, "Chai Corner")
	rec := env.do(t, "GET", "/api/businesses/"+testBusinessID+"/review-target", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestEventsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.addActiveBusiness(testBusinessID, "Chai Corner")

	rec := env.do(t, "GET", "/api/businesses/"+testBusinessID+"/events", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if evs := decodeBody(t, rec)["events"].([]any); len(evs) != 0 {
		t.Fatalf("fresh business events = %d, want 0", len(evs))
	}

	rec = env.do(t, "POST", "/api/businesses/"+testBusinessID+"/track-copy",
		map[string]any{"language_code": "en"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("track-copy status = %d", rec.Code)
	}
	rec = env.do(t, "POST", "/api/businesses/"+testBusinessID+"/track-scan", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("track-scan status = %d", rec.Code)
	}

	rec = env.do(t, "GET", "/api/businesses/"+testBusinessID+"/events", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("events status = %d", rec.Code)
	}
	evs := decodeBody(t, rec)["events"].([]any)
	if len(evs) != 2 {
		t.Fatalf("events = %d, want 2", len(evs))
	}
	newest := evs[0].(map[string]any)
	if newest["type"] != events.TypeScanTracked {
		t.Errorf("newest event type = %v, want %v", newest["type"], events.TypeScanTracked)
	}

	rec = env.do(t, "GET", "/api/businesses/"+testBusinessID+"/events?limit=1", nil, nil)
	if evs := decodeBody(t, rec)["events"].([]any); len(evs) != 1 {
		t.Errorf("limited events = %d, want 1", len(evs))
	}
	rec = env.do(t, "GET", "/api/businesses/"+testBusinessID+"/events?limit=0", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("limit=0 status = %d, want 400", rec.Code)
	}
}

func TestCronAuth(t *testing.T) {
	cfg := &config.Config{CronSecretToken: "s3cret"}
	env := newTestEnv(t, cfg, nil)

	rec := env.do(t, "POST", "/api/cron/auto-feedback", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", rec.Code)
	}
	rec = env.do(t, "POST", "/api/cron/auto-feedback", nil,
		map[string]string{"Authorization": "Bearer wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status = %d, want 401", rec.Code)
	}
	rec = env.do(t, "POST", "/api/cron/auto-feedback", nil,
		map[string]string{"Authorization": "Bearer s3cret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("good token: status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Fatalf("success = %v", body["success"])
	}
}

func TestCronConflictWhileRunning(t *testing.T) {
	gen := &blockingGen{release: make(chan struct{})}
	env := newTestEnv(t, nil, gen)
	env.addActiveBusiness(testBusinessID, "Chai Corner")
	env.repo.Prefs[testBusinessID] = []models.LanguagePreference{
		{BusinessID: testBusinessID, LanguageCode: "en", LanguageName: "English"},
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		env.do(t, "POST", "/api/cron/auto-feedback", nil, nil)
	}()

	// wait for the background run to take the lock
	deadline := time.After(2 * time.Second)
	for {
		rec := env.do(t, "GET", "/api/cron/auto-feedback", nil, nil)
		if decodeBody(t, rec)["isRunning"] == true {
			break
		}
		select {
		case <-deadline:
			t.Fatal("batch run never started")
		case <-time.After(10 * time.Millisecond):
		}
	}

	rec := env.do(t, "POST", "/api/cron/auto-feedback", nil, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["message"] != "Auto-feedback generation is already running" {
		t.Fatalf("message = %v", body["message"])
	}

	close(gen.release)
	<-done
}

func TestCronStatusEndpoint(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rec := env.do(t, "GET", "/api/cron/auto-feedback", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["isRunning"] != false {
		t.Fatalf("isRunning = %v, want false", body["isRunning"])
	}
	if body["endpoint"] != "/api/cron/auto-feedback" {
		t.Fatalf("endpoint = %v", body["endpoint"])
	}
}
