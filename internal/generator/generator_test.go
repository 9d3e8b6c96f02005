package generator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"snapreview/internal/bank"
	"snapreview/internal/constants"
	"snapreview/internal/prompts"
	"snapreview/pkg/circuit"
	"snapreview/pkg/config"
	"snapreview/pkg/logging"
)

type stubClient struct {
	content string
	err     error
	delay   time.Duration
	calls   int
	lastReq openai.ChatCompletionRequest
}

func (s *stubClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.calls++
	s.lastReq = req
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return openai.ChatCompletionResponse{}, ctx.Err()
		}
	}
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: s.content}},
		},
	}, nil
}

func newTestGenerator(t *testing.T, client CompletionClient, timeout time.Duration) *Generator {
	t.Helper()
	pm, err := prompts.NewManager()
	if err != nil {
		t.Fatalf("prompts.NewManager() error = %v", err)
	}
	bk, err := bank.New()
	if err != nil {
		t.Fatalf("bank.New() error = %v", err)
	}
	cfg := &config.Config{
		OpenRouterModel:       "openai/gpt-4o-mini",
		OpenRouterTemperature: 0.9,
		OpenRouterMaxTokens:   150,
		OpenRouterTimeout:     timeout,
	}
	breaker := circuit.New(circuit.Config{
		Name:             "openrouter-test",
		OperationTimeout: timeout + time.Second,
		OpenFor:          time.Minute,
	}, logging.NewNop())
	return NewWithClient(client, cfg, pm, bk, breaker, logging.NewNop())
}

func TestGenerateUsesModelOutput(t *testing.T) {
	client := &stubClient{content: `"Wonderful little cafe, the staff remembered my order!"`}
	g := newTestGenerator(t, client, 2*time.Second)

	res := g.Generate(context.Background(), Request{
		BusinessName: "Chai Corner",
		BusinessType: "cafe",
		LanguageCode: "en",
	})

	if res.Source != SourceAI {
		t.Fatalf("source = %q, want %q", res.Source, SourceAI)
	}
	if res.Feedback != "Wonderful little cafe, the staff remembered my order!" {
		t.Errorf("unexpected feedback %q", res.Feedback)
	}
	if client.lastReq.Model != "openai/gpt-4o-mini" {
		t.Errorf("model = %q", client.lastReq.Model)
	}
	if len(client.lastReq.Messages) != 2 {
		t.Fatalf("want system+user messages, got %d", len(client.lastReq.Messages))
	}
	if client.lastReq.Messages[0].Role != openai.ChatMessageRoleSystem {
		t.Errorf("first message role = %q", client.lastReq.Messages[0].Role)
	}
}

func TestGenerateFallsBackOnError(t *testing.T) {
	client := &stubClient{err: errors.New("upstream 502")}
	g := newTestGenerator(t, client, 2*time.Second)

	res := g.Generate(context.Background(), Request{BusinessName: "Chai Corner", LanguageCode: "en"})
	if res.Source != SourceTemplate {
		t.Fatalf("source = %q, want %q", res.Source, SourceTemplate)
	}
	if !strings.Contains(res.Feedback, "Chai Corner") {
		t.Errorf("fallback missing business name: %q", res.Feedback)
	}
}

func TestBreakerOpensAfterSustainedFailures(t *testing.T) {
	pm, err := prompts.NewManager()
	if err != nil {
		t.Fatalf("prompts.NewManager() error = %v", err)
	}
	bk, err := bank.New()
	if err != nil {
		t.Fatalf("bank.New() error = %v", err)
	}
	client := &stubClient{err: errors.New("upstream down")}
	cfg := &config.Config{
		OpenRouterModel:       "openai/gpt-4o-mini",
		OpenRouterTemperature: 0.9,
		OpenRouterMaxTokens:   150,
		OpenRouterTimeout:     2 * time.Second,
	}
	breaker := newBreaker(logging.NewNop())
	g := NewWithClient(client, cfg, pm, bk, breaker, logging.NewNop())

	for i := 0; i < constants.GenerateMaxConsecFailures; i++ {
		res := g.Generate(context.Background(), Request{BusinessName: "Chai Corner", LanguageCode: "en"})
		if res.Source != SourceTemplate {
			t.Fatalf("call %d: source = %q, want %q", i, res.Source, SourceTemplate)
		}
	}
	if st := breaker.CurrentState(); st != circuit.Open {
		t.Fatalf("breaker state after %d consecutive failures = %v, want %v",
			constants.GenerateMaxConsecFailures, st, circuit.Open)
	}

	// open breaker short-circuits: still a template, no upstream call
	before := client.calls
	res := g.Generate(context.Background(), Request{BusinessName: "Chai Corner", LanguageCode: "en"})
	if res.Source != SourceTemplate {
		t.Fatalf("source while open = %q, want %q", res.Source, SourceTemplate)
	}
	if client.calls != before {
		t.Fatalf("open breaker reached upstream: calls went %d -> %d", before, client.calls)
	}
}

func TestGenerateRejectsWrongLanguage(t *testing.T) {
	// Model answered in English despite a Hindi prompt.
	client := &stubClient{content: "The food was absolutely delicious!"}
	g := newTestGenerator(t, client, 2*time.Second)

	res := g.Generate(context.Background(), Request{BusinessName: "Chai Corner", LanguageCode: "hi"})
	if res.Source != SourceTemplate {
		t.Fatalf("source = %q, want %q", res.Source, SourceTemplate)
	}
	if !strings.Contains(res.Feedback, "Chai Corner") {
		t.Errorf("fallback missing business name: %q", res.Feedback)
	}
}

func TestGenerateFallsBackOnUnsupportedLanguage(t *testing.T) {
	client := &stubClient{content: "irrelevant"}
	g := newTestGenerator(t, client, 2*time.Second)

	res := g.Generate(context.Background(), Request{BusinessName: "Chai Corner", LanguageCode: "fr"})
	if res.Source != SourceTemplate {
		t.Fatalf("source = %q, want %q", res.Source, SourceTemplate)
	}
}

func TestGenerateResolvesWithinTimeout(t *testing.T) {
	client := &stubClient{content: "Slow but great!", delay: 3 * time.Second}
	g := newTestGenerator(t, client, 100*time.Millisecond)

	start := time.Now()
	res := g.Generate(context.Background(), Request{BusinessName: "Chai Corner", LanguageCode: "en"})
	elapsed := time.Since(start)

	if res.Source != SourceTemplate {
		t.Fatalf("source = %q, want %q", res.Source, SourceTemplate)
	}
	if elapsed > time.Second {
		t.Errorf("generation took %v, should resolve near the 100ms deadline", elapsed)
	}
}

func TestApplyUpdatesKnobs(t *testing.T) {
	client := &stubClient{content: "Nice place!"}
	g := newTestGenerator(t, client, 2*time.Second)

	g.Apply(&config.Config{
		OpenRouterModel:       "openai/gpt-4o",
		OpenRouterTemperature: 0.5,
		OpenRouterMaxTokens:   200,
		OpenRouterTimeout:     5 * time.Second,
	})

	g.Generate(context.Background(), Request{BusinessName: "X", LanguageCode: "en"})
	if client.lastReq.Model != "openai/gpt-4o" {
		t.Errorf("model after Apply = %q", client.lastReq.Model)
	}
	if client.lastReq.MaxTokens != 200 {
		t.Errorf("max tokens after Apply = %d", client.lastReq.MaxTokens)
	}
}

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Great spot!", "Great spot!"},
		{"wrapping double quotes", `"Great spot!"`, "Great spot!"},
		{"wrapping single quotes", `'Great spot!'`, "Great spot!"},
		{"internal quotes kept", `They said "wow" out loud`, `They said "wow" out loud`},
		{"newlines collapsed", "Line one.\n\nLine two.\nLine three.", "Line one. Line two. Line three."},
		{"whitespace trimmed", "  padded  ", "padded"},
		{"quotes then newlines", "\"First.\nSecond.\"", "First. Second."},
		{"empty", "", ""},
		{"lone quote", `"`, `"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clean(tt.in); got != tt.want {
				t.Errorf("clean(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
