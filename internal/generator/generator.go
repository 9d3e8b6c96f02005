// Package generator produces review feedback text through a three-stage
// pipeline: model completion via OpenRouter, script-based language
// validation, and template fallback. The pipeline as a whole never fails;
// callers always get usable text.
package generator

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"snapreview/internal/bank"
	"snapreview/internal/constants"
	"snapreview/internal/language"
	"snapreview/internal/prompts"
	"snapreview/pkg/circuit"
	"snapreview/pkg/config"
	"snapreview/pkg/logging"
	"snapreview/pkg/metrics"
)

// Sources reported in results so callers can tell model output from
// canned templates.
const (
	SourceAI       = "ai"
	SourceTemplate = "template"
)

// CompletionClient is the subset of the OpenAI client the generator uses.
type CompletionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Request identifies what to generate feedback about.
type Request struct {
	BusinessName string
	BusinessType string
	Tags         string
	LanguageCode string
}

// Result carries the generated text and which pipeline stage produced it.
type Result struct {
	Feedback string `json:"feedback"`
	Source   string `json:"source"`
}

// Generator runs the completion-validate-fallback pipeline.
type Generator struct {
	client  CompletionClient
	prompts *prompts.Manager
	bank    *bank.Bank
	breaker *circuit.Breaker
	logger  *logging.Logger

	mu          sync.RWMutex
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
}

// headerTransport adds the attribution headers OpenRouter expects on every
// request. Authorization is handled by the openai client itself.
type headerTransport struct {
	base    http.RoundTripper
	referer string
	title   string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.referer != "" {
		req.Header.Set("HTTP-Referer", t.referer)
	}
	if t.title != "" {
		req.Header.Set("X-Title", t.title)
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// New builds a generator talking to OpenRouter through the OpenAI client.
func New(cfg *config.Config, pm *prompts.Manager, bk *bank.Bank, logger *logging.Logger) *Generator {
	clientCfg := openai.DefaultConfig(cfg.OpenRouterAPIKey)
	clientCfg.BaseURL = cfg.OpenRouterBaseURL
	clientCfg.HTTPClient = &http.Client{
		Transport: &headerTransport{referer: cfg.AppBaseURL, title: cfg.AppTitle},
	}

	return NewWithClient(openai.NewClientWithConfig(clientCfg), cfg, pm, bk, newBreaker(logger), logger)
}

// newBreaker guards OpenRouter calls. A hard-down upstream must trip the
// breaker so requests fail over to templates instead of eating the full
// operation timeout each.
func newBreaker(logger *logging.Logger) *circuit.Breaker {
	return circuit.New(circuit.Config{
		Name:              "openrouter",
		OperationTimeout:  constants.GenerateOperationTimeout,
		OpenFor:           constants.GenerateOpenFor,
		MaxConsecFailures: constants.GenerateMaxConsecFailures,
		WindowSize:        constants.GenerateWindowSize,
		FailureRate:       constants.GenerateFailureRate,
		SlowCallThreshold: constants.GenerateSlowCallThreshold,
		SlowCallRate:      constants.GenerateSlowCallRate,
	}, logger)
}

// NewWithClient wires an explicit completion client, used by tests.
func NewWithClient(client CompletionClient, cfg *config.Config, pm *prompts.Manager, bk *bank.Bank, breaker *circuit.Breaker, logger *logging.Logger) *Generator {
	return &Generator{
		client:      client,
		prompts:     pm,
		bank:        bk,
		breaker:     breaker,
		logger:      logger.Component("generator"),
		model:       cfg.OpenRouterModel,
		temperature: float32(cfg.OpenRouterTemperature),
		maxTokens:   cfg.OpenRouterMaxTokens,
		timeout:     cfg.OpenRouterTimeout,
	}
}

// Apply updates the generation knobs from a reloaded config. Safe to call
// concurrently with Generate.
func (g *Generator) Apply(cfg *config.Config) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.model = cfg.OpenRouterModel
	g.temperature = float32(cfg.OpenRouterTemperature)
	g.maxTokens = cfg.OpenRouterMaxTokens
	g.timeout = cfg.OpenRouterTimeout
}

func (g *Generator) knobs() (string, float32, int, time.Duration) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.model, g.temperature, g.maxTokens, g.timeout
}

// Generate runs the full pipeline. The returned text always matches the
// requested language: a model answer in the wrong script is discarded and
// replaced with a template.
func (g *Generator) Generate(ctx context.Context, req Request) Result {
	start := time.Now()
	text, ok := g.TryAI(ctx, req)
	if ok {
		metrics.Default.Counter("generator_ai_total", "Feedbacks produced by the model").Inc()
		g.logger.Timed("feedback generated", start, "source", SourceAI, "language", req.LanguageCode)
		return Result{Feedback: text, Source: SourceAI}
	}

	metrics.Default.Counter("generator_fallback_total", "Feedbacks served from templates").Inc()
	fallback := g.bank.Fallback(req.BusinessName, req.LanguageCode)
	g.logger.Timed("feedback generated", start, "source", SourceTemplate, "language", req.LanguageCode)
	return Result{Feedback: fallback, Source: SourceTemplate}
}

// TryAI attempts a model completion and reports whether it produced usable
// text in the requested language. All failure modes (timeout, open breaker,
// empty answer, wrong script) collapse into ok=false.
func (g *Generator) TryAI(ctx context.Context, req Request) (string, bool) {
	prompt, err := g.prompts.ReviewPrompt(req.LanguageCode, prompts.ReviewData{
		BusinessName: req.BusinessName,
		BusinessType: req.BusinessType,
		Tags:         req.Tags,
	})
	if err != nil {
		g.logger.Warn("no prompt for language, using template", "language", req.LanguageCode)
		return "", false
	}
	system, err := g.prompts.SystemPrompt()
	if err != nil {
		return "", false
	}

	model, temperature, maxTokens, timeout := g.knobs()

	var text string
	op := func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		resp, err := g.client.CreateChatCompletion(cctx, openai.ChatCompletionRequest{
			Model: model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			Temperature:      temperature,
			MaxTokens:        maxTokens,
			TopP:             0.95,
			FrequencyPenalty: 0.5,
			PresencePenalty:  0.2,
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return errEmptyCompletion
		}
		text = clean(resp.Choices[0].Message.Content)
		return nil
	}

	if err := g.breaker.Do(ctx, op, nil); err != nil {
		g.logger.Warn("model completion failed, using template",
			"language", req.LanguageCode, "error", err)
		return "", false
	}
	if text == "" {
		return "", false
	}
	if !language.Matches(text, req.LanguageCode) {
		metrics.Default.Counter("generator_language_rejects_total", "Completions discarded by language validation").Inc()
		g.logger.Warn("completion failed language check, using template", "language", req.LanguageCode)
		return "", false
	}
	return text, true
}

var errEmptyCompletion = &emptyCompletionError{}

type emptyCompletionError struct{}

func (e *emptyCompletionError) Error() string { return "completion returned no choices" }

var newlineRun = regexp.MustCompile(`\n+`)

// clean normalizes raw model output: strip a wrapping quote pair, fold
// newlines into spaces, trim whitespace.
func clean(s string) string {
	s = strings.TrimSpace(s)
	for _, q := range []string{`"`, `'`} {
		if len(s) >= 2 && strings.HasPrefix(s, q) && strings.HasSuffix(s, q) {
			s = s[1 : len(s)-1]
			break
		}
	}
	s = newlineRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
