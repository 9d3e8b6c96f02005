// Package autofeedback keeps every business's stored feedback pool topped
// up. A scheduled run walks the active-business x language-preference
// cross-product and refills any pair whose pool dropped below the
// threshold.
package autofeedback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"snapreview/internal/constants"
	"snapreview/internal/domain"
	"snapreview/internal/generator"
	errs "snapreview/pkg/errors"
	"snapreview/pkg/logging"
	"snapreview/pkg/metrics"
)

// Generator is the part of the generation pipeline the batch service needs.
type Generator interface {
	Generate(ctx context.Context, req generator.Request) generator.Result
}

// Summary reports the outcome of one batch run.
type Summary struct {
	ProcessedBusinesses     int    `json:"processed_businesses"`
	SkippedBusinesses       int    `json:"skipped_businesses"`
	TotalFeedbacksGenerated int    `json:"total_feedbacks_generated"`
	FromTemplates           int    `json:"from_templates"`
	Message                 string `json:"message"`
	DurationMS              int64  `json:"duration_ms"`
}

// Service runs the refill batch. At most one run is active at a time; a
// second trigger while one is in flight is rejected, not queued.
type Service struct {
	repo   domain.Repository
	gen    Generator
	logger *logging.Logger

	mu sync.Mutex

	minPool   int
	quota     int
	batchSize int
	// delay between generation waves inside one pair, and between pairs
	batchDelay time.Duration
	pairDelay  time.Duration
}

func NewService(repo domain.Repository, gen Generator, logger *logging.Logger) *Service {
	return &Service{
		repo:       repo,
		gen:        gen,
		logger:     logger.Component("autofeedback"),
		minPool:    constants.MinFeedbackPool,
		quota:      constants.FeedbackQuota,
		batchSize:  constants.GenerationBatchSize,
		batchDelay: constants.BatchDelay,
		pairDelay:  constants.PairDelay,
	}
}

// Running reports whether a batch run is currently in flight.
func (s *Service) Running() bool {
	if s.mu.TryLock() {
		s.mu.Unlock()
		return false
	}
	return true
}

// Run executes one batch pass. It returns a business error when another run
// holds the lock.
func (s *Service) Run(ctx context.Context) (*Summary, error) {
	if !s.mu.TryLock() {
		return nil, errs.NewBiz("autofeedback.Run", "auto feedback generation is already running", nil)
	}
	defer s.mu.Unlock()

	start := time.Now()
	metrics.Default.Counter("autofeedback_runs_total", "Batch refill runs started").Inc()

	pairs, err := s.repo.GetBusinessesWithLanguagePreferencesCtx(ctx)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	for i, pair := range pairs {
		if err := ctx.Err(); err != nil {
			summary.Message = "run cancelled"
			summary.DurationMS = time.Since(start).Milliseconds()
			return summary, err
		}

		generated, fromTemplates, err := s.refillPair(ctx, pair.BusinessID, pair.BusinessName, deref(pair.BusinessType), deref(pair.Tags), pair.LanguageCode)
		if err != nil {
			// One broken pair must not sink the whole run.
			s.logger.Error("pair refill failed",
				"business_id", pair.BusinessID, "language", pair.LanguageCode, "error", err)
			summary.SkippedBusinesses++
		} else {
			summary.ProcessedBusinesses++
			summary.TotalFeedbacksGenerated += generated
			summary.FromTemplates += fromTemplates
		}

		if i < len(pairs)-1 {
			if !sleepCtx(ctx, s.pairDelay) {
				summary.Message = "run cancelled"
				summary.DurationMS = time.Since(start).Milliseconds()
				return summary, ctx.Err()
			}
		}
	}

	summary.DurationMS = time.Since(start).Milliseconds()
	summary.Message = fmt.Sprintf("processed %d pairs, generated %d feedbacks", summary.ProcessedBusinesses, summary.TotalFeedbacksGenerated)
	metrics.Default.Counter("autofeedback_generated_total", "Feedbacks stored by batch runs").Add(int64(summary.TotalFeedbacksGenerated))
	s.logger.Timed("batch run finished", start,
		"pairs", len(pairs),
		"processed", summary.ProcessedBusinesses,
		"generated", summary.TotalFeedbacksGenerated)
	return summary, nil
}

// refillPair tops up one (business, language) pool. Pools at or above the
// threshold are left alone.
func (s *Service) refillPair(ctx context.Context, businessID, businessName, businessType, tags, languageCode string) (int, int, error) {
	count, err := s.repo.CountFeedbackCtx(ctx, businessID, languageCode)
	if err != nil {
		return 0, 0, err
	}
	if count >= s.minPool {
		return 0, 0, nil
	}

	texts := make([]string, 0, s.quota)
	fromTemplates := 0

	for offset := 0; offset < s.quota; offset += s.batchSize {
		n := s.batchSize
		if offset+n > s.quota {
			n = s.quota - offset
		}

		results := make([]generator.Result, n)
		var wg sync.WaitGroup
		sem := make(chan struct{}, s.batchSize)
		for i := 0; i < n; i++ {
			wg.Add(1)
			sem <- struct{}{}
			go func(i int) {
				defer wg.Done()
				defer func() { <-sem }()
				results[i] = s.gen.Generate(ctx, generator.Request{
					BusinessName: businessName,
					BusinessType: businessType,
					Tags:         tags,
					LanguageCode: languageCode,
				})
			}(i)
		}
		wg.Wait()

		for _, r := range results {
			if r.Feedback == "" {
				continue
			}
			texts = append(texts, r.Feedback)
			if r.Source == generator.SourceTemplate {
				fromTemplates++
			}
		}

		if offset+s.batchSize < s.quota {
			if !sleepCtx(ctx, s.batchDelay) {
				break
			}
		}
	}

	if len(texts) == 0 {
		return 0, 0, errs.NewBiz("autofeedback.refillPair", "no feedback generated for pair", nil)
	}

	stored, err := s.repo.InsertFeedbackBatchCtx(ctx, businessID, texts, languageCode)
	if err != nil {
		return 0, 0, err
	}
	return stored, fromTemplates, nil
}

// sleepCtx waits for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
