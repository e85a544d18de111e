// Package pipeline runs a generation request through the ordered provider
// tiers and always produces a deliverable result.
//
// For each tier the pipeline invokes the provider under the tier's
// per-attempt timeout, retries transient failures with exponential backoff,
// advances immediately on permanent failures or quality rejection, and falls
// back to a pre-approved template when every tier is exhausted or the
// request deadline leaves too little time for the next attempt.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/zerofail/internal/core/domain"
	"github.com/vietddude/zerofail/internal/generation/backoff"
	"github.com/vietddude/zerofail/internal/generation/metrics"
	"github.com/vietddude/zerofail/internal/generation/quality"
	"github.com/vietddude/zerofail/internal/infra/provider"
)

// Fallback renders offline content. template.Fallback implements it.
type Fallback interface {
	Render(class domain.ContentClass, tier domain.ServiceTier) domain.Content
	Score() domain.QualityScore
}

// Observer receives every finished result, e.g. the delivery tracker.
type Observer func(domain.PipelineResult)

// Pipeline is safe for concurrent use; it holds no per-request state.
type Pipeline struct {
	tiers      []Tier
	assessor   quality.Assessor
	fallback   Fallback
	policy     backoff.Policy
	budget     time.Duration
	thresholds Thresholds
	observers  []Observer
	logger     *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithBackoff sets the retry delay policy.
func WithBackoff(p backoff.Policy) Option {
	return func(pl *Pipeline) { pl.policy = p }
}

// WithDefaultBudget sets the deadline applied to requests without one.
func WithDefaultBudget(d time.Duration) Option {
	return func(pl *Pipeline) { pl.budget = d }
}

// WithThresholds sets per-class, per-service-tier acceptance floors.
func WithThresholds(t Thresholds) Option {
	return func(pl *Pipeline) { pl.thresholds = t }
}

// WithObserver registers a result observer.
func WithObserver(o Observer) Option {
	return func(pl *Pipeline) { pl.observers = append(pl.observers, o) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(pl *Pipeline) { pl.logger = l }
}

// New validates the tier list and thresholds and returns a Pipeline.
func New(tiers []Tier, assessor quality.Assessor, fallback Fallback, opts ...Option) (*Pipeline, error) {
	if len(tiers) == 0 {
		return nil, ErrNoTiers
	}
	if assessor == nil {
		return nil, errors.New("pipeline: assessor is nil")
	}
	if fallback == nil {
		return nil, errors.New("pipeline: fallback is nil")
	}
	for i, t := range tiers {
		if err := t.validate(i); err != nil {
			return nil, err
		}
	}

	p := &Pipeline{
		tiers:    append([]Tier(nil), tiers...),
		assessor: assessor,
		fallback: fallback,
		policy:   backoff.DefaultPolicy(),
		budget:   60 * time.Second,
		logger:   slog.Default(),
		sleep:    backoff.Wait,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	if err := p.thresholds.validate(); err != nil {
		return nil, err
	}
	if err := p.policy.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if p.budget <= 0 {
		return nil, errors.New("pipeline: default budget must be positive")
	}
	return p, nil
}

// Tiers returns a copy of the configured tiers.
func (p *Pipeline) Tiers() []Tier {
	return append([]Tier(nil), p.tiers...)
}

// Run executes the failover state machine for one request. It never returns
// an error: provider failures end in template content at worst.
func (p *Pipeline) Run(ctx context.Context, req domain.GenerationRequest) domain.PipelineResult {
	start := p.now()
	deadline := req.Deadline
	if deadline.IsZero() {
		deadline = start.Add(p.budget)
	}
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	log := p.logger.With("request_id", req.ID, "class", req.Class, "service_tier", req.ServiceTier)

	var attempts []domain.AttemptOutcome
	reason := domain.DegradedExhausted
	stoppedAt := len(p.tiers)

tiers:
	for i, tier := range p.tiers {
		threshold := max(tier.AcceptanceThreshold, p.thresholds.floor(req.Class, req.ServiceTier))
		var delay time.Duration

		for n := 1; n <= tier.MaxAttempts; n++ {
			if ctx.Err() != nil || deadline.Sub(p.now()) < tier.PerAttemptTimeout {
				log.Warn("Deadline too close for next attempt, using template",
					"tier", i, "provider", tier.Provider.Name(), "remaining", deadline.Sub(p.now()))
				reason = domain.DegradedDeadline
				stoppedAt = i
				break tiers
			}

			out, content, err := p.attempt(ctx, i, n, tier, threshold, req)
			if provider.NotCalled(err) {
				// throttled or breaker open: nothing reached the provider
				log.Debug("Provider not admitted", "tier", i, "provider", out.Provider, "error", err)
			} else {
				out.BackoffBefore = delay
				attempts = append(attempts, out)
				metrics.AttemptsTotal.WithLabelValues(out.Provider, string(out.State)).Inc()
				metrics.AttemptLatency.WithLabelValues(out.Provider).Observe(out.Duration.Seconds())
			}

			switch out.State {
			case domain.StateAccepted:
				log.Info("Content accepted", "tier", i, "provider", out.Provider, "attempt", n, "score", out.Score.Overall)
				return p.finish(req, start, domain.PipelineResult{
					Content:    content,
					Source:     domain.TierSource(i),
					Provider:   out.Provider,
					Attempts:   attempts,
					FinalScore: *out.Score,
				})

			case domain.StateRejectedQuality:
				log.Info("Content rejected by quality gate, advancing",
					"tier", i, "provider", out.Provider, "score", out.Score.Overall, "threshold", threshold)
				continue tiers

			default:
				if out.Permanent {
					log.Warn("Permanent provider failure, advancing", "tier", i, "provider", out.Provider, "error", out.Error)
					continue tiers
				}
				if n == tier.MaxAttempts {
					log.Warn("Tier attempts exhausted, advancing", "tier", i, "provider", out.Provider, "attempts", n)
					continue tiers
				}

				delay = p.policy.NextDelay(n - 1)
				if ra := provider.RetryAfter(err); ra > delay {
					if p.now().Add(ra + tier.PerAttemptTimeout).After(deadline) {
						log.Warn("Retry-After leaves no time for another attempt, advancing",
							"tier", i, "provider", out.Provider, "retry_after", ra)
						continue tiers
					}
					delay = ra
				}
				log.Debug("Transient provider failure, backing off",
					"tier", i, "provider", out.Provider, "attempt", n, "state", out.State, "delay", delay)
				metrics.BackoffSeconds.Observe(delay.Seconds())
				if err := p.sleep(ctx, delay); err != nil {
					reason = domain.DegradedDeadline
					stoppedAt = i
					break tiers
				}
			}
		}
	}

	return p.degrade(req, start, attempts, reason, stoppedAt, log)
}

type invokeResult struct {
	content domain.Content
	err     error
}

// attempt performs one provider call. The call runs in its own goroutine so a
// provider that ignores cancellation cannot hold the pipeline past the
// per-attempt timeout; its late result is dropped.
func (p *Pipeline) attempt(ctx context.Context, idx, n int, tier Tier, threshold float64, req domain.GenerationRequest) (domain.AttemptOutcome, domain.Content, error) {
	out := domain.AttemptOutcome{
		TierIndex: idx,
		Provider:  tier.Provider.Name(),
		Attempt:   n,
	}

	callCtx, cancel := context.WithTimeout(ctx, tier.PerAttemptTimeout)
	defer cancel()

	start := p.now()
	ch := make(chan invokeResult, 1)
	go func() {
		c, err := tier.Provider.Invoke(callCtx, req.Content)
		ch <- invokeResult{content: c, err: err}
	}()

	var res invokeResult
	select {
	case res = <-ch:
	case <-callCtx.Done():
		res.err = callCtx.Err()
	}
	out.Duration = p.now().Sub(start)

	if res.err != nil {
		out.Error = res.err.Error()
		if errors.Is(res.err, context.DeadlineExceeded) && callCtx.Err() != nil {
			out.State = domain.StateFailedTimeout
			return out, domain.Content{}, res.err
		}
		out.State = domain.StateFailedTransport
		out.Permanent = provider.Classify(res.err) == provider.Permanent
		return out, domain.Content{}, res.err
	}

	topic := req.Topic
	if topic == "" {
		topic = req.Content
	}
	// the provider's own ClaimedScore is never consulted
	score := p.assessor.Assess(quality.Submission{
		Content: res.content.Text,
		Class:   req.Class,
		Topic:   topic,
	}).Gate(threshold)
	out.Score = &score
	metrics.QualityScore.WithLabelValues(out.Provider, string(req.Class)).Observe(score.Overall)

	if score.Passed {
		out.State = domain.StateAccepted
		return out, res.content, nil
	}
	out.State = domain.StateRejectedQuality
	return out, domain.Content{}, nil
}

func (p *Pipeline) degrade(req domain.GenerationRequest, start time.Time, attempts []domain.AttemptOutcome, reason domain.DegradedReason, stoppedAt int, log *slog.Logger) domain.PipelineResult {
	if len(attempts) == 0 {
		state := domain.StateExhausted
		if reason == domain.DegradedDeadline {
			state = domain.StateDeadlineExceeded
		}
		attempts = append(attempts, domain.AttemptOutcome{
			TierIndex: stoppedAt,
			Provider:  string(domain.SourceTemplate),
			State:     state,
			Error:     string(reason),
		})
	}

	log.Warn("Serving template fallback", "reason", reason, "attempts", len(attempts))
	return p.finish(req, start, domain.PipelineResult{
		Content:    p.fallback.Render(req.Class, req.ServiceTier),
		Source:     domain.SourceTemplate,
		Attempts:   attempts,
		FinalScore: p.fallback.Score(),
		Degraded:   reason,
	})
}

func (p *Pipeline) finish(req domain.GenerationRequest, start time.Time, r domain.PipelineResult) domain.PipelineResult {
	now := p.now()
	r.RequestID = req.ID
	r.Class = req.Class
	r.ServiceTier = req.ServiceTier
	r.Elapsed = now.Sub(start)
	r.CompletedAt = now

	metrics.ResultsTotal.WithLabelValues(string(r.Source), string(r.Class), string(r.ServiceTier)).Inc()
	metrics.PipelineLatency.WithLabelValues(string(r.Source)).Observe(r.Elapsed.Seconds())

	for _, o := range p.observers {
		o(r)
	}
	return r
}
