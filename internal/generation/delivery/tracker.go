// Package delivery aggregates pipeline outcomes and raises escalation
// signals when delivery quality drifts.
package delivery

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/zerofail/internal/core/domain"
	"github.com/vietddude/zerofail/internal/generation/metrics"
)

// Tracker is the only mutable state shared between concurrent requests.
// It is created once per process and cleared explicitly with Reset.
//
// Counters are kept in time buckets covering Escalation.Window; buckets that
// fall out of the window are dropped, so rates follow recent traffic. A zero
// window keeps everything since the last Reset.
type Tracker struct {
	cfg    Config
	now    func() time.Time
	window time.Duration
	width  time.Duration

	mu      sync.Mutex
	buckets []*bucket
	since   time.Time
}

// bucketsPerWindow sets the aging granularity.
const bucketsPerWindow = 30

type bucket struct {
	start          time.Time
	total          int64
	bySource       map[domain.Source]int64
	templates      int64
	attempts       int64
	failedAttempts int64
	latencySum     time.Duration
	tiers          map[domain.ServiceTier]*tierStats
}

type tierStats struct {
	requests   int64
	violations int64
}

// Snapshot is a consistent copy of the tracker counters.
type Snapshot struct {
	Total          int64                               `json:"total"`
	BySource       map[domain.Source]int64             `json:"by_source"`
	TemplateRate   float64                             `json:"template_rate"`
	Attempts       int64                               `json:"attempts"`
	FailedAttempts int64                               `json:"failed_attempts"`
	FailureRate    float64                             `json:"failure_rate"`
	AvgLatency     time.Duration                       `json:"avg_latency"`
	Tiers          map[domain.ServiceTier]TierSnapshot `json:"tiers"`
	Since          time.Time                           `json:"since"`
	Window         time.Duration                       `json:"window"`
}

// TierSnapshot holds per service tier SLA statistics.
type TierSnapshot struct {
	Requests      int64         `json:"requests"`
	Violations    int64         `json:"violations"`
	ViolationRate float64       `json:"violation_rate"`
	SLA           time.Duration `json:"sla"`
}

// NewTracker creates a tracker with the given SLA and escalation settings.
func NewTracker(cfg Config) *Tracker {
	t := &Tracker{cfg: cfg, now: time.Now, window: cfg.Escalation.Window}
	if t.window > 0 {
		t.width = max(t.window/bucketsPerWindow, time.Second)
	}
	t.Reset()
	return t
}

// Record adds a finished result. It reports whether the result violated its
// service tier SLA.
func (t *Tracker) Record(r domain.PipelineResult) bool {
	violated := t.SLAViolated(r)

	t.mu.Lock()
	b := t.current(t.now())
	b.total++
	b.bySource[r.Source]++
	if r.FromTemplate() {
		b.templates++
	}
	b.attempts += int64(r.ProviderAttempts())
	b.failedAttempts += int64(r.FailedAttempts())
	b.latencySum += r.Elapsed

	ts, ok := b.tiers[r.ServiceTier]
	if !ok {
		ts = &tierStats{}
		b.tiers[r.ServiceTier] = ts
	}
	ts.requests++
	if violated {
		ts.violations++
	}
	s := t.snapshotLocked()
	t.mu.Unlock()

	setRateGauges(s)
	if violated {
		metrics.SLAViolations.WithLabelValues(string(r.ServiceTier)).Inc()
	}
	return violated
}

// current returns the bucket for now, opening a new one when needed.
func (t *Tracker) current(now time.Time) *bucket {
	t.expire(now)
	if n := len(t.buckets); n > 0 {
		last := t.buckets[n-1]
		if t.width == 0 || now.Before(last.start.Add(t.width)) {
			return last
		}
	}
	start := now
	if t.width > 0 {
		start = now.Truncate(t.width)
	}
	b := newBucket(start)
	t.buckets = append(t.buckets, b)
	return b
}

// expire drops buckets that ended before the window start.
func (t *Tracker) expire(now time.Time) {
	if t.window <= 0 {
		return
	}
	cutoff := now.Add(-t.window)
	i := 0
	for i < len(t.buckets) && !t.buckets[i].start.Add(t.width).After(cutoff) {
		i++
	}
	if i > 0 {
		t.buckets = append(t.buckets[:0], t.buckets[i:]...)
	}
}

func newBucket(start time.Time) *bucket {
	return &bucket{
		start:    start,
		bySource: make(map[domain.Source]int64),
		tiers:    make(map[domain.ServiceTier]*tierStats),
	}
}

// SLAViolated reports whether the result took longer than its tier's SLA.
// Tiers without an SLA never violate.
func (t *Tracker) SLAViolated(r domain.PipelineResult) bool {
	sla, ok := t.cfg.SLA[r.ServiceTier]
	return ok && sla > 0 && r.Elapsed > sla
}

// Snapshot returns the counters aggregated over the current window.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expire(t.now())
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Snapshot {
	s := Snapshot{
		BySource: make(map[domain.Source]int64),
		Tiers:    make(map[domain.ServiceTier]TierSnapshot),
		Since:    t.since,
		Window:   t.window,
	}
	if t.window > 0 {
		if start := t.now().Add(-t.window); start.After(s.Since) {
			s.Since = start
		}
	}

	var templates int64
	var latency time.Duration
	tiers := make(map[domain.ServiceTier]tierStats)
	for _, b := range t.buckets {
		s.Total += b.total
		templates += b.templates
		s.Attempts += b.attempts
		s.FailedAttempts += b.failedAttempts
		latency += b.latencySum
		for k, v := range b.bySource {
			s.BySource[k] += v
		}
		for k, v := range b.tiers {
			ts := tiers[k]
			ts.requests += v.requests
			ts.violations += v.violations
			tiers[k] = ts
		}
	}

	s.TemplateRate = ratio(templates, s.Total)
	s.FailureRate = ratio(s.FailedAttempts, s.Attempts)
	if s.Total > 0 {
		s.AvgLatency = latency / time.Duration(s.Total)
	}
	for k, v := range tiers {
		s.Tiers[k] = TierSnapshot{
			Requests:      v.requests,
			Violations:    v.violations,
			ViolationRate: ratio(v.violations, v.requests),
			SLA:           t.cfg.SLA[k],
		}
	}
	return s
}

// CheckEscalation evaluates the thresholds against the current window.
// Nothing is raised until the window holds MinSamples requests.
func (t *Tracker) CheckEscalation() []domain.EscalationSignal {
	s := t.Snapshot()
	setRateGauges(s)
	e := t.cfg.Escalation
	if s.Total == 0 || s.Total < e.MinSamples {
		return nil
	}

	now := t.now()
	var signals []domain.EscalationSignal

	if e.TemplateRate > 0 && s.TemplateRate > e.TemplateRate {
		signals = append(signals, domain.EscalationSignal{
			Kind:      domain.SignalTemplateRate,
			Value:     s.TemplateRate,
			Threshold: e.TemplateRate,
			Samples:   s.Total,
			Message:   fmt.Sprintf("template fallback rate %.1f%% exceeds %.1f%%", s.TemplateRate*100, e.TemplateRate*100),
			RaisedAt:  now,
		})
	}

	if e.FailureRate > 0 && s.FailureRate > e.FailureRate {
		signals = append(signals, domain.EscalationSignal{
			Kind:      domain.SignalFailureRate,
			Value:     s.FailureRate,
			Threshold: e.FailureRate,
			Samples:   s.Attempts,
			Message:   fmt.Sprintf("provider failure rate %.1f%% exceeds %.1f%%", s.FailureRate*100, e.FailureRate*100),
			RaisedAt:  now,
		})
	}

	if e.MaxAvgLatency > 0 && s.AvgLatency > e.MaxAvgLatency {
		signals = append(signals, domain.EscalationSignal{
			Kind:      domain.SignalLatency,
			Value:     s.AvgLatency.Seconds(),
			Threshold: e.MaxAvgLatency.Seconds(),
			Samples:   s.Total,
			Message:   fmt.Sprintf("average latency %s exceeds %s", s.AvgLatency.Round(time.Millisecond), e.MaxAvgLatency),
			RaisedAt:  now,
		})
	}

	tiers := make([]domain.ServiceTier, 0, len(s.Tiers))
	for k := range s.Tiers {
		tiers = append(tiers, k)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i] < tiers[j] })

	for _, tier := range tiers {
		ts := s.Tiers[tier]
		if ts.Requests < e.MinSamples || e.SLAViolationRate <= 0 || ts.ViolationRate <= e.SLAViolationRate {
			continue
		}
		signals = append(signals, domain.EscalationSignal{
			Kind:        domain.SignalSLAViolation,
			ServiceTier: tier,
			Value:       ts.ViolationRate,
			Threshold:   e.SLAViolationRate,
			Samples:     ts.Requests,
			Message:     fmt.Sprintf("%s SLA (%s) violated by %.1f%% of requests", tier, ts.SLA, ts.ViolationRate*100),
			RaisedAt:    now,
		})
	}
	return signals
}

// Reset clears all counters.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.buckets = nil
	t.since = t.now()
	t.mu.Unlock()

	metrics.TemplateRate.Set(0)
	metrics.FailureRate.Set(0)
}

func setRateGauges(s Snapshot) {
	metrics.TemplateRate.Set(s.TemplateRate)
	metrics.FailureRate.Set(s.FailureRate)
}

func ratio(n, d int64) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
