package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/vietddude/zerofail/internal/core/domain"
	"github.com/vietddude/zerofail/internal/generation/metrics"
)

func testConfig() Config {
	cfg := Config{
		SLA: map[domain.ServiceTier]time.Duration{
			domain.ServiceStandard: time.Second,
			domain.ServicePremium:  500 * time.Millisecond,
		},
		Escalation: EscalationConfig{MinSamples: 10},
	}
	cfg.ApplyDefaults()
	return cfg
}

func result(source domain.Source, tier domain.ServiceTier, elapsed time.Duration, states ...domain.AttemptState) domain.PipelineResult {
	r := domain.PipelineResult{Source: source, ServiceTier: tier, Elapsed: elapsed}
	for _, s := range states {
		r.Attempts = append(r.Attempts, domain.AttemptOutcome{State: s})
	}
	return r
}

func TestTracker_RecordAndSnapshot(t *testing.T) {
	tr := NewTracker(testConfig())

	tr.Record(result(domain.TierSource(0), domain.ServiceStandard, 200*time.Millisecond, domain.StateAccepted))
	tr.Record(result(domain.TierSource(1), domain.ServiceStandard, 400*time.Millisecond,
		domain.StateFailedTimeout, domain.StateAccepted))
	violated := tr.Record(result(domain.SourceTemplate, domain.ServicePremium, 600*time.Millisecond,
		domain.StateFailedTransport, domain.StateRejectedQuality))
	if !violated {
		t.Error("600ms premium result should violate 500ms SLA")
	}

	s := tr.Snapshot()
	if s.Total != 3 {
		t.Errorf("Total = %d, want 3", s.Total)
	}
	if s.BySource[domain.TierSource(0)] != 1 || s.BySource[domain.SourceTemplate] != 1 {
		t.Errorf("BySource = %v", s.BySource)
	}
	if s.AvgLatency != 400*time.Millisecond {
		t.Errorf("AvgLatency = %v, want 400ms", s.AvgLatency)
	}
	if s.Attempts != 5 || s.FailedAttempts != 2 {
		t.Errorf("attempts = %d failed = %d, want 5/2", s.Attempts, s.FailedAttempts)
	}
	if s.FailureRate != 0.4 {
		t.Errorf("FailureRate = %v, want 0.4", s.FailureRate)
	}
	if p := s.Tiers[domain.ServicePremium]; p.Requests != 1 || p.Violations != 1 || p.ViolationRate != 1 {
		t.Errorf("premium tier = %+v", p)
	}
}

func TestTracker_SyntheticAttemptsNotCounted(t *testing.T) {
	tr := NewTracker(testConfig())
	tr.Record(result(domain.SourceTemplate, domain.ServiceStandard, time.Millisecond, domain.StateDeadlineExceeded))

	s := tr.Snapshot()
	if s.Attempts != 0 || s.FailureRate != 0 {
		t.Errorf("synthetic outcome counted as provider attempt: %+v", s)
	}
	if s.TemplateRate != 1 {
		t.Errorf("TemplateRate = %v, want 1", s.TemplateRate)
	}
}

func TestTracker_CheckEscalation(t *testing.T) {
	tr := NewTracker(testConfig())

	// below MinSamples nothing fires
	for i := 0; i < 5; i++ {
		tr.Record(result(domain.SourceTemplate, domain.ServiceStandard, time.Millisecond, domain.StateFailedTransport))
	}
	if got := tr.CheckEscalation(); len(got) != 0 {
		t.Fatalf("expected no signals below min samples, got %+v", got)
	}

	for i := 0; i < 15; i++ {
		tr.Record(result(domain.TierSource(0), domain.ServiceStandard, 2*time.Second, domain.StateAccepted))
	}

	signals := tr.CheckEscalation()
	kinds := map[domain.SignalKind]domain.EscalationSignal{}
	for _, s := range signals {
		kinds[s.Kind] = s
	}

	// 5/20 = 25% template rate > 5%
	if s, ok := kinds[domain.SignalTemplateRate]; !ok || s.Value != 0.25 {
		t.Errorf("template rate signal = %+v", s)
	}
	// 15/20 standard requests over the 1s SLA
	if s, ok := kinds[domain.SignalSLAViolation]; !ok || s.ServiceTier != domain.ServiceStandard || s.Value != 0.75 {
		t.Errorf("sla signal = %+v", s)
	}
	// 5 failed of 20 attempts = 25%, not above 25%
	if _, ok := kinds[domain.SignalFailureRate]; ok {
		t.Error("failure rate at threshold should not fire")
	}
}

func TestTracker_TemplateRateBelowThreshold(t *testing.T) {
	tr := NewTracker(testConfig())
	tr.Record(result(domain.SourceTemplate, domain.ServiceStandard, time.Millisecond, domain.StateExhausted))
	for i := 0; i < 99; i++ {
		tr.Record(result(domain.TierSource(0), domain.ServiceStandard, time.Millisecond, domain.StateAccepted))
	}

	for _, s := range tr.CheckEscalation() {
		if s.Kind == domain.SignalTemplateRate {
			t.Errorf("1%% template rate should not escalate: %+v", s)
		}
	}
}

func TestTracker_Reset(t *testing.T) {
	tr := NewTracker(testConfig())
	for i := 0; i < 20; i++ {
		tr.Record(result(domain.SourceTemplate, domain.ServiceStandard, time.Millisecond, domain.StateExhausted))
	}
	if len(tr.CheckEscalation()) == 0 {
		t.Fatal("expected signals before reset")
	}

	tr.Reset()

	s := tr.Snapshot()
	if s.Total != 0 || len(s.BySource) != 0 || len(s.Tiers) != 0 {
		t.Errorf("snapshot after reset = %+v", s)
	}
	if got := tr.CheckEscalation(); len(got) != 0 {
		t.Errorf("signals after reset = %+v", got)
	}
	if v := gaugeValue(t, metrics.TemplateRate); v != 0 {
		t.Errorf("template rate gauge after reset = %v, want 0", v)
	}
	if v := gaugeValue(t, metrics.FailureRate); v != 0 {
		t.Errorf("failure rate gauge after reset = %v, want 0", v)
	}
}

func TestTracker_WindowAgesOutOldSamples(t *testing.T) {
	cfg := testConfig()
	cfg.Escalation.Window = 10 * time.Minute
	tr := NewTracker(cfg)

	now := time.Unix(1_000_000, 0)
	tr.now = func() time.Time { return now }

	for i := 0; i < 20; i++ {
		tr.Record(result(domain.SourceTemplate, domain.ServiceStandard, time.Millisecond, domain.StateExhausted))
	}
	if !hasSignal(tr.CheckEscalation(), domain.SignalTemplateRate) {
		t.Fatal("expected template rate signal during outage")
	}

	now = now.Add(6 * time.Minute)
	for i := 0; i < 10; i++ {
		tr.Record(result(domain.TierSource(0), domain.ServiceStandard, time.Millisecond, domain.StateAccepted))
	}
	if s := tr.Snapshot(); s.Total != 30 {
		t.Fatalf("Total = %d, want 30 inside the window", s.Total)
	}

	// the outage has left the window
	now = now.Add(5 * time.Minute)
	s := tr.Snapshot()
	if s.Total != 10 || s.TemplateRate != 0 {
		t.Fatalf("Total = %d TemplateRate = %v, want 10/0", s.Total, s.TemplateRate)
	}
	if got := tr.CheckEscalation(); len(got) != 0 {
		t.Errorf("recovered traffic still raises %+v", got)
	}

	// a fresh outage is visible against recent traffic only
	for i := 0; i < 2; i++ {
		tr.Record(result(domain.SourceTemplate, domain.ServiceStandard, time.Millisecond, domain.StateExhausted))
	}
	if !hasSignal(tr.CheckEscalation(), domain.SignalTemplateRate) {
		t.Error("expected template rate signal for 2 of 12 recent requests")
	}

	now = now.Add(time.Hour)
	if s := tr.Snapshot(); s.Total != 0 {
		t.Errorf("Total = %d after the window passed, want 0", s.Total)
	}
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("read gauge: %v", err)
	}
	return m.GetGauge().GetValue()
}

func hasSignal(signals []domain.EscalationSignal, kind domain.SignalKind) bool {
	for _, s := range signals {
		if s.Kind == kind {
			return true
		}
	}
	return false
}

func TestTracker_ConcurrentRecord(t *testing.T) {
	tr := NewTracker(testConfig())

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			src := domain.TierSource(0)
			if i%10 == 0 {
				src = domain.SourceTemplate
			}
			tr.Record(result(src, domain.ServiceStandard, 10*time.Millisecond, domain.StateAccepted))
			_ = tr.Snapshot()
		}(i)
	}
	wg.Wait()

	s := tr.Snapshot()
	if s.Total != 100 || s.BySource[domain.SourceTemplate] != 10 {
		t.Errorf("Total = %d template = %d, want 100/10", s.Total, s.BySource[domain.SourceTemplate])
	}
}

type recordingSink struct {
	mu    sync.Mutex
	got   []domain.EscalationSignal
	fails int
}

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) Send(_ context.Context, s domain.EscalationSignal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fails > 0 {
		r.fails--
		return errors.New("sink unavailable")
	}
	r.got = append(r.got, s)
	return nil
}

func TestDispatcher_Cooldown(t *testing.T) {
	sink := &recordingSink{fails: 1}
	d := NewDispatcher(time.Minute, LogSink{}, sink)
	d.retry.BaseDelay = time.Millisecond
	d.retry.MaxDelay = time.Millisecond

	now := time.Unix(1000, 0)
	d.now = func() time.Time { return now }

	signals := []domain.EscalationSignal{
		{Kind: domain.SignalTemplateRate, Value: 0.2},
		{Kind: domain.SignalSLAViolation, ServiceTier: domain.ServicePremium, Value: 0.5},
	}

	if n := d.Dispatch(context.Background(), signals); n != 2 {
		t.Fatalf("first dispatch sent %d, want 2", n)
	}
	if len(sink.got) != 2 {
		t.Fatalf("sink received %d, want 2 (retry after failure)", len(sink.got))
	}

	now = now.Add(30 * time.Second)
	if n := d.Dispatch(context.Background(), signals); n != 0 {
		t.Errorf("dispatch within cooldown sent %d, want 0", n)
	}

	now = now.Add(time.Minute)
	if n := d.Dispatch(context.Background(), signals[:1]); n != 1 {
		t.Errorf("dispatch after cooldown sent %d, want 1", n)
	}
}
