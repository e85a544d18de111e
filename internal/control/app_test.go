package control

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vietddude/zerofail/internal/core/config"
	"github.com/vietddude/zerofail/internal/core/domain"
	"github.com/vietddude/zerofail/internal/infra/provider"
)

const testConfig = `
server:
  port: 18080
pipeline:
  default_budget: 5s
  backoff:
    base_delay: 1ms
    max_delay: 2ms
  tiers:
    - provider: primary
      per_attempt_timeout: 500ms
      acceptance_threshold: 0
      max_attempts: 2
    - provider: secondary
      per_attempt_timeout: 500ms
      acceptance_threshold: 0
      max_attempts: 1
providers:
  - name: primary
    kind: openai
    url: http://127.0.0.1:1
  - name: secondary
    kind: openai
    url: http://127.0.0.1:1
compliance:
  enabled: true
  rules:
    - name: financial
      pattern: "(?i)invest"
      disclaimer: "Not financial advice."
delivery:
  escalation:
    min_samples: 2
    template_rate: 0.4
`

type stubAdapter struct {
	name  string
	text  string
	err   error
	calls atomic.Int32
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Invoke(ctx context.Context, prompt string) (domain.Content, error) {
	s.calls.Add(1)
	if s.err != nil {
		return domain.Content{}, s.err
	}
	return domain.Content{Text: s.text, Model: "stub"}, nil
}

func newTestApp(t *testing.T, primary, secondary *stubAdapter) *App {
	t.Helper()
	cfg, err := config.Parse([]byte(testConfig))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cfg.Server.Port = 0

	reg := provider.NewRegistry()
	reg.Add(primary, 0, 0)
	reg.Add(secondary, 0, 0)

	app, err := New(context.Background(), *cfg,
		WithRegistry(reg),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = app.Stop(context.Background()) })
	return app
}

func TestApp_GenerateFromFirstTier(t *testing.T) {
	primary := &stubAdapter{name: "primary", text: "You should invest time in learning the basics of cooking at home."}
	secondary := &stubAdapter{name: "secondary", text: "unused"}
	app := newTestApp(t, primary, secondary)

	req := domain.NewGenerationRequest("write about cooking", "cooking", domain.ClassProse, domain.ServiceStandard, 0)
	result, err := app.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if result.Source != domain.TierSource(0) || result.Provider != "primary" {
		t.Errorf("source = %s provider = %s", result.Source, result.Provider)
	}
	if !strings.HasSuffix(result.Content.Text, "Not financial advice.") {
		t.Errorf("compliance disclaimer missing: %q", result.Content.Text)
	}
	if secondary.calls.Load() != 0 {
		t.Error("secondary should not be called")
	}

	rec, err := app.Deliveries().Get(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("persisted record: %v", err)
	}
	if rec.Source != "tier-0" || rec.Attempts != 1 {
		t.Errorf("record = %+v", rec)
	}
	if s := app.Snapshot(); s.Total != 1 {
		t.Errorf("tracker total = %d, want 1", s.Total)
	}
}

func TestApp_GenerateFallsBackToTemplate(t *testing.T) {
	down := errors.New("connection refused")
	primary := &stubAdapter{name: "primary", err: provider.NewTransient("primary", down)}
	secondary := &stubAdapter{name: "secondary", err: provider.NewPermanent("secondary", down)}
	app := newTestApp(t, primary, secondary)

	for i := 0; i < 2; i++ {
		req := domain.NewGenerationRequest("write", "", domain.ClassCode, domain.ServicePremium, 0)
		result, err := app.Generate(context.Background(), req)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if !result.FromTemplate() || result.Degraded != domain.DegradedExhausted {
			t.Fatalf("result = %+v", result)
		}
		if result.Content.Text == "" {
			t.Error("template content must not be empty")
		}
	}
	if primary.calls.Load() != 4 || secondary.calls.Load() != 2 {
		t.Errorf("calls primary=%d secondary=%d", primary.calls.Load(), secondary.calls.Load())
	}

	if n := app.CheckEscalation(context.Background()); n == 0 {
		t.Error("expected escalation for 100% template rate")
	}
	signals, _ := app.Signals().RecentSignals(context.Background(), 0)
	if len(signals) == 0 {
		t.Error("escalation history should be stored")
	}
	if h := app.Health(); h.SystemStatus != "critical" {
		t.Errorf("health = %s, want critical", h.SystemStatus)
	}
}

func TestApp_Lifecycle(t *testing.T) {
	app := newTestApp(t,
		&stubAdapter{name: "primary", text: "hello there"},
		&stubAdapter{name: "secondary", text: "hello there"},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if err := app.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := app.Stop(ctx); err != nil {
		t.Errorf("second Stop: %v", err)
	}

	req := domain.NewGenerationRequest("x", "", domain.ClassProse, domain.ServiceStandard, 0)
	if _, err := app.Generate(ctx, req); !errors.Is(err, ErrClosed) {
		t.Errorf("Generate after Stop err = %v, want ErrClosed", err)
	}
}

func TestNew_UnknownTierProvider(t *testing.T) {
	cfg, err := config.Parse([]byte(testConfig))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	reg := provider.NewRegistry()
	reg.Add(&stubAdapter{name: "primary"}, 0, 0)

	if _, err := New(context.Background(), *cfg, WithRegistry(reg)); err == nil {
		t.Fatal("expected error for unregistered secondary provider")
	}
}
