// Package eventbus publishes escalation signals and delivery events to NATS.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/vietddude/zerofail/internal/core/domain"
)

// Config holds NATS connection settings.
type Config struct {
	URL string `yaml:"url"`
	// Subject prefix; signals go to <subject>.escalation.<kind> and
	// deliveries to <subject>.delivery.<source>.
	Subject string `yaml:"subject"`
	// Stream, when set, publishes through JetStream into this stream.
	Stream string `yaml:"stream"`
}

// Enabled reports whether NATS is configured.
func (c Config) Enabled() bool { return c.URL != "" }

// Publisher owns the NATS connection.
type Publisher struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
}

// Connect dials NATS and prepares the JetStream stream when configured.
func Connect(cfg Config) (*Publisher, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("zerofail"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(3),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", "error", err)
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	p := &Publisher{nc: nc, subject: subjectPrefix(cfg.Subject)}

	if cfg.Stream != "" {
		js, err := nc.JetStream()
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to create jetstream context: %w", err)
		}
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     cfg.Stream,
			Subjects: []string{p.subject + ".>"},
		})
		if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			nc.Close()
			return nil, fmt.Errorf("failed to add stream %s: %w", cfg.Stream, err)
		}
		p.js = js
	}
	return p, nil
}

// Close drains and closes the connection.
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}

// Sink returns an escalation sink backed by this publisher.
func (p *Publisher) Sink() *Sink {
	return &Sink{p: p}
}

// PublishResult emits a delivery event for a finished request.
func (p *Publisher) PublishResult(ctx context.Context, rec *domain.DeliveryRecord) error {
	return p.publish(ctx, DeliverySubject(p.subject, rec.Source), rec)
}

func (p *Publisher) publish(ctx context.Context, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if p.js != nil {
		if _, err := p.js.Publish(subject, data, nats.Context(ctx)); err != nil {
			return fmt.Errorf("jetstream publish %s: %w", subject, err)
		}
		return nil
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Sink adapts the publisher to the escalation dispatcher.
type Sink struct {
	p *Publisher
}

func (s *Sink) Name() string { return "nats" }

func (s *Sink) Send(ctx context.Context, sig domain.EscalationSignal) error {
	return s.p.publish(ctx, EscalationSubject(s.p.subject, sig), sig)
}

// EscalationSubject is the subject a signal is published on.
func EscalationSubject(prefix string, sig domain.EscalationSignal) string {
	subject := subjectPrefix(prefix) + ".escalation." + string(sig.Kind)
	if sig.ServiceTier != "" {
		subject += "." + string(sig.ServiceTier)
	}
	return subject
}

// DeliverySubject is the subject a delivery event is published on.
func DeliverySubject(prefix, source string) string {
	return subjectPrefix(prefix) + ".delivery." + source
}

func subjectPrefix(s string) string {
	if s == "" {
		return "zerofail"
	}
	return s
}
