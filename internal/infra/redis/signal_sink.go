package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vietddude/zerofail/internal/core/domain"
)

// SignalSink publishes escalation signals on a channel and keeps a capped
// history list.
type SignalSink struct {
	c       *Client
	channel string
	history int64
}

// NewSignalSink creates a sink. history <= 0 defaults to 500 entries.
func NewSignalSink(client *Client, channel string, history int) *SignalSink {
	if channel == "" {
		channel = client.prefix + ":escalations:live"
	}
	if history <= 0 {
		history = 500
	}
	return &SignalSink{c: client, channel: channel, history: int64(history)}
}

func (s *SignalSink) Name() string { return "redis" }

// Send stores the signal and publishes it.
func (s *SignalSink) Send(ctx context.Context, sig domain.EscalationSignal) error {
	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("failed to marshal signal: %w", err)
	}

	pipe := s.c.rdb.TxPipeline()
	pipe.LPush(ctx, s.c.signalsKey(), data)
	pipe.LTrim(ctx, s.c.signalsKey(), 0, s.history-1)
	pipe.Publish(ctx, s.channel, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish signal: %w", err)
	}
	return nil
}
