package provider

import (
	"context"
	"testing"
	"time"

	"github.com/vietddude/zerofail/internal/core/config"
)

func TestBuild(t *testing.T) {
	r, err := Build(context.Background(), []config.ProviderConfig{
		{Name: "gpt4", Kind: "openai", URL: "http://127.0.0.1:1/v1/chat/completions", BreakerThreshold: 3, BreakerCooldown: time.Second},
		{Name: "local", Kind: "grpc", URL: "127.0.0.1:1"},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer r.Close()

	if _, ok := r.Get("gpt4"); !ok {
		t.Error("gpt4 not registered")
	}
	health := r.Health()
	if len(health) != 2 || health[0].Name != "gpt4" || health[1].Name != "local" {
		t.Errorf("unexpected health list: %+v", health)
	}
}

func TestBuild_UnknownKind(t *testing.T) {
	if _, err := Build(context.Background(), []config.ProviderConfig{{Name: "x", Kind: "smoke-signal"}}); err == nil {
		t.Error("expected error for unknown kind")
	}
}
