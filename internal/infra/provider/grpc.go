package provider

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vietddude/zerofail/internal/core/config"
	"github.com/vietddude/zerofail/internal/core/domain"
)

const defaultGRPCMethod = "/zerofail.v1.Generator/Generate"

// GRPCAdapter calls a unary generation RPC that exchanges google.protobuf.Struct
// messages: {prompt, model, max_tokens} in, {text, model} out. This keeps
// self-hosted model servers pluggable without generated stubs.
type GRPCAdapter struct {
	name      string
	method    string
	model     string
	maxTokens int
	conn      *grpc.ClientConn
}

// NewGRPCAdapter creates the client connection. Connecting is lazy, so an
// unreachable server surfaces as a transient Unavailable on first Invoke.
func NewGRPCAdapter(cfg config.ProviderConfig) (*GRPCAdapter, error) {
	// Parse endpoint to determine if TLS is needed
	target := cfg.URL
	var opts []grpc.DialOption

	if strings.HasPrefix(target, "https://") || strings.HasSuffix(target, ":443") {
		creds := credentials.NewTLS(&tls.Config{})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		target = strings.TrimPrefix(target, "https://")
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		target = strings.TrimPrefix(target, "http://")
	}

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", target, err)
	}

	method := cfg.Method
	if method == "" {
		method = defaultGRPCMethod
	}
	return &GRPCAdapter{
		name:      cfg.Name,
		method:    method,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		conn:      conn,
	}, nil
}

// Name implements Adapter.
func (a *GRPCAdapter) Name() string {
	return a.name
}

// Invoke implements Adapter.
func (a *GRPCAdapter) Invoke(ctx context.Context, prompt string) (domain.Content, error) {
	req, err := structpb.NewStruct(map[string]any{
		"prompt":     prompt,
		"model":      a.model,
		"max_tokens": a.maxTokens,
	})
	if err != nil {
		return domain.Content{}, NewPermanent(a.name, fmt.Errorf("build request: %w", err))
	}

	resp := &structpb.Struct{}
	if err := a.conn.Invoke(ctx, a.method, req, resp); err != nil {
		return domain.Content{}, classifyGRPC(a.name, err)
	}

	fields := resp.GetFields()
	text := strings.TrimSpace(fields["text"].GetStringValue())
	if text == "" {
		return domain.Content{}, NewPermanent(a.name, fmt.Errorf("%w: missing text field", ErrMalformedResponse))
	}
	model := fields["model"].GetStringValue()
	if model == "" {
		model = a.model
	}
	return domain.Content{Text: text, Model: model}, nil
}

// Close cleans up resources.
func (a *GRPCAdapter) Close() error {
	return a.conn.Close()
}

// classifyGRPC honours RetryInfo details first, then falls back to the status code.
func classifyGRPC(name string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return NewTransient(name, err)
	}

	for _, d := range st.Details() {
		if ri, ok := d.(*errdetails.RetryInfo); ok {
			return &Error{
				Provider:   name,
				Kind:       Transient,
				RetryAfter: ri.GetRetryDelay().AsDuration(),
				Err:        err,
			}
		}
	}

	kind := Permanent
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted,
		codes.Aborted, codes.Internal, codes.Unknown:
		kind = Transient
	}
	return &Error{Provider: name, Kind: kind, Err: err}
}
