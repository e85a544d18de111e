package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/zerofail/internal/core/domain"
)

// Generator runs one generation request to completion.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (domain.PipelineResult, error)
}

// GenerateRequest is the JSON body of POST /v1/generate.
type GenerateRequest struct {
	Message     string `json:"message"`
	Memory      string `json:"memory,omitempty"`
	Topic       string `json:"topic,omitempty"`
	Class       string `json:"class,omitempty"`
	ServiceTier string `json:"service_tier,omitempty"`
	BudgetMs    int64  `json:"budget_ms,omitempty"`
}

// GenerateResponse is the JSON reply of POST /v1/generate.
type GenerateResponse struct {
	Success   bool                  `json:"success"`
	Response  string                `json:"response,omitempty"`
	Error     string                `json:"error,omitempty"`
	RequestID string                `json:"request_id,omitempty"`
	Source    domain.Source         `json:"source,omitempty"`
	Provider  string                `json:"provider,omitempty"`
	Degraded  domain.DegradedReason `json:"degraded,omitempty"`
	Score     float64               `json:"score"`
	Attempts  int                   `json:"attempts"`
	ElapsedMs int64                 `json:"elapsed_ms"`
}

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Server provides HTTP endpoints for health, metrics and generation.
type Server struct {
	monitor       *Monitor
	generator     Generator
	allowedOrigin string
	server        *http.Server
}

// NewServer creates a new HTTP server. generator may be nil, in which case
// the generate endpoint is not mounted.
func NewServer(monitor *Monitor, generator Generator, port int, allowedOrigin string) *Server {
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}
	mux := http.NewServeMux()
	s := &Server{
		monitor:       monitor,
		generator:     generator,
		allowedOrigin: allowedOrigin,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/detailed", s.handleDetailed)
	mux.Handle("/metrics", promhttp.Handler())
	if generator != nil {
		mux.HandleFunc("/v1/generate", s.handleGenerate)
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server. It returns nil after a graceful Stop.
func (s *Server) Start() error {
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth()

	status := http.StatusOK
	if report.SystemStatus == StatusCritical {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"status": string(report.SystemStatus)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.CheckHealth())
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", s.allowedOrigin)
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
	default:
		writeJSON(w, http.StatusMethodNotAllowed, GenerateResponse{Error: "method not allowed"})
		return
	}

	var body GenerateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, GenerateResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}
	if strings.TrimSpace(body.Message) == "" {
		writeJSON(w, http.StatusBadRequest, GenerateResponse{Error: "no message provided"})
		return
	}
	if body.BudgetMs < 0 {
		writeJSON(w, http.StatusBadRequest, GenerateResponse{Error: "budget_ms must not be negative"})
		return
	}

	// relevance is scored against the user's words, not the memory context
	topic := body.Topic
	if strings.TrimSpace(topic) == "" {
		topic = body.Message
	}
	req := domain.NewGenerationRequest(
		buildPrompt(body.Memory, body.Message),
		topic,
		domain.ParseContentClass(body.Class),
		domain.ParseServiceTier(body.ServiceTier),
		time.Duration(body.BudgetMs)*time.Millisecond,
	)

	result, err := s.generator.Generate(r.Context(), req)
	if err != nil {
		slog.Error("Generate failed", "request_id", req.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, GenerateResponse{Error: err.Error(), RequestID: req.ID})
		return
	}

	writeJSON(w, http.StatusOK, GenerateResponse{
		Success:   true,
		Response:  result.Content.Text,
		RequestID: result.RequestID,
		Source:    result.Source,
		Provider:  result.Provider,
		Degraded:  result.Degraded,
		Score:     result.FinalScore.Overall,
		Attempts:  len(result.Attempts),
		ElapsedMs: result.Elapsed.Milliseconds(),
	})
}

func buildPrompt(memory, message string) string {
	if strings.TrimSpace(memory) == "" {
		return message
	}
	return "Context:\n" + memory + "\n\nMessage:\n" + message
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}
