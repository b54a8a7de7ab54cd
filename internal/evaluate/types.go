package evaluate

import (
	"context"
	"errors"
	"fmt"

	"github.com/hirewire/interview-core/internal/config"
)

// Request describes one language-model completion call.
type Request struct {
	Prompt      string
	System      string
	MaxTokens   int
	Temperature float64
}

// Completer defines a pluggable language-model backend.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

var (
	// ErrUnavailable wraps transport-level backend failures.
	ErrUnavailable = errors.New("evaluation backend unavailable")
	// ErrMalformedOutput marks model output that failed strict schema
	// parsing even after the stricter retry.
	ErrMalformedOutput = errors.New("malformed model output")
)

// NewCompleter selects a backend from config.
func NewCompleter(cfg config.EvaluationConfig) (Completer, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockCompleter(), nil
	case "ollama":
		return NewOllamaCompleter(cfg.Endpoint, cfg.Model), nil
	case "exec":
		return NewExecCompleter(cfg.Command)
	default:
		return nil, fmt.Errorf("unknown evaluation mode %q", cfg.Mode)
	}
}

// QA is one question with its transcription outcome, as handed to the
// engine. Empty answers are represented explicitly so the model can
// penalize non-answers instead of evaluating a shorter interview.
type QA struct {
	Ordinal    int
	Question   string
	Transcript string
	Empty      bool
}
