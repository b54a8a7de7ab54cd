package transcribe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hirewire/interview-core/internal/config"
)

// Result is one provider's answer for one media reference. Empty marks
// audio the provider processed but found no speech in; it is a valid
// outcome, not a failure.
type Result struct {
	Text  string
	Empty bool
}

// Provider abstracts a single speech-to-text backend.
type Provider interface {
	Name() string
	TranscribeOne(ctx context.Context, mediaRef string) (Result, error)
}

// Attempt records one provider call for observability. The adapter
// returns the full history even when transcription succeeds.
type Attempt struct {
	Provider string        `json:"provider"`
	Outcome  string        `json:"outcome"` // ok, empty, error
	Error    string        `json:"error,omitempty"`
	Latency  time.Duration `json:"latency"`
}

const (
	OutcomeOK    = "ok"
	OutcomeEmpty = "empty"
	OutcomeError = "error"
)

// ErrAllProvidersFailed is returned when every provider in the requested
// order failed for a media reference.
var ErrAllProvidersFailed = errors.New("all transcription providers failed")

func newProvider(cfg config.ProviderConfig) (Provider, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockProvider(cfg.Name), nil
	case "exec":
		return NewExecProvider(cfg)
	case "deepgram":
		return NewDeepgramProvider(cfg), nil
	case "whisper":
		return NewWhisperProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown provider mode %q", cfg.Mode)
	}
}
