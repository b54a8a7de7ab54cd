package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hirewire/interview-core/internal/config"
)

// Transcription is the adapter's outcome for one media reference. The
// attempt history is populated on every path, including failure.
type Transcription struct {
	Text     string
	Empty    bool
	Provider string
	Attempts []Attempt
}

// Adapter tries speech-to-text providers in order until one returns a
// usable result. A provider either returns usable text (or a definitive
// empty-audio outcome) or counts as failed; no partial transcript is
// ever propagated.
type Adapter struct {
	providers map[string]Provider
	order     []string
	timeout   time.Duration
	logger    *slog.Logger
}

func NewAdapter(cfg config.TranscriptionConfig, logger *slog.Logger) (*Adapter, error) {
	providers := make(map[string]Provider, len(cfg.Providers))
	declared := make([]string, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		p, err := newProvider(pc)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", pc.Name, err)
		}
		providers[pc.Name] = p
		declared = append(declared, pc.Name)
	}
	order := cfg.Order
	if len(order) == 0 {
		order = declared
	}
	for _, name := range order {
		if _, ok := providers[name]; !ok {
			return nil, fmt.Errorf("order references unknown provider %q", name)
		}
	}
	return &Adapter{
		providers: providers,
		order:     order,
		timeout:   time.Duration(cfg.CallTimeoutMS) * time.Millisecond,
		logger:    logger.With(slog.String("component", "transcribe-adapter")),
	}, nil
}

// Order returns the adapter's default provider order.
func (a *Adapter) Order() []string {
	return append([]string(nil), a.order...)
}

// Transcribe runs the fallback chain for one media reference. The
// preferred order may be overridden per call; an empty slice uses the
// configured order. Success on any provider short-circuits the rest.
func (a *Adapter) Transcribe(ctx context.Context, mediaRef string, preferred []string) (Transcription, error) {
	order := preferred
	if len(order) == 0 {
		order = a.order
	}

	attempts := make([]Attempt, 0, len(order))
	for _, name := range order {
		provider, ok := a.providers[name]
		if !ok {
			return Transcription{Attempts: attempts}, fmt.Errorf("unknown provider %q in preferred order", name)
		}

		callCtx, cancel := context.WithTimeout(ctx, a.timeout)
		start := time.Now()
		result, err := provider.TranscribeOne(callCtx, mediaRef)
		latency := time.Since(start)
		cancel()

		if err != nil {
			attempts = append(attempts, Attempt{
				Provider: name,
				Outcome:  OutcomeError,
				Error:    err.Error(),
				Latency:  latency,
			})
			a.logger.Warn("transcription provider failed",
				slog.String("provider", name),
				slog.String("error", err.Error()),
				slog.Duration("latency", latency))
			continue
		}

		outcome := OutcomeOK
		if result.Empty {
			outcome = OutcomeEmpty
		}
		attempts = append(attempts, Attempt{Provider: name, Outcome: outcome, Latency: latency})
		return Transcription{
			Text:     result.Text,
			Empty:    result.Empty,
			Provider: name,
			Attempts: attempts,
		}, nil
	}

	return Transcription{Attempts: attempts},
		fmt.Errorf("%w: %d attempts", ErrAllProvidersFailed, len(attempts))
}
