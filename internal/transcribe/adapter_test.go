package transcribe

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hirewire/interview-core/internal/config"
)

type scriptedProvider struct {
	name   string
	result Result
	err    error
	delay  time.Duration
	calls  int
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) TranscribeOne(ctx context.Context, _ string) (Result, error) {
	p.calls++
	if p.delay > 0 {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(p.delay):
		}
	}
	return p.result, p.err
}

func newTestAdapter(t *testing.T, timeout time.Duration, providers ...*scriptedProvider) *Adapter {
	t.Helper()
	byName := make(map[string]Provider, len(providers))
	order := make([]string, 0, len(providers))
	for _, p := range providers {
		byName[p.name] = p
		order = append(order, p.name)
	}
	return &Adapter{
		providers: byName,
		order:     order,
		timeout:   timeout,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestFallbackShortCircuitsOnSuccess(t *testing.T) {
	first := &scriptedProvider{name: "deepgram", err: errors.New("quota exceeded")}
	second := &scriptedProvider{name: "whisper", result: Result{Text: "hello world"}}
	third := &scriptedProvider{name: "local", result: Result{Text: "unused"}}
	adapter := newTestAdapter(t, time.Second, first, second, third)

	out, err := adapter.Transcribe(context.Background(), "media://a", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Provider != "whisper" || out.Text != "hello world" {
		t.Fatalf("unexpected result: %+v", out)
	}
	if len(out.Attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(out.Attempts))
	}
	if out.Attempts[0].Outcome != OutcomeError || out.Attempts[1].Outcome != OutcomeOK {
		t.Fatalf("unexpected attempt outcomes: %+v", out.Attempts)
	}
	if third.calls != 0 {
		t.Fatal("expected success to short-circuit remaining providers")
	}
}

func TestAllProvidersFailed(t *testing.T) {
	first := &scriptedProvider{name: "deepgram", err: errors.New("timeout")}
	second := &scriptedProvider{name: "whisper", err: errors.New("unsupported format")}
	adapter := newTestAdapter(t, time.Second, first, second)

	out, err := adapter.Transcribe(context.Background(), "media://a", nil)
	if !errors.Is(err, ErrAllProvidersFailed) {
		t.Fatalf("expected ErrAllProvidersFailed, got %v", err)
	}
	if len(out.Attempts) != 2 {
		t.Fatalf("expected full attempt history on failure, got %d entries", len(out.Attempts))
	}
	for _, attempt := range out.Attempts {
		if attempt.Outcome != OutcomeError || attempt.Error == "" {
			t.Fatalf("expected error attempt with message, got %+v", attempt)
		}
	}
}

func TestEmptyAudioIsNotAFailure(t *testing.T) {
	first := &scriptedProvider{name: "deepgram", result: Result{Empty: true}}
	second := &scriptedProvider{name: "whisper", result: Result{Text: "unused"}}
	adapter := newTestAdapter(t, time.Second, first, second)

	out, err := adapter.Transcribe(context.Background(), "media://silent", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Empty || out.Provider != "deepgram" {
		t.Fatalf("expected empty outcome from first provider, got %+v", out)
	}
	if second.calls != 0 {
		t.Fatal("empty outcome must short-circuit like success")
	}
	if len(out.Attempts) != 1 || out.Attempts[0].Outcome != OutcomeEmpty {
		t.Fatalf("unexpected attempts: %+v", out.Attempts)
	}
}

func TestPerCallTimeout(t *testing.T) {
	slow := &scriptedProvider{name: "slow", delay: 200 * time.Millisecond, result: Result{Text: "late"}}
	fast := &scriptedProvider{name: "fast", result: Result{Text: "quick"}}
	adapter := newTestAdapter(t, 20*time.Millisecond, slow, fast)

	out, err := adapter.Transcribe(context.Background(), "media://a", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Provider != "fast" {
		t.Fatalf("expected timeout fallback to fast provider, got %q", out.Provider)
	}
	if out.Attempts[0].Outcome != OutcomeError {
		t.Fatalf("expected slow provider attempt recorded as error, got %+v", out.Attempts[0])
	}
}

func TestPreferredOrderOverride(t *testing.T) {
	first := &scriptedProvider{name: "deepgram", result: Result{Text: "from deepgram"}}
	second := &scriptedProvider{name: "whisper", result: Result{Text: "from whisper"}}
	adapter := newTestAdapter(t, time.Second, first, second)

	out, err := adapter.Transcribe(context.Background(), "media://a", []string{"whisper"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Provider != "whisper" {
		t.Fatalf("expected preferred order to win, got %q", out.Provider)
	}
	if first.calls != 0 {
		t.Fatal("providers outside the preferred order must not be called")
	}
}

func TestNewAdapterRejectsUnknownOrder(t *testing.T) {
	cfg := config.TranscriptionConfig{
		Providers:     []config.ProviderConfig{{Name: "mock", Mode: "mock"}},
		Order:         []string{"ghost"},
		CallTimeoutMS: 1000,
		MaxParallel:   1,
	}
	if _, err := NewAdapter(cfg, slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Fatal("expected error for unknown provider in order")
	}
}

func TestMockProviderSilentRef(t *testing.T) {
	p := NewMockProvider("mock")
	out, err := p.TranscribeOne(context.Background(), "media://silent-take")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Empty {
		t.Fatal("expected silent media ref to yield empty result")
	}
}
