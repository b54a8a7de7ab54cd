package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Store.Mode != "sqlite" {
		t.Fatalf("expected default sqlite store, got %q", cfg.Store.Mode)
	}
	if len(cfg.Transcription.Providers) != 1 || cfg.Transcription.Providers[0].Mode != "mock" {
		t.Fatalf("expected default mock provider, got %v", cfg.Transcription.Providers)
	}
	if cfg.Questions.Count != 5 {
		t.Fatalf("expected 5 default questions, got %d", cfg.Questions.Count)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("INTERVIEW_STORE_MODE", "ephemeral")
	t.Setenv("INTERVIEW_STORE_MAX_SESSIONS", "123")
	t.Setenv("INTERVIEW_TRANSCRIBE_ORDER", "mock")
	t.Setenv("INTERVIEW_TRANSCRIBE_CALL_TIMEOUT_MS", "5000")
	t.Setenv("INTERVIEW_EVALUATION_MODE", "ollama")
	t.Setenv("INTERVIEW_EVALUATION_MODEL", "llama3.1:8b")
	t.Setenv("INTERVIEW_QUESTIONS_COUNT", "3")
	t.Setenv("INTERVIEW_BUS_SERVERS", "nats://one:4222, nats://two:4222")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Store.Mode != "ephemeral" {
		t.Fatalf("expected store mode override, got %q", cfg.Store.Mode)
	}
	if cfg.Store.MaxSessions != 123 {
		t.Fatalf("expected max sessions 123, got %d", cfg.Store.MaxSessions)
	}
	if len(cfg.Transcription.Order) != 1 || cfg.Transcription.Order[0] != "mock" {
		t.Fatalf("expected order override, got %v", cfg.Transcription.Order)
	}
	if cfg.Transcription.CallTimeoutMS != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Transcription.CallTimeoutMS)
	}
	if cfg.Evaluation.Mode != "ollama" || cfg.Evaluation.Model != "llama3.1:8b" {
		t.Fatalf("expected evaluation override, got %+v", cfg.Evaluation)
	}
	if cfg.Questions.Count != 3 {
		t.Fatalf("expected question count 3, got %d", cfg.Questions.Count)
	}
	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
}

func TestValidateRejectsUnknownOrderEntry(t *testing.T) {
	cfg := Default()
	cfg.Transcription.Order = []string{"nope"}
	if err := validate(cfg); err == nil {
		t.Fatal("expected error for unknown provider in order")
	}
}

func TestValidateRejectsExecProviderWithoutCommand(t *testing.T) {
	cfg := Default()
	cfg.Transcription.Providers = append(cfg.Transcription.Providers, ProviderConfig{Name: "local", Mode: "exec"})
	if err := validate(cfg); err == nil {
		t.Fatal("expected error for exec provider without command")
	}
}
