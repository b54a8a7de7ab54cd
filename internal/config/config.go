package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type StoreConfig struct {
	Mode          string `yaml:"mode"` // sqlite, ephemeral
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// ProviderConfig describes one speech-to-text backend in the fallback chain.
type ProviderConfig struct {
	Name       string `yaml:"name"`
	Mode       string `yaml:"mode"` // mock, exec, deepgram, whisper
	Command    string `yaml:"command"`
	Endpoint   string `yaml:"endpoint"`
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	Language   string `yaml:"language"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
}

type TranscriptionConfig struct {
	Providers     []ProviderConfig `yaml:"providers"`
	Order         []string         `yaml:"order"`
	CallTimeoutMS int              `yaml:"call_timeout_ms"`
	MaxParallel   int              `yaml:"max_parallel"`
}

type EvaluationConfig struct {
	Mode          string  `yaml:"mode"` // mock, ollama, exec
	Endpoint      string  `yaml:"endpoint"`
	Command       string  `yaml:"command"`
	Model         string  `yaml:"model"`
	MaxTokens     int     `yaml:"max_tokens"`
	Temperature   float64 `yaml:"temperature"`
	CallTimeoutMS int     `yaml:"call_timeout_ms"`
}

type QuestionsConfig struct {
	Mode      string `yaml:"mode"` // mock, static, llm
	Count     int    `yaml:"count"`
	MaxTokens int    `yaml:"max_tokens"`
}

type Config struct {
	RuntimeName   string              `yaml:"runtime_name"`
	Environment   string              `yaml:"environment"`
	HTTP          HTTPConfig          `yaml:"http"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
	Bus           BusConfig           `yaml:"bus"`
	Store         StoreConfig         `yaml:"store"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Evaluation    EvaluationConfig    `yaml:"evaluation"`
	Questions     QuestionsConfig     `yaml:"questions"`
}

func Default() Config {
	return Config{
		RuntimeName: "interview-core",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Store: StoreConfig{
			Mode:          "sqlite",
			Path:          "./data/interview-sessions.db",
			RetentionDays: 90,
			MaxSessions:   10000,
		},
		Transcription: TranscriptionConfig{
			Providers: []ProviderConfig{
				{Name: "mock", Mode: "mock"},
			},
			CallTimeoutMS: 45000,
			MaxParallel:   4,
		},
		Evaluation: EvaluationConfig{
			Mode:          "mock",
			Endpoint:      "http://localhost:11434",
			Model:         "llama3.2:latest",
			MaxTokens:     1024,
			Temperature:   0.3,
			CallTimeoutMS: 60000,
		},
		Questions: QuestionsConfig{
			Mode:      "static",
			Count:     5,
			MaxTokens: 256,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "INTERVIEW_RUNTIME_NAME")
	overrideString(&cfg.Environment, "INTERVIEW_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "INTERVIEW_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "INTERVIEW_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "INTERVIEW_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "INTERVIEW_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "INTERVIEW_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Enabled, "INTERVIEW_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "INTERVIEW_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "INTERVIEW_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "INTERVIEW_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "INTERVIEW_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "INTERVIEW_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "INTERVIEW_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "INTERVIEW_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "INTERVIEW_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "INTERVIEW_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Store.Mode, "INTERVIEW_STORE_MODE")
	overrideString(&cfg.Store.Path, "INTERVIEW_STORE_PATH")
	overrideInt(&cfg.Store.RetentionDays, "INTERVIEW_STORE_RETENTION_DAYS")
	overrideInt(&cfg.Store.MaxSessions, "INTERVIEW_STORE_MAX_SESSIONS")
	overrideBool(&cfg.Store.VacuumOnStart, "INTERVIEW_STORE_VACUUM_ON_START")
	overrideStringSlice(&cfg.Transcription.Order, "INTERVIEW_TRANSCRIBE_ORDER")
	overrideInt(&cfg.Transcription.CallTimeoutMS, "INTERVIEW_TRANSCRIBE_CALL_TIMEOUT_MS")
	overrideInt(&cfg.Transcription.MaxParallel, "INTERVIEW_TRANSCRIBE_MAX_PARALLEL")
	overrideString(&cfg.Evaluation.Mode, "INTERVIEW_EVALUATION_MODE")
	overrideString(&cfg.Evaluation.Endpoint, "INTERVIEW_EVALUATION_ENDPOINT")
	overrideString(&cfg.Evaluation.Command, "INTERVIEW_EVALUATION_COMMAND")
	overrideString(&cfg.Evaluation.Model, "INTERVIEW_EVALUATION_MODEL")
	overrideInt(&cfg.Evaluation.MaxTokens, "INTERVIEW_EVALUATION_MAX_TOKENS")
	overrideFloat(&cfg.Evaluation.Temperature, "INTERVIEW_EVALUATION_TEMPERATURE")
	overrideInt(&cfg.Evaluation.CallTimeoutMS, "INTERVIEW_EVALUATION_CALL_TIMEOUT_MS")
	overrideString(&cfg.Questions.Mode, "INTERVIEW_QUESTIONS_MODE")
	overrideInt(&cfg.Questions.Count, "INTERVIEW_QUESTIONS_COUNT")
	overrideInt(&cfg.Questions.MaxTokens, "INTERVIEW_QUESTIONS_MAX_TOKENS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.Store.Mode {
	case "sqlite", "ephemeral":
		// ok
	default:
		return errors.New("store.mode must be one of sqlite|ephemeral")
	}
	if cfg.Store.Mode == "sqlite" && cfg.Store.Path == "" {
		return errors.New("store.path must not be empty when mode=sqlite")
	}
	if cfg.Store.RetentionDays < 0 {
		return errors.New("store.retention_days must be >= 0")
	}
	if len(cfg.Transcription.Providers) == 0 {
		return errors.New("transcription.providers must not be empty")
	}
	seen := make(map[string]bool, len(cfg.Transcription.Providers))
	for _, p := range cfg.Transcription.Providers {
		if p.Name == "" {
			return errors.New("transcription provider name must not be empty")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate transcription provider %q", p.Name)
		}
		seen[p.Name] = true
		switch p.Mode {
		case "mock", "exec", "deepgram", "whisper":
		default:
			return fmt.Errorf("provider %q: mode must be one of mock|exec|deepgram|whisper", p.Name)
		}
		if p.Mode == "exec" && p.Command == "" {
			return fmt.Errorf("provider %q: command must be set when mode=exec", p.Name)
		}
		if (p.Mode == "deepgram" || p.Mode == "whisper") && p.APIKey == "" {
			return fmt.Errorf("provider %q: api_key must be set when mode=%s", p.Name, p.Mode)
		}
	}
	for _, name := range cfg.Transcription.Order {
		if !seen[name] {
			return fmt.Errorf("transcription.order references unknown provider %q", name)
		}
	}
	if cfg.Transcription.CallTimeoutMS <= 0 {
		return errors.New("transcription.call_timeout_ms must be positive")
	}
	if cfg.Transcription.MaxParallel <= 0 {
		return errors.New("transcription.max_parallel must be >= 1")
	}
	switch cfg.Evaluation.Mode {
	case "mock", "ollama", "exec":
	default:
		return errors.New("evaluation.mode must be one of mock|ollama|exec")
	}
	if cfg.Evaluation.Mode == "ollama" && cfg.Evaluation.Endpoint == "" {
		return errors.New("evaluation.endpoint must be set when mode=ollama")
	}
	if cfg.Evaluation.Mode == "exec" && cfg.Evaluation.Command == "" {
		return errors.New("evaluation.command must be set when mode=exec")
	}
	if cfg.Evaluation.MaxTokens < 0 {
		return errors.New("evaluation.max_tokens must be >= 0")
	}
	if cfg.Evaluation.CallTimeoutMS <= 0 {
		return errors.New("evaluation.call_timeout_ms must be positive")
	}
	switch cfg.Questions.Mode {
	case "mock", "static", "llm":
	default:
		return errors.New("questions.mode must be one of mock|static|llm")
	}
	if cfg.Questions.Count <= 0 {
		return errors.New("questions.count must be >= 1")
	}
	return nil
}
