package questions

import (
	"context"
	"errors"
	"fmt"

	"github.com/hirewire/interview-core/internal/config"
	"github.com/hirewire/interview-core/internal/evaluate"
)

// ErrGenerationFailed marks a failed generation attempt. The session
// stays in its created state and the call may be retried.
var ErrGenerationFailed = errors.New("question generation failed")

// Generator produces the ordered question sequence for a role. Language
// is an opaque hint passed through to the backend.
type Generator interface {
	Generate(ctx context.Context, role, language string, count int) ([]string, error)
}

// NewGenerator selects a generator from config.
func NewGenerator(cfg config.QuestionsConfig, completer evaluate.Completer) (Generator, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockGenerator(), nil
	case "static":
		return NewStaticGenerator(), nil
	case "llm":
		if completer == nil {
			return nil, errors.New("llm question mode requires an evaluation backend")
		}
		return NewLLMGenerator(completer, cfg.MaxTokens), nil
	default:
		return nil, fmt.Errorf("unknown questions mode %q", cfg.Mode)
	}
}

// Introduction renders the greeting shown to the candidate before the
// first question.
func Introduction(role string, total int) string {
	return fmt.Sprintf(
		"Welcome to your %s interview. This interview consists of %d questions "+
			"tailored to the role. Take your time with each response, speak clearly, "+
			"and give concrete examples from your experience.", role, total)
}
