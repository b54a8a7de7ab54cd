package questions

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hirewire/interview-core/internal/evaluate"
)

// llmGenerator asks the language-model backend for a numbered question
// list. Any backend error or short reply surfaces ErrGenerationFailed so
// the caller can retry.
type llmGenerator struct {
	completer evaluate.Completer
	maxTokens int
}

func NewLLMGenerator(completer evaluate.Completer, maxTokens int) Generator {
	return &llmGenerator{completer: completer, maxTokens: maxTokens}
}

func (g *llmGenerator) Generate(ctx context.Context, role, language string, count int) ([]string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate %d interview questions for a %s position.\n", count, role)
	if language != "" {
		fmt.Fprintf(&b, "Write the questions in this language: %s\n", language)
	}
	b.WriteString("Each question should assess role-relevant skills and encourage detailed answers.\n")
	b.WriteString("Reply with a numbered list only, one question per line, no preamble.\n")

	raw, err := g.completer.Complete(ctx, evaluate.Request{
		Prompt:      b.String(),
		System:      "You write interview questions. Reply with a numbered list only.",
		MaxTokens:   g.maxTokens,
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	parsed := parseNumberedList(raw)
	if len(parsed) < count {
		return nil, fmt.Errorf("%w: got %d questions, wanted %d", ErrGenerationFailed, len(parsed), count)
	}
	return parsed[:count], nil
}

func parseNumberedList(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		number, rest, found := strings.Cut(trimmed, ".")
		if !found {
			continue
		}
		if _, err := strconv.Atoi(strings.TrimSpace(number)); err != nil {
			continue
		}
		question := strings.TrimSpace(rest)
		if len(question) < 10 {
			continue
		}
		out = append(out, question)
	}
	return out
}
