package evaluate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hirewire/interview-core/internal/config"
	"github.com/hirewire/interview-core/internal/session"
)

// DefaultSkills is the rubric scored for every session.
var DefaultSkills = []string{"Communication", "Technical", "Problem Solving"}

const systemPrompt = "You are a hiring evaluator. You score interview transcripts " +
	"against a fixed rubric and answer only in the exact format requested."

// Engine turns a session's transcript set into a structured report. It
// makes one completion call per session so cross-question context is
// preserved, and retries once with a stricter prompt when the output
// fails schema parsing.
type Engine struct {
	completer Completer
	cfg       config.EvaluationConfig
	skills    []string
	logger    *slog.Logger
	clock     func() time.Time
}

func NewEngine(cfg config.EvaluationConfig, completer Completer, logger *slog.Logger) *Engine {
	return &Engine{
		completer: completer,
		cfg:       cfg,
		skills:    DefaultSkills,
		logger:    logger.With(slog.String("component", "evaluate-engine")),
		clock:     time.Now,
	}
}

// Evaluate produces a report for the full question/transcript set. The
// backend is non-deterministic; only schema validity of the result is
// guaranteed, not score stability across calls.
func (e *Engine) Evaluate(ctx context.Context, role, language string, items []QA) (*session.Report, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("no transcripts to evaluate")
	}
	sorted := append([]QA(nil), items...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Ordinal < sorted[j].Ordinal })

	raw, err := e.complete(ctx, e.buildPrompt(role, language, sorted, false))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	parsed, parseErr := parseAssessment(raw, e.skills)
	if parseErr != nil {
		e.logger.Warn("model output failed schema parse, retrying with strict prompt",
			slog.String("error", parseErr.Error()))
		raw, err = e.complete(ctx, e.buildPrompt(role, language, sorted, true))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		parsed, parseErr = parseAssessment(raw, e.skills)
		if parseErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, parseErr)
		}
	}

	return &session.Report{
		SkillScores:    parsed.scores,
		Recommendation: parsed.recommendation,
		Narrative:      parsed.narrative,
		GeneratedFrom:  TranscriptDigest(sorted),
		GeneratedAt:    e.clock().UTC(),
	}, nil
}

func (e *Engine) complete(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, time.Duration(e.cfg.CallTimeoutMS)*time.Millisecond)
	defer cancel()
	return e.completer.Complete(callCtx, Request{
		Prompt:      prompt,
		System:      systemPrompt,
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
	})
}

func (e *Engine) buildPrompt(role, language string, items []QA, strict bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Evaluate a candidate interview for the role: %s\n", role)
	if language != "" {
		fmt.Fprintf(&b, "Interview language: %s\n", language)
	}
	b.WriteString("\n")
	for _, item := range items {
		fmt.Fprintf(&b, "Question %d: %s\n", item.Ordinal+1, item.Question)
		if item.Empty || strings.TrimSpace(item.Transcript) == "" {
			b.WriteString("Answer: (no answer given)\n\n")
		} else {
			fmt.Fprintf(&b, "Answer: %s\n\n", item.Transcript)
		}
	}
	b.WriteString("Respond in exactly this format:\n\nSCORES:\n")
	for _, skill := range e.skills {
		fmt.Fprintf(&b, "%s: <integer 0-10>\n", skill)
	}
	b.WriteString("RECOMMENDATION: <one of: Strong Hire, Hire, No Hire, Strong No Hire>\n")
	b.WriteString("NARRATIVE:\n<justification, a few sentences; mention any unanswered questions>\n")
	if strict {
		b.WriteString("\nYour previous reply did not match the format. Output ONLY the block above, ")
		b.WriteString("no markdown, no extra lines before SCORES:, every skill exactly once.\n")
	}
	return b.String()
}

// TranscriptDigest identifies the exact transcript set a report was
// derived from, for staleness detection.
func TranscriptDigest(items []QA) string {
	sorted := append([]QA(nil), items...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Ordinal < sorted[j].Ordinal })
	h := sha256.New()
	for _, item := range sorted {
		fmt.Fprintf(h, "%d\x1f%s\x1f%t\x1e", item.Ordinal, item.Transcript, item.Empty)
	}
	return hex.EncodeToString(h.Sum(nil))
}
