package evaluate

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type mockCompleter struct{}

// NewMockCompleter returns a backend that produces a schema-valid
// assessment derived from the prompt, for development and tests.
func NewMockCompleter() Completer { return &mockCompleter{} }

func (m *mockCompleter) Complete(ctx context.Context, req Request) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}

	missing := strings.Count(req.Prompt, "(no answer given)")
	score := 7 - 2*missing
	if score < 0 {
		score = 0
	}
	recommendation := "Hire"
	if missing > 0 {
		recommendation = "No Hire"
	}
	narrative := "All questions received substantive answers."
	if missing > 0 {
		narrative = fmt.Sprintf("%d question(s) received no answer, which weighs against the candidate.", missing)
	}

	var b strings.Builder
	b.WriteString("SCORES:\n")
	for _, skill := range DefaultSkills {
		fmt.Fprintf(&b, "%s: %d\n", skill, score)
	}
	fmt.Fprintf(&b, "RECOMMENDATION: %s\n", recommendation)
	fmt.Fprintf(&b, "NARRATIVE:\n%s\n", narrative)
	return b.String(), nil
}
