package evaluate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hirewire/interview-core/internal/session"
)

type assessment struct {
	scores         map[string]int
	recommendation session.Recommendation
	narrative      string
}

var recommendations = map[string]session.Recommendation{
	"strong hire":    session.StrongHire,
	"hire":           session.Hire,
	"no hire":        session.NoHire,
	"strong no hire": session.StrongNoHire,
}

// parseAssessment validates the semi-structured model reply against the
// fixed schema. Parsing is strict: a missing skill, an out-of-range or
// non-integer score, an unknown recommendation, or an empty narrative all
// fail the whole result. Nothing is coerced or clamped.
func parseAssessment(raw string, skills []string) (assessment, error) {
	out := assessment{scores: make(map[string]int, len(skills))}

	required := make(map[string]bool, len(skills))
	for _, skill := range skills {
		required[strings.ToLower(skill)] = true
	}
	canonical := make(map[string]string, len(skills))
	for _, skill := range skills {
		canonical[strings.ToLower(skill)] = skill
	}

	lines := strings.Split(raw, "\n")
	section := ""
	var narrative []string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.EqualFold(trimmed, "SCORES:"):
			section = "scores"
			continue
		case strings.HasPrefix(strings.ToUpper(trimmed), "RECOMMENDATION:"):
			value := strings.TrimSpace(trimmed[len("RECOMMENDATION:"):])
			rec, ok := recommendations[strings.ToLower(value)]
			if !ok {
				return assessment{}, fmt.Errorf("unrecognized recommendation %q", value)
			}
			if out.recommendation != "" {
				return assessment{}, fmt.Errorf("duplicate recommendation")
			}
			out.recommendation = rec
			section = ""
			continue
		case strings.EqualFold(trimmed, "NARRATIVE:"):
			section = "narrative"
			continue
		}

		switch section {
		case "scores":
			if trimmed == "" {
				continue
			}
			name, value, found := strings.Cut(trimmed, ":")
			if !found {
				return assessment{}, fmt.Errorf("unparseable score line %q", trimmed)
			}
			key := strings.ToLower(strings.TrimSpace(name))
			if !required[key] {
				return assessment{}, fmt.Errorf("unknown skill %q", strings.TrimSpace(name))
			}
			skill := canonical[key]
			if _, dup := out.scores[skill]; dup {
				return assessment{}, fmt.Errorf("duplicate score for %q", skill)
			}
			score, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				return assessment{}, fmt.Errorf("non-integer score for %q: %q", skill, strings.TrimSpace(value))
			}
			if score < 0 || score > 10 {
				return assessment{}, fmt.Errorf("score for %q out of range: %d", skill, score)
			}
			out.scores[skill] = score
		case "narrative":
			narrative = append(narrative, line)
		}
	}

	for _, skill := range skills {
		if _, ok := out.scores[skill]; !ok {
			return assessment{}, fmt.Errorf("missing score for %q", skill)
		}
	}
	if out.recommendation == "" {
		return assessment{}, fmt.Errorf("missing recommendation")
	}
	out.narrative = strings.TrimSpace(strings.Join(narrative, "\n"))
	if out.narrative == "" {
		return assessment{}, fmt.Errorf("missing narrative")
	}
	return out, nil
}
