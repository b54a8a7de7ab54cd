package questions

import (
	"context"
	"fmt"
	"strings"
)

// staticGenerator serves questions from a fixed role-keyword bank. It
// never fails, which makes it the safe default when no model backend is
// configured.
type staticGenerator struct{}

func NewStaticGenerator() Generator { return &staticGenerator{} }

var generalBank = []string{
	"Tell me about your experience in %s roles and what attracted you to this field.",
	"Can you describe a challenging project you've worked on recently and how you approached it?",
	"How do you stay updated with the latest trends and technologies in your field?",
	"Tell me about a time when you had to work under pressure or tight deadlines. How did you manage it?",
	"Describe a situation where you had to collaborate with team members who had different opinions.",
	"What do you consider your greatest professional achievement so far, and why?",
	"How do you approach problem-solving when faced with a complex challenge?",
}

var roleBanks = map[string][]string{
	"engineer": {
		"Walk me through your development process from requirement analysis to deployment.",
		"How do you ensure code quality and maintainability in your projects?",
		"Describe a time when you had to debug a particularly difficult issue.",
		"What languages and frameworks do you prefer and why?",
	},
	"data": {
		"How do you approach data analysis for solving business problems?",
		"Describe a data project that had significant business impact.",
		"What tools do you use for data analysis and visualization?",
		"How do you handle missing or inconsistent data in your analysis?",
	},
	"manager": {
		"How do you prioritize features and make product decisions?",
		"Describe your experience with stakeholder management and communication.",
		"Tell me about a successful launch you've managed.",
		"How do you gather and incorporate user feedback?",
	},
	"marketing": {
		"How do you measure the success of your marketing campaigns?",
		"Describe a campaign you created that exceeded expectations.",
		"How do you stay current with digital marketing trends?",
		"What's your approach to targeting different customer segments?",
	},
}

func (g *staticGenerator) Generate(_ context.Context, role, _ string, count int) ([]string, error) {
	lowered := strings.ToLower(role)
	bank := make([]string, 0, len(generalBank)+4)
	for _, q := range generalBank {
		if strings.Contains(q, "%s") {
			bank = append(bank, fmt.Sprintf(q, role))
		} else {
			bank = append(bank, q)
		}
	}
	// ordered so roles matching several keywords pick a stable bank
	keywords := []struct{ keyword, bank string }{
		{"developer", "engineer"},
		{"engineer", "engineer"},
		{"scientist", "data"},
		{"data", "data"},
		{"product", "manager"},
		{"manager", "manager"},
		{"marketing", "marketing"},
	}
	for _, k := range keywords {
		if strings.Contains(lowered, k.keyword) {
			bank = append(bank, roleBanks[k.bank]...)
			break
		}
	}

	if count > len(bank) {
		count = len(bank)
	}
	return append([]string(nil), bank[:count]...), nil
}
