package questions

import (
	"context"
	"fmt"
)

type mockGenerator struct{}

func NewMockGenerator() Generator { return &mockGenerator{} }

func (g *mockGenerator) Generate(_ context.Context, role, _ string, count int) ([]string, error) {
	out := make([]string, count)
	for i := range out {
		out[i] = fmt.Sprintf("[mock question %d for %s]", i+1, role)
	}
	return out, nil
}
