package transcribe

import (
	"context"
	"fmt"
	"strings"
)

type mockProvider struct {
	name string
}

// NewMockProvider returns a provider that fabricates transcripts from the
// media reference. References containing "silent" produce the empty-audio
// outcome so the full pipeline can be exercised without real speech.
func NewMockProvider(name string) Provider {
	return &mockProvider{name: name}
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) TranscribeOne(_ context.Context, mediaRef string) (Result, error) {
	if strings.Contains(mediaRef, "silent") {
		return Result{Empty: true}, nil
	}
	return Result{Text: fmt.Sprintf("[mock transcript for %s]", mediaRef)}, nil
}
