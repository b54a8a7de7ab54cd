package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/hirewire/interview-core/internal/config"
)

type whisperProvider struct {
	name     string
	endpoint string
	apiKey   string
	model    string
	language string
	client   *http.Client
}

// NewWhisperProvider builds a provider for the OpenAI audio
// transcriptions endpoint. The media reference is a path to the recorded
// audio file.
func NewWhisperProvider(cfg config.ProviderConfig) Provider {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1/audio/transcriptions"
	}
	model := cfg.Model
	if model == "" {
		model = "whisper-1"
	}
	return &whisperProvider{
		name:     cfg.Name,
		endpoint: endpoint,
		apiKey:   cfg.APIKey,
		model:    model,
		language: cfg.Language,
		client:   &http.Client{},
	}
}

func (p *whisperProvider) Name() string { return p.name }

func (p *whisperProvider) TranscribeOne(ctx context.Context, mediaRef string) (Result, error) {
	f, err := os.Open(mediaRef)
	if err != nil {
		return Result{}, fmt.Errorf("open media: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("model", p.model); err != nil {
		return Result{}, err
	}
	if p.language != "" {
		if err := mw.WriteField("language", p.language); err != nil {
			return Result{}, err
		}
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(mediaRef))
	if err != nil {
		return Result{}, err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return Result{}, err
	}
	if err := mw.Close(); err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, &body)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("whisper request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return Result{}, fmt.Errorf("whisper status %d: %s", resp.StatusCode, b)
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{}, fmt.Errorf("decode whisper response: %w", err)
	}
	if strings.TrimSpace(parsed.Text) == "" {
		return Result{Empty: true}, nil
	}
	return Result{Text: parsed.Text}, nil
}
