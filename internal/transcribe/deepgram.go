package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/hirewire/interview-core/internal/config"
)

type deepgramProvider struct {
	name     string
	endpoint string
	apiKey   string
	model    string
	language string
	client   *http.Client
}

// NewDeepgramProvider builds a provider for the Deepgram pre-recorded
// listen API. The media reference is a path to the recorded audio file.
func NewDeepgramProvider(cfg config.ProviderConfig) Provider {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://api.deepgram.com/v1/listen"
	}
	model := cfg.Model
	if model == "" {
		model = "nova-2"
	}
	return &deepgramProvider{
		name:     cfg.Name,
		endpoint: endpoint,
		apiKey:   cfg.APIKey,
		model:    model,
		language: cfg.Language,
		client:   &http.Client{},
	}
}

func (p *deepgramProvider) Name() string { return p.name }

func (p *deepgramProvider) TranscribeOne(ctx context.Context, mediaRef string) (Result, error) {
	data, err := os.ReadFile(mediaRef)
	if err != nil {
		return Result{}, fmt.Errorf("read media: %w", err)
	}

	query := url.Values{}
	query.Set("model", p.model)
	query.Set("smart_format", "true")
	if p.language != "" {
		query.Set("language", p.language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.endpoint+"?"+query.Encode(), bytes.NewReader(data))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("deepgram request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("deepgram status %d: %s", resp.StatusCode, body)
	}

	var parsed struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string `json:"transcript"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Result{}, fmt.Errorf("decode deepgram response: %w", err)
	}

	if len(parsed.Results.Channels) == 0 || len(parsed.Results.Channels[0].Alternatives) == 0 {
		return Result{Empty: true}, nil
	}
	text := parsed.Results.Channels[0].Alternatives[0].Transcript
	if strings.TrimSpace(text) == "" {
		return Result{Empty: true}, nil
	}
	return Result{Text: text}, nil
}
