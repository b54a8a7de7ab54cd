package transcribe

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hirewire/interview-core/internal/config"
	"github.com/mattn/go-shellwords"
)

// execProvider shells out to a local speech-to-text command. The media
// reference is a path to raw 16-bit little-endian PCM written by the
// capture collaborator; it is staged as a WAV file for the command.
type execProvider struct {
	name string
	cmd  []string
	cfg  config.ProviderConfig
	mu   sync.Mutex
}

type execResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

func NewExecProvider(cfg config.ProviderConfig) (Provider, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("command is empty")
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	return &execProvider{name: cfg.Name, cmd: args, cfg: cfg}, nil
}

func (p *execProvider) Name() string { return p.name }

func (p *execProvider) TranscribeOne(ctx context.Context, mediaRef string) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pcm, err := os.ReadFile(mediaRef)
	if err != nil {
		return Result{}, fmt.Errorf("read media: %w", err)
	}

	file, err := os.CreateTemp(os.TempDir(), "interview_stt_*.wav")
	if err != nil {
		return Result{}, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if err := writePCMToWav(file, pcm, p.cfg.SampleRate, p.cfg.Channels); err != nil {
		return Result{}, err
	}

	base := p.cmd[0]
	cmdArgs := append([]string{}, p.cmd[1:]...)
	cmdArgs = append(cmdArgs, "--audio", file.Name())
	if p.cfg.Model != "" {
		cmdArgs = append(cmdArgs, "--model", p.cfg.Model)
	}
	if p.cfg.Language != "" {
		cmdArgs = append(cmdArgs, "--language", p.cfg.Language)
	}

	command := exec.CommandContext(ctx, base, cmdArgs...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return Result{}, fmt.Errorf("stt command failed: %w: %s", err, stderr.String())
	}

	var resp execResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return Result{}, fmt.Errorf("decode stt response: %w", err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return Result{Empty: true}, nil
	}
	return Result{Text: resp.Text}, nil
}

func writePCMToWav(file *os.File, pcm []byte, sampleRate int, channels int) error {
	if len(pcm)%2 != 0 {
		return fmt.Errorf("pcm payload not aligned")
	}
	buffer := &audio.IntBuffer{Format: &audio.Format{NumChannels: channels, SampleRate: sampleRate}}
	samples := make([]int, len(pcm)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	buffer.Data = samples

	enc := wav.NewEncoder(file, sampleRate, 16, channels, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
