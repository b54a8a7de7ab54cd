package evaluate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

type execCompleter struct {
	cmd []string
	mu  sync.Mutex
}

type execCompletion struct {
	Content string `json:"content"`
}

// NewExecCompleter shells out to a local command that reads a JSON
// request on stdin and writes {"content": ...} on stdout.
func NewExecCompleter(command string) (Completer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse evaluation command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("evaluation command empty")
	}
	return &execCompleter{cmd: args}, nil
}

func (c *execCompleter) Complete(ctx context.Context, req Request) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload := map[string]any{
		"prompt":      req.Prompt,
		"system":      req.System,
		"max_tokens":  req.MaxTokens,
		"temperature": req.Temperature,
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	base := c.cmd[0]
	args := append([]string{}, c.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(input)
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("evaluation exec command failed: %w", err)
	}

	var resp execCompletion
	if err := json.Unmarshal(output, &resp); err != nil {
		return "", fmt.Errorf("decode evaluation exec response: %w", err)
	}
	return resp.Content, nil
}
