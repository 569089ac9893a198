// Package textgen writes reply text for comment actions.
package textgen

import (
	"context"
	"fmt"
	"strings"

	logx "karmabot/pkg/logx"
)

// Config selects and configures a generator.
type Config struct {
	Driver       string // "gemini" or "echo"
	APIKey       string
	Model        string
	SystemPrompt string
}

// Generator produces a reply for a post title seen in a community.
type Generator interface {
	GenerateReply(ctx context.Context, seed, community string) (string, error)
}

// New returns the configured generator. Gemini requires an API key.
func New(ctx context.Context, cfg Config, log logx.Logger) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "echo":
		return Echo{}, nil
	case "gemini":
		return NewGemini(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unknown textgen driver %q", cfg.Driver)
	}
}

// Echo replies with a comma followed by the first 50 characters of the seed.
type Echo struct{}

const echoSeedRunes = 50

func (Echo) GenerateReply(_ context.Context, seed, _ string) (string, error) {
	r := []rune(seed)
	if len(r) > echoSeedRunes {
		r = r[:echoSeedRunes]
	}
	return "," + string(r), nil
}
