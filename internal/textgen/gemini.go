package textgen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	logx "karmabot/pkg/logx"
)

const (
	DefaultModel  = "gemini-2.5-flash"
	fallbackModel = "gemini-2.5-flash-lite"

	DefaultSystemPrompt = `You are a regular member of an online discussion community.
Write one short, friendly and relevant comment (one or two sentences) in reply to the post you are given.
Do not mention that you are automated. Do not use hashtags. Output only the comment text.`
)

// Gemini generates replies with the Gemini API.
type Gemini struct {
	models *genai.Models
	chain  []string
	system string
	log    logx.Logger
}

func NewGemini(ctx context.Context, cfg Config, log logx.Logger) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	chain := []string{model}
	if model != fallbackModel {
		chain = append(chain, fallbackModel)
	}
	system := strings.TrimSpace(cfg.SystemPrompt)
	if system == "" {
		system = DefaultSystemPrompt
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Gemini{models: client.Models, chain: chain, system: system, log: log}, nil
}

// GenerateReply asks each model in turn, moving on only when a model is
// rate limited or unavailable.
func (g *Gemini) GenerateReply(ctx context.Context, seed, community string) (string, error) {
	prompt := fmt.Sprintf("Community: r/%s\nPost title: %s\n\nWrite your comment.", community, seed)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: g.system}}},
	}

	var lastErr error
	for _, model := range g.chain {
		g.log.Debug("requesting reply", logx.String("model", model), logx.String("community", community))
		res, err := g.models.GenerateContent(ctx, model, genai.Text(prompt), cfg)
		if err != nil {
			if retryableWithNextModel(err) {
				g.log.Warn("model unavailable, trying next", logx.String("model", model), logx.Err(err))
				lastErr = err
				continue
			}
			return "", fmt.Errorf("gemini %s: %w", model, err)
		}
		if text := firstText(res); text != "" {
			return text, nil
		}
		lastErr = fmt.Errorf("gemini %s: empty response", model)
	}
	return "", lastErr
}

func firstText(res *genai.GenerateContentResponse) string {
	if res == nil {
		return ""
	}
	for _, c := range res.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		var b strings.Builder
		for _, p := range c.Content.Parts {
			if p != nil {
				b.WriteString(p.Text)
			}
		}
		if s := strings.TrimSpace(b.String()); s != "" {
			return s
		}
	}
	return ""
}

func retryableWithNextModel(err error) bool {
	s := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "rate limit", "exhausted", "404", "not found", "503", "unavailable"} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
