package gemini

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"courier/internal/dispatch"
	"courier/internal/services"
)

const (
	roleUser  = "user"
	roleModel = "model"
)

// ErrBlocked is returned when Gemini withholds a reply for safety reasons.
var ErrBlocked = errors.New("reply blocked by safety filter")

// Config holds the Gemini settings.
type Config struct {
	APIKey         string
	Model          string
	SystemPrompt   string
	TimeoutSeconds int
}

// Generator produces replies with a Gemini model.
type Generator struct {
	client       *genai.Client
	model        string
	systemPrompt string
}

// New constructs a Generator. The genai client is created eagerly so a bad key
// or model surfaces at daemon start.
func New(ctx context.Context, cfg Config) (*Generator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "gemini", "init", "api key required", nil)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "gemini", "init", "model required", nil)
	}
	clientConfig := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.TimeoutSeconds > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "gemini", "init", "create client", err)
	}
	return &Generator{
		client:       client,
		model:        strings.TrimSpace(cfg.Model),
		systemPrompt: strings.TrimSpace(cfg.SystemPrompt),
	}, nil
}

// Generate satisfies dispatch.Generator.
func (g *Generator) Generate(ctx context.Context, req dispatch.GenerateRequest) (string, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", services.Wrap(services.ErrValidation, "gemini", "generate", "prompt required", nil)
	}
	var config *genai.GenerateContentConfig
	if g.systemPrompt != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: textContent(roleUser, g.systemPrompt),
		}
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, buildContents(req.History, prompt), config)
	if err != nil {
		return "", services.Wrap(services.ErrExternalService, "gemini", "generate", "generate content", err)
	}
	text, err := replyText(resp)
	if err != nil {
		return "", services.Wrap(services.ErrExternalService, "gemini", "generate", "read reply", err)
	}
	return text, nil
}

func buildContents(history []dispatch.Turn, prompt string) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, turn := range history {
		text := strings.TrimSpace(turn.Content)
		if text == "" {
			continue
		}
		role := roleUser
		if turn.Role == dispatch.RoleAssistant {
			role = roleModel
		}
		contents = append(contents, textContent(role, text))
	}
	return append(contents, textContent(roleUser, prompt))
}

func textContent(role, text string) *genai.Content {
	return &genai.Content{Role: role, Parts: []*genai.Part{{Text: text}}}
}

func replyText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("no candidates in response")
	}
	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", ErrBlocked
	}
	if candidate.Content == nil {
		return "", errors.New("candidate has no content")
	}
	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", errors.New("empty reply")
	}
	return text, nil
}
