package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"courier/internal/config"
	"courier/internal/dispatch"
	"courier/internal/logging"
	"courier/internal/services/gateway"
	"courier/internal/services/gemini"
	"courier/internal/services/llm"
)

// BuildDispatcher wires the task dispatcher from configuration. Missing
// collaborators are left nil; their handlers then fail items with a clear
// message instead of blocking daemon start.
func BuildDispatcher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*dispatch.Dispatcher, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	opts := dispatch.Options{
		HistoryLimit: cfg.Gateway.HistoryLimit,
		ContextTTL:   time.Duration(cfg.Gateway.ContextTTLSeconds) * time.Second,
		Timeout:      time.Duration(cfg.Queue.HandlerTimeoutSeconds) * time.Second,
		Logger:       logger,
	}

	if strings.TrimSpace(cfg.Gateway.BaseURL) != "" {
		client, err := gateway.New(gateway.Config{
			BaseURL:          cfg.Gateway.BaseURL,
			Token:            cfg.Gateway.Token,
			MaxMessageLength: cfg.Gateway.MaxMessageLength,
			TimeoutSeconds:   cfg.Gateway.TimeoutSeconds,
		})
		if err != nil {
			return nil, fmt.Errorf("gateway client: %w", err)
		}
		opts.Delivery = client
		opts.Skills = client
		opts.Actions = client
		opts.Conversations = client
	} else {
		logging.WarnWithContext(logger, "gateway not configured", "gateway_unconfigured",
			logging.String(logging.FieldImpact, "message, skill, and action items will fail"),
			logging.String(logging.FieldErrorHint, "set gateway.base_url in config.toml"),
		)
	}

	generator, err := buildGenerator(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	if generator != nil {
		opts.Generator = generator
	} else {
		logging.WarnWithContext(logger, "reply generator not configured", "llm_unconfigured",
			logging.String("provider", cfg.LLM.Provider),
			logging.String(logging.FieldImpact, "message_reply items will fail"),
			logging.String(logging.FieldErrorHint, "set llm.api_key in config.toml"),
		)
	}
	return dispatch.New(opts), nil
}

func buildGenerator(ctx context.Context, cfg config.LLM) (dispatch.Generator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, nil
	}
	switch cfg.Provider {
	case config.ProviderGemini:
		generator, err := gemini.New(ctx, gemini.Config{
			APIKey:         cfg.APIKey,
			Model:          cfg.Model,
			SystemPrompt:   cfg.SystemPrompt,
			TimeoutSeconds: cfg.TimeoutSeconds,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini generator: %w", err)
		}
		return generator, nil
	default:
		return llm.NewClient(llm.Config{
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			Model:          cfg.Model,
			Title:          "courier",
			SystemPrompt:   cfg.SystemPrompt,
			TimeoutSeconds: cfg.TimeoutSeconds,
		}), nil
	}
}
