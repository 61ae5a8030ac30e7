package dispatch

import (
	"context"
	"time"
)

// Message is a chat message as seen by the delivery gateway.
type Message struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageDelivery fetches inbound messages and delivers replies.
type MessageDelivery interface {
	Fetch(ctx context.Context, channelID, messageID string) (Message, error)
	Send(ctx context.Context, channelID, content string) (string, error)
	Reply(ctx context.Context, channelID, messageID, content string) (string, error)
	MaxMessageLength() int
}

// SkillRequest asks the skills service to run a named intent.
type SkillRequest struct {
	Intent    string         `json:"intent"`
	UserID    string         `json:"user_id"`
	ChannelID string         `json:"channel_id,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
}

// SkillResponse is the skills service's verdict.
type SkillResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// Skills executes intents.
type Skills interface {
	Invoke(ctx context.Context, req SkillRequest) (SkillResponse, error)
}

// ActionRequest asks the actions service to run a scheduled action.
type ActionRequest struct {
	Action    string         `json:"action"`
	UserID    string         `json:"user_id"`
	ChannelID string         `json:"channel_id,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
}

// ActionResponse mirrors SkillResponse for scheduled actions.
type ActionResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// Actions executes scheduled actions.
type Actions interface {
	Execute(ctx context.Context, req ActionRequest) (ActionResponse, error)
}

// Turn is one entry of conversation history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// GenerateRequest is the input to a reply generator.
type GenerateRequest struct {
	UserID    string
	ChannelID string
	Prompt    string
	History   []Turn
}

// Generator produces reply text.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// ConversationStore returns recent history for a channel, oldest first.
type ConversationStore interface {
	History(ctx context.Context, channelID string, limit int) ([]Turn, error)
}
