package dispatch

import (
	"context"
	"fmt"
	"strings"

	"courier/internal/logging"
	"courier/internal/queue"
)

func (d *Dispatcher) handleMessageReply(ctx context.Context, payload map[string]any) Result {
	if d.delivery == nil {
		return failure("message_reply: message delivery not configured")
	}
	if d.generator == nil {
		return failure("message_reply: generator not configured")
	}
	channelID := strings.TrimSpace(stringField(payload, queue.PayloadChannelID))
	if channelID == "" {
		return failure("message_reply: channel_id required")
	}
	userID := stringField(payload, queue.PayloadUserID)
	messageID := strings.TrimSpace(stringField(payload, "message_id"))

	prompt := strings.TrimSpace(stringField(payload, "content"))
	if prompt == "" && messageID != "" {
		msg, err := d.delivery.Fetch(ctx, channelID, messageID)
		if err != nil {
			return failure("message_reply: fetch message %s: %v", messageID, err)
		}
		prompt = strings.TrimSpace(msg.Content)
		if userID == "" {
			userID = msg.AuthorID
		}
	}
	if prompt == "" {
		return failure("message_reply: no content to reply to")
	}

	history := d.loadHistory(ctx, channelID)
	reply, err := d.generator.Generate(ctx, GenerateRequest{
		UserID:    userID,
		ChannelID: channelID,
		Prompt:    prompt,
		History:   history,
	})
	if err != nil {
		return failure("message_reply: generate: %v", err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return failure("message_reply: generator returned empty reply")
	}

	parts := splitMessage(reply, d.delivery.MaxMessageLength())
	ids := make([]string, 0, len(parts))
	for i, part := range parts {
		// Process has already reported a timeout or cancellation; the item
		// will be retried, so sending more parts would duplicate the reply.
		if err := ctx.Err(); err != nil {
			return Result{
				Success: false,
				Error:   fmt.Sprintf("message_reply: stopped before part %d/%d: %v", i+1, len(parts), err),
				Data:    map[string]any{"message_ids": ids, "parts": len(parts)},
			}
		}
		var (
			id  string
			err error
		)
		if i == 0 && messageID != "" {
			id, err = d.delivery.Reply(ctx, channelID, messageID, part)
		} else {
			id, err = d.delivery.Send(ctx, channelID, part)
		}
		if err != nil {
			return Result{
				Success: false,
				Error:   fmt.Sprintf("message_reply: deliver part %d/%d: %v", i+1, len(parts), err),
				Data:    map[string]any{"message_ids": ids, "parts": len(parts)},
			}
		}
		ids = append(ids, id)
	}

	d.rememberExchange(channelID, history, prompt, reply)
	return success(map[string]any{
		"message_ids": ids,
		"parts":       len(parts),
		"channel_id":  channelID,
	})
}

// loadHistory returns cached history for the channel, falling back to the
// conversation store. Lookup failures degrade to an empty history.
func (d *Dispatcher) loadHistory(ctx context.Context, channelID string) []Turn {
	if d.history != nil {
		if item := d.history.Get(channelID); item != nil {
			return item.Value()
		}
	}
	if d.conversations == nil {
		return nil
	}
	turns, err := d.conversations.History(ctx, channelID, d.historyLimit)
	if err != nil {
		logging.WarnWithContext(
			logging.WithContext(ctx, d.logger),
			"conversation history unavailable",
			"history_lookup_failed",
			logging.String("channel_id", channelID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the gateway conversation endpoint"),
			logging.String(logging.FieldImpact, "reply generated without prior context"),
		)
		return nil
	}
	turns = trimHistory(turns, d.historyLimit)
	if d.history != nil {
		d.history.Set(channelID, turns, 0)
	}
	return turns
}

func (d *Dispatcher) rememberExchange(channelID string, history []Turn, prompt, reply string) {
	if d.history == nil {
		return
	}
	next := make([]Turn, 0, len(history)+2)
	next = append(next, history...)
	next = append(next, Turn{Role: RoleUser, Content: prompt}, Turn{Role: RoleAssistant, Content: reply})
	d.history.Set(channelID, trimHistory(next, d.historyLimit), 0)
}

func trimHistory(turns []Turn, limit int) []Turn {
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}
