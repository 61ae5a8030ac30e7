package dispatch

import (
	"context"
	"strings"

	"courier/internal/queue"
)

func (d *Dispatcher) handleScheduledAction(ctx context.Context, payload map[string]any) Result {
	if d.actions == nil {
		return failure("scheduled_action: actions service not configured")
	}
	action := strings.TrimSpace(stringField(payload, "action"))
	if action == "" {
		return failure("scheduled_action: action required")
	}
	resp, err := d.actions.Execute(ctx, ActionRequest{
		Action:    action,
		UserID:    stringField(payload, queue.PayloadUserID),
		ChannelID: stringField(payload, queue.PayloadChannelID),
		Params:    paramsField(payload),
	})
	if err != nil {
		return failure("scheduled_action: execute %s: %v", action, err)
	}
	data := map[string]any{"action": action}
	for k, v := range resp.Data {
		data[k] = v
	}
	if resp.Message != "" {
		data["message"] = resp.Message
	}
	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = "action reported failure"
		}
		return Result{Success: false, Error: "scheduled_action: " + msg, Data: data}
	}
	return success(data)
}
