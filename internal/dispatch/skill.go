package dispatch

import (
	"context"
	"strings"

	"courier/internal/queue"
)

func (d *Dispatcher) handleSkillInvocation(ctx context.Context, payload map[string]any) Result {
	intent := strings.TrimSpace(stringField(payload, "intent"))
	if intent == "" {
		return failure("skill_invocation: intent required")
	}
	return d.invokeSkill(ctx, "skill_invocation", SkillRequest{
		Intent:    intent,
		UserID:    stringField(payload, queue.PayloadUserID),
		ChannelID: stringField(payload, queue.PayloadChannelID),
		Params:    paramsField(payload),
	})
}

func (d *Dispatcher) invokeSkill(ctx context.Context, op string, req SkillRequest) Result {
	if d.skills == nil {
		return failure("%s: skills service not configured", op)
	}
	resp, err := d.skills.Invoke(ctx, req)
	if err != nil {
		return failure("%s: invoke %s: %v", op, req.Intent, err)
	}
	data := map[string]any{"intent": req.Intent}
	for k, v := range resp.Data {
		data[k] = v
	}
	if resp.Message != "" {
		data["message"] = resp.Message
	}
	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = "skill reported failure"
		}
		return Result{Success: false, Error: op + ": " + msg, Data: data}
	}
	return success(data)
}
