package dispatch

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"courier/internal/queue"
)

func (d *Dispatcher) handleBulkIngestion(ctx context.Context, payload map[string]any) Result {
	intent, err := bulkIntent(stringField(payload, "source"), stringField(payload, "operation"))
	if err != nil {
		return failure("bulk_ingestion: %v", err)
	}
	params := make(map[string]any)
	for k, v := range paramsField(payload) {
		params[k] = v
	}
	if items, ok := payload["items"]; ok {
		params["items"] = items
	}
	return d.invokeSkill(ctx, "bulk_ingestion", SkillRequest{
		Intent:    intent,
		UserID:    stringField(payload, queue.PayloadUserID),
		ChannelID: stringField(payload, queue.PayloadChannelID),
		Params:    params,
	})
}

// bulkIntent builds the "{source}_{operation}" intent name.
func bulkIntent(source, operation string) (string, error) {
	source = normalizeIntentPart(source)
	operation = normalizeIntentPart(operation)
	switch {
	case source == "":
		return "", errors.New("source required")
	case operation == "":
		return "", errors.New("operation required")
	}
	return source + "_" + operation, nil
}

func normalizeIntentPart(value string) string {
	// Casers carry state; one per call keeps handlers goroutine-safe.
	value = cases.Lower(language.Und).String(strings.TrimSpace(value))
	return strings.Join(strings.Fields(value), "_")
}
