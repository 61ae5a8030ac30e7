package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"courier/internal/api"
)

const lastErrorWidth = 40

func buildQueueListRows(items []api.QueueItem) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			item.ID,
			item.TaskType,
			item.Priority,
			item.Status,
			fmt.Sprintf("%d/%d", item.AttemptCount, item.MaxAttempts),
			formatDisplayTime(item.CreatedAt),
			truncate(item.LastError, lastErrorWidth),
		})
	}
	return rows
}

func renderQueueItem(cmd *cobra.Command, item api.QueueItem) error {
	rows := [][]string{
		{"ID", item.ID},
		{"Task type", item.TaskType},
		{"Priority", fmt.Sprintf("%s (%d)", item.Priority, item.PriorityValue)},
		{"Status", item.Status},
		{"Attempts", fmt.Sprintf("%d/%d", item.AttemptCount, item.MaxAttempts)},
		{"Created", formatDisplayTime(item.CreatedAt)},
		{"Scheduled for", formatDisplayTime(item.ScheduledFor)},
	}
	optional := []struct{ label, value string }{
		{"Started", formatDisplayTime(item.StartedAt)},
		{"Completed", formatDisplayTime(item.CompletedAt)},
		{"Worker", item.WorkerID},
		{"User", item.UserID},
		{"Channel", item.ChannelID},
		{"Correlation", item.CorrelationID},
		{"Parent", item.ParentID},
		{"Last error", item.LastError},
	}
	for _, field := range optional {
		if strings.TrimSpace(field.value) != "" {
			rows = append(rows, []string{field.label, field.value})
		}
	}
	out := cmd.OutOrStdout()
	fmt.Fprint(out, renderTable([]string{"Field", "Value"}, rows, nil))

	payload, err := json.MarshalIndent(item.Payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	fmt.Fprintln(out, "Payload:")
	fmt.Fprintln(out, string(payload))
	return nil
}

func formatDisplayTime(value string) string {
	t := api.ParseQueueTime(value)
	if t.IsZero() {
		return value
	}
	return t.Local().Format(time.DateTime)
}

func truncate(value string, width int) string {
	value = strings.Join(strings.Fields(value), " ")
	runes := []rune(value)
	if len(runes) <= width {
		return value
	}
	return string(runes[:width-1]) + "…"
}
