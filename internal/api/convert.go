package api

import (
	"time"

	"courier/internal/orchestrator"
	"courier/internal/preflight"
	"courier/internal/queue"
)

// FromQueueItem converts a queue record to its API representation.
func FromQueueItem(item *queue.Item) QueueItem {
	if item == nil {
		return QueueItem{}
	}
	dto := QueueItem{
		ID:            item.ID,
		TaskType:      string(item.TaskType),
		Priority:      item.Priority.String(),
		PriorityValue: int(item.Priority),
		Status:        string(item.Status),
		AttemptCount:  item.AttemptCount,
		MaxAttempts:   item.MaxAttempts,
		LastError:     item.LastError,
		WorkerID:      item.WorkerID,
		CreatedAt:     FormatTime(item.CreatedAt),
		ScheduledFor:  FormatTime(item.ScheduledFor),
		CorrelationID: item.CorrelationID,
		ParentID:      item.ParentID,
		UserID:        item.UserID,
		ChannelID:     item.ChannelID,
		Payload:       item.Payload,
	}
	if item.StartedAt != nil {
		dto.StartedAt = FormatTime(*item.StartedAt)
	}
	if item.CompletedAt != nil {
		dto.CompletedAt = FormatTime(*item.CompletedAt)
	}
	return dto
}

// FromQueueItems converts a slice of queue records into API DTOs.
func FromQueueItems(items []*queue.Item) []QueueItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]QueueItem, 0, len(items))
	for _, item := range items {
		out = append(out, FromQueueItem(item))
	}
	return out
}

// FromOrchestratorStatus converts an orchestrator snapshot to API payload.
func FromOrchestratorStatus(status orchestrator.Status) QueueStatus {
	return QueueStatus{
		State:            string(status.State),
		Running:          status.Running,
		Draining:         status.Draining,
		Workers:          status.Workers,
		Counts:           MergeQueueStats(status.StatusCounts),
		LastError:        status.LastError,
		LastHousekeeping: FormatTime(status.LastHousekeeping),
		StaleRequeued:    status.StaleRequeued,
	}
}

// FromPreflight converts preflight results to API payload.
func FromPreflight(results []preflight.Result) []CheckStatus {
	if len(results) == 0 {
		return nil
	}
	out := make([]CheckStatus, 0, len(results))
	for _, r := range results {
		out = append(out, CheckStatus{Name: r.Name, Passed: r.Passed, Optional: r.Optional, Detail: r.Detail})
	}
	return out
}

// MergeQueueStats produces a string-keyed representation of queue stats with
// every known status present.
func MergeQueueStats(stats map[queue.Status]int) map[string]int {
	out := make(map[string]int, len(stats))
	for _, status := range queue.AllStatuses() {
		out[string(status)] = 0
	}
	for status, count := range stats {
		out[string(status)] = count
	}
	return out
}

// FormatTime converts a time to RFC3339 or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
