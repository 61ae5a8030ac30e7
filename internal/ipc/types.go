package ipc

import "courier/internal/api"

// StartRequest asks the daemon to start its worker pools.
type StartRequest struct{}

// StartResponse reports whether the pools started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest asks the daemon to drain its worker pools.
type StopRequest struct{}

// StopResponse confirms the pools stopped.
type StopResponse struct {
	Stopped bool   `json:"stopped"`
	Message string `json:"message,omitempty"`
}

// ShutdownRequest asks the daemon process to drain and exit.
type ShutdownRequest struct{}

// ShutdownResponse confirms the shutdown was accepted.
type ShutdownResponse struct {
	Accepted bool `json:"accepted"`
}

// StatusRequest requests daemon status.
type StatusRequest struct{}

// StatusResponse wraps the daemon status snapshot.
type StatusResponse struct {
	Status api.DaemonStatus `json:"status"`
}

// EnqueueRequest submits a new item.
type EnqueueRequest struct {
	Item api.EnqueueRequest `json:"item"`
}

// EnqueueResponse returns the created item identifier.
type EnqueueResponse struct {
	ID string `json:"id"`
}

// QueueListRequest filters queue listings.
type QueueListRequest struct {
	Statuses []string `json:"statuses"`
	TaskType string   `json:"taskType"`
	Limit    int      `json:"limit"`
}

// QueueListResponse contains matching items.
type QueueListResponse struct {
	Items []api.QueueItem `json:"items"`
}

// QueueStatsRequest requests per-status counts.
type QueueStatsRequest struct{}

// QueueStatsResponse contains per-status counts, zero-filled.
type QueueStatsResponse struct {
	Stats map[string]int `json:"stats"`
}

// QueueDescribeRequest selects a single item.
type QueueDescribeRequest struct {
	ID string `json:"id"`
}

// QueueDescribeResponse carries the item when found.
type QueueDescribeResponse struct {
	Found bool          `json:"found"`
	Item  api.QueueItem `json:"item"`
}

// QueueRetryRequest lists DEAD items to move back to QUEUED.
type QueueRetryRequest struct {
	IDs []string `json:"ids"`
}

// QueueRetryResponse reports per-item retry outcomes.
type QueueRetryResponse struct {
	Result api.RetryItemsResult `json:"result"`
}

// QueueRequeueStaleRequest overrides the stale window when TimeoutSeconds is set.
type QueueRequeueStaleRequest struct {
	TimeoutSeconds *int `json:"timeoutSeconds,omitempty"`
}

// QueueRequeueStaleResponse reports how many items were requeued.
type QueueRequeueStaleResponse struct {
	Requeued int64 `json:"requeued"`
}

// QueuePurgeRequest overrides the retention windows when set.
type QueuePurgeRequest struct {
	CompletedOlderThanHours *int `json:"completedOlderThanHours,omitempty"`
	DeadOlderThanDays       *int `json:"deadOlderThanDays,omitempty"`
}

// QueuePurgeResponse reports purge counts.
type QueuePurgeResponse struct {
	Result api.MaintenanceResult `json:"result"`
}

// LogTailRequest selects log lines. A negative Offset returns the last Limit lines.
type LogTailRequest struct {
	Offset     int64  `json:"offset"`
	Limit      int    `json:"limit"`
	Follow     bool   `json:"follow"`
	WaitMillis int    `json:"waitMillis"`
	Match      string `json:"match"`
}

// LogTailResponse carries lines and the offset to resume from.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// TestNotificationRequest triggers a test alert.
type TestNotificationRequest struct{}

// TestNotificationResponse reports the outcome of a test alert.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
