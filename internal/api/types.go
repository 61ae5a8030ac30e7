package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// QueueItem describes a queue entry in a transport-friendly format.
type QueueItem struct {
	ID            string         `json:"id"`
	TaskType      string         `json:"taskType"`
	Priority      string         `json:"priority"`
	PriorityValue int            `json:"priorityValue"`
	Status        string         `json:"status"`
	AttemptCount  int            `json:"attemptCount"`
	MaxAttempts   int            `json:"maxAttempts"`
	LastError     string         `json:"lastError,omitempty"`
	WorkerID      string         `json:"workerId,omitempty"`
	CreatedAt     string         `json:"createdAt,omitempty"`
	ScheduledFor  string         `json:"scheduledFor,omitempty"`
	StartedAt     string         `json:"startedAt,omitempty"`
	CompletedAt   string         `json:"completedAt,omitempty"`
	CorrelationID string         `json:"correlationId,omitempty"`
	ParentID      string         `json:"parentId,omitempty"`
	UserID        string         `json:"userId,omitempty"`
	ChannelID     string         `json:"channelId,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// QueueStatus summarizes orchestrator execution state.
type QueueStatus struct {
	State            string         `json:"state"`
	Running          bool           `json:"running"`
	Draining         bool           `json:"draining"`
	Workers          int            `json:"workers"`
	Counts           map[string]int `json:"counts"`
	LastError        string         `json:"lastError,omitempty"`
	LastHousekeeping string         `json:"lastHousekeeping,omitempty"`
	StaleRequeued    int64          `json:"staleRequeued"`
}

// CheckStatus mirrors a preflight check result.
type CheckStatus struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Optional bool   `json:"optional"`
	Detail   string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool          `json:"running"`
	PID          int           `json:"pid"`
	StoreBackend string        `json:"storeBackend"`
	QueueDBPath  string        `json:"queueDbPath,omitempty"`
	LockFilePath string        `json:"lockFilePath"`
	APIBind      string        `json:"apiBind,omitempty"`
	Queue        QueueStatus   `json:"queue"`
	Checks       []CheckStatus `json:"checks,omitempty"`
}

// QueueStatsResponse provides a normalized queue stats payload.
type QueueStatsResponse struct {
	Counts map[string]int `json:"counts"`
}

// QueueListResponse wraps a collection of queue items for API responses.
type QueueListResponse struct {
	Items []QueueItem `json:"items"`
}

// QueueItemResponse wraps a single queue item.
type QueueItemResponse struct {
	Item QueueItem `json:"item"`
}

// EnqueueResponse reports the id assigned to a new item.
type EnqueueResponse struct {
	ID string `json:"id"`
}

// MaintenanceResult reports the rows touched by an operator maintenance call.
type MaintenanceResult struct {
	Requeued        int64 `json:"requeued"`
	PurgedCompleted int64 `json:"purgedCompleted"`
	PurgedDead      int64 `json:"purgedDead"`
}

// ErrorResponse is the JSON body for failed HTTP requests.
type ErrorResponse struct {
	Error string `json:"error"`
}
