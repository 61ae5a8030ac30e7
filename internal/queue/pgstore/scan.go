package pgstore

import (
	"database/sql"
	"time"

	"courier/internal/queue"
)

const itemColumns = "id, priority, status, task_type, payload, attempt_count, max_attempts, last_error, worker_id, created_at, scheduled_for, started_at, completed_at, correlation_id, parent_id, user_id, channel_id"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*queue.Item, error) {
	var (
		id            string
		priority      int
		status        string
		taskType      string
		payload       []byte
		attemptCount  int
		maxAttempts   int
		lastError     sql.NullString
		workerID      sql.NullString
		createdAt     time.Time
		scheduledFor  time.Time
		startedAt     sql.NullTime
		completedAt   sql.NullTime
		correlationID sql.NullString
		parentID      sql.NullString
		userID        sql.NullString
		channelID     sql.NullString
	)
	if err := scanner.Scan(
		&id, &priority, &status, &taskType, &payload, &attemptCount, &maxAttempts,
		&lastError, &workerID, &createdAt, &scheduledFor, &startedAt, &completedAt,
		&correlationID, &parentID, &userID, &channelID,
	); err != nil {
		return nil, err
	}
	rec := queue.Record{
		queue.FieldID:            id,
		queue.FieldPriority:      priority,
		queue.FieldStatus:        status,
		queue.FieldTaskType:      taskType,
		queue.FieldPayload:       payload,
		queue.FieldAttemptCount:  attemptCount,
		queue.FieldMaxAttempts:   maxAttempts,
		queue.FieldLastError:     lastError.String,
		queue.FieldWorkerID:      workerID.String,
		queue.FieldCreatedAt:     createdAt,
		queue.FieldScheduledFor:  scheduledFor,
		queue.FieldCorrelationID: correlationID.String,
		queue.FieldParentID:      parentID.String,
		queue.FieldUserID:        userID.String,
		queue.FieldChannelID:     channelID.String,
	}
	if startedAt.Valid {
		rec[queue.FieldStartedAt] = startedAt.Time
	}
	if completedAt.Valid {
		rec[queue.FieldCompletedAt] = completedAt.Time
	}
	return queue.FromRecord(rec)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC()
}
