package sqlitestore

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
		payload       sql.NullString
		attemptCount  int
		maxAttempts   int
		lastError     sql.NullString
		workerID      sql.NullString
		createdRaw    string
		scheduledRaw  string
		startedRaw    sql.NullString
		completedRaw  sql.NullString
		correlationID sql.NullString
		parentID      sql.NullString
		userID        sql.NullString
		channelID     sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&priority,
		&status,
		&taskType,
		&payload,
		&attemptCount,
		&maxAttempts,
		&lastError,
		&workerID,
		&createdRaw,
		&scheduledRaw,
		&startedRaw,
		&completedRaw,
		&correlationID,
		&parentID,
		&userID,
		&channelID,
	); err != nil {
		return nil, err
	}

	return queue.FromRecord(queue.Record{
		queue.FieldID:            id,
		queue.FieldPriority:      priority,
		queue.FieldStatus:        status,
		queue.FieldTaskType:      taskType,
		queue.FieldPayload:       payload.String,
		queue.FieldAttemptCount:  attemptCount,
		queue.FieldMaxAttempts:   maxAttempts,
		queue.FieldLastError:     lastError.String,
		queue.FieldWorkerID:      workerID.String,
		queue.FieldCreatedAt:     createdRaw,
		queue.FieldScheduledFor:  scheduledRaw,
		queue.FieldStartedAt:     startedRaw.String,
		queue.FieldCompletedAt:   completedRaw.String,
		queue.FieldCorrelationID: correlationID.String,
		queue.FieldParentID:      parentID.String,
		queue.FieldUserID:        userID.String,
		queue.FieldChannelID:     channelID.String,
	})
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
	return queue.FormatTime(*value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
