package queue

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Record is the plain map form of an Item exchanged with stores and outer
// surfaces. Times are time.Time (or nil when unset); FromRecord also accepts
// the string and numeric encodings produced by JSON and Redis hashes.
type Record map[string]any

// Record field names.
const (
	FieldID            = "id"
	FieldPriority      = "priority"
	FieldStatus        = "status"
	FieldTaskType      = "task_type"
	FieldPayload       = "payload"
	FieldAttemptCount  = "attempt_count"
	FieldMaxAttempts   = "max_attempts"
	FieldLastError     = "last_error"
	FieldWorkerID      = "worker_id"
	FieldCreatedAt     = "created_at"
	FieldScheduledFor  = "scheduled_for"
	FieldStartedAt     = "started_at"
	FieldCompletedAt   = "completed_at"
	FieldCorrelationID = "correlation_id"
	FieldParentID      = "parent_id"
	FieldUserID        = "user_id"
	FieldChannelID     = "channel_id"
)

// TimeLayout is a fixed-width UTC layout so stored timestamps sort lexically.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses TimeLayout or any RFC3339 variant.
func ParseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time")
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// Record converts the item into its plain map form.
func (i *Item) Record() Record {
	payload := make(map[string]any, len(i.Payload))
	for k, v := range i.Payload {
		payload[k] = v
	}
	rec := Record{
		FieldID:            i.ID,
		FieldPriority:      int(i.Priority),
		FieldStatus:        string(i.Status),
		FieldTaskType:      string(i.TaskType),
		FieldPayload:       payload,
		FieldAttemptCount:  i.AttemptCount,
		FieldMaxAttempts:   i.MaxAttempts,
		FieldLastError:     i.LastError,
		FieldWorkerID:      i.WorkerID,
		FieldCreatedAt:     i.CreatedAt.UTC(),
		FieldScheduledFor:  i.ScheduledFor.UTC(),
		FieldStartedAt:     nil,
		FieldCompletedAt:   nil,
		FieldCorrelationID: i.CorrelationID,
		FieldParentID:      i.ParentID,
		FieldUserID:        i.UserID,
		FieldChannelID:     i.ChannelID,
	}
	if i.StartedAt != nil {
		rec[FieldStartedAt] = i.StartedAt.UTC()
	}
	if i.CompletedAt != nil {
		rec[FieldCompletedAt] = i.CompletedAt.UTC()
	}
	return rec
}

// FromRecord rebuilds an Item from its plain map form. Missing optional
// fields are left zero; malformed values are reported.
func FromRecord(rec Record) (*Item, error) {
	item := &Item{}
	var err error
	if item.ID, err = recordString(rec, FieldID); err != nil {
		return nil, err
	}
	priority, err := recordInt(rec, FieldPriority)
	if err != nil {
		return nil, err
	}
	item.Priority = Priority(priority)
	status, err := recordString(rec, FieldStatus)
	if err != nil {
		return nil, err
	}
	item.Status = Status(status)
	taskType, err := recordString(rec, FieldTaskType)
	if err != nil {
		return nil, err
	}
	item.TaskType = TaskType(taskType)
	if item.Payload, err = recordPayload(rec[FieldPayload]); err != nil {
		return nil, err
	}
	if item.AttemptCount, err = recordInt(rec, FieldAttemptCount); err != nil {
		return nil, err
	}
	if item.MaxAttempts, err = recordInt(rec, FieldMaxAttempts); err != nil {
		return nil, err
	}
	for field, dst := range map[string]*string{
		FieldLastError:     &item.LastError,
		FieldWorkerID:      &item.WorkerID,
		FieldCorrelationID: &item.CorrelationID,
		FieldParentID:      &item.ParentID,
		FieldUserID:        &item.UserID,
		FieldChannelID:     &item.ChannelID,
	} {
		if *dst, err = recordString(rec, field); err != nil {
			return nil, err
		}
	}
	created, err := recordTime(rec, FieldCreatedAt)
	if err != nil {
		return nil, err
	}
	if created != nil {
		item.CreatedAt = *created
	}
	scheduled, err := recordTime(rec, FieldScheduledFor)
	if err != nil {
		return nil, err
	}
	if scheduled != nil {
		item.ScheduledFor = *scheduled
	}
	if item.StartedAt, err = recordTime(rec, FieldStartedAt); err != nil {
		return nil, err
	}
	if item.CompletedAt, err = recordTime(rec, FieldCompletedAt); err != nil {
		return nil, err
	}
	return item, nil
}

func recordString(rec Record, field string) (string, error) {
	switch v := rec[field].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return "", fmt.Errorf("record field %s: unexpected type %T", field, v)
	}
}

func recordInt(rec Record, field string) (int, error) {
	switch v := rec[field].(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case Priority:
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("record field %s: %w", field, err)
		}
		return int(n), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("record field %s: %w", field, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("record field %s: unexpected type %T", field, v)
	}
}

func recordTime(rec Record, field string) (*time.Time, error) {
	switch v := rec[field].(type) {
	case nil:
		return nil, nil
	case time.Time:
		if v.IsZero() {
			return nil, nil
		}
		t := v.UTC()
		return &t, nil
	case *time.Time:
		if v == nil || v.IsZero() {
			return nil, nil
		}
		t := v.UTC()
		return &t, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		t, err := ParseTime(v)
		if err != nil {
			return nil, fmt.Errorf("record field %s: %w", field, err)
		}
		return &t, nil
	default:
		return nil, fmt.Errorf("record field %s: unexpected type %T", field, v)
	}
}

func recordPayload(value any) (map[string]any, error) {
	switch v := value.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		cp := make(map[string]any, len(v))
		for k, val := range v {
			cp[k] = val
		}
		return cp, nil
	case string:
		return DecodePayload([]byte(v))
	case []byte:
		return DecodePayload(v)
	default:
		return nil, fmt.Errorf("record field %s: unexpected type %T", FieldPayload, v)
	}
}

// EncodePayload serializes a payload as a JSON object.
func EncodePayload(payload map[string]any) ([]byte, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}

// DecodePayload parses a JSON object; empty input yields an empty map.
func DecodePayload(data []byte) (map[string]any, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return map[string]any{}, nil
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return payload, nil
}
