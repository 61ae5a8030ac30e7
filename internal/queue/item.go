package queue

import (
	"strconv"
	"strings"
	"time"
)

// Priority orders items; lower values are more urgent.
type Priority int

const (
	PriorityInteractive     Priority = 0
	PriorityNearInteractive Priority = 1
	PriorityScheduled       Priority = 2
	PriorityBulk            Priority = 3
)

var priorityNames = map[Priority]string{
	PriorityInteractive:     "interactive",
	PriorityNearInteractive: "near_interactive",
	PriorityScheduled:       "scheduled",
	PriorityBulk:            "bulk",
}

// Valid reports whether p is one of the four defined bands.
func (p Priority) Valid() bool {
	return p >= PriorityInteractive && p <= PriorityBulk
}

func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return strconv.Itoa(int(p))
}

// ParsePriority accepts either a band name or its numeric value.
func ParsePriority(value string) (Priority, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(normalized); err == nil {
		p := Priority(n)
		return p, p.Valid()
	}
	normalized = strings.ReplaceAll(normalized, "-", "_")
	for p, name := range priorityNames {
		if name == normalized {
			return p, true
		}
	}
	return 0, false
}

// Band is the inclusive priority range served by one worker pool.
type Band struct {
	Min Priority
	Max Priority
}

var (
	InteractiveBand = Band{Min: PriorityInteractive, Max: PriorityNearInteractive}
	BackgroundBand  = Band{Min: PriorityScheduled, Max: PriorityBulk}
)

// Contains reports whether p falls inside the band.
func (b Band) Contains(p Priority) bool {
	return p >= b.Min && p <= b.Max
}

func (b Band) String() string {
	return b.Min.String() + ".." + b.Max.String()
}

// Status represents the lifecycle of a queue item.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	// StatusFailed is transient: Fail resolves it to queued or dead before persisting.
	StatusFailed Status = "failed"
	StatusDead   Status = "dead"
)

var allStatuses = []Status{
	StatusQueued,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusDead,
}

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// Terminal reports whether no further transition can occur.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusDead
}

// TaskType is the closed set of work categories the dispatcher routes.
type TaskType string

const (
	TaskMessageReply    TaskType = "message_reply"
	TaskSkillInvocation TaskType = "skill_invocation"
	TaskScheduledAction TaskType = "scheduled_action"
	TaskBulkIngestion   TaskType = "bulk_ingestion"
)

var allTaskTypes = []TaskType{
	TaskMessageReply,
	TaskSkillInvocation,
	TaskScheduledAction,
	TaskBulkIngestion,
}

// AllTaskTypes returns the known task types.
func AllTaskTypes() []TaskType {
	cp := make([]TaskType, len(allTaskTypes))
	copy(cp, allTaskTypes)
	return cp
}

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	for _, known := range allTaskTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseTaskType converts a string into a known TaskType.
func ParseTaskType(value string) (TaskType, bool) {
	t := TaskType(strings.ToLower(strings.TrimSpace(value)))
	return t, t.Valid()
}

// Item is the unit of work persisted by a Store.
type Item struct {
	ID            string
	Priority      Priority
	Status        Status
	TaskType      TaskType
	Payload       map[string]any
	AttemptCount  int
	MaxAttempts   int
	LastError     string
	WorkerID      string
	CreatedAt     time.Time
	ScheduledFor  time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
	CorrelationID string
	ParentID      string
	UserID        string
	ChannelID     string
}

// Spec carries producer input for NewItem.
type Spec struct {
	ID            string
	TaskType      TaskType
	Priority      Priority
	Payload       map[string]any
	MaxAttempts   int
	ScheduledFor  time.Time
	UserID        string
	ChannelID     string
	CorrelationID string
	ParentID      string
}

// Payload keys mirrored from the producer identity.
const (
	PayloadUserID    = "user_id"
	PayloadChannelID = "channel_id"
)

// NewItem builds a QUEUED item and validates it. A zero ScheduledFor means
// immediately eligible; values before now are clamped to now.
func NewItem(spec Spec, now time.Time) (*Item, error) {
	now = now.UTC()
	id := strings.TrimSpace(spec.ID)
	if id == "" {
		id = NewID(now)
	}
	scheduled := spec.ScheduledFor.UTC()
	if spec.ScheduledFor.IsZero() || scheduled.Before(now) {
		scheduled = now
	}
	payload := make(map[string]any, len(spec.Payload)+2)
	for k, v := range spec.Payload {
		payload[k] = v
	}
	userID := strings.TrimSpace(spec.UserID)
	channelID := strings.TrimSpace(spec.ChannelID)
	if _, ok := payload[PayloadUserID]; !ok && userID != "" {
		payload[PayloadUserID] = userID
	}
	if _, ok := payload[PayloadChannelID]; !ok && channelID != "" {
		payload[PayloadChannelID] = channelID
	}

	item := &Item{
		ID:            id,
		Priority:      spec.Priority,
		Status:        StatusQueued,
		TaskType:      spec.TaskType,
		Payload:       payload,
		MaxAttempts:   spec.MaxAttempts,
		CreatedAt:     now,
		ScheduledFor:  scheduled,
		CorrelationID: strings.TrimSpace(spec.CorrelationID),
		ParentID:      strings.TrimSpace(spec.ParentID),
		UserID:        userID,
		ChannelID:     channelID,
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}
	return item, nil
}

// Validate checks the lifecycle invariants.
func (i *Item) Validate() error {
	if i == nil {
		return invalidf("nil item")
	}
	if strings.TrimSpace(i.ID) == "" {
		return invalidf("missing id")
	}
	if !i.Priority.Valid() {
		return invalidf("priority %d outside bands %d..%d", i.Priority, PriorityInteractive, PriorityBulk)
	}
	if !i.TaskType.Valid() {
		return invalidf("unknown task type %q", i.TaskType)
	}
	if i.MaxAttempts < 1 {
		return invalidf("max_attempts must be at least 1, got %d", i.MaxAttempts)
	}
	if i.AttemptCount < 0 {
		return invalidf("attempt_count must not be negative")
	}
	if _, ok := ParseStatus(string(i.Status)); !ok {
		return invalidf("unknown status %q", i.Status)
	}
	if i.Status == StatusFailed {
		return invalidf("failed status is never persisted")
	}
	if !i.Status.Terminal() && i.AttemptCount > i.MaxAttempts {
		return invalidf("attempt_count %d exceeds max_attempts %d", i.AttemptCount, i.MaxAttempts)
	}
	if i.CreatedAt.IsZero() {
		return invalidf("missing created_at")
	}
	if i.ScheduledFor.Before(i.CreatedAt) {
		return invalidf("scheduled_for before created_at")
	}
	return nil
}

// NormalizeForEnqueue prepares an item for insertion: it forces the QUEUED
// status, clears claim fields, and clamps scheduled_for to created_at.
func (i *Item) NormalizeForEnqueue(now time.Time) {
	if i.CreatedAt.IsZero() {
		i.CreatedAt = now.UTC()
	}
	i.CreatedAt = i.CreatedAt.UTC()
	if i.ScheduledFor.IsZero() || i.ScheduledFor.Before(i.CreatedAt) {
		i.ScheduledFor = i.CreatedAt
	}
	i.ScheduledFor = i.ScheduledFor.UTC()
	if strings.TrimSpace(i.ID) == "" {
		i.ID = NewID(i.CreatedAt)
	}
	if i.Payload == nil {
		i.Payload = map[string]any{}
	}
	i.Status = StatusQueued
	i.AttemptCount = 0
	i.WorkerID = ""
	i.StartedAt = nil
	i.CompletedAt = nil
}

// Eligible reports whether the item may be claimed at now.
func (i *Item) Eligible(now time.Time) bool {
	return i.Status == StatusQueued && !i.ScheduledFor.After(now)
}

// RetriesRemaining reports whether another failure would requeue rather than dead-letter.
func (i *Item) RetriesRemaining() bool {
	return i.AttemptCount < i.MaxAttempts
}

// Clone returns a deep-enough copy for callers that mutate items.
func (i *Item) Clone() *Item {
	if i == nil {
		return nil
	}
	cp := *i
	if i.Payload != nil {
		cp.Payload = make(map[string]any, len(i.Payload))
		for k, v := range i.Payload {
			cp.Payload[k] = v
		}
	}
	if i.StartedAt != nil {
		t := *i.StartedAt
		cp.StartedAt = &t
	}
	if i.CompletedAt != nil {
		t := *i.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
