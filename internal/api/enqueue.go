package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"courier/internal/orchestrator"
	"courier/internal/queue"
	"courier/internal/services"
)

// EnqueueRequest is the producer input accepted by the HTTP API and the
// control socket. Priority accepts a band name or its number; when empty the
// task type's default band is used.
type EnqueueRequest struct {
	TaskType      string         `json:"taskType" validate:"required,tasktype"`
	Priority      string         `json:"priority,omitempty" validate:"omitempty,priority"`
	UserID        string         `json:"userId,omitempty" validate:"max=256"`
	ChannelID     string         `json:"channelId,omitempty" validate:"max=256"`
	Payload       map[string]any `json:"payload,omitempty"`
	ScheduledFor  string         `json:"scheduledFor,omitempty" validate:"omitempty,rfc3339"`
	CorrelationID string         `json:"correlationId,omitempty" validate:"max=128"`
	ParentID      string         `json:"parentId,omitempty" validate:"max=128"`
}

var defaultPriorities = map[queue.TaskType]queue.Priority{
	queue.TaskMessageReply:    queue.PriorityInteractive,
	queue.TaskSkillInvocation: queue.PriorityNearInteractive,
	queue.TaskScheduledAction: queue.PriorityScheduled,
	queue.TaskBulkIngestion:   queue.PriorityBulk,
}

// DefaultPriority returns the band a task type is enqueued at when the
// producer does not choose one.
func DefaultPriority(taskType queue.TaskType) queue.Priority {
	if p, ok := defaultPriorities[taskType]; ok {
		return p
	}
	return queue.PriorityBulk
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("tasktype", func(fl validator.FieldLevel) bool {
			_, ok := queue.ParseTaskType(fl.Field().String())
			return ok
		})
		_ = v.RegisterValidation("priority", func(fl validator.FieldLevel) bool {
			_, ok := queue.ParsePriority(fl.Field().String())
			return ok
		})
		_ = v.RegisterValidation("rfc3339", func(fl validator.FieldLevel) bool {
			_, err := time.Parse(time.RFC3339, fl.Field().String())
			return err == nil
		})
		validate = v
	})
	return validate
}

// Validate checks the request against its struct tags. Failures are tagged
// with services.ErrValidation.
func (r EnqueueRequest) Validate() error {
	err := requestValidator().Struct(r)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return services.Wrap(services.ErrValidation, "api", "enqueue", "invalid request", err)
	}
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, describeFieldError(fe))
	}
	return services.Wrap(services.ErrValidation, "api", "enqueue", strings.Join(problems, "; "), nil)
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "tasktype":
		return fmt.Sprintf("%s %q is not a known task type", fe.Field(), fe.Value())
	case "priority":
		return fmt.Sprintf("%s %q is not a priority band", fe.Field(), fe.Value())
	case "rfc3339":
		return fmt.Sprintf("%s %q is not an RFC3339 timestamp", fe.Field(), fe.Value())
	case "max":
		return fmt.Sprintf("%s exceeds %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

// ToOrchestrator validates the request and converts it for Orchestrator.Enqueue.
func (r EnqueueRequest) ToOrchestrator() (orchestrator.EnqueueRequest, error) {
	if err := r.Validate(); err != nil {
		return orchestrator.EnqueueRequest{}, err
	}
	taskType, _ := queue.ParseTaskType(r.TaskType)
	priority := DefaultPriority(taskType)
	if strings.TrimSpace(r.Priority) != "" {
		priority, _ = queue.ParsePriority(r.Priority)
	}
	var scheduled time.Time
	if r.ScheduledFor != "" {
		scheduled, _ = time.Parse(time.RFC3339, r.ScheduledFor)
	}
	return orchestrator.EnqueueRequest{
		TaskType:      taskType,
		UserID:        r.UserID,
		ChannelID:     r.ChannelID,
		Payload:       r.Payload,
		Priority:      priority,
		ScheduledFor:  scheduled,
		CorrelationID: r.CorrelationID,
		ParentID:      r.ParentID,
	}, nil
}
