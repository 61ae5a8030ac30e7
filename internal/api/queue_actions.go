package api

import (
	"context"
	"errors"

	"courier/internal/queue"
)

// QueueActionService captures queue operations needed by operator retries.
type QueueActionService interface {
	Describe(ctx context.Context, id string) (*QueueItem, error)
	Retry(ctx context.Context, id string) error
}

type RetryItemOutcome string

const (
	RetryItemUpdated  RetryItemOutcome = "retried"
	RetryItemNotFound RetryItemOutcome = "not_found"
	RetryItemNotDead  RetryItemOutcome = "not_dead"
)

type RetryItemResult struct {
	ID          string           `json:"id"`
	Outcome     RetryItemOutcome `json:"outcome"`
	PriorStatus string           `json:"priorStatus,omitempty"`
}

type RetryItemsResult struct {
	UpdatedCount int64             `json:"updatedCount"`
	Items        []RetryItemResult `json:"items"`
}

// RetryDeadItemsByID validates IDs and retries only dead items.
func RetryDeadItemsByID(ctx context.Context, service QueueActionService, ids []string) (RetryItemsResult, error) {
	result := RetryItemsResult{Items: make([]RetryItemResult, 0, len(ids))}
	for _, id := range ids {
		item, err := service.Describe(ctx, id)
		if err != nil {
			return RetryItemsResult{}, err
		}
		if item == nil {
			result.Items = append(result.Items, RetryItemResult{ID: id, Outcome: RetryItemNotFound})
			continue
		}
		status, ok := queue.ParseStatus(item.Status)
		if !ok || status != queue.StatusDead {
			result.Items = append(result.Items, RetryItemResult{ID: id, Outcome: RetryItemNotDead, PriorStatus: item.Status})
			continue
		}
		err = service.Retry(ctx, id)
		switch {
		case errors.Is(err, queue.ErrInvalidTransition):
			// Raced with another operator or a purge.
			result.Items = append(result.Items, RetryItemResult{ID: id, Outcome: RetryItemNotDead, PriorStatus: item.Status})
		case errors.Is(err, queue.ErrNotFound):
			result.Items = append(result.Items, RetryItemResult{ID: id, Outcome: RetryItemNotFound})
		case err != nil:
			return RetryItemsResult{}, err
		default:
			result.UpdatedCount++
			result.Items = append(result.Items, RetryItemResult{ID: id, Outcome: RetryItemUpdated, PriorStatus: item.Status})
		}
	}
	return result, nil
}
