package queueaccess

import (
	"context"
	"time"

	"courier/internal/api"
	"courier/internal/config"
	"courier/internal/ipc"
	"courier/internal/queue"
)

// Access provides queue operations regardless of IPC or direct store backing.
type Access interface {
	Stats(ctx context.Context) (map[string]int, error)
	List(ctx context.Context, req ipc.QueueListRequest) ([]api.QueueItem, error)
	Describe(ctx context.Context, id string) (*api.QueueItem, error)
	Enqueue(ctx context.Context, req api.EnqueueRequest) (string, error)
	Retry(ctx context.Context, ids []string) (api.RetryItemsResult, error)
	RequeueStale(ctx context.Context, timeoutSeconds *int) (int64, error)
	Purge(ctx context.Context, req ipc.QueuePurgeRequest) (api.MaintenanceResult, error)
}

// NewIPCAccess returns an Access backed by daemon IPC.
func NewIPCAccess(client *ipc.Client) Access {
	return &ipcAccess{client: client}
}

// NewStoreAccess returns an Access backed by direct store access. Defaults
// for maintenance windows and max attempts come from cfg.
func NewStoreAccess(cfg *config.Config, store queue.AdminStore) Access {
	return &storeAccess{cfg: cfg, store: store, service: api.NewQueueService(store)}
}

type ipcAccess struct {
	client *ipc.Client
}

func (a *ipcAccess) Stats(context.Context) (map[string]int, error) {
	return a.client.QueueStats()
}

func (a *ipcAccess) List(_ context.Context, req ipc.QueueListRequest) ([]api.QueueItem, error) {
	return a.client.QueueList(req)
}

func (a *ipcAccess) Describe(_ context.Context, id string) (*api.QueueItem, error) {
	return a.client.QueueDescribe(id)
}

func (a *ipcAccess) Enqueue(_ context.Context, req api.EnqueueRequest) (string, error) {
	return a.client.Enqueue(req)
}

func (a *ipcAccess) Retry(_ context.Context, ids []string) (api.RetryItemsResult, error) {
	return a.client.QueueRetry(ids)
}

func (a *ipcAccess) RequeueStale(_ context.Context, timeoutSeconds *int) (int64, error) {
	return a.client.QueueRequeueStale(timeoutSeconds)
}

func (a *ipcAccess) Purge(_ context.Context, req ipc.QueuePurgeRequest) (api.MaintenanceResult, error) {
	return a.client.QueuePurge(req)
}

type storeAccess struct {
	cfg     *config.Config
	store   queue.AdminStore
	service *api.QueueService
}

func (a *storeAccess) Stats(ctx context.Context) (map[string]int, error) {
	return a.service.Stats(ctx)
}

func (a *storeAccess) List(ctx context.Context, req ipc.QueueListRequest) ([]api.QueueItem, error) {
	filter := queue.ListFilter{Limit: req.Limit}
	for _, raw := range req.Statuses {
		if status, ok := queue.ParseStatus(raw); ok {
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	if taskType, ok := queue.ParseTaskType(req.TaskType); ok {
		filter.TaskType = taskType
	}
	return a.service.List(ctx, filter)
}

func (a *storeAccess) Describe(ctx context.Context, id string) (*api.QueueItem, error) {
	return a.service.Describe(ctx, id)
}

func (a *storeAccess) Enqueue(ctx context.Context, req api.EnqueueRequest) (string, error) {
	orchReq, err := req.ToOrchestrator()
	if err != nil {
		return "", err
	}
	item, err := queue.NewItem(queue.Spec{
		TaskType:      orchReq.TaskType,
		Priority:      orchReq.Priority,
		Payload:       orchReq.Payload,
		MaxAttempts:   a.cfg.Queue.MaxAttempts,
		ScheduledFor:  orchReq.ScheduledFor,
		UserID:        orchReq.UserID,
		ChannelID:     orchReq.ChannelID,
		CorrelationID: orchReq.CorrelationID,
		ParentID:      orchReq.ParentID,
	}, time.Now())
	if err != nil {
		return "", err
	}
	return a.store.Enqueue(ctx, item)
}

func (a *storeAccess) Retry(ctx context.Context, ids []string) (api.RetryItemsResult, error) {
	return api.RetryDeadItemsByID(ctx, storeActions{a}, ids)
}

type storeActions struct{ a *storeAccess }

func (s storeActions) Describe(ctx context.Context, id string) (*api.QueueItem, error) {
	return s.a.service.Describe(ctx, id)
}

func (s storeActions) Retry(ctx context.Context, id string) error {
	return s.a.store.Retry(ctx, id)
}

func (a *storeAccess) RequeueStale(ctx context.Context, timeoutSeconds *int) (int64, error) {
	seconds := a.cfg.Queue.StaleTimeoutSeconds
	if timeoutSeconds != nil {
		seconds = *timeoutSeconds
	}
	return a.store.RequeueStale(ctx, time.Duration(seconds)*time.Second)
}

func (a *storeAccess) Purge(ctx context.Context, req ipc.QueuePurgeRequest) (api.MaintenanceResult, error) {
	hours := a.cfg.Queue.CompletedRetentionHours
	if req.CompletedOlderThanHours != nil {
		hours = *req.CompletedOlderThanHours
	}
	days := a.cfg.Queue.DeadRetentionDays
	if req.DeadOlderThanDays != nil {
		days = *req.DeadOlderThanDays
	}
	var result api.MaintenanceResult
	var err error
	if result.PurgedCompleted, err = a.store.PurgeCompleted(ctx, time.Duration(hours)*time.Hour); err != nil {
		return result, err
	}
	if result.PurgedDead, err = a.store.PurgeDead(ctx, time.Duration(days)*24*time.Hour); err != nil {
		return result, err
	}
	return result, nil
}
