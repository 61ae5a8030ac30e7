package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"courier/internal/api"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, client: rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) call(method string, req, resp any) error {
	return c.client.Call(serviceName+"."+method, req, resp)
}

// Start requests the daemon to start processing.
func (c *Client) Start() (*StartResponse, error) {
	var resp StartResponse
	if err := c.call("Start", StartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to drain its worker pools.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.call("Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Shutdown asks the daemon process to drain and exit.
func (c *Client) Shutdown() (*ShutdownResponse, error) {
	var resp ShutdownResponse
	if err := c.call("Shutdown", ShutdownRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*api.DaemonStatus, error) {
	var resp StatusResponse
	if err := c.call("Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp.Status, nil
}

// Enqueue submits an item and returns its id.
func (c *Client) Enqueue(req api.EnqueueRequest) (string, error) {
	var resp EnqueueResponse
	if err := c.call("Enqueue", EnqueueRequest{Item: req}, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// QueueList returns items matching the request filters.
func (c *Client) QueueList(req QueueListRequest) ([]api.QueueItem, error) {
	var resp QueueListResponse
	if err := c.call("QueueList", req, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// QueueStats returns per-status counts.
func (c *Client) QueueStats() (map[string]int, error) {
	var resp QueueStatsResponse
	if err := c.call("QueueStats", QueueStatsRequest{}, &resp); err != nil {
		return nil, err
	}
	return resp.Stats, nil
}

// QueueDescribe returns a single item, or nil when it does not exist.
func (c *Client) QueueDescribe(id string) (*api.QueueItem, error) {
	var resp QueueDescribeResponse
	if err := c.call("QueueDescribe", QueueDescribeRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	if !resp.Found {
		return nil, nil
	}
	return &resp.Item, nil
}

// QueueRetry moves DEAD items back to QUEUED.
func (c *Client) QueueRetry(ids []string) (api.RetryItemsResult, error) {
	var resp QueueRetryResponse
	if err := c.call("QueueRetry", QueueRetryRequest{IDs: ids}, &resp); err != nil {
		return api.RetryItemsResult{}, err
	}
	return resp.Result, nil
}

// QueueRequeueStale requeues stuck PROCESSING items.
func (c *Client) QueueRequeueStale(timeoutSeconds *int) (int64, error) {
	var resp QueueRequeueStaleResponse
	if err := c.call("QueueRequeueStale", QueueRequeueStaleRequest{TimeoutSeconds: timeoutSeconds}, &resp); err != nil {
		return 0, err
	}
	return resp.Requeued, nil
}

// QueuePurge removes old COMPLETED and DEAD items.
func (c *Client) QueuePurge(req QueuePurgeRequest) (api.MaintenanceResult, error) {
	var resp QueuePurgeResponse
	if err := c.call("QueuePurge", req, &resp); err != nil {
		return resp.Result, err
	}
	return resp.Result, nil
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.call("LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.call("TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
