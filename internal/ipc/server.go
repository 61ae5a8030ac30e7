package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"
	"time"

	"courier/internal/daemon"
	"courier/internal/logging"
	"courier/internal/logs"
	"courier/internal/queue"
)

const (
	serviceName     = "Courier"
	controlTimeout  = 2 * time.Minute
	defaultTailWait = time.Second
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	connMu sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
}

// NewServer listens on path and registers the daemon control service.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.With(logging.String("component", "ipc"))

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("restrict socket permissions: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	svc := &service{daemon: d, logger: logger, ctx: serverCtx}
	if err := rpcServer.RegisterName(serviceName, svc); err != nil {
		cancel()
		_ = listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
		conns:     make(map[net.Conn]struct{}),
	}, nil
}

// Serve accepts connections until Close is called or the context ends.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"),
				)
				continue
			}
			if !s.track(conn) {
				_ = conn.Close()
				return
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				defer s.untrack(c)
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

func (s *Server) track(conn net.Conn) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.connMu.Lock()
	delete(s.conns, conn)
	s.connMu.Unlock()
}

// Close stops accepting, drops open connections, and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	_ = s.listener.Close()

	s.connMu.Lock()
	s.closed = true
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"),
		)
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.logger.Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			resp.Started = true
			resp.Message = "daemon already running"
			return nil
		}
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.logger.Info("daemon started via IPC", logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Debug("daemon stop requested")
	ctx, cancel := context.WithTimeout(s.ctx, controlTimeout)
	defer cancel()
	if err := s.daemon.Stop(ctx); err != nil {
		resp.Stopped = false
		resp.Message = err.Error()
		return nil
	}
	resp.Stopped = true
	s.logger.Info("daemon stopped via IPC", logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

// Shutdown replies immediately and drains in the background, since the
// process exit tears down this connection.
func (s *service) Shutdown(_ ShutdownRequest, resp *ShutdownResponse) error {
	s.logger.Info("daemon shutdown requested via IPC", logging.String(logging.FieldEventType, "daemon_shutdown"))
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), controlTimeout)
		defer cancel()
		if err := s.daemon.RequestShutdown(ctx); err != nil {
			logging.ErrorWithContext(s.logger, "daemon shutdown failed", "daemon_shutdown_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "run courier stop again or terminate the process"),
			)
		}
	}()
	resp.Accepted = true
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	resp.Status = s.daemon.Status(s.ctx)
	return nil
}

func (s *service) Enqueue(req EnqueueRequest, resp *EnqueueResponse) error {
	id, err := s.daemon.Enqueue(s.ctx, req.Item)
	if err != nil {
		return err
	}
	resp.ID = id
	return nil
}

func (s *service) QueueList(req QueueListRequest, resp *QueueListResponse) error {
	filter, err := listFilter(req)
	if err != nil {
		return err
	}
	items, err := s.daemon.ListQueue(s.ctx, filter)
	if err != nil {
		return err
	}
	resp.Items = items
	return nil
}

func listFilter(req QueueListRequest) (queue.ListFilter, error) {
	filter := queue.ListFilter{Limit: req.Limit}
	for _, raw := range req.Statuses {
		status, ok := queue.ParseStatus(raw)
		if !ok {
			return filter, fmt.Errorf("unknown status %q", raw)
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	if strings.TrimSpace(req.TaskType) != "" {
		taskType, ok := queue.ParseTaskType(req.TaskType)
		if !ok {
			return filter, fmt.Errorf("unknown task type %q", req.TaskType)
		}
		filter.TaskType = taskType
	}
	return filter, nil
}

func (s *service) QueueStats(_ QueueStatsRequest, resp *QueueStatsResponse) error {
	stats, err := s.daemon.QueueStats(s.ctx)
	if err != nil {
		return err
	}
	resp.Stats = stats
	return nil
}

func (s *service) QueueDescribe(req QueueDescribeRequest, resp *QueueDescribeResponse) error {
	if strings.TrimSpace(req.ID) == "" {
		return errors.New("queue item id is required")
	}
	item, err := s.daemon.DescribeItem(s.ctx, req.ID)
	if err != nil {
		return err
	}
	if item != nil {
		resp.Found = true
		resp.Item = *item
	}
	return nil
}

func (s *service) QueueRetry(req QueueRetryRequest, resp *QueueRetryResponse) error {
	if len(req.IDs) == 0 {
		return errors.New("queue retry requires at least one id")
	}
	result, err := s.daemon.RetryDead(s.ctx, req.IDs)
	if err != nil {
		return err
	}
	resp.Result = result
	return nil
}

func (s *service) QueueRequeueStale(req QueueRequeueStaleRequest, resp *QueueRequeueStaleResponse) error {
	var window *time.Duration
	if req.TimeoutSeconds != nil {
		if *req.TimeoutSeconds < 0 {
			return errors.New("timeoutSeconds must not be negative")
		}
		d := time.Duration(*req.TimeoutSeconds) * time.Second
		window = &d
	}
	n, err := s.daemon.RequeueStale(s.ctx, window)
	if err != nil {
		return err
	}
	resp.Requeued = n
	return nil
}

func (s *service) QueuePurge(req QueuePurgeRequest, resp *QueuePurgeResponse) error {
	var completed, dead *time.Duration
	if req.CompletedOlderThanHours != nil {
		d := time.Duration(*req.CompletedOlderThanHours) * time.Hour
		completed = &d
	}
	if req.DeadOlderThanDays != nil {
		d := time.Duration(*req.DeadOlderThanDays) * 24 * time.Hour
		dead = &d
	}
	result, err := s.daemon.Purge(s.ctx, completed, dead)
	resp.Result = result
	return err
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.daemon.LogPath()
	if logPath == "" {
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = defaultTailWait
	}
	ctx := s.ctx
	if req.Follow {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
		Match:  req.Match,
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", message, err)
	}
	resp.Sent = sent
	resp.Message = message
	return nil
}

