package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"courier/internal/api"
	"courier/internal/ipc"
	"courier/internal/queue"
	"courier/internal/queueaccess"
)

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	var req api.EnqueueRequest
	var payloadJSON string
	var payloadFile string

	cmd := &cobra.Command{
		Use:   "enqueue <task-type>",
		Short: "Submit a work item",
		Long: "Submit a work item. Task types: " + strings.Join(taskTypeNames(), ", ") +
			". Priority defaults by task type when omitted.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.TaskType = strings.TrimSpace(args[0])
			payload, err := readPayload(cmd.InOrStdin(), payloadJSON, payloadFile)
			if err != nil {
				return err
			}
			req.Payload = payload
			if err := req.Validate(); err != nil {
				return err
			}
			return ctx.withQueue(cmd, func(access queueaccess.Access) error {
				id, err := access.Enqueue(commandCtx(cmd), req)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.EnqueueResponse{ID: id})
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&req.Priority, "priority", "p", "", "Priority band name or number (0-3)")
	cmd.Flags().StringVar(&req.UserID, "user", "", "Originating user id")
	cmd.Flags().StringVar(&req.ChannelID, "channel", "", "Originating channel id")
	cmd.Flags().StringVar(&req.ScheduledFor, "at", "", "Earliest run time (RFC3339)")
	cmd.Flags().StringVar(&req.CorrelationID, "correlation", "", "Correlation id for tracing")
	cmd.Flags().StringVar(&req.ParentID, "parent", "", "Parent item id")
	cmd.Flags().StringVar(&payloadJSON, "payload", "", "Payload as a JSON object")
	cmd.Flags().StringVar(&payloadFile, "payload-file", "", "Read the JSON payload from a file (- for stdin)")
	return cmd
}

func taskTypeNames() []string {
	types := queue.AllTaskTypes()
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, string(t))
	}
	return names
}

func readPayload(stdin io.Reader, inline, file string) (map[string]any, error) {
	if inline != "" && file != "" {
		return nil, errors.New("specify only one of --payload or --payload-file")
	}
	var data []byte
	switch {
	case inline != "":
		data = []byte(inline)
	case file == "-":
		raw, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read payload from stdin: %w", err)
		}
		data = raw
	case file != "":
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read payload file: %w", err)
		}
		data = raw
	default:
		return map[string]any{}, nil
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("payload must be a JSON object: %w", err)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return payload, nil
}

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the work queue",
	}

	queueCmd.AddCommand(newQueueStatsCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueRequeueStaleCommand(ctx))
	queueCmd.AddCommand(newQueuePurgeCommand(ctx))

	return queueCmd
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show item counts per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd, func(access queueaccess.Access) error {
				stats, err := access.Stats(commandCtx(cmd))
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.QueueStatsResponse{Counts: stats})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Status", "Count"}, buildQueueStatusRows(stats), []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var taskType string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, raw := range statuses {
				if _, ok := queue.ParseStatus(raw); !ok {
					return fmt.Errorf("unknown status %q", raw)
				}
			}
			if taskType != "" {
				if _, ok := queue.ParseTaskType(taskType); !ok {
					return fmt.Errorf("unknown task type %q", taskType)
				}
			}
			return ctx.withQueue(cmd, func(access queueaccess.Access) error {
				items, err := access.List(commandCtx(cmd), ipc.QueueListRequest{
					Statuses: statuses,
					TaskType: taskType,
					Limit:    limit,
				})
				if err != nil {
					return err
				}
				items = api.SortQueueItemsNewestFirst(items)
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.QueueListResponse{Items: items})
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Type", "Priority", "Status", "Attempts", "Created", "Last Error"},
					buildQueueListRows(items),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().StringVarP(&taskType, "type", "t", "", "Filter by task type")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum items to show (0 for all)")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a single queue item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withQueue(cmd, func(access queueaccess.Access) error {
				item, err := access.Describe(commandCtx(cmd), id)
				if err != nil {
					return err
				}
				if item == nil {
					return fmt.Errorf("queue item %s not found", id)
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.QueueItemResponse{Item: *item})
				}
				return renderQueueItem(cmd, *item)
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>...",
		Short: "Move dead items back to queued",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd, func(access queueaccess.Access) error {
				result, err := access.Retry(commandCtx(cmd), args)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				for _, item := range result.Items {
					switch item.Outcome {
					case api.RetryItemUpdated:
						fmt.Fprintf(out, "%s: requeued\n", item.ID)
					case api.RetryItemNotFound:
						fmt.Fprintf(out, "%s: not found\n", item.ID)
					case api.RetryItemNotDead:
						fmt.Fprintf(out, "%s: not dead (status %s)\n", item.ID, item.PriorStatus)
					}
				}
				fmt.Fprintf(out, "Retried %d item(s)\n", result.UpdatedCount)
				return nil
			})
		},
	}
}

func newQueueRequeueStaleCommand(ctx *commandContext) *cobra.Command {
	var timeout int
	cmd := &cobra.Command{
		Use:   "requeue-stale",
		Short: "Return stuck processing items to the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			var timeoutSeconds *int
			if cmd.Flags().Changed("timeout") {
				if timeout < 0 {
					return errors.New("--timeout must not be negative")
				}
				timeoutSeconds = &timeout
			}
			return ctx.withQueue(cmd, func(access queueaccess.Access) error {
				n, err := access.RequeueStale(commandCtx(cmd), timeoutSeconds)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.MaintenanceResult{Requeued: n})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d item(s)\n", n)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&timeout, "timeout", 0, "Stale window in seconds (default: queue.stale_timeout_seconds; 0 requeues all processing items)")
	return cmd
}

func newQueuePurgeCommand(ctx *commandContext) *cobra.Command {
	var completedHours int
	var deadDays int
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete old completed and dead items",
		RunE: func(cmd *cobra.Command, args []string) error {
			var req ipc.QueuePurgeRequest
			if cmd.Flags().Changed("completed-hours") {
				req.CompletedOlderThanHours = &completedHours
			}
			if cmd.Flags().Changed("dead-days") {
				req.DeadOlderThanDays = &deadDays
			}
			return ctx.withQueue(cmd, func(access queueaccess.Access) error {
				result, err := access.Purge(commandCtx(cmd), req)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, result)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Purged %d completed and %d dead item(s)\n", result.PurgedCompleted, result.PurgedDead)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&completedHours, "completed-hours", 0, "Purge completed items older than this many hours (default: queue.completed_retention_hours)")
	cmd.Flags().IntVar(&deadDays, "dead-days", 0, "Purge dead items older than this many days (default: queue.dead_retention_days)")
	return cmd
}
