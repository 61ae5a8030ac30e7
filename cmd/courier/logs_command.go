package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"courier/internal/ipc"
	"courier/internal/logs"
)

const (
	currentLogName = "courier.log"
	followWait     = time.Second
)

type tailFunc func(ctx context.Context, req ipc.LogTailRequest) (*ipc.LogTailResponse, error)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var itemID string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show daemon logs",
		Long:  "Show the daemon log. Reads through the daemon when it is running and falls back to the log file otherwise.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if lines < 0 {
				return errors.New("--lines must not be negative")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			tail, closeFn := localTail(filepath.Join(cfg.Paths.LogDir, currentLogName))
			if client, dialErr := ctx.dialClient(); dialErr == nil {
				tail = func(_ context.Context, req ipc.LogTailRequest) (*ipc.LogTailResponse, error) {
					return client.LogTail(req)
				}
				closeFn = func() { _ = client.Close() }
			}
			defer closeFn()

			return streamLogs(commandCtx(cmd), cmd.OutOrStdout(), tail, ipc.LogTailRequest{
				Offset: -1,
				Limit:  lines,
				Match:  itemID,
			}, follow)
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	cmd.Flags().StringVar(&itemID, "item", "", "Only show lines mentioning this item id")
	return cmd
}

func localTail(path string) (tailFunc, func()) {
	return func(ctx context.Context, req ipc.LogTailRequest) (*ipc.LogTailResponse, error) {
		result, err := logs.Tail(ctx, path, logs.TailOptions{
			Offset: req.Offset,
			Limit:  req.Limit,
			Follow: req.Follow,
			Wait:   time.Duration(req.WaitMillis) * time.Millisecond,
			Match:  req.Match,
		})
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return &ipc.LogTailResponse{Lines: result.Lines, Offset: result.Offset}, nil
	}, func() {}
}

func streamLogs(ctx context.Context, out io.Writer, tail tailFunc, req ipc.LogTailRequest, follow bool) error {
	resp, err := tail(ctx, req)
	if err != nil {
		return fmt.Errorf("read logs: %w", err)
	}
	printLines(out, resp.Lines)
	if !follow {
		return nil
	}

	offset := resp.Offset
	for {
		if ctx.Err() != nil {
			return nil
		}
		resp, err := tail(ctx, ipc.LogTailRequest{
			Offset:     offset,
			Follow:     true,
			WaitMillis: int(followWait / time.Millisecond),
			Match:      req.Match,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("follow logs: %w", err)
		}
		printLines(out, resp.Lines)
		offset = resp.Offset
	}
}

func printLines(out io.Writer, lines []string) {
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
}
