package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"perch/internal/broadcast"
	"perch/internal/daemon"
)

type broadcastRow struct {
	RemoteID    string     `json:"remote_id"`
	State       string     `json:"state"`
	Title       string     `json:"title"`
	WindowStart time.Time  `json:"window_start"`
	WindowEnd   time.Time  `json:"window_end"`
	WentLiveAt  *time.Time `json:"went_live_at,omitempty"`
	MotionCount int        `json:"motion_count"`
	FailureNote string     `json:"failure_note,omitempty"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon state and the broadcast chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			colorize := isTerminalWriter(out)

			var status daemon.Status
			if err := ctx.apiGet("/api/status", &status); err != nil {
				fmt.Fprintln(out, renderStatusLine("Daemon", statusError, "not running", colorize))
				return fmt.Errorf("query daemon: %w", err)
			}

			fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d)", status.PID), colorize))
			fmt.Fprintln(out, renderStatusLine("Ledger", statusInfo, status.LedgerPath, colorize))
			fmt.Fprintln(out, renderStatusLine("Live", liveKind(status.Broadcasts.Live), fmt.Sprintf("%d broadcast(s)", status.Broadcasts.Live), colorize))
			fmt.Fprintln(out, renderStatusLine("Scheduled", statusInfo, fmt.Sprintf("%d broadcast(s)", status.Broadcasts.Scheduled), colorize))
			fmt.Fprintln(out, renderStatusLine("Awaiting motion", statusInfo, fmt.Sprintf("%d broadcast(s)", status.Broadcasts.Ended), colorize))
			fmt.Fprintln(out)

			var payload struct {
				Broadcasts []broadcastRow `json:"broadcasts"`
			}
			if err := ctx.apiGet("/api/broadcasts", &payload); err != nil {
				return fmt.Errorf("list broadcasts: %w", err)
			}
			if len(payload.Broadcasts) == 0 {
				fmt.Fprintln(out, "No broadcasts under supervision.")
				return nil
			}

			rows := make([][]string, 0, len(payload.Broadcasts))
			for _, b := range payload.Broadcasts {
				rows = append(rows, []string{
					b.RemoteID,
					b.State,
					b.Title,
					b.WindowStart.Local().Format("Mon 02 Jan 15:04"),
					b.WindowEnd.Local().Format("15:04"),
					motionCell(b),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "State", "Title", "Window", "Until", "Motion"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
}

func liveKind(live int) statusKind {
	if live == 1 {
		return statusOK
	}
	if live > 1 {
		return statusError
	}
	return statusWarn
}

func motionCell(b broadcastRow) string {
	if b.State != string(broadcast.StateEnriched) {
		return "-"
	}
	return fmt.Sprintf("%d", b.MotionCount)
}

func isTerminalWriter(out io.Writer) bool {
	file, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isTerminal(file.Fd())
}
