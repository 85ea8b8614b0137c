package main

import (
	"context"
	"fmt"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/trackboard"
)

const viewAll = "all"

// watchCmd streams view updates to stdout as JSON lines.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream view updates as JSON lines",
	Long: `Poll the backend without serving the dashboard and print every view
update to stdout, one JSON object per line.

Each line carries the view name, its data (once fetched), the last error,
the loading flag and the poller state. Unchanged data is not repeated.

Example:
  trackboard watch -c config.yaml
  trackboard watch -c config.yaml --view locations --count 5 | jq .data.total`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	watchCmd.Flags().String("view", viewAll, "view to print: dashboard, locations or all")
	watchCmd.Flags().Int("count", 0, "exit after printing this many updates (0 runs until interrupted)")
	_ = watchCmd.MarkFlagRequired("config")
}

// watchEvent is the printed form of one update.
type watchEvent struct {
	View    string    `json:"view"`
	Data    any       `json:"data"`
	Error   *string   `json:"error"`
	Loading bool      `json:"loading"`
	State   string    `json:"state"`
	At      time.Time `json:"at"`
}

func runWatch(cmd *cobra.Command, args []string) error {
	view, _ := cmd.Flags().GetString("view")
	if view != viewAll && !slices.Contains(trackboard.Views, view) {
		return fmt.Errorf("invalid --view %q: must be %s, %s or %s",
			view, trackboard.ViewDashboard, trackboard.ViewLocations, viewAll)
	}
	count, _ := cmd.Flags().GetInt("count")
	if count < 0 {
		return fmt.Errorf("invalid --count %d: cannot be negative", count)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu      sync.Mutex
		printed int
		enc     = json.NewEncoder(cmd.OutOrStdout())
	)
	emit := func(u trackboard.Update) {
		if view != viewAll && u.View != view {
			return
		}

		mu.Lock()
		defer mu.Unlock()
		if count > 0 && printed >= count {
			return
		}

		ev := watchEvent{View: u.View, Data: u.Data, Loading: u.Loading, State: u.State, At: u.At}
		if u.Err != nil {
			msg := u.Err.Error()
			ev.Error = &msg
		}
		if err := enc.Encode(ev); err != nil {
			cancel()
			return
		}

		printed++
		if count > 0 && printed == count {
			cancel()
		}
	}

	b, _, _, err := loadBoard(cmd, trackboard.WithUpdateCallback(emit))
	if err != nil {
		return err
	}
	return b.Watch(ctx)
}
