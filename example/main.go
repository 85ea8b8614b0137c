package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/trackboard"
)

func main() {
	// start mock backend (see mock_server.go)
	go StartMockBackend(":9999")
	time.Sleep(100 * time.Millisecond)

	// log every locations change; the dashboard view keeps its own 10s schedule
	onUpdate := func(u trackboard.Update) {
		if data, ok := u.Data.(trackboard.LocationsData); ok && u.View == trackboard.ViewLocations {
			slog.Info("locations updated", "total", data.Total, "page", data.Page, "pages", data.Pages)
		}
	}

	tb, err := trackboard.New(
		trackboard.WithBackend("http://localhost:9999/api"),
		trackboard.WithCredentials(demoEmail, demoPassword),
		trackboard.WithTitle("Courier Fleet (demo)"),
		trackboard.WithPollingInterval(5*time.Second),
		trackboard.WithDashboard(trackboard.WithInterval(10*time.Second)),
		trackboard.WithLocations(trackboard.LocationsFilter{Limit: 20}),
		trackboard.WithUpdateCallback(onUpdate),
		trackboard.WithPort(8080),
	)
	if err != nil {
		slog.Error("failed to create trackboard", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════════════════╗")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Trackboard Demo                                     ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Open http://localhost:8080 in your browser          ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Backend: mock on :9999, 150 seeded locations        ║")
	fmt.Println("  ║   Views:   dashboard every 10s, locations every 5s    ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Press Ctrl+C to stop                                ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ╚═══════════════════════════════════════════════════════╝")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := tb.Start(ctx); err != nil {
		slog.Error("trackboard error", "error", err)
		os.Exit(1)
	}
}
