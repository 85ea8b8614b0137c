// Standalone mock tracking backend for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/trackboard serve -c example/config.yaml
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/jpalmerr/trackboard/internal/mockbackend"
)

func main() {
	addr := flag.String("addr", ":9999", "listen address")
	seed := flag.Int("seed", 150, "number of locations to generate")
	users := flag.Int("users", 6, "number of tracked users")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	backend := mockbackend.New(
		mockbackend.WithUser("demo@example.com", "demo"),
		mockbackend.WithTracks(*users*2, false),
		mockbackend.WithLogger(logger),
	)
	backend.Seed(*seed, *users)

	fmt.Printf("Mock tracking backend starting on %s\n", *addr)
	fmt.Printf("API base URL: http://localhost%s/api\n", *addr)
	fmt.Println("Login: demo@example.com / demo")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	if err := http.ListenAndServe(*addr, backend.Handler()); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
