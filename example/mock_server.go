package main

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/jpalmerr/trackboard/internal/mockbackend"
)

const (
	demoEmail    = "demo@example.com"
	demoPassword = "demo"
)

// StartMockBackend runs an in-memory tracking backend with a week of seeded
// locations. A new location is recorded every 5-15 seconds so the views keep
// changing. Call this in a goroutine before starting the board.
func StartMockBackend(addr string) {
	backend := mockbackend.New(
		mockbackend.WithUser(demoEmail, demoPassword),
		mockbackend.WithTracks(12, false),
	)
	backend.Seed(150, 6)

	go func() {
		for {
			time.Sleep(time.Duration(5+rand.IntN(11)) * time.Second)
			u := rand.IntN(6) + 1
			id := backend.AddLocation(mockbackend.Location{
				UserID:    fmt.Sprintf("user-%d", u),
				FullName:  fmt.Sprintf("Courier %d", u),
				Latitude:  55.70 + rand.Float64()*0.1,
				Longitude: 37.55 + rand.Float64()*0.1,
			})
			slog.Info("location recorded", "id", id, "user", u, "total", backend.Len())
		}
	}()

	if err := http.ListenAndServe(addr, backend.Handler()); err != nil {
		slog.Error("mock backend error", "error", err)
	}
}
