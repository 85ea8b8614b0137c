package config

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jpalmerr/trackboard"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildOptions_Minimal(t *testing.T) {
	cfg, err := Parse([]byte("backend:\n  url: http://127.0.0.1:1/api\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	board, err := trackboard.New(BuildOptions(cfg, nil)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if board.Port() != 8080 {
		t.Errorf("Port() = %d, want 8080", board.Port())
	}
	if board.Title() != "" {
		t.Errorf("Title() = %q, want empty", board.Title())
	}
	for _, view := range trackboard.Views {
		if on, _ := board.ViewEnabled(view); !on {
			t.Errorf("view %s disabled, want enabled", view)
		}
		if d, _ := board.ViewInterval(view); d != 5*time.Second {
			t.Errorf("view %s interval = %v, want 5s", view, d)
		}
	}
}

func TestBuildOptions_FullConfig(t *testing.T) {
	yaml := `
title: Courier Fleet
port: 9191
poll_interval: 20s
metrics: false
allowed_origins: [https://ops.example.com]
backend:
  url: http://127.0.0.1:1/api
  timeout: 5s
  rate_limit: 2
  burst: 5
  device_id: kiosk-1
auth:
  email: admin@example.com
  password: secret
views:
  dashboard:
    interval: 1m
  locations:
    enabled: false
    filter:
      full_name: Anna
      limit: 25
      order: desc
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	board, err := trackboard.New(BuildOptions(cfg, testLogger())...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if board.Port() != 9191 || board.Title() != "Courier Fleet" {
		t.Errorf("Port, Title = %d, %q", board.Port(), board.Title())
	}

	if d, _ := board.ViewInterval(trackboard.ViewDashboard); d != time.Minute {
		t.Errorf("dashboard interval = %v, want 1m", d)
	}
	if d, _ := board.ViewInterval(trackboard.ViewLocations); d != 20*time.Second {
		t.Errorf("locations interval = %v, want poll_interval", d)
	}
	if on, _ := board.ViewEnabled(trackboard.ViewDashboard); !on {
		t.Error("dashboard should be enabled")
	}
	if on, _ := board.ViewEnabled(trackboard.ViewLocations); on {
		t.Error("locations should be disabled")
	}

	f := board.LocationsFilter()
	if f.FullName != "Anna" || f.Limit != 25 || f.Order != "desc" || f.Page != 1 {
		t.Errorf("filter = %+v", f)
	}
}

func TestBuildOptions_UnknownViewInterval(t *testing.T) {
	cfg, err := Parse([]byte("backend:\n  url: http://127.0.0.1:1/api\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	board, err := trackboard.New(BuildOptions(cfg, nil)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := board.ViewInterval("map"); !errors.Is(err, trackboard.ErrUnknownView) {
		t.Errorf("ViewInterval() error = %v, want ErrUnknownView", err)
	}
}

func TestViewOptions(t *testing.T) {
	disabled := false
	enabled := true

	tests := []struct {
		name string
		vc   ViewConfig
		want int
	}{
		{"empty", ViewConfig{}, 0},
		{"interval only", ViewConfig{Interval: Duration(time.Minute)}, 1},
		{"explicitly enabled", ViewConfig{Enabled: &enabled}, 0},
		{"disabled with interval", ViewConfig{Interval: Duration(time.Minute), Enabled: &disabled}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(viewOptions(tt.vc)); got != tt.want {
				t.Errorf("viewOptions() returned %d options, want %d", got, tt.want)
			}
		})
	}
}
