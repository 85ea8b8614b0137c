package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jpalmerr/trackboard/internal/mockbackend"
)

const (
	testEmail    = "admin@example.com"
	testPassword = "secret"
)

// executeCmd runs the root command with args and returns captured stdout
// and any error. Flags are reset first since the commands are package
// globals shared by every test.
func executeCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()

	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// writeConfig writes content to a config file in a temp dir.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trackboard.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

// newMockBackend serves a fake tracking backend with three locations and
// returns its API base URL.
func newMockBackend(t *testing.T) (*mockbackend.Backend, string) {
	t.Helper()
	now := time.Now()
	backend := mockbackend.New(
		mockbackend.WithUser(testEmail, testPassword),
		mockbackend.WithLocations(
			mockbackend.Location{ID: "l1", UserID: "u1", FullName: "Anna Petrova", Latitude: 55.75, Longitude: 37.61, Timestamp: now.Add(-time.Hour)},
			mockbackend.Location{ID: "l2", UserID: "u1", FullName: "Anna Petrova", Latitude: 55.76, Longitude: 37.62, Timestamp: now.Add(-2 * time.Hour)},
			mockbackend.Location{ID: "l3", UserID: "u2", FullName: "Boris Ivanov", Latitude: 59.93, Longitude: 30.33, Timestamp: now.Add(-30 * time.Hour)},
		),
	)
	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(srv.Close)
	return backend, srv.URL + "/api"
}

// backendConfig returns a config for baseURL with credentials and extra
// YAML appended.
func backendConfig(baseURL, extra string) string {
	return fmt.Sprintf(`
backend:
  url: %s
  device_id: cli-test
auth:
  email: %s
  password: %s
%s`, baseURL, testEmail, testPassword, extra)
}
