package main

import (
	"strings"
	"testing"
)

func TestRunValidate_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
port: 8080
poll_interval: 10s
backend:
  url: https://tracker.example.com/api
auth:
  email: admin@example.com
  password: secret
views:
  dashboard:
    interval: 1m
  locations:
    enabled: false
`)

	output, err := executeCmd(t, "validate", "-c", configPath)
	if err != nil {
		t.Fatalf("validate command error = %v", err)
	}

	expectedPhrases := []string{
		"Config is valid!",
		"Port:          8080",
		"Backend:       https://tracker.example.com/api",
		"Login:         admin@example.com",
		"Poll interval: 10s",
		"Dashboard:     every 1m0s",
		"Locations:     every 10s (paused)",
	}

	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("output missing %q\nGot: %s", phrase, output)
		}
	}
}

func TestRunValidate_NoCredentials(t *testing.T) {
	configPath := writeConfig(t, "backend:\n  url: http://localhost:3000/api\n")

	output, err := executeCmd(t, "validate", "-c", configPath)
	if err != nil {
		t.Fatalf("validate command error = %v", err)
	}
	if !strings.Contains(output, "stored session required") {
		t.Errorf("output should note the missing credentials\nGot: %s", output)
	}
}

func TestRunValidate_InvalidConfig(t *testing.T) {
	configPath := writeConfig(t, `
port: 8080
backend:
  url: ftp://tracker.example.com
`)

	_, err := executeCmd(t, "validate", "-c", configPath)
	if err == nil {
		t.Fatal("validate command expected error for invalid config, got nil")
	}

	if !strings.Contains(err.Error(), "scheme must be http or https") {
		t.Errorf("error should mention the scheme, got: %v", err)
	}
}

func TestRunValidate_MissingFile(t *testing.T) {
	_, err := executeCmd(t, "validate", "-c", "/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("validate command expected error for missing file, got nil")
	}

	if !strings.Contains(err.Error(), "failed to read") {
		t.Errorf("error should mention 'failed to read', got: %v", err)
	}
}

func TestRunValidate_RequiresConfigFlag(t *testing.T) {
	if _, err := executeCmd(t, "validate"); err == nil {
		t.Fatal("validate command expected error without --config, got nil")
	}
}

func TestVersion(t *testing.T) {
	output, err := executeCmd(t, "version")
	if err != nil {
		t.Fatalf("version command error = %v", err)
	}
	if !strings.HasPrefix(output, "trackboard dev") {
		t.Errorf("output = %q", output)
	}
}

func TestInvalidLogLevel(t *testing.T) {
	_, baseURL := newMockBackend(t)
	configPath := writeConfig(t, backendConfig(baseURL, ""))

	_, err := executeCmd(t, "export", "-c", configPath, "-o", "-", "--log-level", "loud")
	if err == nil || !strings.Contains(err.Error(), "invalid --log-level") {
		t.Errorf("error = %v, want invalid --log-level", err)
	}
}
