package api

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// linux hardware and installation identifiers, most stable first
var machineIDPaths = []string{
	"/sys/class/dmi/id/product_uuid",
	"/etc/machine-id",
	"/var/lib/dbus/machine-id",
}

// Fingerprinter identifies this device to the backend on login.
//
// The fingerprint is computed once per Fingerprinter and then reused. When no
// machine identifier is readable, a random one is generated instead, so the
// value is still stable for the lifetime of the process.
type Fingerprinter struct {
	paths    []string
	hostname func() (string, error)

	once  sync.Once
	value string
}

// NewFingerprinter creates a [Fingerprinter] reading the standard machine id
// locations.
func NewFingerprinter() *Fingerprinter {
	return &Fingerprinter{
		paths:    machineIDPaths,
		hostname: os.Hostname,
	}
}

// StaticFingerprinter always returns value. Useful when the fingerprint is
// configured explicitly.
func StaticFingerprinter(value string) *Fingerprinter {
	f := &Fingerprinter{}
	f.once.Do(func() { f.value = value })
	return f
}

// Fingerprint returns the device fingerprint.
func (f *Fingerprinter) Fingerprint() string {
	f.once.Do(func() {
		f.value = f.compute()
	})
	return f.value
}

func (f *Fingerprinter) compute() string {
	var parts []string
	for _, p := range f.paths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		if id := strings.TrimSpace(string(data)); id != "" {
			parts = append(parts, id)
			break
		}
	}
	if len(parts) == 0 {
		return strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	if f.hostname != nil {
		if host, err := f.hostname(); err == nil {
			parts = append(parts, host)
		}
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:16])
}
