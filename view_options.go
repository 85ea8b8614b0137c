package trackboard

import (
	"errors"
	"fmt"
	"time"
)

const defaultPageSize = 10

// viewConfig holds the per-view settings collected from [ViewOption]s.
type viewConfig struct {
	interval time.Duration // zero means the board's polling interval
	disabled bool
}

// ViewOption configures one view. Pass view options to [WithDashboard] or
// [WithLocations].
type ViewOption func(*viewConfig) error

// WithInterval sets the view's own polling interval, overriding
// [WithPollingInterval].
//
// Returns an error if the duration is zero or negative.
func WithInterval(d time.Duration) ViewOption {
	return func(vc *viewConfig) error {
		if d <= 0 {
			return errors.New("interval must be positive")
		}
		vc.interval = d
		return nil
	}
}

// WithDisabled creates the view paused. It is fetched on demand only,
// until resumed with [Board.SetViewEnabled].
func WithDisabled() ViewOption {
	return func(vc *viewConfig) error {
		vc.disabled = true
		return nil
	}
}

func (vc *viewConfig) apply(view string, opts []ViewOption) error {
	for _, opt := range opts {
		if err := opt(vc); err != nil {
			return fmt.Errorf("%s view: %w", view, err)
		}
	}
	return nil
}

// normalizeFilter fills in the default page and page size.
func normalizeFilter(f LocationsFilter) LocationsFilter {
	if f.Page == 0 {
		f.Page = 1
	}
	if f.Limit == 0 {
		f.Limit = defaultPageSize
	}
	return f
}
