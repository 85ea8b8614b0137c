package trackboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jpalmerr/trackboard/internal/server"
)

var (
	// ErrUnknownView is returned for a view name other than [ViewDashboard]
	// and [ViewLocations].
	ErrUnknownView = server.ErrUnknownView

	// ErrInvalidFilter wraps validation failures of a [LocationsFilter].
	ErrInvalidFilter = fmt.Errorf("%w: invalid locations filter", server.ErrInvalidInput)

	// ErrNotRunning is returned when resuming a view of a board that is not
	// started.
	ErrNotRunning = errors.New("board is not running")

	// ErrNoCredentials is returned by [Board.Login] when no credentials were
	// configured.
	ErrNoCredentials = errors.New("no credentials configured")
)

// Refetch fetches one view now, outside its schedule, and returns once the
// result has been published. Fetch failures are reported through the view's
// state, not the returned error.
func (b *Board) Refetch(ctx context.Context, view string) error {
	switch view {
	case ViewDashboard:
		return b.dashboard.Refetch(ctx)
	case ViewLocations:
		return b.locations.Refetch(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownView, view)
	}
}

// SetViewEnabled pauses or resumes scheduled polling of a view. A paused
// view keeps its last value and can still be refetched on demand.
func (b *Board) SetViewEnabled(view string, enabled bool) error {
	if enabled {
		b.mu.Lock()
		running := b.running
		b.mu.Unlock()
		if !running {
			return ErrNotRunning
		}
	}

	switch view {
	case ViewDashboard:
		b.dashboard.SetEnabled(enabled)
	case ViewLocations:
		b.locations.SetEnabled(enabled)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownView, view)
	}
	b.logger.Info("view polling toggled", "view", view, "enabled", enabled)
	return nil
}

// ViewEnabled reports whether scheduled polling of a view is switched on.
func (b *Board) ViewEnabled(view string) (bool, error) {
	switch view {
	case ViewDashboard:
		return b.dashboard.Enabled(), nil
	case ViewLocations:
		return b.locations.Enabled(), nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownView, view)
	}
}

// ViewInterval returns the delay between scheduled fetches of a view.
func (b *Board) ViewInterval(view string) (time.Duration, error) {
	switch view {
	case ViewDashboard:
		return b.dashboard.Interval(), nil
	case ViewLocations:
		return b.locations.Interval(), nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownView, view)
	}
}

// LocationsFilter returns the filter the locations view currently uses.
func (b *Board) LocationsFilter() LocationsFilter {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.filter
}

// SetLocationsFilter replaces the filter of the locations view and refetches
// it right away.
//
// Changing any filter field (user, name or date range) resets the page to 1.
// A zero Page or Limit keeps the current page size and starts at page 1.
func (b *Board) SetLocationsFilter(ctx context.Context, f LocationsFilter) error {
	b.mu.Lock()
	current := b.filter
	if f.Limit == 0 {
		f.Limit = current.Limit
	}
	if f.Page == 0 || f.Filter() != current.Filter() {
		f.Page = 1
	}
	if err := f.Validate(); err != nil {
		b.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrInvalidFilter, err)
	}
	b.filter = f
	b.mu.Unlock()

	if err := b.locations.SetFetch(b.locationsFetcher(f)); err != nil {
		return err
	}
	b.logger.Info("locations filter changed",
		"user_id", f.UserID,
		"full_name", f.FullName,
		"start_date", f.StartDate,
		"end_date", f.EndDate,
		"page", f.Page,
		"limit", f.Limit,
	)
	return b.locations.Refetch(ctx)
}

// DeleteLocation deletes one location in the backend, then refetches both
// views since counts and the listing change.
func (b *Board) DeleteLocation(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: location id is required", server.ErrInvalidInput)
	}
	if err := b.client.DeleteLocation(ctx, id); err != nil {
		return fmt.Errorf("delete location %s: %w", id, err)
	}
	b.logger.Info("location deleted", "id", id)

	if err := b.locations.Refetch(ctx); err != nil {
		return err
	}
	return b.dashboard.Refetch(ctx)
}

// Export writes every location matching the current filter to w, in the
// filter's sort order. It returns the number of bytes written.
func (b *Board) Export(ctx context.Context, format ExportFormat, w io.Writer) (int64, error) {
	f := b.LocationsFilter()
	n, err := b.client.Export(ctx, format, f, w)
	if err != nil {
		return n, fmt.Errorf("export %s: %w", format, err)
	}
	b.logger.Info("locations exported", "format", string(format), "bytes", n)
	return n, nil
}

// Login starts a new backend session with the configured credentials.
func (b *Board) Login(ctx context.Context) error {
	if b.email == "" {
		return ErrNoCredentials
	}
	if _, err := b.client.Login(ctx, b.email, b.password); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	b.logger.Info("logged in", "email", b.email)
	return nil
}

// Logout ends the backend session. The access token is removed even when
// the backend call fails.
func (b *Board) Logout(ctx context.Context) error {
	return b.client.Logout(ctx)
}

// Authenticated reports whether a backend session is stored.
func (b *Board) Authenticated() bool {
	return b.client.Authenticated()
}

// Snapshot returns the current published state of one view.
func (b *Board) Snapshot(view string) (Update, error) {
	switch view {
	case ViewDashboard:
		s := b.dashboard.Snapshot()
		return b.toUpdate(view, s.Value, s.HasValue, s.Err, s.Loading, s.State, s.UpdatedAt), nil
	case ViewLocations:
		s := b.locations.Snapshot()
		return b.toUpdate(view, s.Value, s.HasValue, s.Err, s.Loading, s.State, s.UpdatedAt), nil
	default:
		return Update{}, fmt.Errorf("%w: %q", ErrUnknownView, view)
	}
}
