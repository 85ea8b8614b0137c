package trackboard

import (
	"context"
	"fmt"
	"reflect"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jpalmerr/trackboard/internal/poller"
	"github.com/jpalmerr/trackboard/internal/store"
)

// newView builds the polling controller of one view.
func newView[T any](b *Board, name string, fetch poller.FetchFunc[T], vc viewConfig, fallback time.Duration) (*poller.Controller[T], error) {
	interval := vc.interval
	if interval == 0 {
		interval = fallback
	}

	opts := []poller.Option{
		poller.WithName(name),
		poller.WithInterval(interval),
		poller.WithEnabled(!vc.disabled),
		poller.WithLogger(b.logger),
	}
	if b.metrics != nil {
		opts = append(opts, poller.WithMetrics(b.metrics))
	}

	c, err := poller.New(fetch, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s view: %w", name, err)
	}
	c.SetComparator(sameValue[T])
	return c, nil
}

// sameValue suppresses publication of a result deeply equal to the last one.
func sameValue[T any](prev, next T) bool {
	return reflect.DeepEqual(prev, next)
}

// fetchDashboard loads stats, recent activity and chart data in parallel.
// Any failure fails the whole fetch so the view keeps its last good value.
func (b *Board) fetchDashboard(ctx context.Context) (DashboardData, error) {
	now := b.now()
	var data DashboardData

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stats, err := b.client.GetDashboardStats(gctx, now)
		if err != nil {
			return fmt.Errorf("dashboard stats: %w", err)
		}
		data.Stats = *stats
		return nil
	})
	g.Go(func() error {
		recent, err := b.client.GetRecentActivity(gctx)
		if err != nil {
			return fmt.Errorf("recent activity: %w", err)
		}
		data.Recent = recent
		return nil
	})
	g.Go(func() error {
		chart, err := b.client.GetChartData(gctx, now)
		if err != nil {
			return fmt.Errorf("chart data: %w", err)
		}
		data.Chart = chart
		return nil
	})
	if err := g.Wait(); err != nil {
		return DashboardData{}, err
	}
	return data, nil
}

// locationsFetcher returns a fetch that loads the filtered page and the full
// filtered set in parallel.
func (b *Board) locationsFetcher(f LocationsFilter) poller.FetchFunc[LocationsData] {
	return func(ctx context.Context) (LocationsData, error) {
		data := LocationsData{Filter: f}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			page, err := b.client.GetLocations(gctx, f)
			if err != nil {
				return fmt.Errorf("locations page: %w", err)
			}
			data.Items = page.Items
			data.Total = page.Total
			data.Page = page.Page
			data.Pages = page.Pages
			return nil
		})
		g.Go(func() error {
			all, err := b.client.GetAllLocations(gctx, f)
			if err != nil {
				return fmt.Errorf("all locations: %w", err)
			}
			data.All = all
			return nil
		})
		if err := g.Wait(); err != nil {
			return LocationsData{}, err
		}
		return data, nil
	}
}

// forward copies every snapshot of c into st and the update callbacks until
// the returned stop function is called.
func forward[T any](b *Board, st store.Store, view string, c *poller.Controller[T], wg *sync.WaitGroup) (stop func()) {
	ch := c.Subscribe()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for snap := range ch {
			u := b.toUpdate(view, snap.Value, snap.HasValue, snap.Err, snap.Loading, snap.State, snap.UpdatedAt)

			// store first so callbacks observe persisted state
			st.Update(toStoreSnapshot(u))
			for _, cb := range b.updateCallbacks {
				invokeCallbackSafe(cb, u, b)
			}

			if u.Err != nil {
				b.logger.Debug("view published with error", "view", view, "state", u.State, "error", u.Err.Error())
			} else {
				b.logger.Debug("view published", "view", view, "state", u.State, "loading", u.Loading)
			}
		}
	}()

	return func() { c.Unsubscribe(ch) }
}

func (b *Board) toUpdate(view string, value any, hasValue bool, err error, loading bool, state poller.State, at time.Time) Update {
	u := Update{
		View:    view,
		Err:     err,
		Loading: loading,
		State:   state.String(),
		At:      at,
	}
	if hasValue {
		u.Data = value
	}
	if u.At.IsZero() {
		u.At = b.now()
	}
	return u
}

func toStoreSnapshot(u Update) store.Snapshot {
	var errStr *string
	if u.Err != nil {
		s := u.Err.Error()
		errStr = &s
	}
	return store.Snapshot{
		View:      u.View,
		Data:      u.Data,
		Error:     errStr,
		Loading:   u.Loading,
		State:     u.State,
		UpdatedAt: u.At,
	}
}

// invokeCallbackSafe calls an update callback with panic recovery.
// Panics are logged with a correlation id but do not propagate.
func invokeCallbackSafe(cb func(Update), u Update, b *Board) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("update callback panicked",
				"correlation_id", uuid.NewString(),
				"panic", fmt.Sprintf("%v", r),
				"view", u.View,
				"stack", string(debug.Stack()),
			)
		}
	}()
	cb(u)
}
