package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"
)

const (
	// statsSampleLimit bounds the listing used for user and activity counts.
	statsSampleLimit   = 10000
	recentLimit        = 10
	chartLimit         = 1000
	chartDays          = 7
	recentActivitySpan = 24 * time.Hour
)

// DashboardStats are the headline numbers of the dashboard.
type DashboardStats struct {
	TotalLocations int `json:"totalLocations"`
	TotalUsers     int `json:"totalUsers"`
	TotalTracks    int `json:"totalTracks"`

	// RecentActivity counts locations recorded in the last 24 hours.
	RecentActivity int `json:"recentActivity"`

	// LocationsTrend is a percentage change, when the backend provides one.
	LocationsTrend *float64 `json:"locationsTrend,omitempty"`
}

// ChartPoint is the number of locations recorded on one UTC day.
type ChartPoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// GetDashboardStats computes the dashboard numbers from three backend calls
// made in parallel: the location total, the track listing, and a sample of
// up to 10000 locations for unique users and last-24h activity.
func (c *Client) GetDashboardStats(ctx context.Context, now time.Time) (*DashboardStats, error) {
	var (
		total  int
		tracks int
		sample []Location
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		page, err := c.listLocations(gctx, url.Values{"limit": {"1"}})
		if err != nil {
			return fmt.Errorf("location total: %w", err)
		}
		total = page.Total
		return nil
	})
	g.Go(func() error {
		n, err := c.countTracks(gctx)
		if err != nil {
			return fmt.Errorf("track total: %w", err)
		}
		tracks = n
		return nil
	})
	g.Go(func() error {
		page, err := c.listLocations(gctx, url.Values{"limit": {strconv.Itoa(statsSampleLimit)}})
		if err != nil {
			return fmt.Errorf("location sample: %w", err)
		}
		sample = page.Items
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	users := make(map[string]struct{}, len(sample))
	recent := 0
	since := now.Add(-recentActivitySpan)
	for _, loc := range sample {
		users[loc.UserID] = struct{}{}
		if ts, err := loc.Time(); err == nil && !ts.Before(since) {
			recent++
		}
	}

	return &DashboardStats{
		TotalLocations: total,
		TotalUsers:     len(users),
		TotalTracks:    tracks,
		RecentActivity: recent,
	}, nil
}

// countTracks reads /track, which answers either with an array of tracks or
// with an object carrying a total.
func (c *Client) countTracks(ctx context.Context) (int, error) {
	r := request{
		method:  http.MethodGet,
		path:    "/track",
		session: true,
	}
	resp, err := c.do(ctx, r)
	if err != nil {
		return 0, err
	}

	body := bytes.TrimSpace(resp.body)
	if len(body) > 0 && body[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return 0, fmt.Errorf("failed to decode tracks: %w", err)
		}
		return len(items), nil
	}

	var obj struct {
		Total int `json:"total"`
	}
	if len(body) > 0 && body[0] == '{' {
		if err := json.Unmarshal(body, &obj); err != nil {
			return 0, fmt.Errorf("failed to decode tracks: %w", err)
		}
	}
	return obj.Total, nil
}

// GetRecentActivity returns the 10 most recent locations.
func (c *Client) GetRecentActivity(ctx context.Context) ([]Location, error) {
	page, err := c.listLocations(ctx, url.Values{"limit": {strconv.Itoa(recentLimit)}})
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

// GetChartData returns the number of locations per UTC day for the 7 days
// ending at now, oldest first. Days without locations are present with a
// zero count.
func (c *Client) GetChartData(ctx context.Context, now time.Time) ([]ChartPoint, error) {
	end := now.UTC()
	start := end.AddDate(0, 0, -(chartDays - 1))

	page, err := c.listLocations(ctx, url.Values{
		"startDate": {isoTime(start)},
		"endDate":   {isoTime(end)},
		"limit":     {strconv.Itoa(chartLimit)},
	})
	if err != nil {
		return nil, err
	}

	points := make([]ChartPoint, chartDays)
	index := make(map[string]int, chartDays)
	for i := range points {
		day := start.AddDate(0, 0, i).Format(time.DateOnly)
		points[i] = ChartPoint{Date: day}
		index[day] = i
	}

	for _, loc := range page.Items {
		ts, err := loc.Time()
		if err != nil {
			continue
		}
		if i, ok := index[ts.UTC().Format(time.DateOnly)]; ok {
			points[i].Count++
		}
	}
	return points, nil
}

// isoTime formats t the way the backend expects query timestamps.
func isoTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
