package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jpalmerr/trackboard/internal/mockbackend"
)

var dashboardNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func TestGetDashboardStats(t *testing.T) {
	tests := []struct {
		name     string
		asObject bool
	}{
		{"tracks as array", false},
		{"tracks as object", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, baseURL := newMockBackend(t,
				mockbackend.WithLocations(sampleLocations(dashboardNow)...),
				mockbackend.WithTracks(7, tt.asObject),
			)
			c := loggedInClient(t, baseURL)

			stats, err := c.GetDashboardStats(context.Background(), dashboardNow)
			if err != nil {
				t.Fatalf("GetDashboardStats() error = %v", err)
			}

			want := DashboardStats{
				TotalLocations: 4,
				TotalUsers:     3,
				TotalTracks:    7,
				RecentActivity: 2,
			}
			if *stats != want {
				t.Errorf("stats = %+v, want %+v", *stats, want)
			}
		})
	}
}

func TestGetDashboardStats_PropagatesErrors(t *testing.T) {
	backend, baseURL := newMockBackend(t, mockbackend.WithLocations(sampleLocations(dashboardNow)...))
	c := loggedInClient(t, baseURL)
	backend.FailNext(3, http.StatusInternalServerError)

	if _, err := c.GetDashboardStats(context.Background(), dashboardNow); err == nil {
		t.Fatal("expected error, got zeroed stats")
	}
}

func TestCountTracks_UnexpectedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`"seven"`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	n, err := c.countTracks(context.Background())
	if err != nil {
		t.Fatalf("countTracks() error = %v", err)
	}
	if n != 0 {
		t.Errorf("countTracks() = %d, want 0", n)
	}
}

func TestGetRecentActivity(t *testing.T) {
	var gotLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLimit = r.URL.Query().Get("limit")
		items := ""
		for i := range 10 {
			if i > 0 {
				items += ","
			}
			items += fmt.Sprintf(`{"id":"%d","latitude":"1","longitude":1}`, i)
		}
		_, _ = fmt.Fprintf(w, `{"items":[%s],"total":25,"page":1,"pages":3}`, items)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	items, err := c.GetRecentActivity(context.Background())
	if err != nil {
		t.Fatalf("GetRecentActivity() error = %v", err)
	}
	if gotLimit != "10" {
		t.Errorf("limit = %q, want 10", gotLimit)
	}
	if len(items) != 10 {
		t.Errorf("got %d items, want 10", len(items))
	}
}

func TestGetChartData_ZeroFilledBuckets(t *testing.T) {
	_, baseURL := newMockBackend(t, mockbackend.WithLocations(sampleLocations(dashboardNow)...))
	c := loggedInClient(t, baseURL)

	points, err := c.GetChartData(context.Background(), dashboardNow)
	if err != nil {
		t.Fatalf("GetChartData() error = %v", err)
	}

	want := []ChartPoint{
		{Date: "2024-05-04", Count: 0},
		{Date: "2024-05-05", Count: 0},
		{Date: "2024-05-06", Count: 0},
		{Date: "2024-05-07", Count: 1},
		{Date: "2024-05-08", Count: 0},
		{Date: "2024-05-09", Count: 1},
		{Date: "2024-05-10", Count: 2},
	}
	if len(points) != len(want) {
		t.Fatalf("got %d points, want %d", len(points), len(want))
	}
	for i := range want {
		if points[i] != want[i] {
			t.Errorf("points[%d] = %+v, want %+v", i, points[i], want[i])
		}
	}
}

func TestGetChartData_QueryWindow(t *testing.T) {
	var gotStart, gotEnd, gotLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotStart, gotEnd, gotLimit = q.Get("startDate"), q.Get("endDate"), q.Get("limit")
		_, _ = w.Write([]byte(`{"items":[],"total":0,"page":1,"pages":0}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	points, err := c.GetChartData(context.Background(), dashboardNow)
	if err != nil {
		t.Fatalf("GetChartData() error = %v", err)
	}
	if gotStart != "2024-05-04T12:00:00.000Z" || gotEnd != "2024-05-10T12:00:00.000Z" {
		t.Errorf("window = %s .. %s", gotStart, gotEnd)
	}
	if gotLimit != "1000" {
		t.Errorf("limit = %q, want 1000", gotLimit)
	}
	for _, p := range points {
		if p.Count != 0 {
			t.Errorf("expected empty chart, got %+v", p)
		}
	}
}
