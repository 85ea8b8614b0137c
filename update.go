package trackboard

import (
	"time"

	"github.com/jpalmerr/trackboard/internal/api"
)

// View names. Each view is polled by its own controller and published under
// its name by the HTTP API and the SSE stream.
const (
	ViewDashboard = "dashboard"
	ViewLocations = "locations"
)

// Views lists every view in publication order.
var Views = []string{ViewDashboard, ViewLocations}

// Backend types re-exported for SDK users.
type (
	// Location is one recorded position of a tracked user.
	Location = api.Location

	// LocationsFilter filters, pages and orders the locations view.
	// Sort and Order only affect exports; listings are never ordered by
	// the backend.
	LocationsFilter = api.LocationsQuery

	// DashboardStats are the headline numbers of the dashboard view.
	DashboardStats = api.DashboardStats

	// ChartPoint is the number of locations recorded on one UTC day.
	ChartPoint = api.ChartPoint

	// ExportFormat selects the export encoding, [ExportCSV] or [ExportJSON].
	ExportFormat = api.ExportFormat
)

// Export formats.
const (
	ExportCSV  = api.ExportCSV
	ExportJSON = api.ExportJSON
)

// ParseExportFormat parses "csv" or "json", ignoring case and surrounding
// spaces.
func ParseExportFormat(s string) (ExportFormat, error) {
	return api.ParseExportFormat(s)
}

// ExportFilename returns the conventional file name of an export taken at
// now, such as "locations-2024-05-01T10:04:05.678Z.csv".
func ExportFilename(format ExportFormat, now time.Time) string {
	return api.ExportFilename(format, now)
}

// DashboardData is the value of the dashboard view.
type DashboardData struct {
	Stats  DashboardStats `json:"stats"`
	Recent []Location     `json:"recent"`
	Chart  []ChartPoint   `json:"chart"`
}

// LocationsData is the value of the locations view: one page of the
// filtered listing plus every matching location for the map.
type LocationsData struct {
	Items  []Location      `json:"items"`
	Total  int             `json:"total"`
	Page   int             `json:"page"`
	Pages  int             `json:"pages"`
	All    []Location      `json:"all"`
	Filter LocationsFilter `json:"filter"`
}

// Update is delivered to callbacks registered with [WithUpdateCallback]
// every time a view's published state changes.
//
// Data is a [DashboardData] or [LocationsData] depending on View, and is
// nil until the view's first successful fetch. After a failed fetch Err is
// set and Data keeps the last good value.
type Update struct {
	View    string
	Data    any
	Err     error
	Loading bool

	// State is the poller state: "idle", "waiting", "fetching" or "stopped".
	State string

	At time.Time
}
