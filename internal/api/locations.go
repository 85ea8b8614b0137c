package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// allLocationsLimit asks the backend for the whole filtered set in one page.
const allLocationsLimit = 1000000

// Coordinate is a latitude or longitude. The backend sends coordinates
// either as JSON numbers or as decimal strings.
type Coordinate float64

func (c *Coordinate) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*c = 0
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		s = strings.TrimSpace(str)
		if s == "" {
			*c = 0
			return nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid coordinate %s: %w", string(data), err)
	}
	*c = Coordinate(f)
	return nil
}

// Location is one recorded position of a tracked user.
type Location struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId"`
	FullName     string     `json:"fullName"`
	Latitude     Coordinate `json:"latitude"`
	Longitude    Coordinate `json:"longitude"`
	Timestamp    string     `json:"timestamp"`
	BatteryLevel *float64   `json:"battery_level,omitempty"`
	Address      *string    `json:"address,omitempty"`
	Description  *string    `json:"description,omitempty"`
	Admin        *string    `json:"admin,omitempty"`
	AdminID      *string    `json:"admin_id,omitempty"`
	CreatedAt    string     `json:"created_at,omitempty"`
	UpdatedAt    string     `json:"updated_at,omitempty"`
}

// Time parses the location's timestamp.
func (l Location) Time() (time.Time, error) {
	return parseDate(l.Timestamp)
}

// LocationsQuery filters, pages and orders location listings.
// Zero values mean "not set".
type LocationsQuery struct {
	UserID    string `json:"userId,omitempty" validate:"omitempty,max=128"`
	FullName  string `json:"fullName,omitempty" validate:"omitempty,max=256"`
	StartDate string `json:"startDate,omitempty" validate:"omitempty,isodate"`
	EndDate   string `json:"endDate,omitempty" validate:"omitempty,isodate"`
	Page      int    `json:"page,omitempty" validate:"gte=0"`
	Limit     int    `json:"limit,omitempty" validate:"gte=0,lte=1000000"`
	Sort      string `json:"sort,omitempty" validate:"omitempty,max=64"`
	Order     string `json:"order,omitempty" validate:"omitempty,oneof=asc desc"`
}

// Validate checks field formats and that the date range is not inverted.
func (q LocationsQuery) Validate() error {
	if err := validateStruct(q); err != nil {
		return err
	}
	if q.StartDate != "" && q.EndDate != "" {
		start, _ := parseDate(q.StartDate)
		end, _ := parseDate(q.EndDate)
		if start.After(end) {
			return errors.New("invalid query: startDate is after endDate")
		}
	}
	return nil
}

// Filter returns q without paging and ordering.
func (q LocationsQuery) Filter() LocationsQuery {
	return LocationsQuery{
		UserID:    q.UserID,
		FullName:  q.FullName,
		StartDate: q.StartDate,
		EndDate:   q.EndDate,
	}
}

// values encodes the filter fields, plus paging and ordering when asked for.
func (q LocationsQuery) values(paging, ordering bool) url.Values {
	v := url.Values{}
	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	set("userId", q.UserID)
	set("fullName", q.FullName)
	set("startDate", q.StartDate)
	set("endDate", q.EndDate)
	if paging {
		if q.Page > 0 {
			v.Set("page", strconv.Itoa(q.Page))
		}
		if q.Limit > 0 {
			v.Set("limit", strconv.Itoa(q.Limit))
		}
	}
	if ordering {
		set("sort", q.Sort)
		set("order", q.Order)
	}
	return v
}

// LocationsResponse is one page of locations.
type LocationsResponse struct {
	Items []Location `json:"items"`
	Total int        `json:"total"`
	Page  int        `json:"page"`
	Pages int        `json:"pages"`
}

// GetLocations returns one page of locations matching q. Sort and order are
// never sent: the listing endpoint rejects them.
func (c *Client) GetLocations(ctx context.Context, q LocationsQuery) (*LocationsResponse, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return c.listLocations(ctx, q.values(true, false))
}

// GetAllLocations returns every location matching the filter fields of q.
func (c *Client) GetAllLocations(ctx context.Context, q LocationsQuery) ([]Location, error) {
	q = q.Filter()
	if err := q.Validate(); err != nil {
		return nil, err
	}
	v := q.values(false, false)
	v.Set("limit", strconv.Itoa(allLocationsLimit))

	page, err := c.listLocations(ctx, v)
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

func (c *Client) listLocations(ctx context.Context, v url.Values) (*LocationsResponse, error) {
	r := request{
		method:  http.MethodGet,
		path:    "/locations",
		query:   v,
		session: true,
	}
	resp, err := c.do(ctx, r)
	if err != nil {
		return nil, err
	}
	page, err := decode[LocationsResponse](r, resp)
	if err != nil {
		return nil, err
	}
	if page.Items == nil {
		page.Items = []Location{}
	}
	return &page, nil
}

// DeleteLocation removes the location with the given id.
func (c *Client) DeleteLocation(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("location id is required")
	}
	_, err := c.do(ctx, request{
		method:  http.MethodDelete,
		path:    "/locations/" + url.PathEscape(id),
		route:   "/locations/{id}",
		session: true,
	})
	return err
}

// ExportFormat selects the export file type.
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportJSON ExportFormat = "json"
)

// ParseExportFormat accepts "csv" or "json" in any case.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case ExportCSV, ExportJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported export format %q (want csv or json)", s)
	}
}

func (f ExportFormat) contentType() string {
	if f == ExportJSON {
		return "application/json"
	}
	return "text/csv"
}

// ExportFilename is the download name for an export made at now,
// e.g. locations-2024-05-01T10:00:00.000Z.csv.
func ExportFilename(format ExportFormat, now time.Time) string {
	return "locations-" + now.UTC().Format("2006-01-02T15:04:05.000Z") + "." + string(format)
}

// ExportCSV writes every location matching q as CSV to w. Filters, sort and
// order are applied; paging is not.
func (c *Client) ExportCSV(ctx context.Context, q LocationsQuery, w io.Writer) (int64, error) {
	return c.Export(ctx, ExportCSV, q, w)
}

// ExportJSON writes every location matching q as JSON to w.
func (c *Client) ExportJSON(ctx context.Context, q LocationsQuery, w io.Writer) (int64, error) {
	return c.Export(ctx, ExportJSON, q, w)
}

// Export streams the export in the given format to w and returns the number
// of bytes written. The body is copied as it arrives and is not size capped.
func (c *Client) Export(ctx context.Context, format ExportFormat, q LocationsQuery, w io.Writer) (int64, error) {
	if _, err := ParseExportFormat(string(format)); err != nil {
		return 0, err
	}
	if err := q.Validate(); err != nil {
		return 0, err
	}

	cw := &countingWriter{w: w}
	r := request{
		method:  http.MethodGet,
		path:    "/locations/export/" + string(format),
		query:   q.values(false, true),
		accept:  format.contentType(),
		session: true,
		sink:    cw,
	}
	resp, err := c.do(ctx, r)
	if err != nil {
		return cw.n, err
	}
	return resp.written, nil
}

// countingWriter tracks bytes handed to w, so a failed export reports how
// much was already written.
type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
