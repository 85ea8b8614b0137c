// Package api is the client for the location-tracking backend REST API.
//
// A [Client] is explicitly constructed and owns everything the requests
// share: the pooled HTTP transport, the token store, the device fingerprint,
// a client-side rate limiter and a circuit breaker. Every request carries
// the stored access token as a bearer token. A 401 response triggers a single
// token refresh followed by one retry of the original request; when no
// refresh token is available or the refresh fails, the stored tokens are
// cleared and the auth-lost handler is called.
//
// Methods map one-to-one onto backend operations: authentication
// ([Client.Login], [Client.Logout], [Client.Refresh]), location listing and
// export ([Client.GetLocations], [Client.ExportCSV]) and the dashboard
// aggregates ([Client.GetDashboardStats], [Client.GetChartData]).
package api
