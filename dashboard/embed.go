// Package dashboard provides the embedded web UI assets for Trackboard.
//
// The page is a minimal status view driven by the SSE stream: one section
// per view with its state, last error and raw data, plus refresh and
// pause/resume buttons wired to the control API.
package dashboard

import "embed"

// Assets is an embedded filesystem containing the dashboard web UI.
//
// The filesystem structure is:
//
//	assets/
//	  index.html    - Status page with inline CSS and JavaScript
//
//go:embed assets/*
var Assets embed.FS
