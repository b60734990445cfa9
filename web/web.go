// Package web carries the embedded assets for HTML report rendering and
// the dashboard served by the HTTP server.
package web

import "embed"

//go:embed static/css/report.css
var CSS string

//go:embed static/js/report.js
var JS string

//go:embed templates/*.html
var Templates embed.FS
