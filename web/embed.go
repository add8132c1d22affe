// Package web serves the RepriceLab site: marketing pages, the dashboard
// shell, the admin kanban page, the service worker and the backend proxy.
package web

import "embed"

//go:embed templates/*.html static
var ContentFS embed.FS
