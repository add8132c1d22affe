package web

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// RegisterMetrics records request metrics into reg and serves them on
// /metrics. A nil reg uses a fresh registry.
func RegisterMetrics(e *echo.Echo, reg *prometheus.Registry) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "repricelab",
		Registerer: reg,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	}))
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: reg}))
}
