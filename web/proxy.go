package web

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"
)

// NewBackendProxy forwards requests unchanged to target. Path and query are
// kept, so /api/orders?page=2 reaches target/api/orders?page=2.
func NewBackendProxy(target *url.URL, logger *log.Logger) echo.MiddlewareFunc {
	balancer := middleware.NewRoundRobinBalancer([]*middleware.ProxyTarget{{Name: "backend", URL: target}})
	return middleware.ProxyWithConfig(middleware.ProxyConfig{
		Balancer: balancer,
		ModifyResponse: func(res *http.Response) error {
			if res.StatusCode >= http.StatusInternalServerError {
				logger.WithFields(log.Fields{
					"path":   res.Request.URL.Path,
					"status": res.StatusCode,
				}).Warn("backend error response")
			}
			return nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			logger.WithError(err).WithField("path", c.Request().URL.Path).Error("backend unreachable")
			return echo.NewHTTPError(http.StatusBadGateway, "backend unavailable")
		},
	})
}
