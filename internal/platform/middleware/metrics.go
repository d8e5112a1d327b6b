package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/clinic/internal/platform/telemetry"
)

// Metrics records request count and latency per matched route.
func Metrics(m *telemetry.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.ObserveHTTP(c.Request().Method, route, responseStatus(c, err), time.Since(start))
			return err
		}
	}
}
