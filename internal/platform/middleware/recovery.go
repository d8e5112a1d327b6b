package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/clinic/internal/platform/telemetry"
)

// Recovery turns a panic into a 500, logs the stack and reports it to
// Sentry.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}
				var stack [4096]byte
				n := runtime.Stack(stack[:], false)

				rid, _ := c.Get("request_id").(string)
				logger.Error().
					Str("request_id", rid).
					Str("route", c.Path()).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(stack[:n])).
					Msg("panic recovered")

				telemetry.CapturePanic(c.Request().Context(), r, telemetry.Tags{
					"request_id": rid,
					"route":      c.Path(),
				})
				err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
			}()
			return next(c)
		}
	}
}

// ReportErrors sends unexpected handler errors (anything that is not an
// echo.HTTPError below 500) to Sentry.
func ReportErrors() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}
			if he, ok := err.(*echo.HTTPError); ok && he.Code < http.StatusInternalServerError {
				return err
			}
			rid, _ := c.Get("request_id").(string)
			telemetry.CaptureError(c.Request().Context(), err, telemetry.Tags{
				"request_id": rid,
				"route":      c.Path(),
				"method":     c.Request().Method,
			})
			return err
		}
	}
}
