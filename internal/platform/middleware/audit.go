package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/clinic/internal/platform/auth"
)

// AuditEntry records one access to patient clinical data.
type AuditEntry struct {
	Timestamp      time.Time
	RequestID      string
	TenantID       string
	UserID         string
	UserRoles      []string
	PatientID      string
	ConsultationID string
	Action         string // read, create, update
	Method         string
	Route          string
	IPAddress      string
	StatusCode     int
}

// AuditRecorder persists audit entries. Without one the middleware only logs.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs every request that touches a patient's record or a
// consultation, after the handler has run.
func Audit(logger zerolog.Logger, recorder AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if !isAuditableRoute(route) {
				return next(c)
			}

			err := next(c)

			req := c.Request()
			ctx := req.Context()
			entry := AuditEntry{
				Timestamp:  time.Now().UTC(),
				UserID:     auth.UserIDFromContext(ctx),
				UserRoles:  auth.RolesFromContext(ctx),
				PatientID:  c.Param("patient_id"),
				Action:     httpMethodToAction(req.Method),
				Method:     req.Method,
				Route:      route,
				IPAddress:  c.RealIP(),
				StatusCode: responseStatus(c, err),
			}
			if strings.HasPrefix(route, "/api/v1/consultations/") {
				entry.ConsultationID = c.Param("id")
			}
			entry.RequestID, _ = c.Get("request_id").(string)
			entry.TenantID, _ = c.Get("tenant_id").(string)

			if recorder != nil {
				if recErr := recorder.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "clinical_audit").
				Str("request_id", entry.RequestID).
				Str("tenant_id", entry.TenantID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("patient_id", entry.PatientID).
				Str("consultation_id", entry.ConsultationID).
				Str("action", entry.Action).
				Str("route", entry.Route).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("clinical_access")

			return err
		}
	}
}

func isAuditableRoute(route string) bool {
	return strings.HasPrefix(route, "/api/v1/patients/") ||
		strings.HasPrefix(route, "/api/v1/consultations/")
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}
