package terminology

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ehr/clinic/internal/platform/auth"
)

// Handler provides REST endpoints for the diagnosis catalog.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers catalog routes on the API group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/diagnosis-codes", auth.RequireRole(auth.RolePractitioner, auth.RoleAssistant, auth.RoleBilling))
	g.GET("", h.Search)
	g.GET("/:code", h.Get)
}

// Search handles GET /api/v1/diagnosis-codes?q=...&limit=...
func (h *Handler) Search(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	results, err := h.svc.Search(c.Request().Context(), c.QueryParam("q"), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  results,
		"total": len(results),
	})
}

// Get handles GET /api/v1/diagnosis-codes/:code
func (h *Handler) Get(c echo.Context) error {
	d, err := h.svc.Lookup(c.Request().Context(), c.Param("code"))
	if err != nil {
		if errors.Is(err, ErrCodeNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "diagnosis code not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, d)
}
