package consultation

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/clinic/internal/domain/diagnosis"
	"github.com/ehr/clinic/internal/platform/auth"
	"github.com/ehr/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – practitioner, assistant
	read := api.Group("", auth.RequireRole(auth.RolePractitioner, auth.RoleAssistant))
	read.GET("/patients/:patient_id/diagnoses/current", h.CurrentStatuses)
	read.GET("/patients/:patient_id/diagnoses", h.History)
	read.GET("/patients/:patient_id/consultations", h.ListByPatient)
	read.POST("/patients/:patient_id/consultations/preview", h.Preview)
	read.GET("/consultations/:id", h.Get)

	// Write endpoints – practitioner
	write := api.Group("", auth.RequireRole(auth.RolePractitioner))
	write.POST("/patients/:patient_id/consultations", h.Create)
	write.PUT("/patients/:patient_id/diagnoses/:code/status", h.OverrideStatus)
	write.PATCH("/consultations/:id/status", h.Transition)
}

// toHTTPError maps service errors to HTTP status codes.
func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrInvalidStatus),
		errors.Is(err, diagnosis.ErrInvalidStatus),
		errors.Is(err, diagnosis.ErrEmptyCode):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func patientParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("patient_id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	return id, nil
}

func (h *Handler) CurrentStatuses(c echo.Context) error {
	pid, err := patientParam(c)
	if err != nil {
		return err
	}
	snap, err := h.svc.CurrentStatuses(c.Request().Context(), pid)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, snap)
}

func (h *Handler) History(c echo.Context) error {
	pid, err := patientParam(c)
	if err != nil {
		return err
	}
	groups, err := h.svc.History(c.Request().Context(), pid, c.QueryParam("q"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  groups,
		"total": len(groups),
	})
}

type previewRequest struct {
	Diagnoses []SelectedCode `json:"diagnoses"`
}

func (h *Handler) Preview(c echo.Context) error {
	pid, err := patientParam(c)
	if err != nil {
		return err
	}
	var req previewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.svc.Preview(c.Request().Context(), pid, req.Diagnoses)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Create(c echo.Context) error {
	pid, err := patientParam(c)
	if err != nil {
		return err
	}
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	in.PatientID = pid
	in.PractitionerID = auth.UserIDFromContext(ctx)

	res, err := h.svc.Create(ctx, in)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	pid, err := patientParam(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), pid, pg)
	if err != nil {
		return toHTTPError(err)
	}
	if items == nil {
		items = []*Consultation{}
	}
	resp := pagination.NewResponse(items, total, pg).WithNext(c.Request().URL.Path, c.QueryParams())
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	cons, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, cons)
}

type statusRequest struct {
	Status string `json:"status"`
}

// OverrideStatus handles PUT /patients/:patient_id/diagnoses/:code/status
func (h *Handler) OverrideStatus(c echo.Context) error {
	pid, err := patientParam(c)
	if err != nil {
		return err
	}
	code, err := url.PathUnescape(c.Param("code"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid code")
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.svc.OverrideStatus(c.Request().Context(), pid, code, req.Status)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// Transition handles PATCH /consultations/:id/status
func (h *Handler) Transition(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	cons, err := h.svc.Transition(c.Request().Context(), id, req.Status)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, cons)
}
