package consultation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/clinic/internal/domain/diagnosis"
	"github.com/ehr/clinic/internal/platform/auth"
)

func newTestHandler() (*Handler, *Service, *echo.Echo) {
	svc, _, _ := newTestService()
	return NewHandler(svc), svc, echo.New()
}

func newJSONContext(e *echo.Echo, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	ctx := context.WithValue(req.Context(), auth.UserIDKey, "dr-1")
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func expectHTTPStatus(t *testing.T, err error, want int) {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError %d, got %v", want, err)
	}
	if he.Code != want {
		t.Errorf("expected %d, got %d (%v)", want, he.Code, he.Message)
	}
}

func TestHandler_Create(t *testing.T) {
	h, svc, e := newTestHandler()
	patient := uuid.New()

	body := `{"diagnoses":[{"code":"J45"},{"code":"J45"},{"code":"E11","keep_active":true}],
		"notes":{"reason":"Cough"},"vitals":{"weight":70}}`
	c, rec := newJSONContext(e, http.MethodPost, "/", body)
	c.SetParamNames("patient_id")
	c.SetParamValues(patient.String())

	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var res CreateResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Consultation.Entries) != 2 || len(res.Warnings) != 1 {
		t.Errorf("entries = %d warnings = %d", len(res.Consultation.Entries), len(res.Warnings))
	}
	if res.Consultation.PractitionerID != "dr-1" {
		t.Errorf("practitioner = %q", res.Consultation.PractitionerID)
	}
	if len(res.Consultation.Vitals) != 1 {
		t.Errorf("vitals = %d", len(res.Consultation.Vitals))
	}

	snap, _ := svc.CurrentStatuses(context.Background(), patient)
	if snap.Lookup("E11") != diagnosis.StatusPending {
		t.Errorf("E11 = %s, want pending", snap.Lookup("E11"))
	}
}

func TestHandler_Create_InvalidPatient(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := newJSONContext(e, http.MethodPost, "/", `{}`)
	c.SetParamNames("patient_id")
	c.SetParamValues("not-a-uuid")

	expectHTTPStatus(t, h.Create(c), http.StatusBadRequest)
}

func TestHandler_Create_BadBody(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := newJSONContext(e, http.MethodPost, "/", `{"diagnoses":`)
	c.SetParamNames("patient_id")
	c.SetParamValues(uuid.New().String())

	expectHTTPStatus(t, h.Create(c), http.StatusBadRequest)
}

func TestHandler_Create_NoPractitioner(t *testing.T) {
	h, _, e := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("patient_id")
	c.SetParamValues(uuid.New().String())

	expectHTTPStatus(t, h.Create(c), http.StatusBadRequest)
}

func TestHandler_Preview(t *testing.T) {
	h, _, e := newTestHandler()
	c, rec := newJSONContext(e, http.MethodPost, "/", `{"diagnoses":[]}`)
	c.SetParamNames("patient_id")
	c.SetParamValues(uuid.New().String())

	if err := h.Preview(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var p Preview
	json.Unmarshal(rec.Body.Bytes(), &p)
	if !p.Fallback || len(p.Items) != 1 || p.Items[0].Label != diagnosis.LabelNewActive {
		t.Errorf("unexpected preview %s", rec.Body.String())
	}
}

func TestHandler_CurrentStatuses(t *testing.T) {
	h, svc, e := newTestHandler()
	patient := uuid.New()
	create(t, svc, patient, SelectedCode{Code: "I10"})

	c, rec := newJSONContext(e, http.MethodGet, "/", "")
	c.SetParamNames("patient_id")
	c.SetParamValues(patient.String())

	if err := h.CurrentStatuses(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var snap map[string]string
	json.Unmarshal(rec.Body.Bytes(), &snap)
	if snap["I10"] != "confirmed" {
		t.Errorf("unexpected snapshot %s", rec.Body.String())
	}
}

func TestHandler_History(t *testing.T) {
	h, svc, e := newTestHandler()
	patient := uuid.New()
	create(t, svc, patient, SelectedCode{Code: "I10"}, SelectedCode{Code: "J45"})

	c, rec := newJSONContext(e, http.MethodGet, "/?q=asth", "")
	c.SetParamNames("patient_id")
	c.SetParamValues(patient.String())

	if err := h.History(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Data  []diagnosis.Group `json:"data"`
		Total int               `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Total != 1 || body.Data[0].Code != "J45" {
		t.Errorf("unexpected history %s", rec.Body.String())
	}
}

func TestHandler_OverrideStatus(t *testing.T) {
	h, svc, e := newTestHandler()
	patient := uuid.New()
	create(t, svc, patient, SelectedCode{Code: "Z00.0"})

	c, rec := newJSONContext(e, http.MethodPut, "/", `{"status":"pending"}`)
	c.SetParamNames("patient_id", "code")
	c.SetParamValues(patient.String(), "Z00.0")

	if err := h.OverrideStatus(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var res OverrideResult
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res.Updated != 1 || res.Status != diagnosis.StatusPending {
		t.Errorf("unexpected result %s", rec.Body.String())
	}
}

func TestHandler_OverrideStatus_Invalid(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := newJSONContext(e, http.MethodPut, "/", `{"status":"inactive"}`)
	c.SetParamNames("patient_id", "code")
	c.SetParamValues(uuid.New().String(), "E11")

	expectHTTPStatus(t, h.OverrideStatus(c), http.StatusBadRequest)
}

func TestHandler_Get(t *testing.T) {
	h, svc, e := newTestHandler()
	id := create(t, svc, uuid.New()).Consultation.ID

	c, rec := newJSONContext(e, http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues(id.String())
	if err := h.Get(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	c, _ = newJSONContext(e, http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	expectHTTPStatus(t, h.Get(c), http.StatusNotFound)

	c, _ = newJSONContext(e, http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues("nope")
	expectHTTPStatus(t, h.Get(c), http.StatusBadRequest)
}

func TestHandler_Transition(t *testing.T) {
	h, svc, e := newTestHandler()
	id := create(t, svc, uuid.New()).Consultation.ID

	c, rec := newJSONContext(e, http.MethodPatch, "/", `{"status":"signed"}`)
	c.SetParamNames("id")
	c.SetParamValues(id.String())
	if err := h.Transition(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var cons Consultation
	json.Unmarshal(rec.Body.Bytes(), &cons)
	if cons.Status != StatusSigned {
		t.Errorf("status = %s", cons.Status)
	}

	c, _ = newJSONContext(e, http.MethodPatch, "/", `{"status":"signed"}`)
	c.SetParamNames("id")
	c.SetParamValues(id.String())
	expectHTTPStatus(t, h.Transition(c), http.StatusConflict)
}

func TestHandler_ListByPatient(t *testing.T) {
	h, svc, e := newTestHandler()
	patient := uuid.New()
	for i := 0; i < 3; i++ {
		create(t, svc, patient)
	}

	c, rec := newJSONContext(e, http.MethodGet, "/api/v1/patients/"+patient.String()+"/consultations?limit=2", "")
	c.SetParamNames("patient_id")
	c.SetParamValues(patient.String())
	if err := h.ListByPatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Data    []Consultation `json:"data"`
		Total   int            `json:"total"`
		HasMore bool           `json:"has_more"`
		Next    string         `json:"next"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if len(body.Data) != 2 || body.Total != 3 || !body.HasMore {
		t.Errorf("unexpected page %s", rec.Body.String())
	}
	if !strings.Contains(body.Next, "offset=2") {
		t.Errorf("next = %q", body.Next)
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	h, _, e := newTestHandler()
	h.RegisterRoutes(e.Group("/api/v1"))

	want := []string{
		"GET /api/v1/patients/:patient_id/diagnoses/current",
		"GET /api/v1/patients/:patient_id/diagnoses",
		"GET /api/v1/patients/:patient_id/consultations",
		"POST /api/v1/patients/:patient_id/consultations/preview",
		"POST /api/v1/patients/:patient_id/consultations",
		"PUT /api/v1/patients/:patient_id/diagnoses/:code/status",
		"GET /api/v1/consultations/:id",
		"PATCH /api/v1/consultations/:id/status",
	}
	got := map[string]bool{}
	for _, r := range e.Routes() {
		got[r.Method+" "+r.Path] = true
	}
	for _, route := range want {
		if !got[route] {
			t.Errorf("route %s not registered", route)
		}
	}
}

func TestToHTTPError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrNotFound, http.StatusNotFound},
		{ErrInvalidTransition, http.StatusConflict},
		{diagnosis.ErrInvalidStatus, http.StatusBadRequest},
		{ErrInvalidInput, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		expectHTTPStatus(t, toHTTPError(tt.err), tt.want)
	}
}
