package db

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestExtractTenantID(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		header string
		claim  interface{}
		want   string
	}{
		{name: "default", want: "default"},
		{name: "query", query: "clinic_sur", want: "clinic_sur"},
		{name: "header over query", query: "clinic_sur", header: "clinic_norte", want: "clinic_norte"},
		{name: "claim over header", header: "clinic_norte", claim: "clinic_centro", want: "clinic_centro"},
		{name: "empty claim falls through", header: "clinic_norte", claim: "", want: "clinic_norte"},
		{name: "non-string claim ignored", claim: 42, want: "default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/"
			if tt.query != "" {
				target += "?tenant_id=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set(TenantHeader, tt.header)
			}
			c := echo.New().NewContext(req, httptest.NewRecorder())
			if tt.claim != nil {
				c.Set("jwt_tenant_id", tt.claim)
			}
			if got := extractTenantID(c, "default"); got != tt.want {
				t.Errorf("extractTenantID = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTenantMiddleware_RejectsInvalidTenant(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TenantHeader, "north;drop")
	c := e.NewContext(req, httptest.NewRecorder())

	called := false
	h := TenantMiddleware(nil, "default")(func(echo.Context) error {
		called = true
		return nil
	})
	err := h(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
	if called {
		t.Error("handler ran for an invalid tenant")
	}
}

func TestValidTenantID(t *testing.T) {
	for _, id := range []string{"abc", "ABC", "clinic_1", "a", "A1B2C3"} {
		if !ValidTenantID(id) {
			t.Errorf("ValidTenantID(%q) = false, want true", id)
		}
	}
	for _, id := range []string{"", "a-b", "a.b", "a b", "a/b", "$pecial", "drop;table"} {
		if ValidTenantID(id) {
			t.Errorf("ValidTenantID(%q) = true, want false", id)
		}
	}
}

func TestInvalidTenantNeverReachesThePool(t *testing.T) {
	ctx := context.Background()
	for _, id := range []string{"tenant-with-dash", "ten ant", "drop;table"} {
		if err := CreateTenantSchema(ctx, nil, id, nil); err == nil {
			t.Errorf("CreateTenantSchema(%q) expected error", id)
		}
		if _, _, err := AcquireTenant(ctx, nil, id); err == nil {
			t.Errorf("AcquireTenant(%q) expected error", id)
		}
	}
}

func TestSchemaName(t *testing.T) {
	if got := SchemaName("clinic_norte"); got != "tenant_clinic_norte" {
		t.Errorf("SchemaName = %s", got)
	}
	if got := searchPath("tenant_a"); got != "SET search_path TO tenant_a, public" {
		t.Errorf("unexpected search_path statement: %s", got)
	}
}

func TestContextAccessors(t *testing.T) {
	if ConnFromContext(context.Background()) != nil {
		t.Error("expected nil conn from empty context")
	}
	if ConnFromContext(context.WithValue(context.Background(), DBConnKey, "not-a-conn")) != nil {
		t.Error("expected nil conn for a value of the wrong type")
	}
	if got := TenantFromContext(context.WithValue(context.Background(), TenantIDKey, "clinic_norte")); got != "clinic_norte" {
		t.Errorf("TenantFromContext = %q", got)
	}
	if got := TenantFromContext(context.WithValue(context.Background(), TenantIDKey, 12345)); got != "" {
		t.Errorf("expected empty tenant for wrong type, got %q", got)
	}
}
