package pagination

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestFromContext(t *testing.T) {
	tests := []struct {
		query  string
		limit  int
		offset int
	}{
		{"", DefaultLimit, 0},
		{"?limit=5&offset=10", 5, 10},
		{"?limit=0", DefaultLimit, 0},
		{"?limit=-3&offset=-1", DefaultLimit, 0},
		{"?limit=500", MaxLimit, 0},
		{"?limit=abc&offset=xyz", DefaultLimit, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/"+tt.query, nil)
			c := e.NewContext(req, httptest.NewRecorder())

			p := FromContext(c)
			if p.Limit != tt.limit || p.Offset != tt.offset {
				t.Errorf("got %+v, want limit=%d offset=%d", p, tt.limit, tt.offset)
			}
		})
	}
}

func TestNewResponse(t *testing.T) {
	r := NewResponse([]string{"a"}, 25, Params{Limit: 10, Offset: 10})
	if !r.HasMore {
		t.Error("expected has_more for 10+10 < 25")
	}
	r = NewResponse([]string{"a"}, 20, Params{Limit: 10, Offset: 10})
	if r.HasMore {
		t.Error("expected no more results for 10+10 == 20")
	}
}

func TestResponse_WithNext(t *testing.T) {
	q := url.Values{"status": {"draft"}, "offset": {"0"}}
	r := NewResponse(nil, 30, Params{Limit: 10, Offset: 0}).WithNext("/api/v1/patients/p/consultations", q)
	want := "/api/v1/patients/p/consultations?limit=10&offset=10&status=draft"
	if r.Next != want {
		t.Errorf("expected %s, got %s", want, r.Next)
	}
	if q.Get("offset") != "0" {
		t.Error("WithNext must not mutate the caller's query")
	}

	last := NewResponse(nil, 5, Params{Limit: 10}).WithNext("/x", nil)
	if last.Next != "" {
		t.Errorf("expected no next link on the last page, got %s", last.Next)
	}
}
