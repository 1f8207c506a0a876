package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/totegamma/restoration-forms/internal/domain"
	"github.com/totegamma/restoration-forms/internal/infra/memory"
	"github.com/totegamma/restoration-forms/internal/usecase"
)

func ptrStr(s string) *string { return &s }

type testServer struct {
	e    *echo.Echo
	site *domain.FormModel
}

func newTestServer(t *testing.T, health map[string]HealthCheck) *testServer {
	t.Helper()
	table, err := domain.DefaultLinkedFields()
	if err != nil {
		t.Fatalf("load linked fields: %v", err)
	}
	store := memory.NewStore()
	site := store.PutEntity(domain.FormModel{Kind: domain.OwnerSite, Properties: map[string]any{"name": "Old"}})
	store.PutForm(domain.Form{
		UUID: "form-1",
		Questions: []domain.Question{
			{ID: "q-name", LinkedFieldKey: ptrStr("site-name"), Order: 0},
			{ID: "q-invasives", LinkedFieldKey: ptrStr("site-rel-invasives"), Order: 1},
		},
	})

	uc := usecase.NewFormUsecase(store, store, store, table)
	h := NewHandler(uc, nil, health)

	e := echo.New()
	h.RegisterRoutes(e)
	return &testServer{e: e, site: site}
}

func (s *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	res := httptest.NewRecorder()
	s.e.ServeHTTP(res, req)
	return res
}

func TestHandleSyncThenCollect(t *testing.T) {
	s := newTestServer(t, nil)

	body := `{"models":{"sites":"` + s.site.UUID + `"},"answers":{"q-name":"New","q-invasives":[{"name":"lantana","type":"common"}]}}`
	res := s.do(http.MethodPut, "/forms/form-1/answers", body)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", res.Code, res.Body.String())
	}
	var result usecase.SyncResult
	if err := json.Unmarshal(res.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode sync result: %v", err)
	}
	if len(result.Questions) != 2 {
		t.Fatalf("expected both questions synced, got %v", result.Questions)
	}

	res = s.do(http.MethodGet, "/forms/form-1/answers?sites="+s.site.UUID, "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", res.Code, res.Body.String())
	}
	raw := res.Body.String()
	if strings.Index(raw, `"q-name"`) > strings.Index(raw, `"q-invasives"`) {
		t.Fatalf("expected answers in question order: %s", raw)
	}

	var payload struct {
		Answers map[string]json.RawMessage `json:"answers"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode answers: %v", err)
	}
	if string(payload.Answers["q-name"]) != `"New"` {
		t.Fatalf("unexpected name %s", payload.Answers["q-name"])
	}
	var invasives []map[string]any
	if err := json.Unmarshal(payload.Answers["q-invasives"], &invasives); err != nil {
		t.Fatalf("decode invasives: %v", err)
	}
	if len(invasives) != 1 || invasives[0]["name"] != "lantana" {
		t.Fatalf("unexpected invasives %v", invasives)
	}
}

func TestHandleErrorStatus(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{name: "unknown form", method: http.MethodGet, target: "/forms/nope/answers?sites=" + s.site.UUID, want: http.StatusNotFound},
		{name: "missing model", method: http.MethodGet, target: "/forms/form-1/answers", want: http.StatusUnprocessableEntity},
		{name: "stale model", method: http.MethodGet, target: "/forms/form-1/answers?sites=gone", want: http.StatusNotFound},
		{name: "malformed body", method: http.MethodPut, target: "/forms/form-1/answers", body: `{`, want: http.StatusBadRequest},
		{name: "no answers", method: http.MethodPut, target: "/forms/form-1/answers", body: `{"models":{}}`, want: http.StatusBadRequest},
		{
			name:   "answer of wrong shape",
			method: http.MethodPut,
			target: "/forms/form-1/answers",
			body:   `{"models":{"sites":"` + s.site.UUID + `"},"answers":{"q-invasives":"lantana"}}`,
			want:   http.StatusUnprocessableEntity,
		},
		{name: "clear a property", method: http.MethodDelete, target: "/forms/form-1/relations/q-name?sites=" + s.site.UUID, want: http.StatusUnprocessableEntity},
		{name: "clear a relation", method: http.MethodDelete, target: "/forms/form-1/relations/q-invasives?sites=" + s.site.UUID, want: http.StatusNoContent},
		{name: "realtime without redis", method: http.MethodGet, target: "/forms/form-1/realtime", want: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.do(tt.method, tt.target, tt.body)
			if res.Code != tt.want {
				t.Fatalf("expected %d got %d: %s", tt.want, res.Code, res.Body.String())
			}
		})
	}
}

func TestHandleHealth(t *testing.T) {
	healthy := newTestServer(t, map[string]HealthCheck{
		"postgres": func(ctx context.Context) error { return nil },
	})
	if res := healthy.do(http.MethodGet, "/health", ""); res.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", res.Code)
	}

	failing := newTestServer(t, map[string]HealthCheck{
		"postgres":  func(ctx context.Context) error { return nil },
		"memcached": func(ctx context.Context) error { return errors.New("connection refused") },
	})
	res := failing.do(http.MethodGet, "/health", "")
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", res.Code)
	}
	var status map[string]string
	if err := json.Unmarshal(res.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if status["postgres"] != "ok" || status["memcached"] != "connection refused" {
		t.Fatalf("unexpected health status %v", status)
	}
}
