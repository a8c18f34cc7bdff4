package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"kiln/internal/api"
	"kiln/internal/testsupport"
)

func serve(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return out
}

func TestAPIJobLifecycle(t *testing.T) {
	fx := newDaemonFixture(t, nil)
	h := fx.daemon.api.server.Handler

	w := serve(t, h, http.MethodPost, "/api/jobs", `{"prompt":"a red kite","batch_size":2}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("submit status = %d body=%s", w.Code, w.Body.String())
	}
	submitted := decode[api.JobListResponse](t, w)
	if len(submitted.Jobs) != 2 || submitted.Jobs[0].Status != "pending" {
		t.Fatalf("unexpected submit response: %+v", submitted)
	}
	id := submitted.Jobs[0].ID

	w = serve(t, h, http.MethodGet, "/api/jobs?status=pending", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	if listed := decode[api.JobListResponse](t, w); len(listed.Jobs) != 2 {
		t.Fatalf("expected 2 pending jobs, got %d", len(listed.Jobs))
	}

	w = serve(t, h, http.MethodGet, "/api/jobs/"+id, "", nil)
	if got := decode[api.JobResponse](t, w); got.Job.ID != id || got.Job.Prompt != "a red kite" {
		t.Fatalf("unexpected job response: %+v", got)
	}

	w = serve(t, h, http.MethodPost, "/api/jobs/"+id+"/cancel", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel status = %d body=%s", w.Code, w.Body.String())
	}
	if got := decode[api.JobResponse](t, w); got.Job.Status != "failed" || got.Job.Error != "cancelled by user" {
		t.Fatalf("unexpected cancel response: %+v", got.Job)
	}
}

func TestAPIErrors(t *testing.T) {
	fx := newDaemonFixture(t, nil)
	h := fx.daemon.api.server.Handler

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		kind   string
	}{
		{"empty prompt", http.MethodPost, "/api/jobs", `{"prompt":" "}`, http.StatusBadRequest, "validation"},
		{"bad batch", http.MethodPost, "/api/jobs", `{"prompt":"x","batch_size":11}`, http.StatusBadRequest, "validation"},
		{"unknown field", http.MethodPost, "/api/jobs", `{"prompt":"x","colour":"red"}`, http.StatusBadRequest, "validation"},
		{"bad status filter", http.MethodGet, "/api/jobs?status=lost", "", http.StatusBadRequest, "validation"},
		{"missing job", http.MethodGet, "/api/jobs/ffffffff", "", http.StatusNotFound, "not_found"},
		{"cancel missing job", http.MethodPost, "/api/jobs/ffffffff/cancel", "", http.StatusNotFound, "not_found"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(t, h, tc.method, tc.path, tc.body, nil)
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d (body=%s)", w.Code, tc.status, w.Body.String())
			}
			if got := decode[api.ErrorResponse](t, w); got.Kind != tc.kind || got.Error == "" {
				t.Fatalf("unexpected error body: %+v", got)
			}
		})
	}
}

func TestAPIProvidersAndReload(t *testing.T) {
	fx := newDaemonFixture(t, nil)
	h := fx.daemon.api.server.Handler

	manifest := `
[plugin]
id = "acme"
name = "Acme"
version = "1.0.0"
base_url = "https://api.acme.example"

[models]
image = ["acme-img"]

[submit]
method = "POST"
url = "{{.BaseURL}}/v1/jobs"
body = '{"prompt": {{json .Prompt}}}'

[submit.response]
task_id = "id"

[status]
method = "GET"
url = "{{.BaseURL}}/v1/jobs/{{.TaskID}}"

[status.response]
status = "state"
result_url = "output"

[status.vocabulary]
completed = ["done"]
failed = ["failed"]
`
	testsupport.WriteBytes(t, filepath.Join(fx.cfg.Paths.PluginDir, "acme.toml"), []byte(manifest))

	w := serve(t, h, http.MethodPost, "/api/providers/reload", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reload status = %d body=%s", w.Code, w.Body.String())
	}
	report := decode[api.ReloadReport](t, w)
	if len(report.Loaded) != 1 || report.Loaded[0] != "acme" || len(report.Rejected) != 0 {
		t.Fatalf("unexpected reload report: %+v", report)
	}

	w = serve(t, h, http.MethodGet, "/api/providers", "", nil)
	providers := decode[api.ProviderListResponse](t, w)
	var sawMock, sawAcme bool
	for _, p := range providers.Providers {
		if p.ID == "acme" {
			sawAcme = p.Provenance == "external"
		}
		if p.ID == "mock" {
			sawMock = true
			if !p.Default {
				t.Fatal("mock should be the configured default provider")
			}
		}
	}
	if !sawAcme {
		t.Fatal("external provider acme missing after reload")
	}
	if !sawMock {
		t.Fatalf("mock provider missing from %+v", providers.Providers)
	}
}

func TestAPIAuthToken(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIToken = "s3cret"
	fx := newDaemonFixture(t, cfg)
	h := fx.daemon.api.server.Handler

	if w := serve(t, h, http.MethodGet, "/api/status", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	if w := serve(t, h, http.MethodGet, "/api/status", "", map[string]string{"Authorization": "Bearer wrong"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong token, got %d", w.Code)
	}
	w := serve(t, h, http.MethodGet, "/api/status", "", map[string]string{"Authorization": "Bearer s3cret"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}
	if status := decode[api.DaemonStatus](t, w); status.ProviderID != "mock" {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestAPIMetricsOverNetwork(t *testing.T) {
	fx := newDaemonFixture(t, nil)
	if err := fx.daemon.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	addr := fx.daemon.api.addr()
	if addr == "" {
		t.Fatal("api server not listening")
	}

	resp, err := http.Get("http://" + addr + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}
	if !bytes.Contains(body, []byte("kiln_plugins_loaded")) {
		t.Fatalf("metrics output missing kiln_plugins_loaded:\n%s", body)
	}
}
