package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolsascode/bfm/info/internal/api/http/dto"
	"github.com/toolsascode/bfm/info/internal/auth"
	"github.com/toolsascode/bfm/info/internal/info"
	"github.com/toolsascode/bfm/info/internal/metrics"
	"github.com/toolsascode/bfm/info/internal/queue"
	"github.com/toolsascode/bfm/info/internal/registry"
	"github.com/toolsascode/bfm/info/internal/version"
)

const testToken = "test-token"

type stubResolver struct {
	mu         sync.Mutex
	migrations []info.ResolvedMigration
}

func (r *stubResolver) ResolveMigrations(context.Context) ([]info.ResolvedMigration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.migrations, nil
}

type stubHistory struct {
	mu         sync.Mutex
	migrations []info.AppliedMigration
	err        error
	healthErr  error
}

func (h *stubHistory) AllAppliedMigrations(context.Context) ([]info.AppliedMigration, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.migrations, h.err
}

func (h *stubHistory) HealthCheck(context.Context) error {
	return h.healthErr
}

type fakeProducer struct {
	jobs []*queue.Job
	err  error
}

func (p *fakeProducer) PublishJob(_ context.Context, job *queue.Job) error {
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, job)
	return nil
}

func (p *fakeProducer) Close() error { return nil }

type fakeScanner struct {
	changed int
	err     error
	calls   int
}

func (s *fakeScanner) Scan() (int, error) {
	s.calls++
	return s.changed, s.err
}

func resolved(ver string, checksum int32) info.ResolvedMigration {
	return info.ResolvedMigration{
		Version:     version.MustParse(ver),
		Description: "migration " + ver,
		Script:      ver + "_migration.up.sql",
		Checksum:    info.Checksum(checksum),
		Type:        info.TypeSQL,
	}
}

func applied(rank int, ver string, checksum int32, success bool) info.AppliedMigration {
	r := resolved(ver, checksum)
	return info.AppliedMigration{
		InstalledRank: rank,
		Version:       r.Version,
		Description:   r.Description,
		Type:          r.Type,
		Script:        r.Script,
		Checksum:      r.Checksum,
		InstalledOn:   time.Date(2025, 1, 15, 10, 0, rank, 0, time.UTC),
		InstalledBy:   "bfm",
		ExecutionTime: 25 * time.Millisecond,
		Success:       success,
	}
}

// fixture holds the 1..4 scenario: 1 applied, 2 failed, 3 pending, 4 pending
type fixture struct {
	resolver *stubResolver
	history  *stubHistory
	service  *info.Service
	router   *gin.Engine
	metrics  *metrics.Collector
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{
		resolver: &stubResolver{migrations: []info.ResolvedMigration{
			resolved("1", 1), resolved("2", 2), resolved("3", 3), resolved("4", 4),
		}},
		history: &stubHistory{migrations: []info.AppliedMigration{
			applied(1, "1", 1, true), applied(2, "2", 2, false),
		}},
	}
	f.service = info.NewService(f.resolver, f.history, info.DefaultOptions())
	require.NoError(t, f.service.Refresh(context.Background()))

	if opts.Tokens == nil {
		opts.Tokens = auth.NewTokenValidator(testToken)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewCollector("test")
	}
	if opts.History == nil {
		opts.History = f.history
	}
	f.metrics = opts.Metrics

	f.router = gin.New()
	NewHandler(f.service, opts).RegisterRoutes(f.router)
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func versions(items []dto.MigrationInfoResponse) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Version)
	}
	return out
}

func TestHandler_authenticate(t *testing.T) {
	f := newFixture(t, Options{})

	tests := []struct {
		name           string
		header         string
		expectedStatus int
	}{
		{name: "missing header", header: "", expectedStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + testToken, expectedStatus: http.StatusUnauthorized},
		{name: "wrong token", header: "Bearer nope", expectedStatus: http.StatusUnauthorized},
		{name: "valid token", header: "Bearer " + testToken, expectedStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/info", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			f.router.ServeHTTP(w, req)
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestHandler_authenticateWithoutConfiguredToken(t *testing.T) {
	f := newFixture(t, Options{Tokens: auth.NewTokenValidator("")})

	w := f.do(http.MethodGet, "/api/v1/info", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), auth.ErrTokenNotConfigured.Error())
}

func TestHandler_listInfo(t *testing.T) {
	f := newFixture(t, Options{})

	w := f.do(http.MethodGet, "/api/v1/info", "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[dto.InfoResponse](t, w)
	assert.Equal(t, version.Latest.String(), resp.Target)
	assert.Equal(t, 4, resp.Total)
	assert.Equal(t, []string{"1", "2", "3", "4"}, versions(resp.Items))
	assert.Equal(t, map[string]int{"SUCCESS": 1, "FAILED": 1, "PENDING": 2}, resp.Summary)
	require.NotNil(t, resp.Current)
	assert.Equal(t, "2", resp.Current.Version)
	assert.Equal(t, "FAILED", resp.Current.StateCode)

	first := resp.Items[0]
	assert.Equal(t, "Success", first.State)
	assert.Equal(t, "SQL", first.Type)
	assert.Equal(t, "2025-01-15T10:00:01Z", first.InstalledOn)
	assert.Equal(t, int64(25), first.ExecutionTimeMs)
	require.NotNil(t, first.Checksum)
	assert.Equal(t, int32(1), *first.Checksum)

	pending := resp.Items[3]
	assert.Empty(t, pending.InstalledOn)
	assert.Zero(t, pending.InstalledRank)
}

func TestHandler_listInfoStateFilter(t *testing.T) {
	f := newFixture(t, Options{})

	w := f.do(http.MethodGet, "/api/v1/info?state=pending", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[dto.InfoResponse](t, w)
	assert.Equal(t, []string{"3", "4"}, versions(resp.Items))
	assert.Equal(t, 2, resp.Total)

	w = f.do(http.MethodGet, "/api/v1/info?state=RUNNING", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_views(t *testing.T) {
	f := newFixture(t, Options{})

	tests := []struct {
		path string
		want []string
	}{
		{path: "/api/v1/info/pending", want: []string{"3", "4"}},
		{path: "/api/v1/info/applied", want: []string{"1", "2"}},
		{path: "/api/v1/info/resolved", want: []string{"1", "2", "3", "4"}},
		{path: "/api/v1/info/failed", want: []string{"2"}},
		{path: "/api/v1/info/future", want: []string{}},
		{path: "/api/v1/info/out-of-order", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := f.do(http.MethodGet, tt.path, "")
			require.Equal(t, http.StatusOK, w.Code)
			resp := decode[dto.InfoResponse](t, w)
			assert.Equal(t, tt.want, versions(resp.Items))
		})
	}
}

func TestHandler_getCurrent(t *testing.T) {
	f := newFixture(t, Options{})

	w := f.do(http.MethodGet, "/api/v1/info/current", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", decode[dto.MigrationInfoResponse](t, w).Version)

	f.history.migrations = nil
	require.NoError(t, f.service.Refresh(context.Background()))

	w = f.do(http.MethodGet, "/api/v1/info/current", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_getMigration(t *testing.T) {
	f := newFixture(t, Options{})

	w := f.do(http.MethodGet, "/api/v1/migrations/3.0", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[dto.MigrationInfoResponse](t, w)
	assert.Equal(t, "3", resp.Version)
	assert.Equal(t, "PENDING", resp.StateCode)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/v1/migrations/9", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/v1/migrations/v1", "").Code)
}

func TestHandler_validate(t *testing.T) {
	f := newFixture(t, Options{})

	w := f.do(http.MethodGet, "/api/v1/validate", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[dto.ValidateResponse](t, w).Valid)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Valid))

	tampered := applied(1, "1", 100, true)
	f.history.migrations = []info.AppliedMigration{tampered}
	require.NoError(t, f.service.Refresh(context.Background()))

	w = f.do(http.MethodGet, "/api/v1/validate", "")
	require.Equal(t, http.StatusConflict, w.Code)
	resp := decode[dto.ValidateResponse](t, w)
	assert.False(t, resp.Valid)
	assert.Equal(t, "1", resp.Version)
	assert.Equal(t, string(info.KindChecksumMismatch), resp.Kind)
	assert.Contains(t, resp.Message, "-> Applied to database : 100")
	assert.Equal(t, float64(0), testutil.ToFloat64(f.metrics.Valid))
}

func TestHandler_refreshSynchronous(t *testing.T) {
	f := newFixture(t, Options{})

	f.history.migrations = append(f.history.migrations, applied(3, "3", 3, true))

	w := f.do(http.MethodPost, "/api/v1/refresh", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[dto.RefreshResponse](t, w)
	assert.False(t, resp.Queued)
	assert.Equal(t, "3", resp.Current)
	assert.Equal(t, map[string]int{"SUCCESS": 2, "FAILED": 1, "PENDING": 1}, resp.Summary)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Refreshes.WithLabelValues("success")))

	f.history.err = errors.New("connection refused")
	w = f.do(http.MethodPost, "/api/v1/refresh", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")

	// the previous snapshot is still served
	w = f.do(http.MethodGet, "/api/v1/info/current", "")
	assert.Equal(t, "3", decode[dto.MigrationInfoResponse](t, w).Version)
}

func TestHandler_refreshQueued(t *testing.T) {
	producer := &fakeProducer{}
	source := &registry.MigrationTarget{Backend: "postgresql", Connection: "core"}
	f := newFixture(t, Options{Producer: producer, Source: source})

	w := f.do(http.MethodPost, "/api/v1/refresh", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	resp := decode[dto.RefreshResponse](t, w)
	assert.True(t, resp.Queued)
	require.Len(t, producer.jobs, 1)
	assert.Equal(t, producer.jobs[0].ID, resp.JobID)
	assert.Equal(t, queue.KindRefresh, producer.jobs[0].Kind)
	assert.Equal(t, &queue.MigrationTarget{Backend: "postgresql", Connection: "core"}, producer.jobs[0].Target)
	assert.Equal(t, "api", producer.jobs[0].RequestedBy)

	w = f.do(http.MethodPost, "/api/v1/refresh", `{"kind":"validate","backend":"etcd"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, producer.jobs, 2)
	assert.Equal(t, queue.KindValidate, producer.jobs[1].Kind)
	assert.Equal(t, "etcd", producer.jobs[1].Target.Backend)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/v1/refresh", `{"kind":"migrate"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/v1/refresh", `{not json`).Code)

	producer.err = errors.New("broker unavailable")
	assert.Equal(t, http.StatusInternalServerError, f.do(http.MethodPost, "/api/v1/refresh", "").Code)
}

func TestHandler_reindex(t *testing.T) {
	scanner := &fakeScanner{changed: 2}
	f := newFixture(t, Options{Scanner: scanner})

	w := f.do(http.MethodPost, "/api/v1/reindex", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[dto.ReindexResponse](t, w)
	assert.Equal(t, 2, resp.Changed)
	assert.Equal(t, 4, resp.Total)
	assert.Equal(t, 1, scanner.calls)

	scanner.err = errors.New("permission denied")
	assert.Equal(t, http.StatusInternalServerError, f.do(http.MethodPost, "/api/v1/reindex", "").Code)

	g := newFixture(t, Options{})
	assert.Equal(t, http.StatusNotImplemented, g.do(http.MethodPost, "/api/v1/reindex", "").Code)
}

func TestHandler_Health(t *testing.T) {
	f := newFixture(t, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[map[string]interface{}](t, w)
	assert.Equal(t, "healthy", resp["status"])

	f.history.healthErr = errors.New("dial tcp: connection refused")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp = decode[map[string]interface{}](t, w)
	assert.Equal(t, "unhealthy", resp["status"])
}

func TestHandler_OpenAPISpec(t *testing.T) {
	f := newFixture(t, Options{})

	w := f.do(http.MethodGet, "/api/v1/openapi.yaml", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "openapi: 3.0.3")

	w = f.do(http.MethodGet, "/api/v1/openapi.json", "")
	require.Equal(t, http.StatusOK, w.Code)
	spec := decode[map[string]interface{}](t, w)
	assert.Equal(t, "3.0.3", spec["openapi"])
	assert.Contains(t, spec["paths"], "/info/out-of-order")
}

func TestHandler_metrics(t *testing.T) {
	f := newFixture(t, Options{})

	f.do(http.MethodGet, "/api/v1/info", "")
	f.do(http.MethodGet, "/api/v1/migrations/1", "")

	w := f.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `test_http_requests_total{method="GET",path="/api/v1/info",status_code="200"} 1`)
	assert.Contains(t, body, `path="/api/v1/migrations/:version"`)
}
