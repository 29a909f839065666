package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"

	"github.com/tempohq/tempo"
	"github.com/tempohq/tempo/api"
	"github.com/tempohq/tempo/engine"
	"github.com/tempohq/tempo/handlers"
	"github.com/tempohq/tempo/id"
	"github.com/tempohq/tempo/job"
	"github.com/tempohq/tempo/store/memory"
)

var start = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// unavailableStore fails every call the way a lost backend connection does.
type unavailableStore struct {
	job.Store
}

func (unavailableStore) Ping(context.Context) error {
	return fmt.Errorf("ping: %w: connection refused", tempo.ErrStoreUnavailable)
}

func (unavailableStore) Get(context.Context, id.JobID) (*job.Job, error) {
	return nil, fmt.Errorf("get: %w: connection refused", tempo.ErrStoreUnavailable)
}

type testServer struct {
	eng     *engine.Engine
	clock   clockwork.FakeClock
	handler http.Handler
}

func newTestServer(t *testing.T, store job.Store) *testServer {
	t.Helper()
	clock := clockwork.NewFakeClockAt(start)
	eng, err := engine.Build(store, memory.NewIndex(),
		engine.WithClock(clock),
		engine.WithLogger(quietLogger),
	)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}
	handlers.Register(eng.Registry(), handlers.WithConfig(handlers.Config{}), handlers.WithLogger(quietLogger))

	return &testServer{
		eng:     eng,
		clock:   clock,
		handler: api.New(eng, api.WithLogger(quietLogger)).Handler(),
	}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) create(t *testing.T, body string) *job.Job {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/jobs", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d, body %s", rec.Code, rec.Body)
	}
	return decode[*job.Job](t, rec)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body, err)
	}
	return v
}

// ──────────────────────────────────────────────────
// Create
// ──────────────────────────────────────────────────

func TestCreateJob(t *testing.T) {
	s := newTestServer(t, memory.New())

	j := s.create(t, `{"type":"email_notification","payload":{"to":"a@example.com","subject":"Hi"},"priority":2}`)
	if j.ID.IsNil() || j.Status != job.StatusPending {
		t.Fatalf("created = %+v", j)
	}
	if j.Priority != 2 || j.MaxRetries != 3 || j.Retries != 0 {
		t.Fatalf("created = %+v", j)
	}
	if !j.ScheduledAt.Equal(start) {
		t.Fatalf("ScheduledAt = %v, want %v", j.ScheduledAt, start)
	}
}

func TestCreateJob_ScheduledAt(t *testing.T) {
	s := newTestServer(t, memory.New())

	at := start.Add(time.Hour)
	j := s.create(t, fmt.Sprintf(`{"type":"generate_pdf","payload":{},"scheduled_at":%q}`, at.Format(time.RFC3339)))
	if !j.ScheduledAt.Equal(at) {
		t.Fatalf("ScheduledAt = %v, want %v", j.ScheduledAt, at)
	}

	past := start.Add(-time.Hour)
	j = s.create(t, fmt.Sprintf(`{"type":"generate_pdf","payload":{},"scheduled_at":%q}`, past.Format(time.RFC3339)))
	if !j.ScheduledAt.Equal(start) {
		t.Fatalf("past ScheduledAt = %v, want clamped to %v", j.ScheduledAt, start)
	}
}

func TestCreateJob_Invalid(t *testing.T) {
	s := newTestServer(t, memory.New())

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"type":`},
		{"missing type", `{"payload":{}}`},
		{"missing payload", `{"type":"email_notification"}`},
		{"null payload", `{"type":"email_notification","payload":null}`},
		{"negative max retries", `{"type":"email_notification","payload":{},"max_retries":-1}`},
		{"bad scheduled_at", `{"type":"email_notification","payload":{},"scheduled_at":"tomorrow"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/jobs", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400; body %s", rec.Code, rec.Body)
			}
			if resp := decode[api.ErrorResponse](t, rec); resp.Error == "" {
				t.Fatal("expected an error message")
			}
		})
	}

	jobs, err := s.eng.Manager().List(context.Background(), job.ListOpts{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("invalid requests created %d jobs", len(jobs))
	}
}

// ──────────────────────────────────────────────────
// Get / List / Cancel
// ──────────────────────────────────────────────────

func TestGetJob(t *testing.T) {
	s := newTestServer(t, memory.New())
	created := s.create(t, `{"type":"resize_image","payload":{"image_url":"https://x.io/a.png","size":"s"}}`)

	rec := s.do(t, http.MethodGet, "/api/jobs/"+created.ID.String(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if got := decode[*job.Job](t, rec); got.ID != created.ID || got.Type != "resize_image" {
		t.Fatalf("got %+v", got)
	}

	tests := []struct {
		name string
		path string
	}{
		{"absent", "/api/jobs/" + id.NewJobID().String()},
		{"malformed", "/api/jobs/not-a-job-id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := s.do(t, http.MethodGet, tt.path, ""); rec.Code != http.StatusNotFound {
				t.Fatalf("status = %d, want 404", rec.Code)
			}
		})
	}
}

func TestListJobs(t *testing.T) {
	s := newTestServer(t, memory.New())

	first := s.create(t, `{"type":"email_notification","payload":{}}`)
	s.clock.Advance(time.Second)
	second := s.create(t, `{"type":"generate_pdf","payload":{}}`)
	s.clock.Advance(time.Second)
	third := s.create(t, `{"type":"resize_image","payload":{}}`)

	if _, err := s.eng.Manager().Cancel(context.Background(), second.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	tests := []struct {
		name string
		path string
		want []id.JobID
	}{
		{"newest first", "/api/jobs", []id.JobID{third.ID, second.ID, first.ID}},
		{"status filter", "/api/jobs?status=pending", []id.JobID{third.ID, first.ID}},
		{"limit", "/api/jobs?limit=1", []id.JobID{third.ID}},
		{"offset", "/api/jobs?offset=1&limit=1", []id.JobID{second.ID}},
		{"offset past end", "/api/jobs?offset=10", []id.JobID{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, tt.path, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
			}
			got := decode[[]*job.Job](t, rec)
			if got == nil {
				t.Fatal("expected a JSON array, got null")
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d jobs, want %d", len(got), len(tt.want))
			}
			for i := range tt.want {
				if got[i].ID != tt.want[i] {
					t.Fatalf("position %d: got %s, want %s", i, got[i].ID, tt.want[i])
				}
			}
		})
	}
}

func TestListJobs_BadQuery(t *testing.T) {
	s := newTestServer(t, memory.New())

	for _, path := range []string{
		"/api/jobs?status=running",
		"/api/jobs?limit=abc",
		"/api/jobs?offset=-1",
	} {
		t.Run(path, func(t *testing.T) {
			if rec := s.do(t, http.MethodGet, path, ""); rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestCancelJob(t *testing.T) {
	s := newTestServer(t, memory.New())
	created := s.create(t, `{"type":"email_notification","payload":{}}`)

	rec := s.do(t, http.MethodPost, "/api/jobs/"+created.ID.String()+"/cancel", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if got := decode[*job.Job](t, rec); got.Status != job.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}

	// A second cancel finds the job no longer pending.
	rec = s.do(t, http.MethodPost, "/api/jobs/"+created.ID.String()+"/cancel", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("repeat cancel status = %d, want 404", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/jobs/"+id.NewJobID().String()+"/cancel", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("absent cancel status = %d, want 404", rec.Code)
	}

	if report := s.eng.Loop().RunCycle(context.Background()); report.Completed != 0 {
		t.Fatalf("cancelled job ran: %+v", report)
	}
}

func TestCancelJob_AfterCompletion(t *testing.T) {
	s := newTestServer(t, memory.New())
	created := s.create(t, `{"type":"email_notification","payload":{"to":"a@example.com","subject":"Hi"}}`)

	if report := s.eng.Loop().RunCycle(context.Background()); report.Completed != 1 {
		t.Fatalf("report = %+v, want one completion", report)
	}

	rec := s.do(t, http.MethodPost, "/api/jobs/"+created.ID.String()+"/cancel", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/api/jobs/"+created.ID.String(), "")
	if got := decode[*job.Job](t, rec); got.Status != job.StatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
}

// ──────────────────────────────────────────────────
// Handlers and health
// ──────────────────────────────────────────────────

func TestListHandlers(t *testing.T) {
	s := newTestServer(t, memory.New())

	rec := s.do(t, http.MethodGet, "/api/handlers", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[api.HandlersResponse](t, rec).Types
	want := []string{handlers.TypeEmailNotification, handlers.TypeGeneratePDF, handlers.TypeResizeImage}
	if len(got) != len(want) {
		t.Fatalf("types = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("types = %v, want %v", got, want)
		}
	}
}

func TestHealthz(t *testing.T) {
	tests := []struct {
		name   string
		store  job.Store
		status int
		want   string
	}{
		{"healthy", memory.New(), http.StatusOK, "ok"},
		{"store down", unavailableStore{Store: memory.New()}, http.StatusServiceUnavailable, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.store)
			rec := s.do(t, http.MethodGet, "/healthz", "")
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if got := decode[api.HealthResponse](t, rec); got.Status != tt.want {
				t.Fatalf("health = %+v, want %q", got, tt.want)
			}
		})
	}
}

func TestStoreUnavailable(t *testing.T) {
	s := newTestServer(t, unavailableStore{Store: memory.New()})

	rec := s.do(t, http.MethodGet, "/api/jobs/"+id.NewJobID().String(), "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if resp := decode[api.ErrorResponse](t, rec); !strings.Contains(resp.Error, tempo.ErrStoreUnavailable.Error()) {
		t.Fatalf("error = %q, want store unavailable", resp.Error)
	}
}
