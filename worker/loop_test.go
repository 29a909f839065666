package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tempohq/tempo"
	"github.com/tempohq/tempo/id"
	"github.com/tempohq/tempo/job"
	"github.com/tempohq/tempo/lifecycle"
	"github.com/tempohq/tempo/middleware"
	"github.com/tempohq/tempo/schedule"
	"github.com/tempohq/tempo/store/memory"
	"github.com/tempohq/tempo/throttle"
	"github.com/tempohq/tempo/worker"
)

var start = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

var errDown = errors.New("connection refused")

// flakyIndex fails RangeDue on demand.
type flakyIndex struct {
	schedule.Index
	rangeErr atomic.Pointer[error]
}

func (f *flakyIndex) RangeDue(ctx context.Context, now time.Time) ([]id.JobID, error) {
	if err := f.rangeErr.Load(); err != nil {
		return nil, *err
	}
	return f.Index.RangeDue(ctx, now)
}

// flakyStore fails Get on demand, or from the moment a claim commits when
// readsFailAfterClaim is set.
type flakyStore struct {
	job.Store
	getErr              atomic.Pointer[error]
	readsFailAfterClaim atomic.Bool
}

func (f *flakyStore) ConditionalUpdate(ctx context.Context, jobID id.JobID, expected job.Status, p job.Patch) (bool, error) {
	ok, err := f.Store.ConditionalUpdate(ctx, jobID, expected, p)
	if ok && p.Status == job.StatusInProgress && f.readsFailAfterClaim.Load() {
		down := error(errDown)
		f.getErr.Store(&down)
	}
	return ok, err
}

func (f *flakyStore) Get(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	if err := f.getErr.Load(); err != nil {
		return nil, *err
	}
	return f.Store.Get(ctx, jobID)
}

type harness struct {
	loop     *worker.Loop
	manager  *lifecycle.Manager
	registry *job.Registry
	store    *flakyStore
	index    *flakyIndex
	clock    clockwork.FakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.Default()
	h := &harness{
		registry: job.NewRegistry(),
		store:    &flakyStore{Store: memory.New()},
		index:    &flakyIndex{Index: memory.NewIndex()},
		clock:    clockwork.NewFakeClockAt(start),
	}
	h.manager = lifecycle.New(h.store, h.index,
		lifecycle.WithClock(h.clock),
		lifecycle.WithLogger(logger),
	)
	executor := worker.NewExecutor(h.registry, middleware.Recover(logger))
	h.loop = worker.NewLoop(h.manager, executor, logger)
	return h
}

func (h *harness) create(t *testing.T, jobType string, maxRetries int) *job.Job {
	t.Helper()
	j, err := h.manager.Create(context.Background(), job.CreateParams{
		Type:       jobType,
		Payload:    json.RawMessage(`{"to":"a@example.com","subject":"hi","message":"hello"}`),
		MaxRetries: maxRetries,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return j
}

func (h *harness) get(t *testing.T, jobID id.JobID) *job.Job {
	t.Helper()
	j, err := h.manager.Get(context.Background(), jobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return j
}

func (h *harness) indexed(t *testing.T, jobID id.JobID) bool {
	t.Helper()
	_, ok, err := h.index.Score(context.Background(), jobID)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	return ok
}

// failNTimes registers a handler for jobType that fails n times, then succeeds.
func (h *harness) failNTimes(jobType string, n int) *atomic.Int32 {
	var calls atomic.Int32
	h.registry.Register(job.NewDefinition(jobType, func(_ context.Context, _ json.RawMessage) error {
		if int(calls.Add(1)) <= n {
			return errors.New("smtp timeout")
		}
		return nil
	}))
	return &calls
}

// ──────────────────────────────────────────────────
// Scenarios
// ──────────────────────────────────────────────────

func TestLoop_FailTwiceThenSucceed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	calls := h.failNTimes("email_notification", 2)
	j := h.create(t, "email_notification", 3)

	if r := h.loop.RunCycle(ctx); r.Retried != 1 {
		t.Fatalf("cycle 1: %+v, want 1 retried", r)
	}

	// Not due again until the backoff has elapsed.
	h.clock.Advance(4 * time.Minute)
	if r := h.loop.RunCycle(ctx); r.Due != 0 {
		t.Fatalf("retry ran before backoff elapsed: %+v", r)
	}

	h.clock.Advance(time.Minute)
	if r := h.loop.RunCycle(ctx); r.Retried != 1 {
		t.Fatalf("cycle 2: %+v, want 1 retried", r)
	}

	h.clock.Advance(5 * time.Minute)
	if r := h.loop.RunCycle(ctx); r.Completed != 1 {
		t.Fatalf("cycle 3: %+v, want 1 completed", r)
	}

	got := h.get(t, j.ID)
	if got.Status != job.StatusCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if got.Retries != 2 {
		t.Errorf("Retries = %d, want 2", got.Retries)
	}
	if got.CompletedAt == nil || got.CompletedAt.Before(got.CreatedAt) {
		t.Errorf("CompletedAt = %v, want >= %v", got.CompletedAt, got.CreatedAt)
	}
	if calls.Load() != 3 {
		t.Errorf("handler calls = %d, want 3", calls.Load())
	}
	if h.indexed(t, j.ID) {
		t.Error("completed job still has an index entry")
	}
}

func TestLoop_MaxRetriesOneFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.failNTimes("email_notification", 1)
	j := h.create(t, "email_notification", 1)

	r := h.loop.RunCycle(ctx)
	if r.Failed != 1 {
		t.Fatalf("cycle: %+v, want 1 failed", r)
	}

	got := h.get(t, j.ID)
	if got.Status != job.StatusFailed {
		t.Errorf("Status = %q, want failed", got.Status)
	}
	if got.Retries != 1 {
		t.Errorf("Retries = %d, want 1", got.Retries)
	}
	if !strings.Contains(got.FailedReason, "smtp timeout") {
		t.Errorf("FailedReason = %q, want it to mention the handler error", got.FailedReason)
	}
	if h.indexed(t, j.ID) {
		t.Error("failed job must not have an index entry")
	}
}

func TestLoop_CancelledEntryRemovedWithoutDispatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	calls := h.failNTimes("email_notification", 0)
	j := h.create(t, "email_notification", 3)

	if _, err := h.manager.Cancel(ctx, j.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	// Leave a stale entry behind, as if the best-effort removal had failed.
	_ = h.index.Upsert(ctx, j.ID, start)

	r := h.loop.RunCycle(ctx)
	if r.Stale != 1 {
		t.Fatalf("cycle: %+v, want 1 stale", r)
	}
	if calls.Load() != 0 {
		t.Errorf("handler invoked %d times for a cancelled job", calls.Load())
	}
	if h.indexed(t, j.ID) {
		t.Error("stale entry was not removed")
	}
	if got := h.get(t, j.ID); got.Status != job.StatusCancelled {
		t.Errorf("Status = %q, want cancelled", got.Status)
	}
}

func TestLoop_MissingJobEntryRemoved(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	orphan := id.NewJobID()
	_ = h.index.Upsert(ctx, orphan, start)

	r := h.loop.RunCycle(ctx)
	if r.Stale != 1 {
		t.Fatalf("cycle: %+v, want 1 stale", r)
	}
	if h.indexed(t, orphan) {
		t.Error("orphan entry was not removed")
	}
}

func TestLoop_FutureJobWaits(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	calls := h.failNTimes("email_notification", 0)

	j, err := h.manager.Create(ctx, job.CreateParams{
		Type:        "email_notification",
		Payload:     json.RawMessage(`{}`),
		ScheduledAt: start.Add(time.Minute),
	})
	if err != nil {
		t.Fatal(err)
	}

	if r := h.loop.RunCycle(ctx); r.Due != 0 {
		t.Fatalf("future job was due early: %+v", r)
	}
	h.clock.Advance(time.Minute)
	if r := h.loop.RunCycle(ctx); r.Completed != 1 {
		t.Fatalf("cycle: %+v, want 1 completed", r)
	}
	if calls.Load() != 1 {
		t.Errorf("handler calls = %d, want 1", calls.Load())
	}
	if got := h.get(t, j.ID); got.Status != job.StatusCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
}

func TestLoop_UnknownTypeIsHandlerFailure(t *testing.T) {
	h := newHarness(t)
	j := h.create(t, "fax_delivery", 1)

	r := h.loop.RunCycle(context.Background())
	if r.Failed != 1 {
		t.Fatalf("cycle: %+v, want 1 failed", r)
	}
	got := h.get(t, j.ID)
	if !strings.Contains(got.FailedReason, "unknown job type") {
		t.Errorf("FailedReason = %q, want unknown job type", got.FailedReason)
	}
}

func TestLoop_PanicIsHandlerFailure(t *testing.T) {
	h := newHarness(t)
	h.registry.Register(job.NewDefinition("resize_image", func(context.Context, struct{}) error {
		panic("nil image")
	}))
	j := h.create(t, "resize_image", 2)

	r := h.loop.RunCycle(context.Background())
	if r.Retried != 1 {
		t.Fatalf("cycle: %+v, want 1 retried", r)
	}
	if got := h.get(t, j.ID); got.Status != job.StatusPending || got.Retries != 1 {
		t.Errorf("got status=%q retries=%d, want pending, 1", got.Status, got.Retries)
	}
}

func TestLoop_ProcessesInIndexOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var mu sync.Mutex
	var order []string
	h.registry.Register(job.NewDefinition("generate_pdf", func(_ context.Context, p struct {
		InvoiceID string `json:"invoice_id"`
	}) error {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, p.InvoiceID)
		return nil
	}))

	for _, inv := range []struct {
		id  string
		due time.Duration
	}{{"late", 2 * time.Second}, {"early", time.Second}} {
		_, err := h.manager.Create(ctx, job.CreateParams{
			Type:        "generate_pdf",
			Payload:     json.RawMessage(`{"invoice_id":"` + inv.id + `"}`),
			ScheduledAt: start.Add(inv.due),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	h.clock.Advance(5 * time.Second)
	if r := h.loop.RunCycle(ctx); r.Completed != 2 {
		t.Fatalf("cycle: %+v, want 2 completed", r)
	}
	if len(order) != 2 || order[0] != "early" || order[1] != "late" {
		t.Errorf("order = %v, want [early late]", order)
	}
}

// ──────────────────────────────────────────────────
// Unavailable collaborators
// ──────────────────────────────────────────────────

func TestLoop_ThrottledJobStaysPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	calls := h.failNTimes("resize_image", 0)

	limiter := throttle.New([]throttle.Config{{JobType: "resize_image", RateLimit: 1, RateBurst: 1}},
		throttle.WithClock(h.clock))
	loop := worker.NewLoop(h.manager, worker.NewExecutor(h.registry), slog.Default(), worker.WithThrottle(limiter))

	first := h.create(t, "resize_image", 3)
	h.clock.Advance(time.Millisecond)
	second := h.create(t, "resize_image", 3)

	r := loop.RunCycle(ctx)
	if r.Due != 2 || r.Completed != 1 || r.Throttled != 1 {
		t.Fatalf("cycle 1: %+v, want 1 completed and 1 throttled", r)
	}
	if got := h.get(t, second.ID); got.Status != job.StatusPending || !h.indexed(t, second.ID) {
		t.Fatalf("throttled job = %+v, want pending and indexed", got)
	}
	if h.get(t, first.ID).Status != job.StatusCompleted {
		t.Fatal("first job should have completed")
	}

	h.clock.Advance(time.Second)
	if r := loop.RunCycle(ctx); r.Completed != 1 || r.Throttled != 0 {
		t.Fatalf("cycle 2: %+v, want the throttled job completed", r)
	}
	if calls.Load() != 2 {
		t.Fatalf("handler calls = %d, want 2", calls.Load())
	}
}

func TestLoop_IndexDownEndsCycle(t *testing.T) {
	h := newHarness(t)
	h.failNTimes("email_notification", 0)
	h.create(t, "email_notification", 3)

	err := error(errDown)
	h.index.rangeErr.Store(&err)
	r := h.loop.RunCycle(context.Background())
	if r.Errors != 1 || r.Due != 0 {
		t.Fatalf("cycle: %+v, want 1 error and nothing due", r)
	}

	h.index.rangeErr.Store(nil)
	if r := h.loop.RunCycle(context.Background()); r.Completed != 1 {
		t.Fatalf("recovery cycle: %+v, want 1 completed", r)
	}
}

func TestLoop_StoreDownKeepsEntry(t *testing.T) {
	h := newHarness(t)
	calls := h.failNTimes("email_notification", 0)
	j := h.create(t, "email_notification", 3)

	err := error(errDown)
	h.store.getErr.Store(&err)
	r := h.loop.RunCycle(context.Background())
	if r.Errors != 1 {
		t.Fatalf("cycle: %+v, want 1 error", r)
	}
	if !h.indexed(t, j.ID) {
		t.Fatal("entry must stay in the index while the store is down")
	}

	h.store.getErr.Store(nil)
	if r := h.loop.RunCycle(context.Background()); r.Completed != 1 {
		t.Fatalf("recovery cycle: %+v, want 1 completed", r)
	}
	if calls.Load() != 1 {
		t.Errorf("handler calls = %d, want 1", calls.Load())
	}
}

func TestLoop_StoreReadsFailAfterClaim(t *testing.T) {
	tests := []struct {
		name       string
		failures   int
		maxRetries int
		want       job.Status
	}{
		{"completes", 0, 3, job.StatusCompleted},
		{"retries", 1, 3, job.StatusPending},
		{"fails", 1, 1, job.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			calls := h.failNTimes("email_notification", tt.failures)
			j := h.create(t, "email_notification", tt.maxRetries)
			h.store.readsFailAfterClaim.Store(true)

			r := h.loop.RunCycle(context.Background())
			if r.Errors != 0 {
				t.Fatalf("cycle: %+v, want no errors", r)
			}
			if calls.Load() != 1 {
				t.Fatalf("handler calls = %d, want 1", calls.Load())
			}

			h.store.getErr.Store(nil)
			if got := h.get(t, j.ID); got.Status != tt.want {
				t.Fatalf("Status = %q, want %q", got.Status, tt.want)
			}
			if got := h.indexed(t, j.ID); got != (tt.want == job.StatusPending) {
				t.Errorf("indexed = %v for status %q", got, tt.want)
			}
		})
	}
}

// ──────────────────────────────────────────────────
// Start / Stop
// ──────────────────────────────────────────────────

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestLoop_StartStop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.loop.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.loop.Start(ctx); err != nil {
		t.Fatalf("double Start: %v", err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.loop.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := h.loop.Stop(stopCtx); err != nil {
		t.Fatalf("double Stop: %v", err)
	}
}

func TestLoop_TicksOnCadence(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	calls := h.failNTimes("email_notification", 0)
	j := h.create(t, "email_notification", 3)

	// Drop the entry so only the start-up reconcile can make the job due.
	_ = h.index.Remove(ctx, j.ID)

	if err := h.loop.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		_ = h.loop.Stop(stopCtx)
	}()

	if !h.indexed(t, j.ID) {
		t.Fatal("Start should re-index pending jobs")
	}

	// Poll ticker plus reconcile ticker.
	h.clock.BlockUntil(2)
	if calls.Load() != 0 {
		t.Fatal("job ran before the first tick")
	}

	h.clock.Advance(5 * time.Second)
	waitFor(t, "job completion", func() bool {
		got, err := h.manager.Get(ctx, j.ID)
		return err == nil && got.Status == job.StatusCompleted
	})
}

func TestLoop_ReconcileTickRepairsIndex(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.failNTimes("email_notification", 0)

	// Schedule far out so the poll ticker never makes it due.
	j, err := h.manager.Create(ctx, job.CreateParams{
		Type:        "email_notification",
		Payload:     json.RawMessage(`{}`),
		ScheduledAt: start.Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := h.loop.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		_ = h.loop.Stop(stopCtx)
	}()
	h.clock.BlockUntil(2)

	_ = h.index.Remove(ctx, j.ID)
	h.clock.Advance(time.Minute)

	waitFor(t, "re-index", func() bool {
		_, ok, _ := h.index.Score(ctx, j.ID)
		return ok
	})
}

func TestLoop_StartRecoversStaleJob(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	calls := h.failNTimes("email_notification", 0)
	j := h.create(t, "email_notification", 3)

	// A previous process claimed the job and died before finishing it.
	if _, err := h.manager.Claim(ctx, j.ID); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := h.manager.RemoveFromIndex(ctx, j.ID); err != nil {
		t.Fatalf("RemoveFromIndex: %v", err)
	}
	h.clock.Advance(tempo.DefaultConfig().StaleJobThreshold)

	if err := h.loop.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		_ = h.loop.Stop(stopCtx)
	}()

	got := h.get(t, j.ID)
	if got.Status != job.StatusPending || got.Retries != 1 {
		t.Fatalf("after start: status=%q retries=%d, want pending, 1", got.Status, got.Retries)
	}
	if !h.indexed(t, j.ID) {
		t.Fatal("recovered job must be re-indexed")
	}

	h.clock.BlockUntil(2)
	h.clock.Advance(5 * time.Minute)
	waitFor(t, "job completion", func() bool {
		got, err := h.manager.Get(ctx, j.ID)
		return err == nil && got.Status == job.StatusCompleted
	})
	if calls.Load() != 1 {
		t.Errorf("handler calls = %d, want 1", calls.Load())
	}
}

func TestExecutor_RunsMiddlewareAroundHandler(t *testing.T) {
	reg := job.NewRegistry()
	var order []string
	reg.Register(job.NewDefinition("generate_pdf", func(context.Context, struct{}) error {
		order = append(order, "handler")
		return nil
	}))
	trace := func(ctx context.Context, _ *job.Job, next middleware.Handler) error {
		order = append(order, "before")
		err := next(ctx)
		order = append(order, "after")
		return err
	}

	e := worker.NewExecutor(reg, trace)
	if err := e.Execute(context.Background(), &job.Job{Type: "generate_pdf"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.Join(order, ",") != "before,handler,after" {
		t.Errorf("order = %v", order)
	}

	err := e.Execute(context.Background(), &job.Job{Type: "missing"})
	if !errors.Is(err, tempo.ErrUnknownJobType) {
		t.Errorf("expected ErrUnknownJobType, got %v", err)
	}
}
