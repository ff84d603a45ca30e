package engine_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/trbojevicstefan/taskwise"
	"github.com/trbojevicstefan/taskwise/engine"
	"github.com/trbojevicstefan/taskwise/event"
	"github.com/trbojevicstefan/taskwise/id"
	"github.com/trbojevicstefan/taskwise/job"
	mw "github.com/trbojevicstefan/taskwise/middleware"
	"github.com/trbojevicstefan/taskwise/store/memory"
)

// countingHandler counts calls and delegates task.status.changed to fn.
type countingHandler struct {
	calls atomic.Int32
	fn    func(ctx context.Context, meta event.Meta, p event.TaskStatusChanged) (event.TaskStatusChangedResult, error)
}

func (h *countingHandler) HandleTaskStatusChanged(ctx context.Context, meta event.Meta, p event.TaskStatusChanged) (event.TaskStatusChangedResult, error) {
	h.calls.Add(1)
	if h.fn != nil {
		return h.fn(ctx, meta, p)
	}
	return event.TaskStatusChangedResult{MatchedTasks: 2}, nil
}

func (h *countingHandler) HandleMeetingIngested(context.Context, event.Meta, event.MeetingIngested) (event.MeetingIngestedResult, error) {
	h.calls.Add(1)
	return event.MeetingIngestedResult{Tasks: event.TaskCounts{Upserted: 3}}, nil
}

func (h *countingHandler) HandleBoardItemUpdated(_ context.Context, _ event.Meta, p event.BoardItemUpdated) (event.BoardItemUpdatedResult, error) {
	h.calls.Add(1)
	return event.BoardItemUpdatedResult{Updated: true, TaskID: p.TaskID}, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newEngine(t *testing.T, h event.Handler, opts ...engine.Option) (*engine.Engine, *memory.Store, *clock) {
	t.Helper()
	s := memory.New()
	c := &clock{now: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)}
	q := job.NewQueue(s, job.WithClock(c.Now))
	eng, err := engine.New(q, s, h, opts...)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return eng, s, c
}

var statusChanged = event.TaskStatusChanged{TaskID: "task-1", Status: "done"}

func TestNew_RequiresHandler(t *testing.T) {
	s := memory.New()
	_, err := engine.New(job.NewQueue(s), s, nil)
	if !errors.Is(err, taskwise.ErrHandlerMissing) {
		t.Fatalf("expected ErrHandlerMissing, got %v", err)
	}
}

func TestPublish_SyncReturnsHandlerResult(t *testing.T) {
	h := &countingHandler{}
	eng, s, _ := newEngine(t, h)

	pub, err := eng.Publish(context.Background(), "user-1", statusChanged)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if pub.Async || pub.JobID != nil || pub.Status != event.StatusHandled {
		t.Fatalf("unexpected publication %+v", pub)
	}
	res, err := engine.DecodeResult[event.TaskStatusChangedResult](pub.Result)
	if err != nil {
		t.Fatalf("DecodeResult: %v", err)
	}
	if res.MatchedTasks != 2 {
		t.Errorf("MatchedTasks = %d, want 2", res.MatchedTasks)
	}

	n, _ := s.CountJobs(context.Background(), job.CountOpts{})
	if n != 0 {
		t.Errorf("sync publish enqueued %d jobs", n)
	}

	evt, err := s.GetEvent(context.Background(), pub.EventID)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if evt.Status != event.StatusHandled || evt.Attempts != 1 || evt.HandledAt == nil {
		t.Errorf("unexpected event %+v", evt)
	}
}

func TestPublish_AsyncReturnsPlaceholderAndEnqueues(t *testing.T) {
	h := &countingHandler{}
	eng, s, _ := newEngine(t, h, engine.WithAsync(true), engine.WithKickDisabled(true))
	ctx := context.Background()

	pub, err := eng.Publish(ctx, "user-1", event.MeetingIngested{MeetingID: "m1"}, engine.WithCorrelationID("corr-9"))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !pub.Async || pub.JobID == nil || pub.Status != event.StatusQueued {
		t.Fatalf("unexpected publication %+v", pub)
	}
	if string(pub.Result) != `{"people":{"created":0,"updated":0},"tasks":{"upserted":0,"deleted":0},"boardItemsCreated":0}` {
		t.Errorf("placeholder = %s", pub.Result)
	}
	if h.calls.Load() != 0 {
		t.Fatal("async publish must not invoke the handler")
	}

	j, err := s.GetJob(ctx, *pub.JobID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	var p job.DispatchPayload
	if err := j.DecodePayload(&p); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if j.Type != job.TypeDomainEventDispatch || p.EventID != pub.EventID.String() || j.CorrelationID != "corr-9" {
		t.Errorf("unexpected job %+v payload %+v", j, p)
	}

	evt, _ := s.GetEvent(ctx, pub.EventID)
	if evt.Status != event.StatusQueued || evt.CorrelationID != "corr-9" || evt.Type != event.TypeMeetingIngested {
		t.Errorf("unexpected event %+v", evt)
	}
}

func TestDispatch_IdempotentReplay(t *testing.T) {
	h := &countingHandler{}
	eng, _, _ := newEngine(t, h, engine.WithAsync(true), engine.WithKickDisabled(true))
	ctx := context.Background()

	pub, err := eng.Publish(ctx, "user-1", statusChanged)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	first, err := eng.Dispatch(ctx, pub.EventID, "user-1")
	if err != nil {
		t.Fatalf("first Dispatch: %v", err)
	}
	if first.Status != engine.StatusHandled {
		t.Fatalf("first status = %s", first.Status)
	}

	for range 3 {
		again, err := eng.Dispatch(ctx, pub.EventID, "")
		if err != nil {
			t.Fatalf("replay Dispatch: %v", err)
		}
		if again.Status != engine.StatusAlreadyHandled {
			t.Errorf("replay status = %s", again.Status)
		}
		if !bytes.Equal(again.Result, first.Result) {
			t.Errorf("replay result %s != %s", again.Result, first.Result)
		}
	}
	if got := h.calls.Load(); got != 1 {
		t.Fatalf("handler called %d times, want 1", got)
	}
}

func TestDispatch_ConcurrentClaimRunsHandlerOnce(t *testing.T) {
	release := make(chan struct{})
	h := &countingHandler{fn: func(context.Context, event.Meta, event.TaskStatusChanged) (event.TaskStatusChangedResult, error) {
		<-release
		return event.TaskStatusChangedResult{MatchedTasks: 1}, nil
	}}
	eng, _, _ := newEngine(t, h, engine.WithAsync(true), engine.WithKickDisabled(true))
	ctx := context.Background()

	pub, err := eng.Publish(ctx, "user-1", statusChanged)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	const n = 8
	var (
		wg       sync.WaitGroup
		handled  atomic.Int32
		already  atomic.Int32
		failures atomic.Int32
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := eng.Dispatch(ctx, pub.EventID, "user-1")
			switch {
			case err != nil:
				failures.Add(1)
			case out.Status == engine.StatusHandled:
				handled.Add(1)
			default:
				already.Add(1)
			}
		}()
	}

	// Losers return without waiting for the winner.
	deadline := time.Now().Add(2 * time.Second)
	for already.Load() < n-1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	close(release)
	wg.Wait()

	if failures.Load() != 0 || handled.Load() != 1 || already.Load() != n-1 {
		t.Fatalf("handled=%d already=%d failures=%d", handled.Load(), already.Load(), failures.Load())
	}
	if got := h.calls.Load(); got != 1 {
		t.Fatalf("handler called %d times, want 1", got)
	}
}

func TestPublish_SyncPropagatesHandlerError(t *testing.T) {
	boom := errors.New("board api down")
	h := &countingHandler{fn: func(context.Context, event.Meta, event.TaskStatusChanged) (event.TaskStatusChangedResult, error) {
		return event.TaskStatusChangedResult{}, boom
	}}
	eng, _, _ := newEngine(t, h)

	if _, err := eng.Publish(context.Background(), "user-1", statusChanged); !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
}

func TestDispatch_FailureIsRecordedAndRetryable(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	h := &countingHandler{fn: func(context.Context, event.Meta, event.TaskStatusChanged) (event.TaskStatusChangedResult, error) {
		if fail.Load() {
			return event.TaskStatusChangedResult{}, errors.New("transient")
		}
		return event.TaskStatusChangedResult{MatchedTasks: 4}, nil
	}}
	eng, s, c := newEngine(t, h,
		engine.WithAsync(true),
		engine.WithKickDisabled(true),
		engine.WithRetention(48*time.Hour),
	)
	ctx := context.Background()

	pub, err := eng.Publish(ctx, "user-1", statusChanged)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if _, err := eng.Dispatch(ctx, pub.EventID, "user-1"); err == nil {
		t.Fatal("expected dispatch error")
	}

	evt, _ := s.GetEvent(ctx, pub.EventID)
	if evt.Status != event.StatusFailed || evt.Error == nil || evt.Error.Message != "transient" {
		t.Fatalf("unexpected failed event %+v", evt)
	}
	if evt.ExpiresAt == nil || !evt.ExpiresAt.Equal(c.Now().Add(48*time.Hour)) {
		t.Errorf("ExpiresAt = %v", evt.ExpiresAt)
	}

	fail.Store(false)
	out, err := eng.Dispatch(ctx, pub.EventID, "user-1")
	if err != nil {
		t.Fatalf("retry Dispatch: %v", err)
	}
	res, _ := engine.DecodeResult[event.TaskStatusChangedResult](out.Result)
	if out.Status != engine.StatusHandled || res.MatchedTasks != 4 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	evt, _ = s.GetEvent(ctx, pub.EventID)
	if evt.Attempts != 2 || evt.Error != nil {
		t.Errorf("unexpected handled event %+v", evt)
	}
}

func TestDispatch_ScopedToUser(t *testing.T) {
	eng, _, _ := newEngine(t, &countingHandler{}, engine.WithAsync(true), engine.WithKickDisabled(true))
	ctx := context.Background()

	pub, err := eng.Publish(ctx, "user-1", statusChanged)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if _, err := eng.Dispatch(ctx, pub.EventID, "user-2"); !errors.Is(err, taskwise.ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
	if _, err := eng.GetEvent(ctx, pub.EventID, "user-2"); !errors.Is(err, taskwise.ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
}

func TestDispatch_ExpiredLeaseIsReclaimable(t *testing.T) {
	h := &countingHandler{}
	eng, s, c := newEngine(t, h,
		engine.WithAsync(true),
		engine.WithKickDisabled(true),
		engine.WithLeaseTimeout(time.Minute),
	)
	ctx := context.Background()

	pub, err := eng.Publish(ctx, "user-1", statusChanged)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	// A dispatcher that crashed after claiming.
	until := c.Now().Add(time.Minute)
	claimed, err := s.ClaimEvent(ctx, pub.EventID, event.Claim{Now: c.Now(), Token: "crashed", LeaseUntil: &until})
	if err != nil || claimed == nil {
		t.Fatalf("ClaimEvent = %v, %v", claimed, err)
	}

	out, err := eng.Dispatch(ctx, pub.EventID, "user-1")
	if err != nil || out.Status != engine.StatusAlreadyHandled || h.calls.Load() != 0 {
		t.Fatalf("live lease: out=%+v err=%v calls=%d", out, err, h.calls.Load())
	}

	c.Advance(2 * time.Minute)
	out, err = eng.Dispatch(ctx, pub.EventID, "user-1")
	if err != nil || out.Status != engine.StatusHandled || h.calls.Load() != 1 {
		t.Fatalf("expired lease: out=%+v err=%v calls=%d", out, err, h.calls.Load())
	}
}

func TestWorker_AsyncEndToEnd(t *testing.T) {
	h := &countingHandler{}
	eng, s, _ := newEngine(t, h, engine.WithAsync(true), engine.WithKickDisabled(true))
	ctx := context.Background()

	pub, err := eng.Publish(ctx, "user-1", event.BoardItemUpdated{TaskID: "task-7"})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	exec, err := eng.Worker().ProcessNext(ctx)
	if err != nil || exec == nil {
		t.Fatalf("ProcessNext = %v, %v", exec, err)
	}
	if exec.Err != nil {
		t.Fatalf("job error: %v", exec.Err)
	}

	evt, _ := s.GetEvent(ctx, pub.EventID)
	res, _ := engine.DecodeResult[event.BoardItemUpdatedResult](evt.Result)
	if evt.Status != event.StatusHandled || !res.Updated || res.TaskID != "task-7" {
		t.Fatalf("unexpected event %+v", evt)
	}

	j, _ := s.GetJob(ctx, *pub.JobID)
	if j.Status != job.StatusSucceeded {
		t.Fatalf("job status = %s", j.Status)
	}
	var out engine.Outcome
	if err := json.Unmarshal(j.Result, &out); err != nil {
		t.Fatalf("decode job result: %v", err)
	}
	if out.Status != engine.StatusHandled || out.EventID != pub.EventID {
		t.Errorf("unexpected job result %+v", out)
	}
}

func TestWorker_RetriesFailedDispatch(t *testing.T) {
	var calls atomic.Int32
	h := &countingHandler{fn: func(context.Context, event.Meta, event.TaskStatusChanged) (event.TaskStatusChangedResult, error) {
		if calls.Add(1) == 1 {
			return event.TaskStatusChangedResult{}, errors.New("transient")
		}
		return event.TaskStatusChangedResult{MatchedTasks: 1}, nil
	}}
	eng, s, c := newEngine(t, h, engine.WithAsync(true), engine.WithKickDisabled(true))
	ctx := context.Background()

	pub, err := eng.Publish(ctx, "user-1", statusChanged)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if _, err := eng.Worker().ProcessNext(ctx); err != nil {
		t.Fatalf("first ProcessNext: %v", err)
	}
	j, _ := s.GetJob(ctx, *pub.JobID)
	if j.Status != job.StatusQueued || j.Attempts != 1 {
		t.Fatalf("job after first attempt: %+v", j)
	}

	c.Advance(j.RunAt.Sub(c.Now()))
	if _, err := eng.Worker().ProcessNext(ctx); err != nil {
		t.Fatalf("second ProcessNext: %v", err)
	}
	j, _ = s.GetJob(ctx, *pub.JobID)
	evt, _ := s.GetEvent(ctx, pub.EventID)
	if j.Status != job.StatusSucceeded || evt.Status != event.StatusHandled || evt.Attempts != 2 {
		t.Fatalf("job=%s event=%s attempts=%d", j.Status, evt.Status, evt.Attempts)
	}
}

func TestWorker_RetriesPanickedDispatch(t *testing.T) {
	var calls atomic.Int32
	h := &countingHandler{fn: func(context.Context, event.Meta, event.TaskStatusChanged) (event.TaskStatusChangedResult, error) {
		if calls.Add(1) == 1 {
			panic("board client nil")
		}
		return event.TaskStatusChangedResult{MatchedTasks: 1}, nil
	}}
	eng, s, c := newEngine(t, h, engine.WithAsync(true), engine.WithKickDisabled(true))
	ctx := context.Background()

	pub, err := eng.Publish(ctx, "user-1", statusChanged)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if _, err := eng.Worker().ProcessNext(ctx); err != nil {
		t.Fatalf("first ProcessNext: %v", err)
	}
	evt, _ := s.GetEvent(ctx, pub.EventID)
	if evt.Status != event.StatusFailed || evt.Error == nil || evt.Error.Stack == "" || evt.ExpiresAt == nil {
		t.Fatalf("event after panic: %+v", evt)
	}
	j, _ := s.GetJob(ctx, *pub.JobID)
	if j.Status != job.StatusQueued || j.Attempts != 1 {
		t.Fatalf("job after panic: %+v", j)
	}

	c.Advance(j.RunAt.Sub(c.Now()))
	if _, err := eng.Worker().ProcessNext(ctx); err != nil {
		t.Fatalf("second ProcessNext: %v", err)
	}
	j, _ = s.GetJob(ctx, *pub.JobID)
	evt, _ = s.GetEvent(ctx, pub.EventID)
	if j.Status != job.StatusSucceeded || evt.Status != event.StatusHandled {
		t.Fatalf("job=%s event=%s", j.Status, evt.Status)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("handler calls = %d, want 2", got)
	}
	res, _ := engine.DecodeResult[event.TaskStatusChangedResult](evt.Result)
	if res.MatchedTasks != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestPublish_SyncHandlerPanicMarksEventFailed(t *testing.T) {
	var eventID id.EventID
	h := &countingHandler{fn: func(_ context.Context, meta event.Meta, _ event.TaskStatusChanged) (event.TaskStatusChangedResult, error) {
		eventID = meta.EventID
		panic("boom")
	}}
	eng, s, _ := newEngine(t, h)
	ctx := context.Background()

	_, err := eng.Publish(ctx, "user-1", statusChanged)
	var pe *mw.PanicError
	if !errors.As(err, &pe) || pe.Value != "boom" {
		t.Fatalf("expected panic error, got %v", err)
	}

	evt, err := s.GetEvent(ctx, eventID)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if evt.Status != event.StatusFailed || evt.Error == nil || evt.Error.Message != "panic: boom" {
		t.Fatalf("unexpected event %+v", evt)
	}
}

func TestWorker_MissingEventFailsPermanently(t *testing.T) {
	eng, s, _ := newEngine(t, &countingHandler{})
	ctx := context.Background()

	j, err := eng.Queue().Enqueue(ctx, job.TypeDomainEventDispatch, "user-1",
		job.DispatchPayload{EventID: id.NewEventID().String()}, job.WithMaxAttempts(5))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := eng.Worker().ProcessNext(ctx); err != nil {
		t.Fatalf("ProcessNext: %v", err)
	}

	stored, _ := s.GetJob(ctx, j.ID)
	if stored.Status != job.StatusFailed || stored.Attempts != 1 {
		t.Fatalf("expected permanent failure after one attempt, got %+v", stored)
	}
}

func TestPublish_KickDrainsJob(t *testing.T) {
	h := &countingHandler{}
	eng, s, _ := newEngine(t, h, engine.WithAsync(true))
	ctx := context.Background()

	pub, err := eng.Publish(ctx, "user-1", statusChanged)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	eng.Wait()

	evt, _ := s.GetEvent(ctx, pub.EventID)
	if evt.Status != event.StatusHandled || h.calls.Load() != 1 {
		t.Fatalf("event=%s calls=%d", evt.Status, h.calls.Load())
	}
}

func TestDispatch_RecordsSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	eng, _, _ := newEngine(t, &countingHandler{}, engine.WithTracerProvider(tp))

	if _, err := eng.Publish(context.Background(), "user-1", statusChanged); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	names := map[string]bool{}
	for _, s := range sr.Ended() {
		names[s.Name()] = true
	}
	if !names["taskwise.event.publish"] || !names["taskwise.event.dispatch"] {
		t.Fatalf("recorded spans %v", names)
	}
}
