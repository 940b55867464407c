package widget

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kylerisse/hostboard/pkg/hoststatus"
	"github.com/kylerisse/hostboard/pkg/render"
	"github.com/sirupsen/logrus"
)

// recorder is a MountPoint that keeps every write.
type recorder struct {
	mu     sync.Mutex
	writes []string
}

func (r *recorder) SetInnerHTML(markup string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, markup)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.writes...)
}

func (r *recorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.writes) == 0 {
		return ""
	}
	return r.writes[len(r.writes)-1]
}

// fetchFunc adapts a function to Fetcher.
type fetchFunc func(ctx context.Context) ([]hoststatus.Record, error)

func (f fetchFunc) Fetch(ctx context.Context) ([]hoststatus.Record, error) { return f(ctx) }

func staticFetcher(hosts []hoststatus.Record, err error) fetchFunc {
	return func(context.Context) ([]hoststatus.Record, error) { return hosts, err }
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestWidget(t *testing.T, f Fetcher, m MountPoint, opts ...Option) *Widget {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	w, err := New(f, m, opts...)
	if err != nil {
		t.Fatalf("failed to create widget: %v", err)
	}
	return w
}

func f64(v float64) *float64 { return &v }
func str(v string) *string   { return &v }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestNew_NilFetcher(t *testing.T) {
	if _, err := New(nil, &recorder{}); err == nil {
		t.Error("expected error for nil fetcher")
	}
}

func TestNew_Defaults(t *testing.T) {
	w := newTestWidget(t, staticFetcher(nil, nil), &recorder{})
	if w.Interval() != 5*time.Second {
		t.Errorf("expected default interval 5s, got %v", w.Interval())
	}
	if !w.guard {
		t.Error("expected in-flight guard enabled by default")
	}
	if w.State() != StateIdle {
		t.Errorf("expected idle state, got %s", w.State())
	}
}

func TestNew_InvalidOptions(t *testing.T) {
	if _, err := New(staticFetcher(nil, nil), nil, WithInterval(0)); err == nil {
		t.Error("expected error for zero interval")
	}
	if _, err := New(staticFetcher(nil, nil), nil, WithRenderer(nil)); err == nil {
		t.Error("expected error for nil renderer")
	}
	if _, err := New(staticFetcher(nil, nil), nil, WithLogger(nil)); err == nil {
		t.Error("expected error for nil logger")
	}
}

func TestLoad_Success(t *testing.T) {
	hosts := []hoststatus.Record{{
		IPAddress:  "10.0.0.1",
		Status:     hoststatus.StatusOnline,
		StatusText: "Up",
		Monitor:    &hoststatus.Monitor{CPUUsage: f64(42), MemoryUsage: f64(60), Timestamp: str("12:00:00")},
	}}
	rec := &recorder{}
	w := newTestWidget(t, staticFetcher(hosts, nil), rec)

	if err := w.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	writes := rec.all()
	if len(writes) != 2 {
		t.Fatalf("expected loading then data writes, got %d: %v", len(writes), writes)
	}
	if !strings.Contains(writes[0], `class="loading"`) {
		t.Errorf("expected loading placeholder first, got %q", writes[0])
	}
	for _, want := range []string{"10.0.0.1", "bg-success", "Up", "42%", "60%", "12:00:00"} {
		if !strings.Contains(writes[1], want) {
			t.Errorf("expected %q in rendered row, got %q", want, writes[1])
		}
	}
	if w.State() != StateDisplaying {
		t.Errorf("expected displaying state, got %s", w.State())
	}
	stats := w.Stats()
	if stats.Started != 1 || stats.Succeeded != 1 || stats.Failed != 0 || stats.Hosts != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if stats.LastSuccess.IsZero() {
		t.Error("expected last success time to be set")
	}
}

func TestLoad_EmptyList(t *testing.T) {
	rec := &recorder{}
	w := newTestWidget(t, staticFetcher([]hoststatus.Record{}, nil), rec)

	if err := w.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	last := rec.last()
	if strings.Count(last, "<tr>") != 1 || !strings.Contains(last, "暂无数据") {
		t.Errorf("expected single no-data row, got %q", last)
	}
}

func TestLoad_FetchFailure(t *testing.T) {
	rec := &recorder{}
	w := newTestWidget(t, staticFetcher(nil, errors.New("connection refused")), rec)

	err := w.Load(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}

	last := rec.last()
	if strings.Count(last, "<tr>") != 1 {
		t.Errorf("expected exactly one row, got %q", last)
	}
	if !strings.Contains(last, "connection refused") || !strings.Contains(last, "text-danger") {
		t.Errorf("expected error row with message, got %q", last)
	}
	if strings.Contains(last, "badge") {
		t.Errorf("expected no data rows, got %q", last)
	}
	if w.State() != StateError {
		t.Errorf("expected error state, got %s", w.State())
	}
	stats := w.Stats()
	if stats.Failed != 1 || stats.LastError != "connection refused" {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestLoad_NilMountPoint(t *testing.T) {
	w := newTestWidget(t, staticFetcher(nil, errors.New("boom")), nil)
	if err := w.Load(context.Background()); err == nil {
		t.Fatal("expected fetch error to be returned")
	}
	if w.State() != StateError {
		t.Errorf("expected error state, got %s", w.State())
	}
}

func TestRender_CustomLabels(t *testing.T) {
	r, err := render.New(render.Labels{NoData: "no data"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec := &recorder{}
	w := newTestWidget(t, staticFetcher(nil, nil), rec, WithRenderer(r))

	if err := w.Render(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.last(), "no data") {
		t.Errorf("expected custom no-data label, got %q", rec.last())
	}
}

func TestStart_LoadsImmediately(t *testing.T) {
	rec := &recorder{}
	release := make(chan struct{})
	f := fetchFunc(func(ctx context.Context) ([]hoststatus.Record, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return []hoststatus.Record{{IPAddress: "10.0.0.1"}}, nil
	})
	w := newTestWidget(t, f, rec, WithInterval(time.Hour))
	t.Cleanup(w.Stop)

	w.Start()

	if w.State() != StateLoading {
		t.Errorf("expected loading state right after Start, got %s", w.State())
	}
	if !strings.Contains(rec.last(), `class="loading"`) {
		t.Errorf("expected loading placeholder before Start returns, got %q", rec.last())
	}

	close(release)
	waitFor(t, "first load", func() bool { return w.State() == StateDisplaying })
	if !strings.Contains(rec.last(), "10.0.0.1") {
		t.Errorf("expected host row, got %q", rec.last())
	}
}

func TestStart_Repeats(t *testing.T) {
	var calls atomic.Int64
	f := fetchFunc(func(context.Context) ([]hoststatus.Record, error) {
		calls.Add(1)
		return nil, nil
	})
	w := newTestWidget(t, f, &recorder{}, WithInterval(10*time.Millisecond))
	w.Start()
	waitFor(t, "repeated loads", func() bool { return calls.Load() >= 3 })
	w.Stop()
}

func TestStart_Twice(t *testing.T) {
	var calls atomic.Int64
	f := fetchFunc(func(context.Context) ([]hoststatus.Record, error) {
		calls.Add(1)
		return nil, nil
	})
	w := newTestWidget(t, f, &recorder{}, WithInterval(time.Hour))
	w.Start()
	w.Start()
	waitFor(t, "first load", func() bool { return w.Stats().Succeeded == 1 })
	w.Stop()

	if calls.Load() != 1 {
		t.Errorf("expected one load, got %d", calls.Load())
	}
}

func TestStop_CancelsAndWaits(t *testing.T) {
	rec := &recorder{}
	entered := make(chan struct{})
	var exited atomic.Bool
	f := fetchFunc(func(ctx context.Context) ([]hoststatus.Record, error) {
		close(entered)
		<-ctx.Done()
		exited.Store(true)
		return nil, ctx.Err()
	})
	w := newTestWidget(t, f, rec, WithInterval(time.Hour))
	w.Start()
	<-entered

	w.Stop()

	if !exited.Load() {
		t.Error("expected in-flight fetch to have returned before Stop")
	}
	if w.State() != StateIdle {
		t.Errorf("expected idle after Stop, got %s", w.State())
	}
	if strings.Contains(rec.last(), "text-danger") {
		t.Errorf("expected no error row for a load abandoned by Stop, got %q", rec.last())
	}
	if w.Stats().Failed != 0 {
		t.Errorf("expected abandoned load not to count as failure, got %d", w.Stats().Failed)
	}
}

func TestStop_Idempotent(t *testing.T) {
	w := newTestWidget(t, staticFetcher(nil, nil), &recorder{}, WithInterval(time.Hour))
	w.Start()
	w.Stop()
	w.Stop()
}

func TestStop_BeforeStart(t *testing.T) {
	var calls atomic.Int64
	f := fetchFunc(func(context.Context) ([]hoststatus.Record, error) {
		calls.Add(1)
		return nil, nil
	})
	w := newTestWidget(t, f, &recorder{})
	w.Stop()
	w.Start()

	if calls.Load() != 0 {
		t.Errorf("expected Start after Stop to do nothing, got %d loads", calls.Load())
	}
	if w.State() != StateIdle {
		t.Errorf("expected idle, got %s", w.State())
	}
}

func TestStop_NoTicksAfterStop(t *testing.T) {
	var calls atomic.Int64
	f := fetchFunc(func(context.Context) ([]hoststatus.Record, error) {
		calls.Add(1)
		return nil, nil
	})
	w := newTestWidget(t, f, &recorder{}, WithInterval(5*time.Millisecond))
	w.Start()
	waitFor(t, "some loads", func() bool { return calls.Load() >= 2 })
	w.Stop()

	after := calls.Load()
	time.Sleep(30 * time.Millisecond)
	if calls.Load() != after {
		t.Errorf("expected no loads after Stop, got %d more", calls.Load()-after)
	}
}

func TestGuard_SkipsOverlappingTicks(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int64
	f := fetchFunc(func(ctx context.Context) ([]hoststatus.Record, error) {
		calls.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil, nil
	})
	w := newTestWidget(t, f, &recorder{}, WithInterval(5*time.Millisecond))
	w.Start()

	waitFor(t, "skipped ticks", func() bool { return w.Stats().Skipped >= 3 })
	if calls.Load() != 1 {
		t.Errorf("expected a single in-flight load, got %d", calls.Load())
	}
	if w.Stats().InFlight != 1 {
		t.Errorf("expected 1 in flight, got %d", w.Stats().InFlight)
	}

	close(release)
	waitFor(t, "next load after release", func() bool { return calls.Load() >= 2 })
	w.Stop()
}

func TestNoGuard_CyclesOverlap(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int64
	f := fetchFunc(func(ctx context.Context) ([]hoststatus.Record, error) {
		calls.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil, nil
	})
	w := newTestWidget(t, f, &recorder{}, WithInterval(5*time.Millisecond), WithSkipOverlapping(false))
	w.Start()

	waitFor(t, "overlapping loads", func() bool { return calls.Load() >= 3 })
	if w.Stats().Skipped != 0 {
		t.Errorf("expected no skipped ticks without guard, got %d", w.Stats().Skipped)
	}

	close(release)
	w.Stop()
}

func TestNoGuard_LastResolvedWins(t *testing.T) {
	rec := &recorder{}
	slow := make(chan struct{})
	var n atomic.Int64
	f := fetchFunc(func(ctx context.Context) ([]hoststatus.Record, error) {
		if n.Add(1) == 1 {
			<-slow
			return []hoststatus.Record{{IPAddress: "first-request"}}, nil
		}
		return []hoststatus.Record{{IPAddress: "second-request"}}, nil
	})
	w := newTestWidget(t, f, rec, WithSkipOverlapping(false))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = w.Load(context.Background())
	}()
	waitFor(t, "first request in flight", func() bool { return n.Load() == 1 })

	if err := w.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	close(slow)
	wg.Wait()

	if !strings.Contains(rec.last(), "first-request") {
		t.Errorf("expected the later-resolving request to own the mount point, got %q", rec.last())
	}
}

func TestStop_KeepsLastSnapshot(t *testing.T) {
	rec := &recorder{}
	var calls atomic.Int64
	f := fetchFunc(func(ctx context.Context) ([]hoststatus.Record, error) {
		if calls.Add(1) == 1 {
			return []hoststatus.Record{{IPAddress: "10.0.0.1", Status: hoststatus.StatusOnline, StatusText: "Up"}}, nil
		}
		<-ctx.Done()
		return nil, ctx.Err()
	})
	w := newTestWidget(t, f, rec, WithInterval(10*time.Millisecond))
	w.Start()

	waitFor(t, "second cycle loading", func() bool {
		return w.Stats().Succeeded == 1 && strings.Contains(rec.last(), `class="loading"`)
	})

	w.Stop()

	last := rec.last()
	if !strings.Contains(last, "<td>10.0.0.1</td>") {
		t.Errorf("expected last host snapshot after Stop, got %q", last)
	}
	if strings.Contains(last, "loading") {
		t.Errorf("expected no loading placeholder after Stop, got %q", last)
	}
	if w.Stats().Failed != 0 {
		t.Errorf("expected no failures, got %d", w.Stats().Failed)
	}
}

func TestStop_ClearsPlaceholderWithoutSnapshot(t *testing.T) {
	rec := &recorder{}
	f := fetchFunc(func(ctx context.Context) ([]hoststatus.Record, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	w := newTestWidget(t, f, rec, WithInterval(time.Hour))
	w.Start()
	w.Stop()

	if rec.last() != "" {
		t.Errorf("expected cleared mount point after Stop, got %q", rec.last())
	}
}

func TestTick_CanceledStartsNothing(t *testing.T) {
	rec := &recorder{}
	var calls atomic.Int64
	f := fetchFunc(func(context.Context) ([]hoststatus.Record, error) {
		calls.Add(1)
		return nil, nil
	})
	w := newTestWidget(t, f, rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.tick(ctx)
	w.wg.Wait()

	if calls.Load() != 0 {
		t.Errorf("expected no fetch, got %d", calls.Load())
	}
	if w.Stats().Started != 0 {
		t.Errorf("expected no cycle started, got %d", w.Stats().Started)
	}
	if len(rec.all()) != 0 {
		t.Errorf("expected no writes, got %q", rec.all())
	}
}
