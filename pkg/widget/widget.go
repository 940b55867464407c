// Package widget implements the host monitor widget: it loads the host list
// on start and every interval afterwards, and renders each result into a
// mount point.
//
// A load cycle renders a loading placeholder, fetches the host list, and
// renders either the hosts or an error placeholder. Failures are logged and
// shown inline; the next tick tries again. There is no retry or backoff.
//
// The recurring timer is owned by the Widget and torn down by Stop.
package widget

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kylerisse/hostboard/pkg/hoststatus"
	"github.com/kylerisse/hostboard/pkg/render"
	"github.com/sirupsen/logrus"
)

// DefaultInterval is the time between the start of two load cycles.
const DefaultInterval = 5000 * time.Millisecond

// Fetcher retrieves the current host list.
type Fetcher interface {
	Fetch(ctx context.Context) ([]hoststatus.Record, error)
}

// MountPoint receives rendered markup. Each call replaces the previous
// contents in full.
type MountPoint interface {
	SetInnerHTML(markup string)
}

// State is the widget's position in the load cycle.
type State string

const (
	// StateIdle is the state before Start and after Stop.
	StateIdle State = "idle"
	// StateLoading means a cycle has rendered its loading placeholder and
	// is waiting for the fetch.
	StateLoading State = "loading"
	// StateDisplaying means the last finished cycle rendered host data.
	StateDisplaying State = "displaying"
	// StateError means the last finished cycle failed.
	StateError State = "error"
)

// Stats is a point-in-time copy of the widget counters.
type Stats struct {
	Started     uint64    `json:"started"`
	Succeeded   uint64    `json:"succeeded"`
	Failed      uint64    `json:"failed"`
	Skipped     uint64    `json:"skipped"`
	InFlight    int64     `json:"in_flight"`
	Hosts       int       `json:"hosts"`
	LastSuccess time.Time `json:"last_success,omitzero"`
	LastError   string    `json:"last_error,omitempty"`
	LastErrorAt time.Time `json:"last_error_at,omitzero"`
}

// Widget polls a Fetcher and renders into a MountPoint.
type Widget struct {
	fetcher  Fetcher
	mount    MountPoint
	renderer *render.Renderer
	interval time.Duration
	guard    bool
	logger   *logrus.Logger

	mu      sync.Mutex
	state   State
	stats   Stats
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	busy     atomic.Bool
	inFlight atomic.Int64

	// mountMu orders writes to the mount point. settled is the last host
	// or error markup written; loadingShown is set while the mount point
	// holds a loading placeholder.
	mountMu      sync.Mutex
	settled      string
	loadingShown bool
}

// Option is a functional option for configuring a Widget.
type Option func(*Widget) error

// WithInterval sets the time between load cycles.
func WithInterval(d time.Duration) Option {
	return func(w *Widget) error {
		if d <= 0 {
			return fmt.Errorf("interval must be positive, got %v", d)
		}
		w.interval = d
		return nil
	}
}

// WithRenderer replaces the default renderer.
func WithRenderer(r *render.Renderer) Option {
	return func(w *Widget) error {
		if r == nil {
			return fmt.Errorf("renderer must not be nil")
		}
		w.renderer = r
		return nil
	}
}

// WithLogger sets the logger. The default is the logrus standard logger.
func WithLogger(l *logrus.Logger) Option {
	return func(w *Widget) error {
		if l == nil {
			return fmt.Errorf("logger must not be nil")
		}
		w.logger = l
		return nil
	}
}

// WithSkipOverlapping controls the in-flight guard. When enabled, a tick
// that fires while a previous cycle is still running is skipped. When
// disabled, cycles may overlap and whichever finishes last owns the mount
// point. Enabled by default.
func WithSkipOverlapping(skip bool) Option {
	return func(w *Widget) error {
		w.guard = skip
		return nil
	}
}

// New creates a Widget. A nil mount point is allowed: cycles still run but
// nothing is rendered.
func New(fetcher Fetcher, mount MountPoint, opts ...Option) (*Widget, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("widget: fetcher must not be nil")
	}

	w := &Widget{
		fetcher:  fetcher,
		mount:    mount,
		interval: DefaultInterval,
		guard:    true,
		logger:   logrus.StandardLogger(),
		state:    StateIdle,
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, fmt.Errorf("widget: %w", err)
		}
	}

	if w.renderer == nil {
		r, err := render.New(render.DefaultLabels())
		if err != nil {
			return nil, fmt.Errorf("widget: %w", err)
		}
		w.renderer = r
	}

	return w, nil
}

// Start runs the first load cycle immediately and then one every interval
// until Stop. The loading placeholder of the first cycle is rendered before
// Start returns. Calling Start more than once, or after Stop, does nothing.
func (w *Widget) Start() {
	w.mu.Lock()
	if w.started || w.stopped {
		w.mu.Unlock()
		return
	}
	w.started = true
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.wg.Add(1) // released by run
	w.mu.Unlock()

	w.logger.Infof("Starting widget, loading every %v", w.interval)

	w.tick(ctx)
	go w.run(ctx)
}

// Stop tears down the timer, cancels running fetches and waits for every
// cycle to return. A stopped Widget cannot be started again.
func (w *Widget) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	started := w.started
	cancel := w.cancel
	w.mu.Unlock()

	if !started {
		w.setState(StateIdle)
		return
	}

	cancel()
	w.wg.Wait()
	w.restoreSettled()
	w.setState(StateIdle)
	w.logger.Info("Widget stopped.")
}

// Interval returns the time between load cycles.
func (w *Widget) Interval() time.Duration {
	return w.interval
}

// State returns the current state.
func (w *Widget) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Stats returns a copy of the counters.
func (w *Widget) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.stats
	s.InFlight = w.inFlight.Load()
	return s
}

// Load runs one load cycle synchronously and returns the fetch or render
// error, if any. The error has already been rendered and logged.
func (w *Widget) Load(ctx context.Context) error {
	w.begin()
	return w.complete(ctx)
}

// Render replaces the mount point contents with one row per host, or the
// "no data" row for an empty list.
func (w *Widget) Render(hosts []hoststatus.Record) error {
	markup, err := w.renderer.Hosts(hosts)
	if err != nil {
		return err
	}
	w.show(markup, true)
	return nil
}

// run owns the ticker. The first cycle was already started by Start.
func (w *Widget) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.tick(ctx)
		case <-ctx.Done():
			w.logger.Debug("Widget timer received shutdown signal.")
			return
		}
	}
}

// tick starts a cycle: the loading placeholder is rendered synchronously and
// the fetch runs in its own goroutine so a slow endpoint never delays the
// timer. Nothing starts once ctx is done. The caller must hold a wg
// reference for the duration of the call.
func (w *Widget) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if w.guard && !w.busy.CompareAndSwap(false, true) {
		w.mu.Lock()
		w.stats.Skipped++
		w.mu.Unlock()
		w.logger.Debug("Previous load still in flight, skipping tick")
		return
	}

	w.begin()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if w.guard {
			defer w.busy.Store(false)
		}
		_ = w.complete(ctx)
	}()
}

func (w *Widget) begin() {
	w.inFlight.Add(1)

	w.mu.Lock()
	w.stats.Started++
	w.state = StateLoading
	w.mu.Unlock()

	markup, err := w.renderer.Loading()
	if err != nil {
		w.logger.Errorf("Failed to render loading placeholder: %v", err)
		return
	}
	w.show(markup, false)
}

func (w *Widget) complete(ctx context.Context) error {
	defer w.inFlight.Add(-1)

	hosts, err := w.fetcher.Fetch(ctx)
	if err == nil {
		err = w.Render(hosts)
	}

	if err != nil && w.shuttingDown() && errors.Is(ctx.Err(), context.Canceled) {
		w.logger.Debugf("Load abandoned during shutdown: %v", err)
		return err
	}

	if err != nil {
		w.logger.Errorf("Failed to load host data: %v", err)
		w.fail(err)
		return err
	}

	w.mu.Lock()
	w.stats.Succeeded++
	w.stats.Hosts = len(hosts)
	w.stats.LastSuccess = time.Now()
	w.state = StateDisplaying
	w.mu.Unlock()

	w.logger.Debugf("Loaded %d host(s)", len(hosts))
	return nil
}

func (w *Widget) fail(err error) {
	w.mu.Lock()
	w.stats.Failed++
	w.stats.LastError = err.Error()
	w.stats.LastErrorAt = time.Now()
	w.state = StateError
	w.mu.Unlock()

	markup, rerr := w.renderer.Error(err.Error())
	if rerr != nil {
		w.logger.Errorf("Failed to render error placeholder: %v", rerr)
		return
	}
	w.show(markup, true)
}

// show writes markup to the mount point. settled marks host and error
// markup as opposed to the loading placeholder.
func (w *Widget) show(markup string, settled bool) {
	w.mountMu.Lock()
	defer w.mountMu.Unlock()
	w.loadingShown = !settled
	if settled {
		w.settled = markup
	}
	if w.mount != nil {
		w.mount.SetInnerHTML(markup)
	}
}

// restoreSettled replaces a loading placeholder left by a cycle abandoned
// in Stop with the last settled markup. Without one the mount point is
// cleared.
func (w *Widget) restoreSettled() {
	w.mountMu.Lock()
	defer w.mountMu.Unlock()
	if !w.loadingShown {
		return
	}
	w.loadingShown = false
	if w.mount != nil {
		w.mount.SetInnerHTML(w.settled)
	}
}

func (w *Widget) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

func (w *Widget) shuttingDown() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopped
}
