package layout

import (
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/blockflow/pkg/observability"
)

// Defaults for deferred measurement polling.
const (
	DefaultMeasureDelay       = 16 * time.Millisecond
	DefaultMeasureMaxAttempts = 30
)

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d. The default implementation is time.AfterFunc;
// tests substitute a manual clock.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// SchedulerFunc adapts a function to the Scheduler interface.
type SchedulerFunc func(d time.Duration, f func()) Timer

// AfterFunc calls fn(d, f).
func (fn SchedulerFunc) AfterFunc(d time.Duration, f func()) Timer { return fn(d, f) }

// TimeScheduler schedules on the runtime timer wheel.
var TimeScheduler Scheduler = SchedulerFunc(func(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
})

// Outcome is the verdict of one deferred attempt.
type Outcome int

const (
	// Done stops polling; the work was performed.
	Done Outcome = iota
	// Retry polls again after the delay.
	Retry
	// Abandon stops polling without doing the work, e.g. because the node
	// was removed.
	Abandon
)

// AttemptFunc performs one deferred attempt for node id. attempt counts
// from 1.
type AttemptFunc func(id string, attempt int) Outcome

// DeferredConfig controls deferred polling.
type DeferredConfig struct {
	Delay       time.Duration
	MaxAttempts int
}

// DefaultDeferredConfig returns the default polling settings.
func DefaultDeferredConfig() DeferredConfig {
	return DeferredConfig{Delay: DefaultMeasureDelay, MaxAttempts: DefaultMeasureMaxAttempts}
}

// Deferred polls for nodes whose layout has to wait until the rendering
// layer reports their size. Each scheduled node is retried every Delay until
// the attempt function reports Done or Abandon, or MaxAttempts is reached.
type Deferred struct {
	cfg     DeferredConfig
	sched   Scheduler
	attempt AttemptFunc
	log     *log.Logger

	mu      sync.Mutex
	pending map[string]*pendingAttempt
	gen     uint64
}

type pendingAttempt struct {
	gen      uint64
	attempts int
	timer    Timer
}

// NewDeferred creates a poller calling attempt. A nil scheduler uses
// TimeScheduler and a nil logger uses log.Default().
func NewDeferred(cfg DeferredConfig, sched Scheduler, attempt AttemptFunc, logger *log.Logger) *Deferred {
	def := DefaultDeferredConfig()
	if cfg.Delay <= 0 {
		cfg.Delay = def.Delay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if sched == nil {
		sched = TimeScheduler
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Deferred{
		cfg:     cfg,
		sched:   sched,
		attempt: attempt,
		log:     logger,
		pending: make(map[string]*pendingAttempt),
	}
}

// Schedule starts polling for id. Scheduling an id that is already pending
// restarts its attempt count.
func (d *Deferred) Schedule(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pending[id]; ok {
		p.timer.Stop()
	}
	d.gen++
	p := &pendingAttempt{gen: d.gen}
	d.pending[id] = p
	d.arm(id, p)
}

// arm must be called with d.mu held.
func (d *Deferred) arm(id string, p *pendingAttempt) {
	gen := p.gen
	p.timer = d.sched.AfterFunc(d.cfg.Delay, func() { d.fire(id, gen) })
}

// Cancel stops polling for id. It reports whether id was pending.
func (d *Deferred) Cancel(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pending[id]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(d.pending, id)
	return true
}

// Pending returns the ids currently being polled, sorted.
func (d *Deferred) Pending() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, 0, len(d.pending))
	for id := range d.pending {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Stop cancels all polling.
func (d *Deferred) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, id)
	}
}

func (d *Deferred) fire(id string, gen uint64) {
	d.mu.Lock()
	p, ok := d.pending[id]
	if !ok || p.gen != gen {
		d.mu.Unlock()
		return
	}
	p.attempts++
	n := p.attempts
	d.mu.Unlock()

	// The attempt runs without d.mu so it may call Cancel or Schedule.
	outcome := d.attempt(id, n)

	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.pending[id]; !ok || cur.gen != gen {
		return
	}
	switch outcome {
	case Retry:
		if n >= d.cfg.MaxAttempts {
			delete(d.pending, id)
			d.log.Warn("node never measured, giving up on layout", "node", id, "attempts", n)
			observability.Layout().OnMeasureAbandoned(id, n)
			return
		}
		observability.Layout().OnMeasureRetry(id, n)
		d.arm(id, p)
	default:
		delete(d.pending, id)
	}
}
