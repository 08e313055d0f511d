// Package indicator drives an activity indicator from operation lifecycles.
//
// An Indicator is owned by the composition root and shared by reference.
// Every operation that carries its Observer keeps the indicator visible
// while executing; the hide is debounced so bursts of short operations
// show one continuous indicator.
package indicator

import (
	"sync"
	"time"

	"github.com/Iron-Ham/opcoord/internal/debounce"
	"github.com/Iron-Ham/opcoord/internal/event"
	"github.com/Iron-Ham/opcoord/internal/logging"
	"github.com/Iron-Ham/opcoord/internal/operation"
)

// Indicator is a debounced activity indicator.
type Indicator struct {
	name    string
	counter *debounce.Counter
	bus     *event.Bus
	logger  *logging.Logger

	show func()
	hide func()

	delay     time.Duration
	scheduler debounce.Scheduler
	strict    bool

	// Events are queued under the counter lock and published after it is
	// released, so bus subscribers may read the indicator.
	qmu      sync.Mutex
	queue    []event.Event
	flushing bool
}

// Option configures an Indicator.
type Option func(*Indicator)

// WithName sets the name carried in indicator events. Default "network".
func WithName(name string) Option {
	return func(i *Indicator) {
		if name != "" {
			i.name = name
		}
	}
}

// WithBus publishes indicator.shown and indicator.hidden events.
func WithBus(b *event.Bus) Option {
	return func(i *Indicator) { i.bus = b }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(i *Indicator) {
		if l != nil {
			i.logger = l.WithComponent("indicator")
		}
	}
}

// WithDelay sets the hide delay.
func WithDelay(d time.Duration) Option {
	return func(i *Indicator) { i.delay = d }
}

// WithScheduler replaces the timer factory, mainly for tests.
func WithScheduler(s debounce.Scheduler) Option {
	return func(i *Indicator) { i.scheduler = s }
}

// WithStrict makes unbalanced decrements panic.
func WithStrict(strict bool) Option {
	return func(i *Indicator) { i.strict = strict }
}

// New creates an Indicator. show and hide may be nil when only events are
// wanted.
func New(show, hide func(), opts ...Option) *Indicator {
	i := &Indicator{
		name:   "network",
		show:   show,
		hide:   hide,
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(i)
	}

	scheduler := i.scheduler
	if scheduler == nil {
		scheduler = func(d time.Duration, fn func()) debounce.Timer { return time.AfterFunc(d, fn) }
	}
	counterOpts := []debounce.Option{
		debounce.WithDelay(i.delay),
		debounce.WithStrict(i.strict),
		debounce.WithLogger(i.logger),
		debounce.WithScheduler(func(d time.Duration, fn func()) debounce.Timer {
			return scheduler(d, func() {
				fn()
				i.flush()
			})
		}),
	}
	i.counter = debounce.New(i.onShow, i.onHide, counterOpts...)
	return i
}

func (i *Indicator) onShow() {
	i.logger.Debug("indicator shown", "name", i.name)
	if i.show != nil {
		i.show()
	}
	i.enqueue(event.NewIndicatorShownEvent(i.name))
}

func (i *Indicator) onHide() {
	i.logger.Debug("indicator hidden", "name", i.name)
	if i.hide != nil {
		i.hide()
	}
	i.enqueue(event.NewIndicatorHiddenEvent(i.name))
}

func (i *Indicator) enqueue(ev event.Event) {
	if i.bus == nil {
		return
	}
	i.qmu.Lock()
	i.queue = append(i.queue, ev)
	i.qmu.Unlock()
}

// flush publishes queued events in order. A flush started from a bus
// handler leaves its events to the flush already running.
func (i *Indicator) flush() {
	i.qmu.Lock()
	if i.flushing {
		i.qmu.Unlock()
		return
	}
	i.flushing = true
	for len(i.queue) > 0 {
		batch := i.queue
		i.queue = nil
		i.qmu.Unlock()
		for _, ev := range batch {
			i.bus.Publish(ev)
		}
		i.qmu.Lock()
	}
	i.flushing = false
	i.qmu.Unlock()
}

// Begin marks one unit of activity. Pair every Begin with an End.
func (i *Indicator) Begin() {
	i.counter.Increment()
	i.flush()
}

// End ends one unit of activity.
func (i *Indicator) End() error {
	err := i.counter.Decrement()
	i.flush()
	return err
}

// Visible reports whether the indicator is shown.
func (i *Indicator) Visible() bool { return i.counter.Visible() }

// Active returns the number of operations currently holding the indicator.
func (i *Indicator) Active() int { return i.counter.Count() }

// Close cancels a pending hide.
func (i *Indicator) Close() { i.counter.Close() }

// Observer returns a new Observer for one operation. It begins activity on
// OnStart and ends it on OnFinish. An operation cancelled before it
// started never touches the count.
func (i *Indicator) Observer() operation.Observer {
	return &observer{indicator: i}
}

type observer struct {
	indicator *Indicator

	mu      sync.Mutex
	started map[*operation.Operation]bool
}

func (o *observer) OnStart(op *operation.Operation) {
	o.mu.Lock()
	if o.started == nil {
		o.started = make(map[*operation.Operation]bool)
	}
	o.started[op] = true
	o.mu.Unlock()

	o.indicator.Begin()
}

func (o *observer) OnProduce(*operation.Operation, *operation.Operation) {}

func (o *observer) OnFinish(op *operation.Operation, _ []error) {
	o.mu.Lock()
	started := o.started[op]
	delete(o.started, op)
	o.mu.Unlock()

	if !started {
		return
	}
	if err := o.indicator.End(); err != nil {
		o.indicator.logger.Error("indicator end failed", "operation_id", op.ID(), "error", err.Error())
	}
}
