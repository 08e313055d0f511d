// Package metrics exports coordination events as Prometheus metrics.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Iron-Ham/opcoord/internal/event"
)

const namespace = "opcoord"

// OutcomeSucceeded labels operations that finished without errors. Other
// outcomes use the error classes from errors.Classify.
const OutcomeSucceeded = "succeeded"

// Recorder turns bus events into metrics on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	submitted      prometheus.Counter
	finished       *prometheus.CounterVec
	running        prometheus.Gauge
	duration       prometheus.Histogram
	exclusionWaits *prometheus.CounterVec
	indicator      *prometheus.GaugeVec
	grants         prometheus.Gauge
	grantsEnded    *prometheus.CounterVec
	background     prometheus.Gauge

	mu     sync.Mutex
	bus    *event.Bus
	subIDs []string
}

// NewRecorder creates a Recorder with every collector registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_submitted_total",
			Help:      "Operations accepted by the executor",
		}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_finished_total",
			Help:      "Operations that reached a terminal state, by outcome or error class",
		}, []string{"outcome"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "operations_running",
			Help:      "Operations currently executing",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Time from submission to terminal state",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		exclusionWaits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exclusion_waits_total",
			Help:      "Operations queued behind another holder of the same exclusive condition",
		}, []string{"condition"}),
		indicator: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indicator_visible",
			Help:      "1 while the named activity indicator is shown",
		}, []string{"name"}),
		grants: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "grants_outstanding",
			Help:      "Execution grants begun and not yet ended",
		}),
		grantsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grants_ended_total",
			Help:      "Execution grants ended, by reason",
		}, []string{"reason"}),
		background: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "environment_background",
			Help:      "1 while the host environment is in the background",
		}),
	}

	r.registry.MustRegister(
		r.submitted,
		r.finished,
		r.running,
		r.duration,
		r.exclusionWaits,
		r.indicator,
		r.grants,
		r.grantsEnded,
		r.background,
	)
	return r
}

// Registry returns the registry backing the Recorder.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Attach subscribes the Recorder to bus. Attaching again moves the
// subscription.
func (r *Recorder) Attach(bus *event.Bus) {
	r.Detach()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.bus = bus
	r.subIDs = []string{
		bus.Subscribe(event.TypeOperationSubmitted, r.onSubmitted),
		bus.Subscribe(event.TypeOperationStarted, r.onStarted),
		bus.Subscribe(event.TypeOperationFinished, r.onFinished),
		bus.Subscribe(event.TypeExclusionQueued, r.onExclusionQueued),
		bus.Subscribe(event.TypeIndicatorShown, r.onIndicator),
		bus.Subscribe(event.TypeIndicatorHidden, r.onIndicator),
		bus.Subscribe(event.TypeGrantBegun, r.onGrantBegun),
		bus.Subscribe(event.TypeGrantEnded, r.onGrantEnded),
		bus.Subscribe(event.TypeEnvironmentChanged, r.onEnvironmentChanged),
	}
}

// Detach removes the Recorder's subscriptions.
func (r *Recorder) Detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bus == nil {
		return
	}
	for _, id := range r.subIDs {
		r.bus.Unsubscribe(id)
	}
	r.bus = nil
	r.subIDs = nil
}

func (r *Recorder) onSubmitted(event.Event) {
	r.submitted.Inc()
}

func (r *Recorder) onStarted(event.Event) {
	r.running.Inc()
}

func (r *Recorder) onFinished(e event.Event) {
	fe, ok := e.(event.OperationFinishedEvent)
	if !ok {
		return
	}
	if !fe.Cancelled {
		r.running.Dec()
	}
	outcome := fe.Outcome
	if outcome == "" {
		outcome = OutcomeSucceeded
	}
	r.finished.WithLabelValues(outcome).Inc()
	r.duration.Observe(fe.Duration.Seconds())
}

func (r *Recorder) onExclusionQueued(e event.Event) {
	if qe, ok := e.(event.ExclusionQueuedEvent); ok {
		r.exclusionWaits.WithLabelValues(qe.Key).Inc()
	}
}

func (r *Recorder) onIndicator(e event.Event) {
	ie, ok := e.(event.IndicatorEvent)
	if !ok {
		return
	}
	v := 0.0
	if ie.Visible() {
		v = 1
	}
	r.indicator.WithLabelValues(ie.Name).Set(v)
}

func (r *Recorder) onGrantBegun(event.Event) {
	r.grants.Inc()
}

func (r *Recorder) onGrantEnded(e event.Event) {
	ge, ok := e.(event.GrantEndedEvent)
	if !ok {
		return
	}
	r.grants.Dec()
	r.grantsEnded.WithLabelValues(ge.Reason).Inc()
}

func (r *Recorder) onEnvironmentChanged(e event.Event) {
	ce, ok := e.(event.EnvironmentChangedEvent)
	if !ok {
		return
	}
	v := 0.0
	if ce.Background {
		v = 1
	}
	r.background.Set(v)
}
