// Package observability exposes reminder engine activity as Prometheus
// metrics. Instruments are fed from the event bus so the engine itself
// never imports prometheus.
package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"remindbot/internal/eventbus"
	logx "remindbot/pkg/logx"
)

const Namespace = "remindbot"

type Metrics struct {
	tasks      *prometheus.CounterVec
	deliveries *prometheus.CounterVec
	notifies   *prometheus.CounterVec
	saves      *prometheus.CounterVec
	ticks      *prometheus.CounterVec

	tickDuration prometheus.Histogram
	saveDuration prometheus.Histogram
	saveBytes    prometheus.Gauge
}

// NewMetrics registers all instruments on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "tasks_total",
			Help:      "Tasks created or cancelled by users.",
		}, []string{"op"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "deliveries_total",
			Help:      "Due-task deliveries by result.",
		}, []string{"result"}),
		notifies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "messages_total",
			Help:      "Outbound chat messages by mode and result.",
		}, []string{"mode", "result"}),
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "saves_total",
			Help:      "Persistence saves by result.",
		}, []string{"result"}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "scheduler_ticks_total",
			Help:      "Scheduler ticks by result.",
		}, []string{"result"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "scheduler_tick_duration_seconds",
			Help:      "Duration of scheduler ticks.",
			Buckets:   prometheus.DefBuckets,
		}),
		saveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "save_duration_seconds",
			Help:      "Duration of persistence saves.",
			Buckets:   prometheus.DefBuckets,
		}),
		saveBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "snapshot_bytes",
			Help:      "Size of the last saved snapshot.",
		}),
	}
	reg.MustRegister(m.tasks, m.deliveries, m.notifies, m.saves, m.ticks, m.tickDuration, m.saveDuration, m.saveBytes)
	return m
}

// RegisterPending exposes the current number of pending tasks.
func RegisterPending(reg prometheus.Registerer, pending func() int) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "pending_tasks",
		Help:      "Tasks waiting for delivery.",
	}, func() float64 { return float64(pending()) }))
}

// NewRegistry returns a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Observe updates instruments for one event.
func (m *Metrics) Observe(e eventbus.Event) {
	switch e.Type {
	case eventbus.TaskCreated, eventbus.TaskCancelled:
		n := 1
		if tc, ok := e.Data.(eventbus.TaskChange); ok && tc.Count > 0 {
			n = tc.Count
		}
		op := "created"
		if e.Type == eventbus.TaskCancelled {
			op = "cancelled"
		}
		m.tasks.WithLabelValues(op).Add(float64(n))
	case eventbus.Delivered:
		m.deliveries.WithLabelValues("ok").Inc()
	case eventbus.DeliveryFailed:
		m.deliveries.WithLabelValues("failed").Inc()
	case eventbus.NotifySent, eventbus.NotifyFailed:
		mode := "unknown"
		if n, ok := e.Data.(eventbus.Notify); ok && n.Mode != "" {
			mode = n.Mode
		}
		result := "ok"
		if e.Type == eventbus.NotifyFailed {
			result = "failed"
		}
		m.notifies.WithLabelValues(mode, result).Inc()
	case eventbus.TickCompleted, eventbus.TickFailed:
		result := "ok"
		if e.Type == eventbus.TickFailed {
			result = "failed"
		}
		m.ticks.WithLabelValues(result).Inc()
		if t, ok := e.Data.(eventbus.Tick); ok {
			m.tickDuration.Observe(t.Took.Seconds())
		}
	case eventbus.SaveCompleted:
		m.saves.WithLabelValues("ok").Inc()
		if s, ok := e.Data.(eventbus.Save); ok {
			m.saveDuration.Observe(s.Took.Seconds())
			m.saveBytes.Set(float64(s.Bytes))
		}
	case eventbus.SaveFailed:
		m.saves.WithLabelValues("failed").Inc()
	}
}

// Run consumes bus events until ctx is done.
func (m *Metrics) Run(ctx context.Context, bus eventbus.Bus, log logx.Logger) error {
	ch, unsubscribe := bus.Subscribe(256)
	defer unsubscribe()
	log.Debug("metrics consumer started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			m.Observe(e)
		}
	}
}
