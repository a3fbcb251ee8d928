package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 对账结果标签
const (
	ReconcileUpdated     = "updated"
	ReconcileUnavailable = "chain_unavailable"
	ReconcileFailed      = "failed"
)

// Metrics 服务指标，nil 接收者上的方法均为空操作
type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	transitions      *prometheus.CounterVec
	skippedItems     *prometheus.CounterVec
	reconcileResults *prometheus.CounterVec
	notifierFailures *prometheus.CounterVec
	skippedTicks     *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
}

// New 创建独立 registry 并注册全部指标
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ido_phase_transitions_total",
			Help: "Campaign phase transitions by source and target phase.",
		}, []string{"source", "from", "to"}),
		skippedItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ido_scheduler_items_skipped_total",
			Help: "Campaigns skipped by a periodic job, by reason.",
		}, []string{"job", "reason"}),
		reconcileResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ido_reconcile_results_total",
			Help: "Per-campaign chain reconciliation outcomes.",
		}, []string{"result"}),
		notifierFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ido_notifier_failures_total",
			Help: "Swallowed notification delivery failures by stage.",
		}, []string{"stage"}),
		skippedTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ido_scheduler_ticks_skipped_total",
			Help: "Job runs skipped because a previous run was still in flight.",
		}, []string{"job"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ido_job_duration_seconds",
			Help:    "Duration in seconds of periodic job runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
	}
	registry.MustRegister(m.transitions, m.skippedItems, m.reconcileResults,
		m.notifierFailures, m.skippedTicks, m.jobDuration)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler /metrics 端点
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry 暴露 registry 供测试读取
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Transition(source, from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(source, from, to).Inc()
}

func (m *Metrics) SkippedItem(job, reason string) {
	if m == nil {
		return
	}
	m.skippedItems.WithLabelValues(job, reason).Inc()
}

func (m *Metrics) ReconcileResult(result string) {
	if m == nil {
		return
	}
	m.reconcileResults.WithLabelValues(result).Inc()
}

func (m *Metrics) NotifierFailure(stage string) {
	if m == nil {
		return
	}
	m.notifierFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) SkippedTick(job string) {
	if m == nil {
		return
	}
	m.skippedTicks.WithLabelValues(job).Inc()
}

// ObserveJob 记录一次任务耗时
func (m *Metrics) ObserveJob(job string, start time.Time) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())
}
