// Package metrics はジョブの状態遷移を Prometheus に公開します。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ytdlp_server"

// Jobs はジョブ数のメトリクスをまとめたものです。
type Jobs struct {
	created  prometheus.Counter
	finished *prometheus.CounterVec
	active   prometheus.Gauge
}

// NewJobs はメトリクスを作成し、reg に登録します。reg が nil の場合は登録しません。
func NewJobs(reg prometheus.Registerer) *Jobs {
	m := &Jobs{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_created_total",
			Help:      "Total number of download jobs accepted.",
		}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Total number of download jobs that reached a terminal state.",
		}, []string{"status"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_active",
			Help:      "Number of download jobs currently running.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.created, m.finished, m.active)
	}
	return m
}

// JobStarted はジョブ受付時に呼ばれます。
func (m *Jobs) JobStarted() {
	if m == nil {
		return
	}
	m.created.Inc()
	m.active.Inc()
}

// JobFinished は終端状態への遷移時に呼ばれます。
func (m *Jobs) JobFinished(status string) {
	if m == nil {
		return
	}
	m.active.Dec()
	m.finished.WithLabelValues(status).Inc()
}
