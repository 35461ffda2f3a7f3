package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application. Methods are
// nil-receiver safe so tests can pass nil instead of registering collectors.
type Metrics struct {
	DocumentsCreated    prometheus.Counter
	DocumentsDeleted    prometheus.Counter
	QuotaRejections     prometheus.Counter
	ProgressSaves       prometheus.Counter
	MigrationsCompleted prometheus.Counter
	EventsPublished     prometheus.Counter
}

// New creates and registers all Prometheus metrics. Call once per process.
func New() *Metrics {
	return &Metrics{
		DocumentsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pmohub_documents_created_total",
			Help: "Total number of dossier documents created",
		}),
		DocumentsDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pmohub_documents_deleted_total",
			Help: "Total number of dossier documents deleted",
		}),
		QuotaRejections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pmohub_store_quota_rejections_total",
			Help: "Total number of writes rejected because the store quota was exceeded",
		}),
		ProgressSaves: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pmohub_progress_saves_total",
			Help: "Total number of sub-form progress records saved",
		}),
		MigrationsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pmohub_migrations_completed_total",
			Help: "Total number of legacy layout migrations completed",
		}),
		EventsPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pmohub_change_events_published_total",
			Help: "Total number of change events published to the bus",
		}),
	}
}

func (m *Metrics) IncDocumentsCreated() {
	if m == nil {
		return
	}
	m.DocumentsCreated.Inc()
}

func (m *Metrics) IncDocumentsDeleted() {
	if m == nil {
		return
	}
	m.DocumentsDeleted.Inc()
}

func (m *Metrics) IncQuotaRejections() {
	if m == nil {
		return
	}
	m.QuotaRejections.Inc()
}

func (m *Metrics) IncProgressSaves() {
	if m == nil {
		return
	}
	m.ProgressSaves.Inc()
}

func (m *Metrics) IncMigrationsCompleted() {
	if m == nil {
		return
	}
	m.MigrationsCompleted.Inc()
}

func (m *Metrics) IncEventsPublished() {
	if m == nil {
		return
	}
	m.EventsPublished.Inc()
}
