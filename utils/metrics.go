package utils

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	campaignsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "campaigns_created_total",
			Help: "Total number of outreach campaigns instantiated",
		},
	)

	tasksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasks_completed_total",
			Help: "Total number of tasks completed by outcome",
		},
		[]string{"outcome"},
	)

	leadsImported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leads_imported_total",
			Help: "Total number of leads imported by source",
		},
		[]string{"source"},
	)

	callsInitiated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calls_initiated_total",
			Help: "Total number of outbound calls by dial result",
		},
		[]string{"status"},
	)

	integrationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integration_errors_total",
			Help: "Total number of integration errors",
		},
		[]string{"service"},
	)
)

func RecordCampaignCreated() {
	campaignsCreated.Inc()
}

func RecordTaskCompleted(outcome string) {
	if outcome == "" {
		outcome = "none"
	}
	tasksCompleted.WithLabelValues(outcome).Inc()
}

func RecordLeadsImported(source string, n int) {
	leadsImported.WithLabelValues(source).Add(float64(n))
}

func RecordCallInitiated(status string) {
	callsInitiated.WithLabelValues(status).Inc()
}

func RecordIntegrationError(service string) {
	integrationErrors.WithLabelValues(service).Inc()
}
