package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatch outcomes.
const (
	outcomeRecorded   = "recorded"
	outcomeSuppressed = "suppressed"
	outcomeIgnored    = "ignored"
	outcomeFailed     = "failed"
)

var (
	dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retireplan_audit_dispatch_total",
		Help: "Change events handled by the audit dispatcher, by collection and outcome",
	}, []string{"collection", "outcome"})

	entriesAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retireplan_audit_entries_appended_total",
		Help: "Audit entries appended, by collection and action",
	}, []string{"collection", "action"})

	entriesDeduplicated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "retireplan_audit_entries_deduplicated_total",
		Help: "Redelivered events whose audit entry already existed",
	})

	mirrorFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "retireplan_audit_mirror_errors_total",
		Help: "Audit entries appended but not mirrored",
	})
)
