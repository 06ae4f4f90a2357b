package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LedgerMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_ledger_mutations_total",
			Help: "Ledger mutations by reason and result code",
		},
		[]string{"reason", "result"},
	)

	DispatchOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_dispatch_outcomes_total",
			Help: "Propagation attempts by channel, platform and result",
		},
		[]string{"channel", "platform", "result"},
	)

	TargetsRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_dispatch_targets_removed_total",
			Help: "Stale registrations and subscriptions removed after a gone response",
		},
		[]string{"channel"},
	)

	OpenStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "loyalty_sse_open_streams",
			Help: "Currently open server-sent event streams",
		},
	)

	BroadcastEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_sse_events_total",
			Help: "Events offered to open streams by result",
		},
		[]string{"result"},
	)

	RelayRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_relay_records_total",
			Help: "Balance events relayed between replicas",
		},
		[]string{"direction", "result"},
	)
)

// Result returns the label used for a boolean outcome.
func Result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
