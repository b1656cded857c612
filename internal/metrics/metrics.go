/*
Prometheus metrics for the vault. Instruction outcomes arrive through the controller observer hook,
valuation gauges through the snapshot loop. Every collector lives on the Metrics registry, so tests and
multiple vaults in one process never share state.
*/

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banana-dao/banana-vaults/internal/logger"
	"github.com/banana-dao/banana-vaults/internal/types"
	"github.com/banana-dao/banana-vaults/internal/utils"
)

const outcomeOK = "ok"

var metricsLogger = logger.GetForComponent("metrics")

// Metrics holds the vault collectors and their registry.
type Metrics struct {
	registry *prometheus.Registry

	instructions        *prometheus.CounterVec
	instructionDuration *prometheus.HistogramVec
	invariantBreaches   prometheus.Counter

	nav         prometheus.Gauge
	sharePrice  prometheus.Gauge
	totalShares prometheus.Gauge
	holdings    *prometheus.GaugeVec

	snapshots        prometheus.Counter
	snapshotFailures *prometheus.CounterVec
}

// New creates the collectors under namespace and registers them with a fresh registry.
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		instructions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instructions_total",
			Help:      "Instructions executed, by instruction and outcome (ok or error kind)",
		}, []string{"instruction", "outcome"}),

		instructionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "instruction_duration_seconds",
			Help:      "Instruction execution time including valuation",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"instruction"}),

		invariantBreaches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invariant_breaches_total",
			Help:      "Instructions rejected by an accounting invariant breach; any increase warrants halting the vault",
		}),

		nav: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nav",
			Help:      "Net asset value in whole reference units",
		}),

		sharePrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "share_price",
			Help:      "Reference base units per share",
		}),

		totalShares: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_shares",
			Help:      "Outstanding vault shares",
		}),

		holdings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "holding_value",
			Help:      "Value of each holding in whole reference units",
		}, []string{"denom"}),

		snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "NAV snapshots taken",
		}),

		snapshotFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_failures_total",
			Help:      "NAV snapshots that could not be taken, by error kind",
		}, []string{"kind"}),
	}

	registry.MustRegister(
		m.instructions, m.instructionDuration, m.invariantBreaches,
		m.nav, m.sharePrice, m.totalShares, m.holdings,
		m.snapshots, m.snapshotFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveInstruction counts receipt and records its duration.
func (m *Metrics) ObserveInstruction(receipt types.InstructionReceipt) {
	outcome := outcomeOK
	if !receipt.Success {
		outcome = string(receipt.ErrorKind)
	}
	m.instructions.WithLabelValues(receipt.Instruction, outcome).Inc()
	m.instructionDuration.WithLabelValues(receipt.Instruction).Observe(receipt.Duration.Seconds())
	if receipt.ErrorKind == types.KindInvariant {
		m.invariantBreaches.Inc()
	}
}

// ObserveNAV sets the valuation gauges. referenceDecimals scales base units to whole units.
func (m *Metrics) ObserveNAV(resp types.NAVResponse, referenceDecimals int) {
	if nav, err := utils.SDKIntToFloat64(resp.NAV.Total, referenceDecimals); err == nil {
		m.nav.Set(nav)
	} else {
		metricsLogger.Warn().Err(err).Msg("NAV not representable as a gauge")
	}
	if shares, err := utils.SDKIntToFloat64(resp.TotalShares, 0); err == nil {
		m.totalShares.Set(shares)
	}
	if price, err := utils.DecToFloat64(resp.SharePrice); err == nil {
		m.sharePrice.Set(price)
	}

	m.holdings.Reset()
	for _, c := range resp.NAV.Components {
		value, err := utils.SDKIntToFloat64(c.Value, referenceDecimals)
		if err != nil {
			continue
		}
		m.holdings.WithLabelValues(c.Denom).Set(value)
	}
	m.snapshots.Inc()
}

// ObserveSnapshotFailure counts a snapshot that failed with err.
func (m *Metrics) ObserveSnapshotFailure(err error) {
	m.snapshotFailures.WithLabelValues(string(types.KindOf(err))).Inc()
}
