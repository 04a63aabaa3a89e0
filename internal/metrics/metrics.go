// Package metrics exposes the engine's Prometheus collectors.
//
//   - newstrader_decisions_total{action,source}  decisions taken per cycle
//   - newstrader_orders_total{mode,side,status}   submitted, dry-run and rejected orders
//   - newstrader_gate_backoff_seconds             current provider backoff
//   - newstrader_llm_calls_total{result}          ok|error|skipped|cached|breaker_open
//   - newstrader_symbol_errors_total{stage}       recovered per-symbol failures
//   - newstrader_scan_cycles_total                completed scan passes
//   - newstrader_equity_usd                       last broker equity
//
// Collectors are registered on the default registry in init() and served at /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "newstrader_decisions_total", Help: "Decisions taken"},
		[]string{"action", "source"},
	)
	orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "newstrader_orders_total", Help: "Order attempts by outcome"},
		[]string{"mode", "side", "status"},
	)
	gateBackoff = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "newstrader_gate_backoff_seconds", Help: "Current provider backoff"},
	)
	llmCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "newstrader_llm_calls_total", Help: "Sentiment model lookups by result"},
		[]string{"result"},
	)
	symbolErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "newstrader_symbol_errors_total", Help: "Recovered per-symbol failures"},
		[]string{"stage"},
	)
	scanCycles = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "newstrader_scan_cycles_total", Help: "Completed scan passes"},
	)
	equity = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "newstrader_equity_usd", Help: "Last observed account equity"},
	)
)

func init() {
	prometheus.MustRegister(decisions, orders, gateBackoff, llmCalls, symbolErrors, scanCycles, equity)
}

func ObserveDecision(action, source string) { decisions.WithLabelValues(action, baseSource(source)).Inc() }

func ObserveOrder(mode, side, status string) { orders.WithLabelValues(mode, side, status).Inc() }

func SetGateBackoff(seconds float64) { gateBackoff.Set(seconds) }

func ObserveLLM(result string) { llmCalls.WithLabelValues(result).Inc() }

func ObserveSymbolError(stage string) { symbolErrors.WithLabelValues(stage).Inc() }

func ObserveScanCycle() { scanCycles.Inc() }

func SetEquity(v float64) { equity.Set(v) }

// baseSource strips "+modifier" tags to keep label cardinality bounded.
func baseSource(source string) string {
	for i := 0; i < len(source); i++ {
		if source[i] == '+' {
			return source[:i]
		}
	}
	return source
}
