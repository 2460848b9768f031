package counters

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var connectionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "server",
	Name:      "connections_active",
	Help:      "Number of active ws connections",
})

var activeTransactionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "server",
	Name:      "transactions_active",
	Help:      "Number of active transactions",
})

var remoteCommands = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ocpp",
	Name:      "remote_commands_total",
	Help:      "Remote commands by action and outcome.",
}, []string{"action", "result"})

var frames = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ocpp",
	Name:      "frames_total",
	Help:      "OCPP-J frames by direction and message type.",
}, []string{"direction", "type"})

var errorCounts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ocpp",
	Name:      "vendor_error_count",
	Help:      "Total number of errors by vendor code.",
}, []string{"code", "charge_point_id"})

var powerRateGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "ocpp",
	Name:      "connector_power_watts",
	Help:      "Power rate on current transactions.",
}, []string{"charge_point_id", "connector_id"})

func ObserveConnections(count int) {
	connectionsGauge.Set(float64(count))
}

func TransactionStarted() {
	activeTransactionsGauge.Inc()
}

func TransactionStopped() {
	activeTransactionsGauge.Dec()
}

func CountRemoteCommand(action, result string) {
	remoteCommands.With(prometheus.Labels{"action": action, "result": result}).Inc()
}

func CountFrame(direction, frameType string) {
	frames.With(prometheus.Labels{"direction": direction, "type": frameType}).Inc()
}

func ObserveError(chargePointId, code string) {
	if len(code) == 0 || len(chargePointId) == 0 {
		return
	}
	errorCounts.With(prometheus.Labels{"code": code, "charge_point_id": chargePointId}).Inc()
}

func ObservePowerRate(chargePointId, connectorId string, power float64) {
	powerRateGauge.With(
		prometheus.Labels{
			"charge_point_id": chargePointId,
			"connector_id":    connectorId,
		}).Set(power)
}
