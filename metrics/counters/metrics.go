package counters

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var connectedGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "evsim",
	Name:      "connected",
	Help:      "1 while the websocket to the central system is open",
}, []string{"charge_point_id"})

var connectorStatusGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "ocpp",
	Name:      "connector_status",
	Help:      "1 for the current status of the connector, 0 for the others",
}, []string{"charge_point_id", "status"})

var pluggedGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "evsim",
	Name:      "plugged",
	Help:      "1 while the cable is plugged in",
}, []string{"charge_point_id"})

var sampleGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "evsim",
	Name:      "sample",
	Help:      "Latest simulated electrical values by measurand.",
}, []string{"charge_point_id", "measurand"})

var frameCounts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ocpp",
	Name:      "frame_count",
	Help:      "Total number of OCPP-J frames by direction.",
}, []string{"charge_point_id", "direction"})

var alertCounts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "evsim",
	Name:      "alert_count",
	Help:      "Total number of operator alerts.",
}, []string{"charge_point_id"})

var errorCounts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ocpp",
	Name:      "error_count",
	Help:      "Total number of reported connector errors by code.",
}, []string{"charge_point_id", "code"})

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func ObserveConnected(chargePointId string, connected bool) {
	if len(chargePointId) == 0 {
		return
	}
	connectedGauge.With(prometheus.Labels{"charge_point_id": chargePointId}).Set(boolValue(connected))
}

// ObserveStatus marks status as the current one among all known statuses
func ObserveStatus(chargePointId, status string, known []string) {
	if len(chargePointId) == 0 || len(status) == 0 {
		return
	}
	for _, s := range known {
		connectorStatusGauge.With(prometheus.Labels{"charge_point_id": chargePointId, "status": s}).Set(boolValue(s == status))
	}
}

func ObservePlugged(chargePointId string, plugged bool) {
	if len(chargePointId) == 0 {
		return
	}
	pluggedGauge.With(prometheus.Labels{"charge_point_id": chargePointId}).Set(boolValue(plugged))
}

func ObserveSample(chargePointId, measurand string, value float64) {
	if len(chargePointId) == 0 {
		return
	}
	sampleGauge.With(prometheus.Labels{"charge_point_id": chargePointId, "measurand": measurand}).Set(value)
}

func CountFrame(chargePointId, direction string) {
	if len(chargePointId) == 0 || len(direction) == 0 {
		return
	}
	frameCounts.With(prometheus.Labels{"charge_point_id": chargePointId, "direction": direction}).Inc()
}

func CountAlert(chargePointId string) {
	if len(chargePointId) == 0 {
		return
	}
	alertCounts.With(prometheus.Labels{"charge_point_id": chargePointId}).Inc()
}

func CountError(chargePointId, code string) {
	if len(chargePointId) == 0 || len(code) == 0 {
		return
	}
	errorCounts.With(prometheus.Labels{"charge_point_id": chargePointId, "code": code}).Inc()
}
