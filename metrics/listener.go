package metrics

import (
	"evsim/internal"
	"evsim/metrics/counters"
	"evsim/ocpp/core"
	"evsim/simulation"
)

var statuses = []string{
	string(core.ChargePointStatusAvailable),
	string(core.ChargePointStatusPreparing),
	string(core.ChargePointStatusCharging),
	string(core.ChargePointStatusFinishing),
	string(core.ChargePointStatusFaulted),
	string(core.ChargePointStatusUnavailable),
}

// Listener implements internal.EventHandler, turning station events into prometheus values
type Listener struct{}

func NewListener() *Listener {
	return &Listener{}
}

func (l *Listener) OnFrame(event *internal.EventMessage) {
	counters.CountFrame(event.StationId, event.Direction)
}

func (l *Listener) OnConnection(event *internal.EventMessage) {
	counters.ObserveConnected(event.StationId, event.Connected)
}

func (l *Listener) OnStatus(event *internal.EventMessage) {
	counters.ObserveStatus(event.StationId, event.Status, statuses)
	if event.ErrorCode != "" && event.ErrorCode != string(core.NoError) {
		counters.CountError(event.StationId, event.ErrorCode)
	}
}

func (l *Listener) OnPlug(event *internal.EventMessage) {
	counters.ObservePlugged(event.StationId, event.Plugged)
}

func (l *Listener) OnSample(event *internal.EventMessage) {
	sample, ok := event.Payload.(simulation.Sample)
	if !ok {
		return
	}
	counters.ObserveSample(event.StationId, "power_w", sample.ActivePowerW)
	counters.ObserveSample(event.StationId, "voltage_v", sample.VoltageV)
	counters.ObserveSample(event.StationId, "current_a", sample.CurrentA)
	counters.ObserveSample(event.StationId, "frequency_hz", sample.FrequencyHz)
	counters.ObserveSample(event.StationId, "power_factor", sample.PowerFactor)
	counters.ObserveSample(event.StationId, "energy_wh", sample.EnergyWh)
	counters.ObserveSample(event.StationId, "soc_percent", sample.Soc)
}

func (l *Listener) OnAlert(event *internal.EventMessage) {
	counters.CountAlert(event.StationId)
}
