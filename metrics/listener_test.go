package metrics

import (
	"evsim/internal"
	"evsim/simulation"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gathered returns the value of the series of name whose labels include labels
func gathered(t *testing.T, name string, labels map[string]string) (float64, bool) {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	next:
		for _, metric := range family.GetMetric() {
			present := make(map[string]string)
			for _, pair := range metric.GetLabel() {
				present[pair.GetName()] = pair.GetValue()
			}
			for key, value := range labels {
				if present[key] != value {
					continue next
				}
			}
			if metric.GetGauge() != nil {
				return metric.GetGauge().GetValue(), true
			}
			return metric.GetCounter().GetValue(), true
		}
	}
	return 0, false
}

func TestListener_Status(t *testing.T) {
	l := NewListener()
	l.OnStatus(&internal.EventMessage{StationId: "M1", Status: "Charging", ErrorCode: "NoError"})

	value, ok := gathered(t, "ocpp_connector_status", map[string]string{"charge_point_id": "M1", "status": "Charging"})
	require.True(t, ok)
	assert.Equal(t, 1.0, value)
	value, _ = gathered(t, "ocpp_connector_status", map[string]string{"charge_point_id": "M1", "status": "Available"})
	assert.Equal(t, 0.0, value)
	_, ok = gathered(t, "ocpp_error_count", map[string]string{"charge_point_id": "M1"})
	assert.False(t, ok)

	l.OnStatus(&internal.EventMessage{StationId: "M1", Status: "Faulted", ErrorCode: "GroundFailure"})
	value, _ = gathered(t, "ocpp_connector_status", map[string]string{"charge_point_id": "M1", "status": "Charging"})
	assert.Equal(t, 0.0, value)
	value, ok = gathered(t, "ocpp_error_count", map[string]string{"charge_point_id": "M1", "code": "GroundFailure"})
	require.True(t, ok)
	assert.Equal(t, 1.0, value)
}

func TestListener_SampleAndFrames(t *testing.T) {
	l := NewListener()
	l.OnSample(&internal.EventMessage{StationId: "M2", Payload: simulation.Sample{ActivePowerW: 11000, Soc: 42.5}})
	l.OnSample(&internal.EventMessage{StationId: "M2", Payload: "not a sample"})
	l.OnFrame(&internal.EventMessage{StationId: "M2", Direction: internal.DirectionIn})
	l.OnFrame(&internal.EventMessage{StationId: "M2", Direction: internal.DirectionIn})
	l.OnConnection(&internal.EventMessage{StationId: "M2", Connected: true})
	l.OnPlug(&internal.EventMessage{StationId: "M2", Plugged: true})

	value, _ := gathered(t, "evsim_sample", map[string]string{"charge_point_id": "M2", "measurand": "power_w"})
	assert.Equal(t, 11000.0, value)
	value, _ = gathered(t, "evsim_sample", map[string]string{"charge_point_id": "M2", "measurand": "soc_percent"})
	assert.Equal(t, 42.5, value)
	value, _ = gathered(t, "ocpp_frame_count", map[string]string{"charge_point_id": "M2", "direction": "IN"})
	assert.Equal(t, 2.0, value)
	value, _ = gathered(t, "evsim_connected", map[string]string{"charge_point_id": "M2"})
	assert.Equal(t, 1.0, value)
	value, _ = gathered(t, "evsim_plugged", map[string]string{"charge_point_id": "M2"})
	assert.Equal(t, 1.0, value)
}
