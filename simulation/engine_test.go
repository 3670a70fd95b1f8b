package simulation

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"evsim/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(seed int64) *Engine {
	return NewEngine(DefaultParameters(), rand.New(rand.NewSource(seed)))
}

func TestEngine_RampNeverOvershoots(t *testing.T) {
	tests := []struct {
		name string
		step time.Duration
	}{
		{"fine steps", 100 * time.Millisecond},
		{"coarse steps", 3 * time.Second},
		{"huge step", time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(1)
			e.Reset(start)
			e.StartCharging(start)
			target := e.State().TargetPowerKw
			gap := math.Abs(target - e.State().CurrentPowerKw)
			now := start
			for i := 0; i < 100; i++ {
				now = now.Add(tt.step)
				e.Ramp(now)
				next := math.Abs(target - e.State().CurrentPowerKw)
				assert.LessOrEqual(t, next, gap)
				assert.LessOrEqual(t, e.State().CurrentPowerKw, target)
				gap = next
			}
			assert.Equal(t, target, e.State().CurrentPowerKw)
		})
	}
}

func TestEngine_RampDownToLowerTarget(t *testing.T) {
	e := newTestEngine(1)
	e.Reset(start)
	e.StartCharging(start)
	e.Ramp(start.Add(time.Minute))
	require.Equal(t, 22.0, e.State().CurrentPowerKw)

	params := e.Parameters()
	params.ChargingPowerKw = 11
	require.NoError(t, e.SetParameters(params))
	e.Ramp(start.Add(time.Minute + 500*time.Millisecond))
	assert.InDelta(t, 22-11*0.2*0.5, e.State().CurrentPowerKw, 1e-9)
	e.Ramp(start.Add(2 * time.Minute))
	assert.Equal(t, 11.0, e.State().CurrentPowerKw)
}

func TestEngine_RampRateFollowsChargingPower(t *testing.T) {
	e := newTestEngine(1)
	e.Reset(start)
	e.StartCharging(start)
	e.Ramp(start.Add(time.Second))
	assert.InDelta(t, 22*0.2, e.State().CurrentPowerKw, 1e-9)
}

func TestEngine_EnergyAndSocIntegration(t *testing.T) {
	e := newTestEngine(1)
	e.Reset(start)
	e.StartCharging(start)
	e.Ramp(start.Add(time.Minute))

	e.Tick(start.Add(time.Minute + time.Hour))
	state := e.State()
	assert.InDelta(t, 22000, state.MeterWh, 1e-6)
	assert.InDelta(t, 20+22000.0/60000*100, state.Soc, 1e-6)
}

func TestEngine_MonotonicMeterAndSoc(t *testing.T) {
	e := newTestEngine(7)
	e.Reset(start)
	e.StartCharging(start)
	now := start
	meter, soc := e.State().MeterWh, e.State().Soc
	for i := 0; i < 5000; i++ {
		now = now.Add(time.Duration(e.rnd.Intn(5000)) * time.Millisecond)
		e.Tick(now)
		state := e.State()
		assert.GreaterOrEqual(t, state.MeterWh, meter)
		assert.GreaterOrEqual(t, state.Soc, soc)
		assert.LessOrEqual(t, state.Soc, 100.0)
		meter, soc = state.MeterWh, state.Soc
	}
	assert.Equal(t, 100.0, e.State().Soc)
}

func TestEngine_ClockGoingBackAddsNothing(t *testing.T) {
	e := newTestEngine(1)
	e.Reset(start)
	e.StartCharging(start)
	e.Tick(start.Add(10 * time.Second))
	meter := e.State().MeterWh
	e.Tick(start.Add(5 * time.Second))
	assert.Equal(t, meter, e.State().MeterWh)
}

func TestEngine_VariationBounds(t *testing.T) {
	e := newTestEngine(3)
	e.Reset(start)
	e.StartCharging(start)
	e.Ramp(start.Add(time.Minute))
	p := e.Parameters()
	for i := 0; i < 1000; i++ {
		s := e.Snapshot(start)
		assert.InDelta(t, p.VoltageV, s.VoltageV, p.VoltageV*0.02)
		assert.InDelta(t, p.CurrentA, s.CurrentA, p.CurrentA*0.01)
		assert.InDelta(t, p.FrequencyHz, s.FrequencyHz, p.FrequencyHz*0.001)
		assert.GreaterOrEqual(t, s.PowerFactor, 0.8)
		assert.LessOrEqual(t, s.PowerFactor, 1.0)
		assert.InDelta(t, s.ActivePowerW*math.Sqrt(1-s.PowerFactor*s.PowerFactor), s.ReactivePowerVar, 1e-6)
		assert.InDelta(t, s.ActivePowerW/s.PowerFactor, s.ApparentPowerVA, 1e-6)
	}
}

func TestEngine_PowerFactorClampedAtBounds(t *testing.T) {
	e := newTestEngine(3)
	e.params.PowerFactor = 1
	for i := 0; i < 200; i++ {
		assert.LessOrEqual(t, e.Snapshot(start).PowerFactor, 1.0)
	}
}

func TestEngine_ResetAndStop(t *testing.T) {
	e := newTestEngine(1)
	e.Reset(start)
	e.StartCharging(start)
	e.Tick(start.Add(time.Minute))
	e.Stop()
	assert.Zero(t, e.State().CurrentPowerKw)
	assert.Zero(t, e.State().TargetPowerKw)
	assert.Greater(t, e.State().MeterWh, 0.0)

	e.Reset(start.Add(2 * time.Minute))
	assert.Zero(t, e.State().MeterWh)
	assert.Equal(t, 20.0, e.State().Soc)
}

func TestParameters_Validate(t *testing.T) {
	p := DefaultParameters()
	assert.NoError(t, p.Validate())
	p.ChargingPowerKw = 400
	assert.Error(t, p.Validate())
	p = DefaultParameters()
	p.PowerFactor = 0.5
	assert.Error(t, p.Validate())
}

func TestSample_MeterValue(t *testing.T) {
	s := Sample{
		Timestamp:        start,
		ActivePowerW:     11000.4,
		ReactivePowerVar: 3615.2,
		ApparentPowerVA:  11579.4,
		VoltageV:         229.87,
		CurrentA:         31.94,
		FrequencyHz:      50.012,
		PowerFactor:      0.951,
		EnergyWh:         1234.56,
		Soc:              42.26,
	}
	mv := s.MeterValue(types.ReadingContextTransactionEnd)
	assert.Equal(t, types.ReadingContextTransactionEnd, mv.Context)
	require.Len(t, mv.SampledValue, 9)
	assert.Equal(t, "1235", mv.SampledValue[0].Value)
	assert.Equal(t, types.MeasurandEnergyActiveImportRegister, mv.SampledValue[0].Measurand)
	assert.Equal(t, "11000", mv.SampledValue[1].Value)
	assert.Equal(t, "31.9", mv.SampledValue[4].Value)
	assert.Equal(t, "50.01", mv.SampledValue[6].Value)
	assert.Equal(t, "42.3", mv.SampledValue[8].Value)
	for _, sv := range mv.SampledValue {
		assert.Equal(t, types.ReadingContextTransactionEnd, sv.Context)
	}
}
