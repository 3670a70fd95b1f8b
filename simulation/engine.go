package simulation

import (
	"math"
	"math/rand"
	"time"

	"github.com/go-playground/validator/v10"
)

// Parameters are the operator baselines of the model
type Parameters struct {
	ChargingPowerKw    float64 `json:"charging_power_kw" validate:"gte=1,lte=350"`
	BatteryCapacityKwh float64 `json:"battery_capacity_kwh" validate:"gt=0,lte=1000"`
	InitialSoc         float64 `json:"initial_soc" validate:"gte=0,lte=100"`
	VoltageV           float64 `json:"voltage_v" validate:"gt=0,lte=1000"`
	CurrentA           float64 `json:"current_a" validate:"gte=0,lte=1000"`
	FrequencyHz        float64 `json:"frequency_hz" validate:"gt=0,lte=100"`
	PowerFactor        float64 `json:"power_factor" validate:"gte=0.8,lte=1"`
	RampFraction       float64 `json:"ramp_fraction" validate:"gt=0,lte=10"`
}

func DefaultParameters() Parameters {
	return Parameters{
		ChargingPowerKw:    22,
		BatteryCapacityKwh: 60,
		InitialSoc:         20,
		VoltageV:           230,
		CurrentA:           32,
		FrequencyHz:        50,
		PowerFactor:        0.95,
		RampFraction:       0.2,
	}
}

var validate = validator.New()

func (p Parameters) Validate() error {
	return validate.Struct(p)
}

// State is the integrated part of the model, everything else is recomputed per sample
type State struct {
	MeterWh           float64   `json:"meter_wh"`
	Soc               float64   `json:"soc"`
	BatteryCapacityWh float64   `json:"battery_capacity_wh"`
	TargetPowerKw     float64   `json:"target_power_kw"`
	CurrentPowerKw    float64   `json:"current_power_kw"`
	RampRateKwPerSec  float64   `json:"ramp_rate_kw_per_sec"`
	LastUpdate        time.Time `json:"last_update"`
}

type Engine struct {
	params Parameters
	state  State
	rnd    *rand.Rand
}

func NewEngine(params Parameters, rnd *rand.Rand) *Engine {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	e := &Engine{params: params, rnd: rnd}
	e.state.Soc = params.InitialSoc
	e.state.BatteryCapacityWh = params.BatteryCapacityKwh * 1000
	e.state.RampRateKwPerSec = params.ChargingPowerKw * params.RampFraction
	return e
}

func (e *Engine) Parameters() Parameters {
	return e.params
}

// SetParameters applies new baselines; a running session continues towards the new power
func (e *Engine) SetParameters(params Parameters) error {
	if err := params.Validate(); err != nil {
		return err
	}
	charging := e.state.TargetPowerKw > 0
	e.params = params
	e.state.BatteryCapacityWh = params.BatteryCapacityKwh * 1000
	e.state.RampRateKwPerSec = params.ChargingPowerKw * params.RampFraction
	if charging {
		e.state.TargetPowerKw = params.ChargingPowerKw
	}
	return nil
}

// SetSoc overrides the current state of charge
func (e *Engine) SetSoc(soc float64) {
	e.state.Soc = clamp(soc, 0, 100)
}

func (e *Engine) State() State {
	return e.state
}

// Reset starts a new session: meter back to zero, SoC to the initial value, no power
func (e *Engine) Reset(now time.Time) {
	e.state.MeterWh = 0
	e.state.Soc = e.params.InitialSoc
	e.state.BatteryCapacityWh = e.params.BatteryCapacityKwh * 1000
	e.state.CurrentPowerKw = 0
	e.state.TargetPowerKw = 0
	e.state.LastUpdate = now
}

// StartCharging begins ramping from zero towards the configured charging power
func (e *Engine) StartCharging(now time.Time) {
	e.state.TargetPowerKw = e.params.ChargingPowerKw
	e.state.CurrentPowerKw = 0
	e.state.RampRateKwPerSec = e.params.ChargingPowerKw * e.params.RampFraction
	e.state.LastUpdate = now
}

func (e *Engine) Stop() {
	e.state.CurrentPowerKw = 0
	e.state.TargetPowerKw = 0
}

// Ramp moves the current power towards the target by the elapsed time and returns the
// elapsed seconds
func (e *Engine) Ramp(now time.Time) float64 {
	seconds := 0.0
	if !e.state.LastUpdate.IsZero() {
		seconds = now.Sub(e.state.LastUpdate).Seconds()
	}
	if seconds < 0 {
		seconds = 0
	}
	step := e.state.RampRateKwPerSec * seconds
	if e.state.CurrentPowerKw < e.state.TargetPowerKw {
		e.state.CurrentPowerKw = math.Min(e.state.TargetPowerKw, e.state.CurrentPowerKw+step)
	} else if e.state.CurrentPowerKw > e.state.TargetPowerKw {
		e.state.CurrentPowerKw = math.Max(e.state.TargetPowerKw, e.state.CurrentPowerKw-step)
	}
	e.state.LastUpdate = now
	return seconds
}

// Tick ramps, integrates energy and SoC over the elapsed time and returns a fresh sample
func (e *Engine) Tick(now time.Time) Sample {
	seconds := e.Ramp(now)
	added := e.state.CurrentPowerKw * 1000 * seconds / 3600
	if added > 0 {
		e.state.MeterWh += added
		if e.state.BatteryCapacityWh > 0 {
			e.state.Soc += added / e.state.BatteryCapacityWh * 100
		}
		if e.state.Soc > 100 {
			e.state.Soc = 100
		}
	}
	return e.Snapshot(now)
}

// Snapshot samples the electrical values around the baselines without advancing the model
func (e *Engine) Snapshot(now time.Time) Sample {
	pf := e.powerFactor()
	active := e.state.CurrentPowerKw * 1000
	return Sample{
		Timestamp:        now,
		ActivePowerW:     active,
		ReactivePowerVar: active * math.Sqrt(1-pf*pf),
		ApparentPowerVA:  active / pf,
		VoltageV:         e.vary(e.params.VoltageV, 2),
		CurrentA:         e.vary(e.params.CurrentA, 1),
		FrequencyHz:      e.vary(e.params.FrequencyHz, 0.1),
		PowerFactor:      pf,
		EnergyWh:         e.state.MeterWh,
		Soc:              e.state.Soc,
	}
}

// vary returns base perturbed uniformly by up to percent of itself in either direction
func (e *Engine) vary(base, percent float64) float64 {
	variation := base * percent / 100
	return base + (e.rnd.Float64()*variation*2 - variation)
}

func (e *Engine) powerFactor() float64 {
	return clamp(e.params.PowerFactor+(e.rnd.Float64()*0.04-0.02), 0.8, 1)
}

func clamp(v, low, high float64) float64 {
	return math.Max(low, math.Min(high, v))
}
