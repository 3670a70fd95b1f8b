package simulation

import (
	"evsim/types"
	"evsim/utility"
	"time"
)

type Sample struct {
	Timestamp        time.Time `json:"timestamp"`
	ActivePowerW     float64   `json:"active_power_w"`
	ReactivePowerVar float64   `json:"reactive_power_var"`
	ApparentPowerVA  float64   `json:"apparent_power_va"`
	VoltageV         float64   `json:"voltage_v"`
	CurrentA         float64   `json:"current_a"`
	FrequencyHz      float64   `json:"frequency_hz"`
	PowerFactor      float64   `json:"power_factor"`
	EnergyWh         float64   `json:"energy_wh"`
	Soc              float64   `json:"soc"`
}

// MeterValue renders the sample the way MeterValues and StopTransaction carry it
func (s Sample) MeterValue(context types.ReadingContext) types.MeterValue {
	sampled := func(value string, measurand types.Measurand, unit types.UnitOfMeasure) types.SampledValue {
		return types.SampledValue{
			Value:     value,
			Context:   context,
			Measurand: measurand,
			Unit:      unit,
		}
	}
	return types.MeterValue{
		Timestamp: types.NewDateTime(s.Timestamp),
		Context:   context,
		SampledValue: []types.SampledValue{
			sampled(utility.FormatFixed(s.EnergyWh, 0), types.MeasurandEnergyActiveImportRegister, types.UnitOfMeasureWh),
			sampled(utility.FormatFixed(s.ActivePowerW, 0), types.MeasurandPowerActiveImport, types.UnitOfMeasureW),
			sampled(utility.FormatFixed(s.ReactivePowerVar, 0), types.MeasurandPowerReactiveImport, types.UnitOfMeasureVar),
			sampled(utility.FormatFixed(s.ApparentPowerVA, 0), types.MeasurandPowerApparentImport, types.UnitOfMeasureVA),
			sampled(utility.FormatFixed(s.CurrentA, 1), types.MeasurandCurrentImport, types.UnitOfMeasureA),
			sampled(utility.FormatFixed(s.VoltageV, 1), types.MeasurandVoltage, types.UnitOfMeasureV),
			sampled(utility.FormatFixed(s.FrequencyHz, 2), types.MeasurandFrequency, types.UnitOfMeasureHz),
			sampled(utility.FormatFixed(s.PowerFactor, 2), types.MeasurandPowerFactor, ""),
			sampled(utility.FormatFixed(s.Soc, 1), types.MeasurandSoC, types.UnitOfMeasurePercent),
		},
	}
}
