package accounting

import (
	"strings"

	"evcs/types"
	"evcs/utility"
)

// MeterSample holds the last reading of each quantity found in a MeterValues request
type MeterSample struct {
	Energy  *float64
	Power   *float64
	Current *float64
}

func (s MeterSample) HasEnergy() bool {
	return s.Energy != nil
}

// ExtractSample walks all sampled values in order; later readings override earlier ones.
// A value without a measurand is the energy register by protocol default.
// Samples whose unit does not fit the measurand are skipped; power is reported in W.
func ExtractSample(meterValues []types.MeterValue) MeterSample {
	var sample MeterSample
	for _, mv := range meterValues {
		for _, sv := range mv.SampledValue {
			value, ok := utility.ToFloat(sv.Value)
			if !ok {
				continue
			}
			switch {
			case sv.Measurand == "" || sv.Measurand == types.MeasurandEnergyActiveImportRegister:
				if unitIn(sv.Unit, types.UnitOfMeasureWh, types.UnitOfMeasureKWh) {
					sample.Energy = &value
				}
			case sv.Measurand == types.MeasurandPowerActiveImport:
				if sv.Unit == types.UnitOfMeasureKW {
					value *= 1000
				}
				if unitIn(sv.Unit, types.UnitOfMeasureW, types.UnitOfMeasureKW) {
					sample.Power = &value
				}
			case strings.Contains(string(sv.Measurand), "Current"):
				if unitIn(sv.Unit, types.UnitOfMeasureA) {
					sample.Current = &value
				}
			}
		}
	}
	return sample
}

// unitIn reports whether unit is empty or one of allowed
func unitIn(unit types.UnitOfMeasure, allowed ...types.UnitOfMeasure) bool {
	if unit == "" {
		return true
	}
	for _, u := range allowed {
		if unit == u {
			return true
		}
	}
	return false
}
