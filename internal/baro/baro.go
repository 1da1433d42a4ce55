// Package baro converts between barometric pressure and altitude using the
// International Standard Atmosphere approximation.
package baro

import "math"

const (
	// StandardSeaLevelPa is the ISA pressure at mean sea level.
	StandardSeaLevelPa = 101325.0

	scaleHeightM = 44330.0
	exponent     = 5.255
)

// Altitude returns the altitude in meters for pressurePa relative to
// seaLevelPa:
//
//	h = 44330 * (1 - (p/p0)^(1/5.255))
//
// Non-physical inputs are not guarded; they produce NaN or Inf.
func Altitude(pressurePa, seaLevelPa float64) float64 {
	return scaleHeightM * (1.0 - math.Pow(pressurePa/seaLevelPa, 1.0/exponent))
}

// SeaLevelPressure returns the pressure at sea level that makes Altitude
// report referenceAltitudeM for measuredPa:
//
//	p0 = p / (1 - h/44330)^5.255
func SeaLevelPressure(measuredPa, referenceAltitudeM float64) float64 {
	return measuredPa / math.Pow(1.0-referenceAltitudeM/scaleHeightM, exponent)
}

// Calibration is the one-shot result of sampling pressure at a known altitude.
// It is the baseline for every later altitude conversion.
type Calibration struct {
	ReferenceAltitudeM float64 `json:"reference_altitude_m"`
	MeasuredPressurePa float64 `json:"measured_pressure_pa"`
	SeaLevelPressurePa float64 `json:"sea_level_pressure_pa"`
}

// Calibrate derives a Calibration from one pressure sample.
func Calibrate(measuredPa, referenceAltitudeM float64) Calibration {
	return Calibration{
		ReferenceAltitudeM: referenceAltitudeM,
		MeasuredPressurePa: measuredPa,
		SeaLevelPressurePa: SeaLevelPressure(measuredPa, referenceAltitudeM),
	}
}

// Altitude converts pressurePa using the calibrated sea-level pressure.
func (c Calibration) Altitude(pressurePa float64) float64 {
	return Altitude(pressurePa, c.SeaLevelPressurePa)
}

// MetersToFeet converts meters to feet.
func MetersToFeet(m float64) float64 {
	return m * 3.28084
}
