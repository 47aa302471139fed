// Package thermistor converts NTC thermistor divider voltages to
// temperatures. Every exported function is pure and stateless; the caller
// holds configuration (including the mutable per-probe calibration offset).
package thermistor

import (
	"math"

	"github.com/eggbot-project/pitctl/eggboterr"
)

type (
	// Celsius is a temperature in degrees Celsius.
	Celsius float64

	// Kelvin is a temperature in Kelvin.
	Kelvin float64

	// Fahrenheit is a temperature in degrees Fahrenheit.
	Fahrenheit float64
)

// C2F converts a temperature in Celsius to Fahrenheit.
func C2F(c Celsius) Fahrenheit { return Fahrenheit(c*9/5 + 32) }

// C2K converts a temperature in Celsius to Kelvin.
func C2K(c Celsius) Kelvin { return Kelvin(c + 273.15) }

// K2C converts a temperature in Kelvin to Celsius.
func K2C(k Kelvin) Celsius { return Celsius(k - 273.15) }

// F2C converts a temperature in Fahrenheit to Celsius.
func F2C(f Fahrenheit) Celsius { return Celsius((f - 32) * 5 / 9) }

// F2K converts a temperature in Fahrenheit to Kelvin.
func F2K(f Fahrenheit) Kelvin { return C2K(F2C(f)) }

// SteinhartHart holds the three coefficients of the Steinhart-Hart equation.
type SteinhartHart struct {
	A, B, C float64
}

// Config is the immutable-after-init configuration for one thermistor probe.
// Offset is the sole field mutable after construction, via Calibrate.
type Config struct {
	Name                string
	ResistanceNominal   float64 // ohms at TemperatureNominal
	TemperatureNominal  Celsius
	BCoefficient        float64
	SeriesResistor      float64 // ohms, fixed divider leg
	SteinhartHart       *SteinhartHart
	SupplyVoltage       float64
	OffsetC             float64
}

// VoltageToResistance converts a divider voltage to the thermistor's
// resistance, assuming the thermistor occupies the lower divider leg between
// Vcc and the ADC input: R = Rseries * Vcc / V - Rseries.
func VoltageToResistance(v, rSeries, vcc float64) (float64, error) {
	if v <= 0.001 || v >= vcc {
		return 0, eggboterr.New(eggboterr.MathDomain, "voltage outside divider range")
	}
	return rSeries*vcc/v - rSeries, nil
}

// ResistanceToVoltage is the inverse of VoltageToResistance, used by round-trip tests.
func ResistanceToVoltage(r, rSeries, vcc float64) float64 {
	return rSeries * vcc / (r + rSeries)
}

// ResistanceToTemperatureBeta applies the standard Beta equation and adds
// the probe's calibration offset.
func ResistanceToTemperatureBeta(r float64, cfg Config) (Celsius, error) {
	if r <= 0 {
		return 0, eggboterr.New(eggboterr.MathDomain, "non-positive resistance")
	}
	t0 := float64(C2K(cfg.TemperatureNominal))
	invT := 1/t0 + math.Log(r/cfg.ResistanceNominal)/cfg.BCoefficient
	if invT <= 0 {
		return 0, eggboterr.New(eggboterr.MathDomain, "beta equation produced non-physical result")
	}
	k := Kelvin(1 / invT)
	return K2C(k) + Celsius(cfg.OffsetC), nil
}

// ResistanceToTemperatureSteinhartHart applies 1/T = A + B*ln(R) + C*ln(R)^3
// and adds the probe's calibration offset.
func ResistanceToTemperatureSteinhartHart(r float64, cfg Config) (Celsius, error) {
	if cfg.SteinhartHart == nil {
		return ResistanceToTemperatureBeta(r, cfg)
	}
	if r <= 0 {
		return 0, eggboterr.New(eggboterr.MathDomain, "non-positive resistance")
	}
	lnR := math.Log(r)
	sh := cfg.SteinhartHart
	invT := sh.A + sh.B*lnR + sh.C*lnR*lnR*lnR
	if invT <= 0 {
		return 0, eggboterr.New(eggboterr.MathDomain, "steinhart-hart equation produced non-physical result")
	}
	k := Kelvin(1 / invT)
	return K2C(k) + Celsius(cfg.OffsetC), nil
}

// VoltageToTemperature picks Steinhart-Hart when coefficients are configured,
// else falls back to the Beta equation. Any math fault returns MathDomain.
func VoltageToTemperature(v float64, cfg Config) (Celsius, error) {
	r, err := VoltageToResistance(v, cfg.SeriesResistor, cfg.SupplyVoltage)
	if err != nil {
		return 0, err
	}
	if cfg.SteinhartHart != nil {
		return ResistanceToTemperatureSteinhartHart(r, cfg)
	}
	return ResistanceToTemperatureBeta(r, cfg)
}

// Range returns the practical temperature range the divider can report,
// derived from the voltage extremes [0.1, Vcc-0.1]. Falls back to a wide
// sentinel range if the math at either extreme faults.
func Range(cfg Config) (lo, hi Celsius) {
	lo, hi = -40.0, 150.0
	vLow := 0.1
	vHigh := cfg.SupplyVoltage - 0.1
	tAtLow, errLow := VoltageToTemperature(vLow, cfg)
	tAtHigh, errHigh := VoltageToTemperature(vHigh, cfg)
	if errLow != nil || errHigh != nil {
		return lo, hi
	}
	if tAtLow < tAtHigh {
		return tAtLow, tAtHigh
	}
	return tAtHigh, tAtLow
}

// ValidateReading reports whether t falls within the probe's practical range.
func ValidateReading(t Celsius, cfg Config) bool {
	lo, hi := Range(cfg)
	return t >= lo && t <= hi
}

// Calibrate sets OffsetC so that the next reading of measuredT would report
// actualT, and returns the updated config.
func Calibrate(cfg Config, measuredT, actualT Celsius) Config {
	cfg.OffsetC = float64(actualT - measuredT + Celsius(cfg.OffsetC))
	return cfg
}
