package adc

import (
	"math"
	"time"
)

// simBackend fabricates smooth per-channel waveforms so the control engine
// and its HTTP surface can run without hardware attached.
type simBackend struct {
	start         time.Time
	baseVoltages  [4]float64
}

// newSimBackend seeds each channel with a distinct base voltage, matching
// the spread used by the original simulator (roughly 1.5V..2.4V) so the
// derived temperatures land in a plausible smoker range.
func newSimBackend(cfg Config) backend {
	return &simBackend{
		start:        time.Now(),
		baseVoltages: [4]float64{1.5, 1.8, 2.1, 2.4},
	}
}

func (b *simBackend) read(channel int, gain Gain) (Sample, error) {
	if channel < 0 || channel > 3 {
		channel = 0
	}
	elapsed := time.Since(b.start).Seconds()
	// a slow sinusoidal drift plus the channel's base keeps readings smooth
	// and distinguishable per probe without requiring real hardware.
	voltage := b.baseVoltages[channel] + 0.05*math.Sin(elapsed/20.0) + math.Mod(elapsed, 10)*0.01
	raw := int16((voltage / gain.FullScaleVolts()) * 32768)
	return Sample{
		Channel:   channel,
		Voltage:   voltage,
		RawCount:  raw,
		Timestamp: time.Now(),
	}, nil
}

func (b *simBackend) close() error { return nil }
func (b *simBackend) name() string { return "simulation" }
