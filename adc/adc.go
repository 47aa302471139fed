// Package adc reads an ADS1115-class 4-channel I2C analog-to-digital
// converter, falling back from a vendor HAL to a raw SMBus driver to a
// software simulation when hardware is unavailable.
package adc

import (
	"context"
	"log"
	"time"

	"github.com/eggbot-project/pitctl/eggboterr"
	"golang.org/x/time/rate"
)

// Gain selects the ADS1115 programmable gain amplifier setting.
type Gain int

// Supported PGA gains and their full-scale voltage ranges.
const (
	Gain2_3 Gain = iota // +/-6.144V
	Gain1               // +/-4.096V
	Gain2               // +/-2.048V
	Gain4               // +/-1.024V
	Gain8               // +/-0.512V
	Gain16              // +/-0.256V
)

// FullScaleVolts returns the full-scale voltage range for a gain setting.
func (g Gain) FullScaleVolts() float64 {
	switch g {
	case Gain2_3:
		return 6.144
	case Gain1:
		return 4.096
	case Gain2:
		return 2.048
	case Gain4:
		return 1.024
	case Gain8:
		return 0.512
	case Gain16:
		return 0.256
	default:
		return 4.096
	}
}

// Config configures the ADC driver.
type Config struct {
	I2CAddress  uint16 // default 0x48
	BusName     string // e.g. "/dev/i2c-1"
	SampleRate  int    // samples per second, one of the device's enumerated rates
	Gain        Gain
	Simulate    bool // force the simulation backend regardless of hardware probing
}

// DefaultConfig returns the hardware defaults named in the external
// interface table (bus 1, address 0x48).
func DefaultConfig() Config {
	return Config{
		I2CAddress: 0x48,
		BusName:    "/dev/i2c-1",
		SampleRate: 860,
		Gain:       Gain1,
	}
}

// Sample is one capture from a single ADC channel.
type Sample struct {
	Channel   int
	Voltage   float64
	RawCount  int16
	Timestamp time.Time
}

// backend is the minimal surface each of the three ADC implementations provides.
type backend interface {
	read(channel int, gain Gain) (Sample, error)
	close() error
	name() string
}

// Driver is the ADC front the rest of the system talks to. Calls are paced
// by a rate limiter matched to SampleRate, mirroring the pacing
// nkt.AddressScan applies to its own bus traffic. The limiter only spaces
// calls out: concurrent Read calls are not mutually excluded.
type Driver struct {
	cfg     Config
	be      backend
	limiter *rate.Limiter
	log     *log.Logger
}

// New tries the vendor HAL, then the raw SMBus backend, then simulation, in
// that order, and returns a Driver wrapping whichever first opens
// successfully. The active backend is fixed for the Driver's lifetime: once
// selected it is never silently swapped — callers that need a different
// backend construct a new Driver.
func New(cfg Config, logger *log.Logger) (*Driver, error) {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.I2CAddress == 0 {
		cfg.I2CAddress = 0x48
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 860
	}

	var be backend
	var err error

	if cfg.Simulate {
		be = newSimBackend(cfg)
	} else {
		be, err = newPeriphBackend(cfg)
		if err != nil {
			logger.Printf("adc: vendor HAL backend unavailable (%v), trying raw SMBus", err)
			be, err = newSMBusBackend(cfg)
			if err != nil {
				logger.Printf("adc: raw SMBus backend unavailable (%v), falling back to simulation", err)
				be = newSimBackend(cfg)
			}
		}
	}

	logger.Printf("adc: using %s backend", be.name())
	// limiter burst of 1 keeps reads paced to the configured conversion rate
	// without letting a burst of callers overrun the bus.
	limiter := rate.NewLimiter(rate.Limit(cfg.SampleRate), 1)
	return &Driver{cfg: cfg, be: be, limiter: limiter, log: logger}, nil
}

// Read performs a single-shot read of the given channel (0..3), blocking
// briefly to respect the configured sample rate.
func (d *Driver) Read(ctx context.Context, channel int) (Sample, error) {
	if channel < 0 || channel > 3 {
		return Sample{}, eggboterr.New(eggboterr.OutOfRange, "channel must be in [0,3]")
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return Sample{}, err
	}
	s, err := d.be.read(channel, d.cfg.Gain)
	if err != nil {
		return Sample{}, eggboterr.Wrap(eggboterr.TransientI2cFault, "adc read failed", err)
	}
	return s, nil
}

// Connected reports whether the channel's most recent voltage looks like a
// probe is actually attached. This is a connectivity heuristic, not a
// validity verdict: a below-threshold voltage is not an invalid sample.
func Connected(s Sample) bool {
	return s.Voltage >= 0.1
}

// BackendName returns the name of the backend currently in use, for diagnostics.
func (d *Driver) BackendName() string { return d.be.name() }

// Close releases any resources held by the active backend.
func (d *Driver) Close() error { return d.be.close() }
