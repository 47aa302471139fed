package adc

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// periphBackend drives the ADS1115 through periph.io's conn/v3 i2c
// interfaces. It speaks the same register protocol as smbusBackend but
// issues it through the vendor-neutral HAL rather than raw ioctls.
type periphBackend struct {
	port i2c.BusCloser
	dev  *i2c.Dev
	cfg  Config
}

func newPeriphBackend(cfg Config) (backend, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	bus, err := i2creg.Open(cfg.BusName)
	if err != nil {
		return nil, fmt.Errorf("periph i2c open %s: %w", cfg.BusName, err)
	}
	dev := &i2c.Dev{Bus: bus, Addr: cfg.I2CAddress}
	return &periphBackend{port: bus, dev: dev, cfg: cfg}, nil
}

func (b *periphBackend) read(channel int, gain Gain) (Sample, error) {
	cmd := buildConfigWord(channel, gain, b.cfg.SampleRate)
	write := []byte{regConfig, byte(cmd >> 8), byte(cmd)}
	if err := b.dev.Tx(write, nil); err != nil {
		return Sample{}, fmt.Errorf("periph config write: %w", err)
	}

	waitForConversion(b.cfg.SampleRate, func() (bool, error) {
		var status [2]byte
		if err := b.dev.Tx([]byte{regConfig}, status[:]); err != nil {
			return false, err
		}
		return status[0]&0x80 != 0, nil
	})

	var data [2]byte
	if err := b.dev.Tx([]byte{regConversion}, data[:]); err != nil {
		return Sample{}, fmt.Errorf("periph conversion read: %w", err)
	}
	return sampleFromRaw(channel, data, gain), nil
}

func (b *periphBackend) close() error { return b.port.Close() }
func (b *periphBackend) name() string { return "periph-hal" }
