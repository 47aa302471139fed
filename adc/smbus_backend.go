package adc

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// i2cSlave is the ioctl request code for setting the target slave address,
// shared across Linux i2c-dev drivers.
const i2cSlave = 0x0703

// smbusBackend speaks the ADS1115 register protocol directly over the
// Linux i2c-dev character device using raw ioctl+read/write, for systems
// without a periph.io-supported adapter.
type smbusBackend struct {
	f   *os.File
	cfg Config
}

func newSMBusBackend(cfg Config) (backend, error) {
	f, err := os.OpenFile(cfg.BusName, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.BusName, err)
	}
	if err := unix.IoctlSetInt(int(f.Fd()), i2cSlave, int(cfg.I2CAddress)); err != nil {
		f.Close()
		return nil, fmt.Errorf("ioctl I2C_SLAVE 0x%x: %w", cfg.I2CAddress, err)
	}
	return &smbusBackend{f: f, cfg: cfg}, nil
}

func (b *smbusBackend) read(channel int, gain Gain) (Sample, error) {
	cmd := buildConfigWord(channel, gain, b.cfg.SampleRate)
	write := []byte{regConfig, byte(cmd >> 8), byte(cmd)}
	if _, err := b.f.Write(write); err != nil {
		return Sample{}, fmt.Errorf("smbus config write: %w", err)
	}

	waitForConversion(b.cfg.SampleRate, func() (bool, error) {
		if _, err := b.f.Write([]byte{regConfig}); err != nil {
			return false, err
		}
		var status [2]byte
		if _, err := b.f.Read(status[:]); err != nil {
			return false, err
		}
		return status[0]&0x80 != 0, nil
	})

	if _, err := b.f.Write([]byte{regConversion}); err != nil {
		return Sample{}, fmt.Errorf("smbus pointer write: %w", err)
	}
	var data [2]byte
	if _, err := b.f.Read(data[:]); err != nil {
		return Sample{}, fmt.Errorf("smbus conversion read: %w", err)
	}
	return sampleFromRaw(channel, data, gain), nil
}

func (b *smbusBackend) close() error { return b.f.Close() }
func (b *smbusBackend) name() string { return "raw-smbus" }
