// Package blemeat defines the interface for an optional Bluetooth LE meat
// probe reading, and a disabled implementation used when no BLE adapter is
// configured. Grounded on the small single-method sensor interfaces used
// throughout the hardware packages (e.g. thermocube's Chiller), rather than
// any one BLE transport, since the system has no BLE stack wired yet.
package blemeat

import (
	"context"

	"github.com/eggbot-project/pitctl/eggboterr"
	"github.com/eggbot-project/pitctl/thermistor"
)

// Source reads a temperature from a BLE-connected meat probe.
type Source interface {
	Reading(ctx context.Context) (thermistor.Celsius, error)
}

// ErrBLENotConfigured is returned by Disabled when no adapter is configured.
var ErrBLENotConfigured = eggboterr.New(eggboterr.HardwareUnavailable, "ble meat probe not configured")

// Disabled is a no-op Source used when the system has no BLE adapter.
type Disabled struct{}

// Reading always returns ErrBLENotConfigured.
func (Disabled) Reading(ctx context.Context) (thermistor.Celsius, error) {
	return 0, ErrBLENotConfigured
}
