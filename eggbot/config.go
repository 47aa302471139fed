package eggbot

import (
	"time"

	"github.com/eggbot-project/pitctl/adc"
	"github.com/eggbot-project/pitctl/monitor"
	"github.com/eggbot-project/pitctl/pid"
	"github.com/eggbot-project/pitctl/servo"
	"github.com/eggbot-project/pitctl/thermistor"
)

// Config bundles every knob the Engine and its sub-components need.
type Config struct {
	ADC     adc.Config
	Monitor monitor.Config
	Probes  map[monitor.ProbeName]thermistor.Config
	PID     pid.Config
	Servo   servo.Config

	InitialSetpointC float64

	MainLoopInterval     time.Duration
	ControlLoopInterval  time.Duration
	TelemetryInterval    time.Duration
	MaxTelemetryPoints   int

	MinPitTempC  float64
	MaxPitTempC  float64
	MinMeatTempC float64
	MaxMeatTempC float64

	HighTempWarningC float64
	TempRateLimitCPM float64

	LogsDir string
}

// DefaultConfig returns the defaults named throughout spec.md sections
// 4.6 and 6: 250ms main loop, 1s control loop, 5s telemetry, 7200-point
// ring, 110C initial setpoint, 400C/350C pit envelope.
func DefaultConfig() Config {
	probes := map[monitor.ProbeName]thermistor.Config{
		monitor.PitProbe: {
			Name: "pit", ResistanceNominal: 10000, TemperatureNominal: 25,
			BCoefficient: 3950, SeriesResistor: 10000, SupplyVoltage: 3.3,
		},
		monitor.Meat1Probe: {
			Name: "meat_1", ResistanceNominal: 10000, TemperatureNominal: 25,
			BCoefficient: 3950, SeriesResistor: 10000, SupplyVoltage: 3.3,
		},
		monitor.Meat2Probe: {
			Name: "meat_2", ResistanceNominal: 10000, TemperatureNominal: 25,
			BCoefficient: 3950, SeriesResistor: 10000, SupplyVoltage: 3.3,
		},
		monitor.AmbientProbe: {
			Name: "ambient", ResistanceNominal: 10000, TemperatureNominal: 25,
			BCoefficient: 3950, SeriesResistor: 10000, SupplyVoltage: 3.3,
		},
	}

	return Config{
		ADC:     adc.DefaultConfig(),
		Monitor: monitor.DefaultConfig(),
		Probes:  probes,
		PID: pid.Config{
			Gains:      pid.Gains{Kp: 2.0, Ki: 0.1, Kd: 1.0},
			Limits:     pid.Limits{OutputMin: 0, OutputMax: 100, IntegralMin: -50, IntegralMax: 50, DerivativeFilter: 0.2},
			SampleTime: time.Second,
			AutoMode:   false,
		},
		Servo: servo.DefaultConfig(),

		InitialSetpointC: 110,

		MainLoopInterval:    250 * time.Millisecond,
		ControlLoopInterval: time.Second,
		TelemetryInterval:   5 * time.Second,
		MaxTelemetryPoints:  7200,

		MinPitTempC:  0,
		MaxPitTempC:  400,
		MinMeatTempC: 0,
		MaxMeatTempC: 200,

		HighTempWarningC: 350,
		TempRateLimitCPM: 10,

		LogsDir: ".",
	}
}
