package eggbot

import (
	"time"

	"github.com/eggbot-project/pitctl/monitor"
	"github.com/eggbot-project/pitctl/pid"
	"github.com/eggbot-project/pitctl/servo"
)

// ControlMode selects whether the Engine drives the damper via the PID
// regulator or accepts direct percentage commands.
type ControlMode string

const (
	ModeManual    ControlMode = "manual"
	ModeAutomatic ControlMode = "automatic"
)

// ControllerState is the aggregator snapshot returned by Status, and the
// shape serialized to JSON for every HTTP status/telemetry response.
type ControllerState struct {
	PitTempC        *float64    `json:"pit_temp_c"`
	MeatTemp1C      *float64    `json:"meat_temp_1_c"`
	MeatTemp2C      *float64    `json:"meat_temp_2_c"`
	AmbientTempC    *float64    `json:"ambient_temp_c"`
	SetpointC       float64     `json:"setpoint_c"`
	MeatSetpointC   *float64    `json:"meat_setpoint_c"`
	DamperPercent   float64     `json:"damper_percent"`
	ControlMode     ControlMode `json:"control_mode"`
	SafetyShutdown  bool        `json:"safety_shutdown"`
	ConnectedProbes []string    `json:"connected_probes"`
	PIDOutput       float64     `json:"pid_output"`
	PIDError        float64     `json:"pid_error"`
	Gains           pid.Gains   `json:"gains"`
	Timestamp       time.Time   `json:"timestamp"`
}

// TelemetryRecord is a full controller snapshot captured at telemetry
// cadence and stored in the Engine's bounded ring.
type TelemetryRecord struct {
	ControllerState
}

// AlertSeverity mirrors monitor.AlertLevel plus the Engine's own CRITICAL
// safety trips.
type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// SafetyEvent records one safety-supervisor finding for diagnostics and
// the HTTP status payload's alert log.
type SafetyEvent struct {
	Severity  AlertSeverity `json:"severity"`
	Message   string        `json:"message"`
	Timestamp time.Time     `json:"timestamp"`
}

// PerformanceStats reports Engine-level counters for diagnostics.
type PerformanceStats struct {
	UptimeSeconds   float64             `json:"uptime_seconds"`
	ControlTicks    int64               `json:"control_ticks"`
	TelemetryPoints int                 `json:"telemetry_points"`
	PIDStats        pid.PerformanceStats `json:"pid_stats"`
}

// TemperatureLimits reports the configured safety envelope, for the
// /pi/system/status-style diagnostics surface.
type TemperatureLimits struct {
	MinPitTempC      float64 `json:"min_pit_temp_c"`
	MaxPitTempC      float64 `json:"max_pit_temp_c"`
	MinMeatTempC     float64 `json:"min_meat_temp_c"`
	MaxMeatTempC     float64 `json:"max_meat_temp_c"`
	HighTempWarningC float64 `json:"high_temp_warning_c"`
	TempRateLimitCPM float64 `json:"temp_rate_limit_c_per_min"`
	ProbeTimeoutSec  float64 `json:"probe_timeout_seconds"`
}

// CSVStatus reports the CSV sink's current state for csv_status().
type CSVStatus struct {
	Running  bool      `json:"running"`
	Path     string    `json:"path"`
	Interval time.Duration `json:"interval"`
	RowsWritten int64  `json:"rows_written"`
	StartedAt time.Time `json:"started_at"`
}

// snapshotTemps converts the Monitor's live temperatures into the
// optional pointer fields of a ControllerState. A nil entry means the
// probe has not produced a valid reading yet or is disconnected.
func snapshotTemps(temps map[monitor.ProbeName]float64) (pit, meat1, meat2, ambient *float64) {
	get := func(name monitor.ProbeName) *float64 {
		if v, ok := temps[name]; ok {
			vv := v
			return &vv
		}
		return nil
	}
	return get(monitor.PitProbe), get(monitor.Meat1Probe), get(monitor.Meat2Probe), get(monitor.AmbientProbe)
}

// ServoDiagnostics re-exports servo.Diagnostics under the Engine's
// vocabulary so callers of this package never need to import servo
// directly just to read a diagnostics struct.
type ServoDiagnostics = servo.Diagnostics

// ProbeStatusSnapshot re-exports monitor.Status for the same reason.
type ProbeStatusSnapshot = monitor.Status

// TuningInfo re-exports pid.TuningInfo.
type TuningInfo = pid.TuningInfo
