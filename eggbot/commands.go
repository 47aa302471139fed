package eggbot

import (
	"time"

	"github.com/eggbot-project/pitctl/eggboterr"
	"github.com/eggbot-project/pitctl/monitor"
	"github.com/eggbot-project/pitctl/pid"
)

// SetSetpoint updates the pit setpoint, rejecting values outside the
// configured pit envelope.
func (e *Engine) SetSetpoint(c float64) error {
	if c < e.cfg.MinPitTempC || c > e.cfg.MaxPitTempC {
		return eggboterr.New(eggboterr.OutOfRange, "setpoint_c outside configured pit envelope")
	}
	e.regulator.SetSetpoint(c)
	return nil
}

// Setpoint returns the regulator's current setpoint.
func (e *Engine) Setpoint() float64 { return e.regulator.Setpoint() }

// SetMeatSetpoint sets or clears the informational meat-probe setpoint.
func (e *Engine) SetMeatSetpoint(c *float64) error {
	if c != nil && (*c < e.cfg.MinMeatTempC || *c > e.cfg.MaxMeatTempC) {
		return eggboterr.New(eggboterr.OutOfRange, "meat_setpoint_c outside configured meat envelope")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.meatSetpointC = c
	return nil
}

// SetDamperPercent clamps p to [0,100], switches to manual mode, and
// commands the servo directly.
func (e *Engine) SetDamperPercent(p float64) {
	p = clampf(p, 0, 100)
	e.mu.Lock()
	e.controlMode = ModeManual
	e.mu.Unlock()
	e.regulator.SetAutoMode(false, p, time.Now())
	e.regulator.SetManualOutput(p)
	e.actuator.SetTarget(p)
}

// SetControlMode transitions between manual and automatic. Automatic is
// rejected with ModeConflict while a safety shutdown is latched.
func (e *Engine) SetControlMode(mode ControlMode) error {
	e.mu.Lock()
	shutdown := e.safetyShutdown
	current := e.controlMode
	e.mu.Unlock()

	if mode == ModeAutomatic && shutdown {
		return eggboterr.New(eggboterr.ModeConflict, "cannot enter automatic mode while safety shutdown is latched")
	}
	if mode == current {
		return nil
	}

	if mode == ModeAutomatic {
		temps := e.monitor.Temperatures()
		pv := e.actuator.Position()
		if pit, ok := temps[monitor.PitProbe]; ok {
			pv = pit
		}
		e.regulator.SetAutoMode(true, pv, time.Now())
		e.regulator.Enable()
	} else {
		e.regulator.SetAutoMode(false, e.actuator.Position(), time.Now())
	}

	e.mu.Lock()
	e.controlMode = mode
	e.mu.Unlock()
	return nil
}

// ControlMode returns the current control mode.
func (e *Engine) ControlMode() ControlMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.controlMode
}

// SetPIDGains replaces the regulator's gains outright.
func (e *Engine) SetPIDGains(kp, ki, kd float64) {
	e.regulator.SetGains(pid.Gains{Kp: kp, Ki: ki, Kd: kd})
}

// LoadPIDPreset looks up a named gain triple and applies it.
func (e *Engine) LoadPIDPreset(name string) error {
	if e.presets == nil {
		return eggboterr.New(eggboterr.OutOfRange, "no preset store configured")
	}
	p, err := e.presets.Get(name)
	if err != nil {
		return err
	}
	e.regulator.SetGains(p.Gains)
	return nil
}

// CalibrateProbe forwards a calibration command to the Monitor.
func (e *Engine) CalibrateProbe(name monitor.ProbeName, actualC float64) error {
	return e.monitor.Calibrate(name, actualC)
}

// ResetSafetyShutdown clears the latched safety flag. It does not
// automatically re-enable automatic mode.
func (e *Engine) ResetSafetyShutdown() {
	e.mu.Lock()
	e.safetyShutdown = false
	e.mu.Unlock()
}

// StartCSV opens a CSV sink at the given filename and row interval.
// Starting while already running fails with StateConflict.
func (e *Engine) StartCSV(filename string, interval time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.csv != nil {
		return eggboterr.New(eggboterr.StateConflict, "csv logging already running")
	}
	sink, err := newCSVSink(e.cfg.LogsDir, filename, interval, e.startTime)
	if err != nil {
		return err
	}
	e.csv = sink
	return nil
}

// StopCSV closes the running CSV sink and returns its path. Stopping
// while idle fails with StateConflict.
func (e *Engine) StopCSV() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.csv == nil {
		return "", eggboterr.New(eggboterr.StateConflict, "csv logging not running")
	}
	path := e.csv.path
	e.csv.close()
	e.csv = nil
	return path, nil
}

// CSVStatus reports the CSV sink's current state.
func (e *Engine) CSVStatus() CSVStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.csv == nil {
		return CSVStatus{Running: false}
	}
	return e.csv.status()
}

// Status returns the current aggregator snapshot.
func (e *Engine) Status() ControllerState {
	temps := e.monitor.Temperatures()
	connected := e.monitor.ConnectedProbes()
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buildSnapshotLocked(temps, connected, e.controlMode, e.safetyShutdown, time.Now())
}

// Telemetry returns a copy of the retained telemetry ring.
func (e *Engine) Telemetry() []TelemetryRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]TelemetryRecord, len(e.telemetry))
	copy(out, e.telemetry)
	return out
}

// ProbeStatus returns the Monitor's detailed status for a single probe.
func (e *Engine) ProbeStatus(name monitor.ProbeName) (monitor.Status, error) {
	return e.monitor.ProbeStatus(name)
}

// AllProbeStatus returns the Monitor's detailed status for every probe.
func (e *Engine) AllProbeStatus() map[monitor.ProbeName]monitor.Status {
	return e.monitor.AllStatus()
}

// PIDTuningInfo returns the regulator's current tuning diagnostics.
func (e *Engine) PIDTuningInfo() pid.TuningInfo {
	return e.regulator.TuningInfo()
}

// PerformanceStats reports Engine-level and PID-level counters. Uptime is
// computed from the Engine's own start time, per the resolved Open
// Question on the original's uninitialized-timestamp bug.
func (e *Engine) PerformanceStats() PerformanceStats {
	e.mu.Lock()
	uptime := time.Since(e.startTime).Seconds()
	ticks := e.controlTicks
	points := len(e.telemetry)
	e.mu.Unlock()
	return PerformanceStats{
		UptimeSeconds:   uptime,
		ControlTicks:    ticks,
		TelemetryPoints: points,
		PIDStats:        e.regulator.PerformanceStats(),
	}
}

// TemperatureLimits reports the configured safety envelope.
func (e *Engine) TemperatureLimits() TemperatureLimits {
	return TemperatureLimits{
		MinPitTempC:      e.cfg.MinPitTempC,
		MaxPitTempC:      e.cfg.MaxPitTempC,
		MinMeatTempC:     e.cfg.MinMeatTempC,
		MaxMeatTempC:     e.cfg.MaxMeatTempC,
		HighTempWarningC: e.cfg.HighTempWarningC,
		TempRateLimitCPM: e.cfg.TempRateLimitCPM,
		ProbeTimeoutSec:  e.cfg.Monitor.ProbeTimeout.Seconds(),
	}
}

// ServoDiagnostics reports the Actuator's connection/command accounting.
func (e *Engine) ServoDiagnostics() ServoDiagnostics {
	return e.actuator.Diagnostics()
}

// SafetyEvents returns a copy of the recorded alert/shutdown log.
func (e *Engine) SafetyEvents() []SafetyEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]SafetyEvent, len(e.alerts))
	copy(out, e.alerts)
	return out
}
