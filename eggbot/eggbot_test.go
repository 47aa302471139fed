package eggbot

import (
	"os"
	"testing"
	"time"

	"github.com/eggbot-project/pitctl/monitor"
	"github.com/eggbot-project/pitctl/pid"
	"github.com/eggbot-project/pitctl/presets"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ADC.Simulate = true
	cfg.Servo.Simulate = true
	cfg.Monitor.UpdateInterval = 20 * time.Millisecond
	cfg.MainLoopInterval = 20 * time.Millisecond
	cfg.ControlLoopInterval = 50 * time.Millisecond
	cfg.TelemetryInterval = 60 * time.Millisecond
	cfg.LogsDir = t.TempDir()
	return cfg
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(testConfig(t), nil, nil)
	if err != nil {
		t.Fatalf("unexpected engine construction error: %v", err)
	}
	return e
}

func TestSetSetpointRejectsOutOfRange(t *testing.T) {
	e := newTestEngine(t)
	if err := e.SetSetpoint(500); err == nil {
		t.Fatalf("expected error for out-of-range setpoint")
	}
	if err := e.SetSetpoint(120); err != nil {
		t.Fatalf("unexpected error for valid setpoint: %v", err)
	}
	if got := e.Setpoint(); got != 120 {
		t.Fatalf("expected setpoint 120, got %v", got)
	}
}

func TestSetDamperPercentClampsAndSwitchesToManual(t *testing.T) {
	e := newTestEngine(t)
	e.SetControlMode(ModeAutomatic)
	e.SetDamperPercent(150)
	if e.ControlMode() != ModeManual {
		t.Fatalf("expected manual mode after direct damper command")
	}
	if got := e.ServoDiagnostics().TargetPosition; got != 100 {
		t.Fatalf("expected damper target clamped to 100, got %v", got)
	}
}

func TestEmergencyShutdownForcesManualAndClosesDamper(t *testing.T) {
	e := newTestEngine(t)
	e.SetControlMode(ModeAutomatic)

	e.emergencyShutdown(405)

	st := e.Status()
	if !st.SafetyShutdown {
		t.Fatalf("expected safety_shutdown=true after emergency shutdown")
	}
	if st.ControlMode != ModeManual {
		t.Fatalf("expected control_mode=manual after emergency shutdown, got %v", st.ControlMode)
	}
	if st.DamperPercent != 0 {
		t.Fatalf("expected damper_percent 0 after emergency shutdown, got %v", st.DamperPercent)
	}

	if err := e.SetControlMode(ModeAutomatic); err == nil {
		t.Fatalf("expected ModeConflict while shutdown is latched")
	}

	e.ResetSafetyShutdown()
	if err := e.SetControlMode(ModeAutomatic); err != nil {
		t.Fatalf("expected automatic mode to succeed after reset, got %v", err)
	}
}

func TestEvaluateSafetyTripsOnOvertemp(t *testing.T) {
	e := newTestEngine(t)
	e.evaluateSafety(map[monitor.ProbeName]float64{monitor.PitProbe: 405}, time.Now())
	if !e.Status().SafetyShutdown {
		t.Fatalf("expected evaluateSafety to trip shutdown on a 405C pit sample")
	}
}

// TestTickClosesDamperImmediatelyOnSafetyTrip drives a real tick() (not
// evaluateSafety in isolation) through an overtemp sample while the
// actuator is already slewed open, and asserts the reported damper
// percentage is forced to 0 in that same tick, independent of how far the
// servo has physically slewed back.
func TestTickClosesDamperImmediatelyOnSafetyTrip(t *testing.T) {
	e := newTestEngine(t)
	e.monitor.Start()
	defer e.monitor.Stop(time.Second)
	e.actuator.Start()
	defer e.actuator.Close(time.Second)

	if err := e.SetControlMode(ModeAutomatic); err != nil {
		t.Fatalf("unexpected error entering automatic mode: %v", err)
	}

	e.actuator.SetTarget(80)
	time.Sleep(150 * time.Millisecond)
	if e.actuator.Position() == 0 {
		t.Fatalf("expected the actuator to have slewed open before the safety trip")
	}

	// Lower the envelope below whatever the simulated pit probe is
	// currently reporting, so the next tick's evaluateSafety trips.
	e.cfg.MaxPitTempC = -1000

	e.tick(time.Now())

	st := e.Status()
	if !st.SafetyShutdown {
		t.Fatalf("expected the tick to trip safety shutdown on the overtemp sample")
	}
	if st.DamperPercent != 0 {
		t.Fatalf("expected damper_percent 0 in the same tick as the safety trip, got %v", st.DamperPercent)
	}
}

func TestCSVLifecycle(t *testing.T) {
	e := newTestEngine(t)
	e.startTime = time.Now()

	if err := e.StartCSV("run1", 10*time.Millisecond); err != nil {
		t.Fatalf("unexpected start csv error: %v", err)
	}
	if err := e.StartCSV("run1", 10*time.Millisecond); err == nil {
		t.Fatalf("expected StateConflict starting csv twice")
	}

	snap := e.Status()
	if err := e.csv.writeRow(snap, time.Now()); err != nil {
		t.Fatalf("unexpected row write error: %v", err)
	}

	path, err := e.StopCSV()
	if err != nil {
		t.Fatalf("unexpected stop csv error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected csv file to exist at %s: %v", path, err)
	}

	if _, err := e.StopCSV(); err == nil {
		t.Fatalf("expected StateConflict stopping csv while idle")
	}
}

func TestCSVRejectsBadFilename(t *testing.T) {
	e := newTestEngine(t)
	if err := e.StartCSV("../escape", time.Second); err == nil {
		t.Fatalf("expected rejection of a path-escaping filename")
	}
}

type stubPresets struct {
	p map[string]presets.Preset
}

func (s stubPresets) Get(name string) (presets.Preset, error) {
	p, ok := s.p[name]
	if !ok {
		return presets.Preset{}, os.ErrNotExist
	}
	return p, nil
}

func TestLoadPIDPreset(t *testing.T) {
	cfg := testConfig(t)
	store := stubPresets{p: map[string]presets.Preset{
		"aggressive": {Name: "aggressive", Gains: pid.Gains{Kp: 5, Ki: 0.5, Kd: 2}},
	}}
	e, err := New(cfg, store, nil)
	if err != nil {
		t.Fatalf("unexpected engine construction error: %v", err)
	}

	if err := e.LoadPIDPreset("nonexistent"); err == nil {
		t.Fatalf("expected error for unknown preset")
	}
	if err := e.LoadPIDPreset("aggressive"); err != nil {
		t.Fatalf("unexpected error loading known preset: %v", err)
	}
	if g := e.PIDTuningInfo(); g.ProportionalContribution == 0 {
		// sanity: tuning info should be computable without panicking
		_ = g
	}
}

func TestStartStopFullLifecycle(t *testing.T) {
	e := newTestEngine(t)
	e.Start()
	time.Sleep(150 * time.Millisecond)
	e.Stop()

	if len(e.Telemetry()) == 0 {
		t.Fatalf("expected at least one telemetry record after running")
	}
}
