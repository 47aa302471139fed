// Package eggbot is the orchestrator: it owns the Monitor, the PID
// Regulator, and the Servo Actuator, runs the cadenced control loop, and
// aggregates their state into a single thread-safe snapshot. Grounded on
// cmd/andorhttp3's construct-then-wire pattern, generalized from "start
// one HTTP-wrapped camera" into "start one control engine with three owned
// background threads."
package eggbot

import (
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/eggbot-project/pitctl/adc"
	"github.com/eggbot-project/pitctl/eggboterr"
	"github.com/eggbot-project/pitctl/monitor"
	"github.com/eggbot-project/pitctl/pid"
	"github.com/eggbot-project/pitctl/presets"
	"github.com/eggbot-project/pitctl/servo"
	"github.com/eggbot-project/pitctl/util"
)

// Engine is the process-wide control engine. Exactly one should exist per
// process; nothing in this package enforces that as a singleton, per the
// redesign away from a global — callers construct and inject a *Engine.
type Engine struct {
	mu sync.Mutex

	cfg Config
	log *log.Logger

	adcDriver *adc.Driver
	monitor   *monitor.Monitor
	regulator *pid.Regulator
	actuator  *servo.Actuator
	presets   presetLookup

	startTime time.Time

	// snapshot fields, guarded by mu
	meatSetpointC   *float64
	controlMode     ControlMode
	safetyShutdown  bool
	lastDamperCmd   float64
	lastPIDOutput   float64
	lastPIDError    float64
	lastControlTime time.Time
	lastTelemetry   time.Time
	probeTimeoutAt  map[monitor.ProbeName]bool

	telemetry []TelemetryRecord
	alerts    []SafetyEvent

	csv *csvSink

	controlTicks int64

	stopCh chan struct{}
	doneCh chan struct{}
}

// presetLookup is the narrow surface the Engine needs from a preset
// store; kept as an interface so tests can stub it without a real
// filesystem-backed presets.Store.
type presetLookup interface {
	Get(name string) (presets.Preset, error)
}

// New constructs an Engine and all of its sub-components from cfg, but
// does not start any background thread.
func New(cfg Config, presetStore presetLookup, logger *log.Logger) (*Engine, error) {
	if logger == nil {
		logger = log.Default()
	}

	driver, err := adc.New(cfg.ADC, logger)
	if err != nil {
		return nil, eggboterr.Wrap(eggboterr.HardwareUnavailable, "adc driver init failed", err)
	}

	mon := monitor.New(driver, cfg.Probes, cfg.Monitor, logger)
	reg := pid.New(cfg.PID)
	act := servo.New(cfg.Servo, logger)

	e := &Engine{
		cfg:            cfg,
		log:            logger,
		adcDriver:      driver,
		monitor:        mon,
		regulator:      reg,
		actuator:       act,
		presets:        presetStore,
		controlMode:    ModeManual,
		probeTimeoutAt: make(map[monitor.ProbeName]bool),
	}
	reg.SetSetpoint(cfg.InitialSetpointC)
	return e, nil
}

// Start registers the alert handler, starts the Monitor sampler, the
// Servo motion thread, and the Engine's own control thread.
func (e *Engine) Start() {
	e.mu.Lock()
	e.startTime = time.Now()
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	e.mu.Unlock()

	e.monitor.Start()
	e.actuator.Start()
	go e.watchAlerts()
	go e.runControlLoop()
}

// Stop joins the control thread with a bounded timeout, then stops the
// Monitor, closes the Actuator, and closes any open CSV sink. Closing the
// Actuator writes pulse 0 to release the servo; the damper is not first
// driven to 0%. Re-entry after a successful stop is a no-op.
func (e *Engine) Stop() {
	e.mu.Lock()
	stopCh := e.stopCh
	e.mu.Unlock()
	if stopCh == nil {
		return
	}

	close(stopCh)
	select {
	case <-e.doneCh:
	case <-time.After(3 * time.Second):
		e.log.Printf("eggbot: control thread did not exit within timeout")
	}

	e.monitor.Stop(2 * time.Second)
	e.actuator.Close(time.Second)

	e.mu.Lock()
	e.stopCh = nil
	if e.csv != nil {
		e.csv.close()
		e.csv = nil
	}
	e.mu.Unlock()
}

func (e *Engine) watchAlerts() {
	for a := range e.monitor.Alerts() {
		e.recordAlert(SeverityWarning, string(a.Probe)+": "+a.Message)
	}
}

func (e *Engine) recordAlert(sev AlertSeverity, msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.alerts = append(e.alerts, SafetyEvent{Severity: sev, Message: msg, Timestamp: time.Now()})
	if len(e.alerts) > 200 {
		e.alerts = e.alerts[len(e.alerts)-200:]
	}
}

// runControlLoop is the Engine's owned control thread: it ticks at
// MainLoopInterval, runs the PID at ControlLoopInterval, appends
// telemetry at TelemetryInterval, and writes CSV rows when enabled. No
// panic in a tick is allowed to kill the thread.
func (e *Engine) runControlLoop() {
	defer close(e.doneCh)
	ticker := time.NewTicker(e.cfg.MainLoopInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case now := <-ticker.C:
			e.safeTick(now)
		}
	}
}

func (e *Engine) safeTick(now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Printf("eggbot: control tick panic recovered: %v", r)
			time.Sleep(time.Second)
		}
	}()
	e.tick(now)
}

func (e *Engine) tick(now time.Time) {
	temps := e.monitor.Temperatures()
	connected := e.monitor.ConnectedProbes()

	pitTemp, havePit := temps[monitor.PitProbe]

	// Safety must be evaluated, and its trip (if any) latched, before
	// runPID is decided: otherwise a tick that both trips the shutdown
	// and would have run the PID commands the actuator back open right
	// after emergencyShutdown commanded it closed.
	e.evaluateSafety(temps, now)

	e.mu.Lock()
	runPID := !e.safetyShutdown && e.controlMode == ModeAutomatic && now.Sub(e.lastControlTime) >= e.cfg.ControlLoopInterval
	mode := e.controlMode
	shutdown := e.safetyShutdown
	e.mu.Unlock()

	if runPID && havePit {
		out := e.regulator.Compute(pitTemp, now)
		e.actuator.SetTarget(out)
		st := e.regulator.State()
		e.mu.Lock()
		e.lastPIDOutput = out
		e.lastPIDError = st.Error
		e.lastControlTime = now
		e.mu.Unlock()
	} else if runPID {
		e.mu.Lock()
		e.lastControlTime = now
		e.mu.Unlock()
	}

	damperPos := e.actuator.Position()

	e.mu.Lock()
	if shutdown {
		// The servo only slews toward 0; reporting its physical,
		// still-open position would contradict the safety trip for
		// however many ticks the slew takes to catch up.
		e.lastDamperCmd = 0
	} else {
		e.lastDamperCmd = damperPos
	}
	e.controlTicks++
	dueTelemetry := now.Sub(e.lastTelemetry) >= e.cfg.TelemetryInterval
	if dueTelemetry {
		e.lastTelemetry = now
	}
	snap := e.buildSnapshotLocked(temps, connected, mode, shutdown, now)
	if dueTelemetry {
		e.telemetry = append(e.telemetry, TelemetryRecord{ControllerState: snap})
		if len(e.telemetry) > e.cfg.MaxTelemetryPoints {
			e.telemetry = e.telemetry[len(e.telemetry)-e.cfg.MaxTelemetryPoints:]
		}
	}
	sink := e.csv
	e.mu.Unlock()

	if sink != nil && sink.due(now) {
		if err := sink.writeRow(snap, now); err != nil {
			e.log.Printf("eggbot: csv row write failed: %v", err)
		}
	}
}

// buildSnapshotLocked must be called with mu held.
func (e *Engine) buildSnapshotLocked(temps map[monitor.ProbeName]float64, connected []monitor.ProbeName, mode ControlMode, shutdown bool, now time.Time) ControllerState {
	pit, meat1, meat2, ambient := snapshotTemps(temps)
	names := make([]string, len(connected))
	for i, p := range connected {
		names[i] = string(p)
	}
	return ControllerState{
		PitTempC:        pit,
		MeatTemp1C:      meat1,
		MeatTemp2C:      meat2,
		AmbientTempC:    ambient,
		SetpointC:       e.regulator.Setpoint(),
		MeatSetpointC:   e.meatSetpointC,
		DamperPercent:   e.lastDamperCmd,
		ControlMode:     mode,
		SafetyShutdown:  shutdown,
		ConnectedProbes: names,
		PIDOutput:       e.lastPIDOutput,
		PIDError:        e.lastPIDError,
		Gains:           e.regulator.Gains(),
		Timestamp:       now,
	}
}

// evaluateSafety implements spec.md 4.6's safety supervisor: critical and
// warning temperature/rate/timeout checks, triggering emergency_shutdown
// on a critical pit overtemperature.
func (e *Engine) evaluateSafety(temps map[monitor.ProbeName]float64, now time.Time) {
	pit, ok := temps[monitor.PitProbe]
	if ok {
		if pit > e.cfg.MaxPitTempC {
			e.emergencyShutdown(pit)
		} else if pit > e.cfg.HighTempWarningC {
			e.recordAlert(SeverityWarning, "pit temperature above high-temp warning threshold")
		}
	}

	status, err := e.monitor.ProbeStatus(monitor.PitProbe)
	if err == nil && len(status.History) >= 10 {
		slopePerMin := rateOfChangePerMinute(status.History, e.cfg.Monitor.UpdateInterval)
		if slopePerMin > e.cfg.TempRateLimitCPM {
			e.recordAlert(SeverityWarning, "pit temperature rising faster than the configured rate limit")
		}
	}

	for name, st := range e.monitor.AllStatus() {
		timedOut := !st.LastUpdate.IsZero() && now.Sub(st.LastUpdate) > e.cfg.Monitor.ProbeTimeout
		e.mu.Lock()
		already := e.probeTimeoutAt[name]
		if timedOut && !already {
			e.probeTimeoutAt[name] = true
			e.mu.Unlock()
			e.recordAlert(SeverityWarning, string(name)+" has not reported within the probe timeout window")
			continue
		}
		if !timedOut {
			e.probeTimeoutAt[name] = false
		}
		e.mu.Unlock()
	}
}

func rateOfChangePerMinute(history []float64, sampleInterval time.Duration) float64 {
	n := len(history)
	if n < 2 || sampleInterval <= 0 {
		return 0
	}
	window := history
	if n > 10 {
		window = history[n-10:]
	}
	delta := window[len(window)-1] - window[0]
	elapsedMin := float64(len(window)-1) * sampleInterval.Seconds() / 60.0
	if elapsedMin == 0 {
		return 0
	}
	return delta / elapsedMin
}

// emergencyShutdown atomically trips the safety flag, forces manual mode,
// disables the regulator, and commands the damper closed.
func (e *Engine) emergencyShutdown(pitTemp float64) {
	e.mu.Lock()
	already := e.safetyShutdown
	e.safetyShutdown = true
	e.controlMode = ModeManual
	e.mu.Unlock()

	e.regulator.Disable()
	e.actuator.SetTarget(0)

	if !already {
		e.recordAlert(SeverityCritical, "pit temperature "+formatC(pitTemp)+" exceeded the critical safety envelope, emergency shutdown engaged")
	}
}

func formatC(c float64) string {
	return strconv.FormatFloat(c, 'f', 1, 64) + "C"
}

func clampf(v, min, max float64) float64 { return util.Clamp(v, min, max) }
