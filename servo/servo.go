// Package servo drives the intake damper: it maps a percentage target to a
// pulse width, shapes motion with a slew-rate limit on a dedicated ticking
// goroutine, and talks to a local GPIO daemon over TCP with reconnection
// and health-check accounting. Grounded on fsm.ControlLoop's mutex-owned
// tick pattern, generalized from a single DAC write to a shaped servo
// target, and on comm.RemoteDevice's reconnect discipline.
package servo

import (
	"log"
	"sync"
	"time"

	"github.com/eggbot-project/pitctl/eggboterr"
	"github.com/eggbot-project/pitctl/util"
)

// Config configures pulse-width mapping and motion shaping.
type Config struct {
	MinPulseUs         uint16        // default 1033 (closed)
	MaxPulseUs         uint16        // default 1833 (open)
	CenterPulseUs      uint16        // default 1433
	PWMFrequencyHz     int           // default 50
	MaxSpeedPctPerSec  float64       // default 30 deg/s -> modeled directly in percent/s
	PositionTolerance  float64       // default 2%
	MotionTickInterval time.Duration // default 50ms
	HealthCheckPeriod  time.Duration // default 30s
	FailureReconnectAt int           // default 3 consecutive failures
	DaemonAddr         string        // default "localhost:8888"
	MaxConnectAttempts int           // default 10
	ConnectRetryDelay  time.Duration // default 2s
	Simulate           bool
}

// DefaultConfig returns the servo defaults named in spec.md section 4.5/6.
func DefaultConfig() Config {
	return Config{
		MinPulseUs:         1033,
		MaxPulseUs:         1833,
		CenterPulseUs:      1433,
		PWMFrequencyHz:     50,
		MaxSpeedPctPerSec:  30.0,
		PositionTolerance:  2.0,
		MotionTickInterval: 50 * time.Millisecond,
		HealthCheckPeriod:  30 * time.Second,
		FailureReconnectAt: 3,
		DaemonAddr:         "localhost:8888",
		MaxConnectAttempts: 10,
		ConnectRetryDelay:  2 * time.Second,
	}
}

// pulseWidth linearly maps a damper percentage [0,100] to a pulse width in
// microseconds between MinPulseUs and MaxPulseUs.
func pulseWidth(pct float64, cfg Config) uint16 {
	pct = util.Clamp(pct, 0, 100)
	span := float64(cfg.MaxPulseUs) - float64(cfg.MinPulseUs)
	return uint16(float64(cfg.MinPulseUs) + (pct/100)*span)
}

// Diagnostics reports servo and daemon health for the diagnostics query.
type Diagnostics struct {
	Connected          bool
	SimulateMode       bool
	DaemonAddr         string
	ConnectionAttempts int
	CommandSuccess     int
	CommandFailure     int
	SuccessRate        float64
	LastSuccessTime    time.Time
	CurrentPosition    float64
	TargetPosition     float64
	CurrentPulseUs     uint16
}

// Actuator owns the motion-shaping goroutine and the daemon connection.
type Actuator struct {
	mu sync.Mutex

	cfg    Config
	daemon *daemonClient
	log    *log.Logger

	currentPosition float64
	targetPosition  float64
	lastPulse       uint16
	simulating      bool

	consecutiveFailures int

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs an Actuator and attempts to bring up the daemon
// connection, retrying up to MaxConnectAttempts times with
// ConnectRetryDelay spacing before falling back to simulation.
func New(cfg Config, logger *log.Logger) *Actuator {
	if logger == nil {
		logger = log.Default()
	}
	a := &Actuator{cfg: cfg, log: logger, daemon: newDaemonClient(cfg.DaemonAddr)}

	if cfg.Simulate {
		a.simulating = true
		logger.Printf("servo: simulation mode requested, skipping daemon connect")
		return a
	}

	for attempt := 1; attempt <= cfg.MaxConnectAttempts; attempt++ {
		if err := a.daemon.connect(); err == nil {
			logger.Printf("servo: connected to gpio daemon at %s (attempt %d)", cfg.DaemonAddr, attempt)
			return a
		}
		time.Sleep(cfg.ConnectRetryDelay)
	}
	logger.Printf("servo: gpio daemon unreachable after %d attempts, falling back to simulation", cfg.MaxConnectAttempts)
	a.simulating = true
	return a
}

// Start launches the motion-shaping goroutine.
func (a *Actuator) Start() {
	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	go a.runMotion()
	go a.runHealthCheck()
}

// SetTarget sets the desired damper percentage; the motion thread will
// approach it at the configured slew rate.
func (a *Actuator) SetTarget(pct float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.targetPosition = util.Clamp(pct, 0, 100)
}

// Position returns the actuator's current shaped position.
func (a *Actuator) Position() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentPosition
}

// AtTarget reports whether the current position is within tolerance of the target.
func (a *Actuator) AtTarget() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return abs(a.targetPosition-a.currentPosition) <= a.cfg.PositionTolerance
}

func (a *Actuator) runMotion() {
	defer close(a.doneCh)
	ticker := time.NewTicker(a.cfg.MotionTickInterval)
	defer ticker.Stop()
	maxStep := a.cfg.MaxSpeedPctPerSec * a.cfg.MotionTickInterval.Seconds()
	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			a.motionTick(maxStep)
		}
	}
}

func (a *Actuator) motionTick(maxStep float64) {
	a.mu.Lock()
	target := a.targetPosition
	current := a.currentPosition
	delta := target - current
	if abs(delta) <= a.cfg.PositionTolerance {
		a.mu.Unlock()
		return
	}
	step := maxStep
	if abs(delta) < step {
		step = abs(delta)
	}
	if delta < 0 {
		step = -step
	}
	next := current + step
	a.mu.Unlock()

	if err := a.commandPosition(next); err == nil {
		a.mu.Lock()
		a.currentPosition = next
		a.mu.Unlock()
	}
}

// commandPosition writes the pulse width for a given percentage, handling
// failure accounting and triggering reconnects after repeated faults.
func (a *Actuator) commandPosition(pct float64) error {
	pw := pulseWidth(pct, a.cfg)
	if a.isSimulating() {
		a.mu.Lock()
		a.lastPulse = pw
		a.mu.Unlock()
		return nil
	}

	err := a.daemon.setPulse(0, pw)
	if err != nil {
		a.mu.Lock()
		a.consecutiveFailures++
		trigger := a.consecutiveFailures > a.cfg.FailureReconnectAt
		a.mu.Unlock()
		if trigger {
			a.log.Printf("servo: %d consecutive command failures, reconnecting", a.consecutiveFailures)
			if rerr := a.daemon.reconnect(); rerr != nil {
				a.log.Printf("servo: reconnect failed: %v", rerr)
			} else {
				a.mu.Lock()
				a.consecutiveFailures = 0
				a.mu.Unlock()
			}
		}
		return eggboterr.Wrap(eggboterr.ServoCommandFault, "set pulse failed", err)
	}

	a.mu.Lock()
	a.consecutiveFailures = 0
	a.lastPulse = pw
	a.mu.Unlock()
	return nil
}

func (a *Actuator) isSimulating() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.simulating
}

func (a *Actuator) runHealthCheck() {
	ticker := time.NewTicker(a.cfg.HealthCheckPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			if a.isSimulating() {
				continue
			}
			if err := a.daemon.ping(); err != nil {
				a.log.Printf("servo: health check failed, reconnecting: %v", err)
				if rerr := a.daemon.reconnect(); rerr != nil {
					a.log.Printf("servo: health check reconnect failed: %v", rerr)
				}
			}
		}
	}
}

// Center moves the damper to 50%.
func (a *Actuator) Center() { a.SetTarget(50) }

// Stop writes pulse 0 (releasing holding torque) and clears the pulse cache.
func (a *Actuator) Stop() error {
	a.mu.Lock()
	a.lastPulse = 0
	a.mu.Unlock()
	if a.isSimulating() {
		return nil
	}
	return a.daemon.setPulse(0, 0)
}

// Close halts the motion and health-check threads, stops the servo, and
// closes the daemon session. Re-entry after a successful close is a no-op.
func (a *Actuator) Close(timeout time.Duration) {
	if a.stopCh == nil {
		return
	}
	close(a.stopCh)
	select {
	case <-a.doneCh:
	case <-time.After(timeout):
		a.log.Printf("servo: motion thread did not exit within %s", timeout)
	}
	a.Stop()
	a.daemon.close()
	a.stopCh = nil
}

// Diagnostics reports current accounting, for the servo diagnostics query.
func (a *Actuator) Diagnostics() Diagnostics {
	a.mu.Lock()
	cur, tgt, pulse, sim := a.currentPosition, a.targetPosition, a.lastPulse, a.simulating
	a.mu.Unlock()
	dd := a.daemon.diagnostics()
	return Diagnostics{
		Connected:          dd.Connected,
		SimulateMode:       sim,
		DaemonAddr:         a.cfg.DaemonAddr,
		ConnectionAttempts: dd.ConnectionAttempts,
		CommandSuccess:     dd.SuccessCount,
		CommandFailure:     dd.FailureCount,
		SuccessRate:        dd.SuccessRate,
		LastSuccessTime:    dd.LastSuccessTime,
		CurrentPosition:    cur,
		TargetPosition:     tgt,
		CurrentPulseUs:     pulse,
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
