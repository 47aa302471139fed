// Package pid implements a discrete PID regulator with integral clamp,
// filtered derivative, bumpless auto/manual transfer, and output
// saturation, grounded on the limiter idiom in util.Limiter and the
// gains-as-a-triple query shape of lakeshore.PID.
package pid

import (
	"sync"
	"time"

	"github.com/eggbot-project/pitctl/eggboterr"
	"github.com/eggbot-project/pitctl/util"
)

// Gains is the classic Kp, Ki, Kd triple.
type Gains struct {
	Kp, Ki, Kd float64
}

// Limits bounds the regulator's output and integral term, plus the
// derivative low-pass coefficient.
type Limits struct {
	OutputMin, OutputMax     float64
	IntegralMin, IntegralMax float64
	DerivativeFilter         float64 // beta in [0,1]
}

// Config is the full regulator configuration.
type Config struct {
	Gains      Gains
	Limits     Limits
	SampleTime time.Duration
	AutoMode   bool
}

// maxErrorHistory bounds the recent-error ring used for tuning diagnostics.
const maxErrorHistory = 5

// State is a snapshot of the regulator's internal state.
type State struct {
	Setpoint         float64
	PV               float64
	Error            float64
	Integral         float64
	Derivative       float64
	LastError        float64
	Output           float64
	LastComputeTime  time.Time
	AutoMode         bool
	Enabled          bool
}

// TuningInfo reports the PID's per-term contributions and status, for
// diagnostics and tuning assistance.
type TuningInfo struct {
	CurrentError            float64
	ErrorTrend              string // "increasing" or "decreasing"
	ProportionalContribution float64
	IntegralContribution    float64
	DerivativeContribution  float64
	OutputPercentage        float64
	AtOutputLimit           bool
}

// PerformanceStats reports regulator call counters.
type PerformanceStats struct {
	ComputeCount   int64
	MeanComputeTime time.Duration
}

// Regulator is the thread-safe PID controller. All operations acquire an
// internal lock so compute() and get_state() are atomic with respect to
// gain/setpoint changes, as required by the concurrency model.
type Regulator struct {
	mu sync.Mutex

	gains  Gains
	limits Limits
	sampleTime time.Duration

	setpoint float64
	pv       float64
	errVal   float64
	integral float64
	derivative float64
	lastError float64
	output   float64
	lastComputeTime time.Time
	autoMode bool
	enabled  bool

	errorHistory []float64

	computeCount   int64
	totalComputeDur time.Duration
}

// New constructs a Regulator from the given configuration.
func New(cfg Config) *Regulator {
	r := &Regulator{
		gains:      cfg.Gains,
		limits:     cfg.Limits,
		sampleTime: cfg.SampleTime,
		autoMode:   cfg.AutoMode,
		enabled:    true,
	}
	// The feedforward bias seeds the integral term so that, before any
	// error has accrued, the regulator already points at mid-travel
	// instead of starting from zero output.
	r.integral = feedforward(cfg.Limits)
	r.output = r.integral
	return r
}

func feedforward(l Limits) float64 {
	return (l.OutputMin + l.OutputMax) / 2
}

// SetGains replaces Kp, Ki, Kd.
func (r *Regulator) SetGains(g Gains) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gains = g
}

// Gains returns the current gain triple.
func (r *Regulator) Gains() Gains {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gains
}

// SetOutputLimits sets output saturation bounds; umin must be < umax.
func (r *Regulator) SetOutputLimits(min, max float64) error {
	if min >= max {
		return eggboterr.New(eggboterr.OutOfRange, "output_min must be less than output_max")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limits.OutputMin, r.limits.OutputMax = min, max
	return nil
}

// SetIntegralLimits sets integral clamp bounds; min must be < max.
func (r *Regulator) SetIntegralLimits(min, max float64) error {
	if min >= max {
		return eggboterr.New(eggboterr.OutOfRange, "integral_min must be less than integral_max")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limits.IntegralMin, r.limits.IntegralMax = min, max
	return nil
}

// SetSetpoint updates the setpoint. A jump of magnitude > 5 resets the
// integral term to avoid windup carry across large setpoint changes.
func (r *Regulator) SetSetpoint(sp float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if abs(sp-r.setpoint) > 5.0 {
		r.integral = 0
	}
	r.setpoint = sp
}

// Setpoint returns the current setpoint.
func (r *Regulator) Setpoint() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setpoint
}

// Enable turns the regulator on; Disable makes Compute return the last
// output unchanged.
func (r *Regulator) Enable()  { r.mu.Lock(); r.enabled = true; r.mu.Unlock() }
func (r *Regulator) Disable() { r.mu.Lock(); r.enabled = false; r.mu.Unlock() }

// SetAutoMode switches between automatic and manual. Transitioning into
// automatic performs bumpless transfer: given the current process variable
// pv, the integral term is seeded so that, combined with the proportional
// term at the instant of transfer, it reproduces the regulator's last
// output; derivative history is cleared and last_error is seeded to the
// transfer-instant error so the first real tick sees no derivative kick.
func (r *Regulator) SetAutoMode(auto bool, pv float64, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if auto && !r.autoMode {
		e := r.setpoint - pv
		r.integral = util.Clamp(r.output-r.gains.Kp*e, r.limits.IntegralMin, r.limits.IntegralMax)
		r.derivative = 0
		r.lastError = e
		r.pv = pv
		r.errorHistory = nil
		r.lastComputeTime = now
	}
	r.autoMode = auto
}

// AutoMode reports whether the regulator is in automatic mode.
func (r *Regulator) AutoMode() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.autoMode
}

// SetManualOutput records the output a manual command applied directly to
// the actuator, so a later SetAutoMode(true) bumplessly transfers from it
// instead of from whatever the regulator last computed.
func (r *Regulator) SetManualOutput(v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.output = util.Clamp(v, r.limits.OutputMin, r.limits.OutputMax)
}

// Reset zeros the integral, derivative, and error terms and clears history.
func (r *Regulator) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.integral = 0
	r.derivative = 0
	r.errVal = 0
	r.lastError = 0
	r.errorHistory = nil
}

// Compute runs one PID step against pv at time now and returns the new
// output. If disabled, or if called before SampleTime has elapsed since the
// last compute, the previous output is returned unchanged.
func (r *Regulator) Compute(pv float64, now time.Time) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.enabled {
		return r.output
	}

	if r.lastComputeTime.IsZero() {
		r.lastComputeTime = now
		r.pv = pv
		return r.output
	}

	dt := now.Sub(r.lastComputeTime).Seconds()
	if time.Duration(dt*float64(time.Second)) < r.sampleTime {
		return r.output
	}

	e := r.setpoint - pv
	p := r.gains.Kp * e

	r.integral = util.Clamp(r.integral+r.gains.Ki*e*dt, r.limits.IntegralMin, r.limits.IntegralMax)

	var dRaw float64
	if dt > 0 {
		dRaw = (e - r.lastError) / dt
	}
	beta := r.limits.DerivativeFilter
	d := r.gains.Kd * (beta*dRaw + (1-beta)*r.derivative)

	u := p + r.integral + d
	u = util.Clamp(u, r.limits.OutputMin, r.limits.OutputMax)

	r.pv = pv
	r.errVal = e
	r.lastError = e
	r.derivative = d
	r.output = u
	r.lastComputeTime = now

	r.errorHistory = append(r.errorHistory, e)
	if len(r.errorHistory) > maxErrorHistory {
		r.errorHistory = r.errorHistory[len(r.errorHistory)-maxErrorHistory:]
	}

	r.computeCount++
	r.totalComputeDur += time.Since(now)

	return u
}

// State returns a copy of the regulator's full internal state.
func (r *Regulator) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return State{
		Setpoint:        r.setpoint,
		PV:              r.pv,
		Error:           r.errVal,
		Integral:        r.integral,
		Derivative:      r.derivative,
		LastError:       r.lastError,
		Output:          r.output,
		LastComputeTime: r.lastComputeTime,
		AutoMode:        r.autoMode,
		Enabled:         r.enabled,
	}
}

// TuningInfo reports the PID's current per-term contributions.
func (r *Regulator) TuningInfo() TuningInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	span := r.limits.OutputMax - r.limits.OutputMin
	pct := 0.0
	if span != 0 {
		pct = (r.output - r.limits.OutputMin) / span * 100
	}
	atLimit := r.output <= r.limits.OutputMin || r.output >= r.limits.OutputMax

	trend := "decreasing"
	if len(r.errorHistory) >= 2 {
		last := r.errorHistory[len(r.errorHistory)-1]
		prev := r.errorHistory[len(r.errorHistory)-2]
		if abs(last) > abs(prev) {
			trend = "increasing"
		}
	}

	return TuningInfo{
		CurrentError:             r.errVal,
		ErrorTrend:               trend,
		ProportionalContribution: r.gains.Kp * r.errVal,
		IntegralContribution:     r.integral,
		DerivativeContribution:   r.derivative,
		OutputPercentage:         pct,
		AtOutputLimit:            atLimit,
	}
}

// PerformanceStats reports the compute counter and mean compute duration.
func (r *Regulator) PerformanceStats() PerformanceStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	mean := time.Duration(0)
	if r.computeCount > 0 {
		mean = r.totalComputeDur / time.Duration(r.computeCount)
	}
	return PerformanceStats{ComputeCount: r.computeCount, MeanComputeTime: mean}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
