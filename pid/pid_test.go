package pid

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func conservativeConfig() Config {
	return Config{
		Gains:      Gains{Kp: 2.0, Ki: 0.1, Kd: 1.0},
		Limits:     Limits{OutputMin: 0, OutputMax: 100, IntegralMin: -20, IntegralMax: 20, DerivativeFilter: 0.2},
		SampleTime: 2 * time.Second,
		AutoMode:   true,
	}
}

func TestBumplessTransfer(t *testing.T) {
	cfg := conservativeConfig()
	cfg.SampleTime = time.Second
	cfg.Limits.IntegralMin, cfg.Limits.IntegralMax = -50, 50
	r := New(cfg)
	r.SetAutoMode(false, 0, time.Now())
	r.SetManualOutput(40)
	r.SetSetpoint(110)

	now := time.Now()
	// pit temperature locked at 100C at the instant of transfer, per the
	// engine's monitor snapshot.
	r.SetAutoMode(true, 100, now)

	out := r.Compute(100, now.Add(time.Second))
	if out < 38 || out > 44 {
		t.Fatalf("expected first automatic tick close to the prior manual output, got %v", out)
	}

	prev := out
	out2 := r.Compute(100, now.Add(2*time.Second))
	if out2 < prev {
		t.Fatalf("expected output to trend upward as integral accrues: prev=%v next=%v", prev, out2)
	}
}

func TestSetpointJumpResetsIntegral(t *testing.T) {
	cfg := conservativeConfig()
	cfg.SampleTime = time.Second
	r := New(cfg)
	r.SetSetpoint(110)

	now := time.Now()
	r.Compute(100, now) // latch
	for i := 1; i <= 6; i++ {
		r.Compute(100, now.Add(time.Duration(i)*time.Second))
	}
	st := r.State()
	if abs(st.Integral) <= 5 {
		t.Fatalf("expected integral to have accrued past 5, got %v", st.Integral)
	}

	r.SetSetpoint(130)
	st = r.State()
	if abs(st.Integral) > 0.01 {
		t.Fatalf("expected integral reset to ~0 after setpoint jump, got %v", st.Integral)
	}
}

func TestSampleTimeEnforced(t *testing.T) {
	r := New(conservativeConfig())
	r.SetSetpoint(110)
	now := time.Now()
	r.Compute(100, now)
	out1 := r.Compute(100, now.Add(500*time.Millisecond))
	out2 := r.Compute(100, now.Add(900*time.Millisecond))
	if out1 != out2 {
		t.Fatalf("expected output unchanged before sample time elapses")
	}
}

func TestOutputAndIntegralClamped(t *testing.T) {
	cfg := conservativeConfig()
	cfg.SampleTime = time.Second
	r := New(cfg)
	r.SetSetpoint(400) // huge error to try to blow through limits
	now := time.Now()
	r.Compute(0, now)
	for i := 1; i <= 50; i++ {
		out := r.Compute(0, now.Add(time.Duration(i)*time.Second))
		if out < 0 || out > 100 {
			t.Fatalf("output escaped [0,100]: %v", out)
		}
		st := r.State()
		if st.Integral < -20 || st.Integral > 20 {
			t.Fatalf("integral escaped [-20,20]: %v", st.Integral)
		}
	}
}

func TestDisabledReturnsLastOutput(t *testing.T) {
	r := New(conservativeConfig())
	r.SetSetpoint(110)
	now := time.Now()
	out := r.Compute(100, now)
	r.Disable()
	out2 := r.Compute(50, now.Add(5*time.Second))
	if out != out2 {
		t.Fatalf("disabled regulator should return unchanged output")
	}
}

func TestSetOutputLimitsRejectsInverted(t *testing.T) {
	r := New(conservativeConfig())
	if err := r.SetOutputLimits(100, 0); err == nil {
		t.Fatalf("expected error for inverted output limits")
	}
}

func TestSetIntegralLimitsRejectsInverted(t *testing.T) {
	r := New(conservativeConfig())
	if err := r.SetIntegralLimits(20, -20); err == nil {
		t.Fatalf("expected error for inverted integral limits")
	}
}

func TestSetGainsRoundTrips(t *testing.T) {
	r := New(conservativeConfig())
	want := Gains{Kp: 3.5, Ki: 0.25, Kd: 1.75}
	r.SetGains(want)
	if diff := cmp.Diff(want, r.Gains()); diff != "" {
		t.Fatalf("gains mismatch (-want +got):\n%s", diff)
	}
}
