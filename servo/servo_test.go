package servo

import (
	"testing"
	"time"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Simulate = true
	cfg.MotionTickInterval = 10 * time.Millisecond
	cfg.HealthCheckPeriod = time.Hour
	return cfg
}

func TestPulseWidthMapping(t *testing.T) {
	cfg := DefaultConfig()
	cases := []struct {
		pct  float64
		want uint16
	}{
		{0, 1033},
		{100, 1833},
		{50, 1433},
	}
	for _, c := range cases {
		if got := pulseWidth(c.pct, cfg); got != c.want {
			t.Errorf("pulseWidth(%v) = %d, want %d", c.pct, got, c.want)
		}
	}
}

func TestPulseWidthClampsInput(t *testing.T) {
	cfg := DefaultConfig()
	if got := pulseWidth(-10, cfg); got != cfg.MinPulseUs {
		t.Errorf("expected clamp to min pulse, got %d", got)
	}
	if got := pulseWidth(150, cfg); got != cfg.MaxPulseUs {
		t.Errorf("expected clamp to max pulse, got %d", got)
	}
}

// TestSlewLimitedMotion exercises the damper scenario from the testable
// behaviors list: commanding full open from a closed position should not
// jump instantly, but should reach tolerance of the target within a few
// seconds at the default 30%/s slew rate.
func TestSlewLimitedMotion(t *testing.T) {
	a := New(testConfig(), nil)
	a.Start()
	defer a.Close(time.Second)

	a.SetTarget(100)
	time.Sleep(1050 * time.Millisecond)
	pos := a.Position()
	if pos < 28 || pos > 32 {
		t.Fatalf("expected position in [28,32] after ~1s, got %v", pos)
	}

	time.Sleep(2300 * time.Millisecond)
	pos = a.Position()
	if pos < 98 {
		t.Fatalf("expected position near 100 after ~3.3s total, got %v", pos)
	}
	if !a.AtTarget() {
		t.Fatalf("expected AtTarget true once within tolerance, position=%v", pos)
	}
}

func TestCenterAndStop(t *testing.T) {
	a := New(testConfig(), nil)
	a.Start()
	defer a.Close(time.Second)

	a.Center()
	time.Sleep(2200 * time.Millisecond)
	pos := a.Position()
	if pos < 48 || pos > 52 {
		t.Fatalf("expected centered position near 50, got %v", pos)
	}

	if err := a.Stop(); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}
}

func TestDiagnosticsSimulateMode(t *testing.T) {
	a := New(testConfig(), nil)
	d := a.Diagnostics()
	if !d.SimulateMode {
		t.Fatalf("expected simulate mode in diagnostics")
	}
	if d.Connected {
		t.Fatalf("simulated actuator should not report a daemon connection")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	a := New(testConfig(), nil)
	a.Start()
	a.Close(time.Second)
	a.Close(time.Second) // must not panic or block
}
