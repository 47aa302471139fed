package monitor

import (
	"testing"
	"time"

	"github.com/eggbot-project/pitctl/adc"
	"github.com/eggbot-project/pitctl/thermistor"
)

func testConfigs() map[ProbeName]thermistor.Config {
	mk := func(name string) thermistor.Config {
		return thermistor.Config{
			Name:               name,
			ResistanceNominal:  10000,
			TemperatureNominal: 25.0,
			BCoefficient:       3950,
			SeriesResistor:     10000,
			SupplyVoltage:      3.3,
		}
	}
	return map[ProbeName]thermistor.Config{
		PitProbe:     mk("pit"),
		Meat1Probe:   mk("meat1"),
		Meat2Probe:   mk("meat2"),
		AmbientProbe: mk("ambient"),
	}
}

func newTestMonitor(t *testing.T) *Monitor {
	t.Helper()
	cfg := adc.DefaultConfig()
	cfg.Simulate = true
	d, err := adc.New(cfg, nil)
	if err != nil {
		t.Fatalf("unexpected adc error: %v", err)
	}
	mcfg := DefaultConfig()
	mcfg.UpdateInterval = 20 * time.Millisecond
	return New(d, testConfigs(), mcfg, nil)
}

func TestMonitorSamplesAllProbes(t *testing.T) {
	m := newTestMonitor(t)
	m.Start()
	defer m.Stop(time.Second)

	time.Sleep(150 * time.Millisecond)
	temps := m.Temperatures()
	if len(temps) != len(channelOrder) {
		t.Fatalf("expected a temperature for all %d probes, got %d", len(channelOrder), len(temps))
	}
	connected := m.ConnectedProbes()
	if len(connected) != len(channelOrder) {
		t.Fatalf("expected all %d probes connected, got %d", len(channelOrder), len(connected))
	}
}

func TestTrendClassification(t *testing.T) {
	cases := []struct {
		name    string
		history []float64
		want    string
	}{
		{"too_short", []float64{1, 2, 3}, "insufficient_data"},
		{"stable", []float64{100, 100, 100, 100.1, 100.2, 100.1}, "stable"},
		{"rising", []float64{90, 91, 92, 98, 99, 100}, "rising"},
		{"falling", []float64{100, 99, 98, 92, 91, 90}, "falling"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Trend(c.history); got != c.want {
				t.Errorf("Trend(%v) = %s, want %s", c.history, got, c.want)
			}
		})
	}
}

func TestProbeStatusUnknownProbe(t *testing.T) {
	m := newTestMonitor(t)
	if _, err := m.ProbeStatus("nonexistent"); err == nil {
		t.Fatalf("expected error for unknown probe")
	}
}

func TestCalibrateUnknownProbe(t *testing.T) {
	m := newTestMonitor(t)
	if err := m.Calibrate("nonexistent", 100); err == nil {
		t.Fatalf("expected error for unknown probe")
	}
}

func TestStartStopIdempotent(t *testing.T) {
	m := newTestMonitor(t)
	m.Start()
	time.Sleep(30 * time.Millisecond)
	m.Stop(time.Second)
	m.Stop(time.Second) // must not panic or block
}

// TestDisconnectAlertFiresWithoutPriorConnection covers a probe that is
// invalid from its very first sample: it must still warn after exceeding
// ConsecutiveErrorLimit, with no precondition that it was ever Connected.
func TestDisconnectAlertFiresWithoutPriorConnection(t *testing.T) {
	m := newTestMonitor(t)
	now := time.Now()
	for i := 0; i < m.cfg.ConsecutiveErrorLimit+1; i++ {
		m.applySample(PitProbe, Sample{ProbeName: PitProbe, IsValid: false, Timestamp: now.Add(time.Duration(i) * time.Second)})
	}

	select {
	case a := <-m.Alerts():
		if a.Probe != PitProbe {
			t.Fatalf("expected alert for %s, got %s", PitProbe, a.Probe)
		}
	default:
		t.Fatalf("expected a disconnect alert after exceeding the consecutive error limit with no prior connection")
	}

	st, err := m.ProbeStatus(PitProbe)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Connected {
		t.Fatalf("expected probe to be marked disconnected")
	}
}

// TestDisconnectAlertFiresExactlyOnce asserts the crossing-based condition
// doesn't re-fire on every subsequent invalid sample.
func TestDisconnectAlertFiresExactlyOnce(t *testing.T) {
	m := newTestMonitor(t)
	now := time.Now()
	for i := 0; i < m.cfg.ConsecutiveErrorLimit+5; i++ {
		m.applySample(PitProbe, Sample{ProbeName: PitProbe, IsValid: false, Timestamp: now.Add(time.Duration(i) * time.Second)})
	}

	count := 0
	for {
		select {
		case <-m.Alerts():
			count++
		default:
			if count != 1 {
				t.Fatalf("expected exactly one disconnect alert, got %d", count)
			}
			return
		}
	}
}

// TestMinMaxSeedOnFirstValidReading covers a probe whose first samples are
// invalid: MinTemp/MaxTemp must seed from the first valid reading, not be
// stuck comparing against the zero value.
func TestMinMaxSeedOnFirstValidReading(t *testing.T) {
	m := newTestMonitor(t)
	now := time.Now()
	m.applySample(PitProbe, Sample{ProbeName: PitProbe, IsValid: false, Timestamp: now})
	m.applySample(PitProbe, Sample{ProbeName: PitProbe, IsValid: false, Timestamp: now.Add(time.Second)})
	m.applySample(PitProbe, Sample{ProbeName: PitProbe, IsValid: true, TemperatureC: 100, Timestamp: now.Add(2 * time.Second)})

	st, err := m.ProbeStatus(PitProbe)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.MinTemp != 100 {
		t.Fatalf("expected MinTemp seeded to the first valid reading (100), got %v", st.MinTemp)
	}
	if st.MaxTemp != 100 {
		t.Fatalf("expected MaxTemp seeded to the first valid reading (100), got %v", st.MaxTemp)
	}
}
