package thermistor

import (
	"math"
	"testing"
)

func testConfig() Config {
	return Config{
		Name:               "pit_probe",
		ResistanceNominal:  10000,
		TemperatureNominal: 25.0,
		BCoefficient:       3950,
		SeriesResistor:     10000,
		SupplyVoltage:      3.3,
		SteinhartHart: &SteinhartHart{
			A: 0.001125308852,
			B: 0.000234711863,
			C: 0.000000085663516,
		},
	}
}

func TestVoltageResistanceRoundTrip(t *testing.T) {
	r := 12345.0
	v := ResistanceToVoltage(r, 10000, 3.3)
	got, err := VoltageToResistance(v, 10000, 3.3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(got-r) > 1e-6 {
		t.Fatalf("round trip mismatch: want %v got %v", r, got)
	}
}

func TestVoltageToResistanceOutOfRange(t *testing.T) {
	cases := []float64{0, 0.0005, 3.3, 4.0}
	for _, v := range cases {
		if _, err := VoltageToResistance(v, 10000, 3.3); err == nil {
			t.Errorf("voltage %v: expected out-of-range error", v)
		}
	}
}

func TestSteinhartHartAtNominal(t *testing.T) {
	cfg := testConfig()
	c, err := ResistanceToTemperatureSteinhartHart(cfg.ResistanceNominal, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(float64(c)-25.0) > 2.0 {
		t.Fatalf("expected ~25C at nominal resistance, got %v", c)
	}
}

func TestFallsBackToBetaWithoutCoefficients(t *testing.T) {
	cfg := testConfig()
	cfg.SteinhartHart = nil
	c, err := ResistanceToTemperatureSteinhartHart(cfg.ResistanceNominal, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(float64(c)-25.0) > 0.01 {
		t.Fatalf("beta equation at nominal resistance should read nominal temp, got %v", c)
	}
}

func TestValidateReading(t *testing.T) {
	cfg := testConfig()
	lo, hi := Range(cfg)
	if !ValidateReading((lo+hi)/2, cfg) {
		t.Fatalf("midpoint of range should validate")
	}
	if ValidateReading(hi+1000, cfg) {
		t.Fatalf("far outside range should not validate")
	}
}

func TestCalibrate(t *testing.T) {
	cfg := testConfig()
	cfg = Calibrate(cfg, 98.0, 100.0)
	if math.Abs(cfg.OffsetC-2.0) > 1e-9 {
		t.Fatalf("expected offset 2.0, got %v", cfg.OffsetC)
	}
}

func TestTemperatureUnitConversions(t *testing.T) {
	if C2F(0) != 32 {
		t.Errorf("0C should be 32F")
	}
	if math.Abs(float64(C2K(0))-273.15) > 1e-9 {
		t.Errorf("0C should be 273.15K")
	}
	if F2C(212) != 100 {
		t.Errorf("212F should be 100C")
	}
}
