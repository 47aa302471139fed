package presets

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func writePreset(t *testing.T, dir, filename, name string, kp, ki, kd float64) {
	t.Helper()
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	content := []byte(`{"name":"` + name + `","gains":[` +
		f(kp) + "," + f(ki) + "," + f(kd) + "]}")
	if err := os.WriteFile(filepath.Join(dir, filename), content, 0644); err != nil {
		t.Fatalf("failed to write preset fixture: %v", err)
	}
}

func TestOpenLoadsPresets(t *testing.T) {
	dir := t.TempDir()
	writePreset(t, dir, "conservative.json", "conservative", 2, 0, 1)
	writePreset(t, dir, "aggressive.json", "aggressive", 5, 0, 2)

	s, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	defer s.Close()

	names := s.List()
	if len(names) != 2 {
		t.Fatalf("expected 2 presets, got %d: %v", len(names), names)
	}

	p, err := s.Get("conservative")
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if p.Gains.Kp != 2 {
		t.Fatalf("expected kp=2, got %v", p.Gains.Kp)
	}
}

func TestGetUnknownPreset(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	defer s.Close()

	if _, err := s.Get("nonexistent"); err == nil {
		t.Fatalf("expected error for unknown preset")
	}
}

func TestLiveReloadPicksUpNewFile(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	defer s.Close()

	writePreset(t, dir, "late.json", "late", 3, 1, 0)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := s.Get("late"); err == nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("expected late-added preset to be picked up by the watcher")
}
