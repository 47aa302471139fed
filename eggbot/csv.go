package eggbot

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/eggbot-project/pitctl/eggboterr"
)

// csvFilenamePattern is the stricter of the two filename regexes found in
// the source's revision history, adopted per the resolved Open Question.
var csvFilenamePattern = regexp.MustCompile(`^[A-Za-z0-9_\-\.]+$`)

var csvHeader = []string{
	"time_since_start_seconds", "timestamp", "pit_temp_c", "meat_temp_1_c",
	"meat_temp_2_c", "ambient_temp_c", "setpoint_c", "meat_setpoint_c",
	"damper_percent", "pid_output", "pid_error", "control_mode", "safety_shutdown",
}

// csvSink writes one row per control tick where due() returns true, and is
// touched only by the control thread, per the concurrency model's resource
// ownership rule.
type csvSink struct {
	f        *os.File
	w        *csv.Writer
	path     string
	interval time.Duration
	engineStart time.Time
	startedAt time.Time
	lastWrite time.Time
	rows     int64
}

func newCSVSink(dir, filename string, interval time.Duration, engineStart time.Time) (*csvSink, error) {
	if !csvFilenamePattern.MatchString(filename) {
		return nil, eggboterr.New(eggboterr.OutOfRange, "csv filename contains characters outside [A-Za-z0-9_-.]")
	}
	if filepath.Ext(filename) != ".csv" {
		filename += ".csv"
	}
	path := filepath.Join(dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return nil, eggboterr.Wrap(eggboterr.HardwareUnavailable, "csv file create failed", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return nil, eggboterr.Wrap(eggboterr.HardwareUnavailable, "csv header write failed", err)
	}
	w.Flush()

	return &csvSink{f: f, w: w, path: path, interval: interval, engineStart: engineStart, startedAt: time.Now()}, nil
}

func (s *csvSink) due(now time.Time) bool {
	return s.lastWrite.IsZero() || now.Sub(s.lastWrite) >= s.interval
}

// writeRow appends one data row and flushes. A write error is returned to
// the caller to log, but never closes the file: logging continues on a
// best-effort basis per spec.md's "individual row-write errors are
// logged but do not stop logging" rule.
func (s *csvSink) writeRow(snap ControllerState, now time.Time) error {
	s.lastWrite = now
	record := []string{
		strconv.FormatFloat(now.Sub(s.engineStart).Seconds(), 'f', 3, 64),
		now.Format(time.RFC3339),
		optFloat(snap.PitTempC),
		optFloat(snap.MeatTemp1C),
		optFloat(snap.MeatTemp2C),
		optFloat(snap.AmbientTempC),
		strconv.FormatFloat(snap.SetpointC, 'f', 2, 64),
		optFloat(snap.MeatSetpointC),
		strconv.FormatFloat(snap.DamperPercent, 'f', 2, 64),
		strconv.FormatFloat(snap.PIDOutput, 'f', 3, 64),
		strconv.FormatFloat(snap.PIDError, 'f', 3, 64),
		string(snap.ControlMode),
		strconv.FormatBool(snap.SafetyShutdown),
	}
	if err := s.w.Write(record); err != nil {
		return err
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return err
	}
	s.rows++
	return nil
}

func optFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func (s *csvSink) status() CSVStatus {
	return CSVStatus{Running: true, Path: s.path, Interval: s.interval, RowsWritten: s.rows, StartedAt: s.startedAt}
}

func (s *csvSink) close() error {
	s.w.Flush()
	return s.f.Close()
}
