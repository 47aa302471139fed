// Package monitor owns the periodic sensor-acquisition pipeline: it reads
// all four thermistor probes through the ADC driver, applies per-probe
// filtering and rolling statistics, and detects disconnection, raising an
// alert when a probe is marked disconnected. Temperature and rate envelope
// checks are not made here. It mirrors fsm.ControlLoop's own-a-mutex,
// tick-on-a-goroutine shape, generalized to four channels and a richer
// status record.
package monitor

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/eggbot-project/pitctl/adc"
	"github.com/eggbot-project/pitctl/eggboterr"
	"github.com/eggbot-project/pitctl/thermistor"
)

// ProbeName identifies one of the four statically bound logical probes.
type ProbeName string

// The four probes, statically bound to ADC channels 0..3.
const (
	PitProbe     ProbeName = "pit_probe"
	Meat1Probe   ProbeName = "meat_probe_1"
	Meat2Probe   ProbeName = "meat_probe_2"
	AmbientProbe ProbeName = "ambient_probe"
)

// channelOrder fixes the probe-to-channel binding from spec.md section 3.
var channelOrder = []ProbeName{PitProbe, Meat1Probe, Meat2Probe, AmbientProbe}

// AlertLevel classifies a safety or connectivity alert.
type AlertLevel string

// Alert severities.
const (
	Warning  AlertLevel = "warning"
	Critical AlertLevel = "critical"
)

// Alert is emitted onto the Monitor's alert channel when a probe is marked
// disconnected after repeated invalid samples.
type Alert struct {
	Level     AlertLevel
	Probe     ProbeName
	Message   string
	Timestamp time.Time
}

// Sample is one probe capture for a single tick.
type Sample struct {
	Channel      int
	ProbeName    ProbeName
	Voltage      float64
	RawCount     int16
	TemperatureC float64
	Timestamp    time.Time
	IsValid      bool
	InvalidRenot string
}

// Status is the rolling, Monitor-owned state for one probe.
type Status struct {
	Connected         bool
	Last              Sample
	LastUpdate        time.Time
	ConsecutiveErrors int
	TotalReadings     int
	MinTemp           float64
	MaxTemp           float64
	RollingMean       float64
	History           []float64 // bounded to the last 100 samples
}

// Config configures the Monitor's sampling cadence and filtering.
type Config struct {
	UpdateInterval         time.Duration // default 500ms
	FilterAlpha            float64       // default 0.7
	FilterAlphaFast        float64       // default 0.3, used when rate exceeds MaxTempChangePerSecond
	MaxTempChangePerSecond float64       // default 10 C/s
	ConsecutiveErrorLimit  int           // default 5
	ProbeTimeout           time.Duration // default 30s
	HistoryLimit           int           // default 100
}

// DefaultConfig returns the Monitor defaults named in spec.md section 4.3.
func DefaultConfig() Config {
	return Config{
		UpdateInterval:         500 * time.Millisecond,
		FilterAlpha:            0.7,
		FilterAlphaFast:        0.3,
		MaxTempChangePerSecond: 10.0,
		ConsecutiveErrorLimit:  5,
		ProbeTimeout:           30 * time.Second,
		HistoryLimit:           100,
	}
}

// Monitor owns the sampler thread and the rolling per-probe status table.
type Monitor struct {
	mu      sync.Mutex
	driver  *adc.Driver
	configs map[ProbeName]thermistor.Config
	status  map[ProbeName]*Status
	cfg     Config
	alertCh chan Alert
	log     *log.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Monitor over the given ADC driver and per-probe
// thermistor configurations, keyed by probe name.
func New(driver *adc.Driver, configs map[ProbeName]thermistor.Config, cfg Config, logger *log.Logger) *Monitor {
	if logger == nil {
		logger = log.Default()
	}
	status := make(map[ProbeName]*Status, len(channelOrder))
	for _, p := range channelOrder {
		status[p] = &Status{}
	}
	return &Monitor{
		driver:  driver,
		configs: configs,
		status:  status,
		cfg:     cfg,
		alertCh: make(chan Alert, 64),
		log:     logger,
	}
}

// Alerts returns the channel alerts are delivered on.
func (m *Monitor) Alerts() <-chan Alert { return m.alertCh }

// Start launches the sampler goroutine.
func (m *Monitor) Start() {
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	go m.run()
}

// Stop signals the sampler to exit and waits up to timeout for it to do so.
func (m *Monitor) Stop(timeout time.Duration) {
	if m.stopCh == nil {
		return
	}
	close(m.stopCh)
	select {
	case <-m.doneCh:
	case <-time.After(timeout):
		m.log.Printf("monitor: sampler did not exit within %s", timeout)
	}
	m.stopCh = nil
}

func (m *Monitor) run() {
	defer close(m.doneCh)
	ticker := time.NewTicker(m.cfg.UpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

func (m *Monitor) tick() {
	defer func() {
		if r := recover(); r != nil {
			m.log.Printf("monitor: tick panic recovered: %v", r)
			time.Sleep(time.Second)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	for channel, probe := range channelOrder {
		sample := m.acquire(ctx, channel, probe)
		m.applySample(probe, sample)
	}
	m.checkSafety()
}

func (m *Monitor) acquire(ctx context.Context, channel int, probe ProbeName) Sample {
	raw, err := m.driver.Read(ctx, channel)
	now := time.Now()
	if err != nil {
		return Sample{Channel: channel, ProbeName: probe, Timestamp: now, IsValid: false, InvalidRenot: err.Error()}
	}
	cfg := m.configs[probe]
	t, err := thermistor.VoltageToTemperature(raw.Voltage, cfg)
	if err != nil {
		return Sample{
			Channel: channel, ProbeName: probe, Voltage: raw.Voltage, RawCount: raw.RawCount,
			Timestamp: now, IsValid: false, InvalidRenot: err.Error(),
		}
	}
	valid := thermistor.ValidateReading(t, cfg)
	reason := ""
	if !valid {
		reason = "temperature outside practical probe range"
	}
	return Sample{
		Channel: channel, ProbeName: probe, Voltage: raw.Voltage, RawCount: raw.RawCount,
		TemperatureC: float64(t), Timestamp: now, IsValid: valid, InvalidRenot: reason,
	}
}

func (m *Monitor) applySample(probe ProbeName, sample Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.status[probe]
	st.TotalReadings++

	if !sample.IsValid {
		st.ConsecutiveErrors++
		// Fire exactly on the crossing, regardless of whether the probe
		// was ever previously connected: a probe that has been invalid
		// since its first sample must still warn after the limit.
		if st.ConsecutiveErrors == m.cfg.ConsecutiveErrorLimit+1 {
			st.Connected = false
			m.emitAlert(Alert{Level: Warning, Probe: probe, Message: "probe disconnected after repeated invalid samples", Timestamp: sample.Timestamp})
		}
		// st.Last keeps the most recent valid sample.
		st.LastUpdate = sample.Timestamp
		return
	}

	filtered := sample.TemperatureC
	if st.Connected && !st.LastUpdate.IsZero() {
		dt := sample.Timestamp.Sub(st.LastUpdate).Seconds()
		if dt > 0 {
			rate := (sample.TemperatureC - st.Last.TemperatureC) / dt
			alpha := m.cfg.FilterAlpha
			if abs(rate) > m.cfg.MaxTempChangePerSecond {
				alpha = m.cfg.FilterAlphaFast
			}
			filtered = alpha*sample.TemperatureC + (1-alpha)*st.Last.TemperatureC
		}
	}
	sample.TemperatureC = filtered

	if len(st.History) == 0 || filtered < st.MinTemp {
		st.MinTemp = filtered
	}
	if len(st.History) == 0 || filtered > st.MaxTemp {
		st.MaxTemp = filtered
	}
	st.History = append(st.History, filtered)
	if len(st.History) > m.cfg.HistoryLimit {
		st.History = st.History[len(st.History)-m.cfg.HistoryLimit:]
	}
	sum := 0.0
	for _, v := range st.History {
		sum += v
	}
	st.RollingMean = sum / float64(len(st.History))

	st.ConsecutiveErrors = 0
	st.Connected = true
	st.Last = sample
	st.LastUpdate = sample.Timestamp
}

func (m *Monitor) emitAlert(a Alert) {
	select {
	case m.alertCh <- a:
	default:
		m.log.Printf("monitor: alert channel full, dropping alert %+v", a)
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// Temperatures returns a snapshot of the latest valid temperature for each
// connected probe.
func (m *Monitor) Temperatures() map[ProbeName]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[ProbeName]float64, len(channelOrder))
	for _, p := range channelOrder {
		st := m.status[p]
		if st.Connected {
			out[p] = st.Last.TemperatureC
		}
	}
	return out
}

// ConnectedProbes lists exactly those probes whose most recent valid sample
// was within ProbeTimeout of now.
func (m *Monitor) ConnectedProbes() []ProbeName {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var out []ProbeName
	for _, p := range channelOrder {
		st := m.status[p]
		if st.Connected && now.Sub(st.Last.Timestamp) <= m.cfg.ProbeTimeout {
			out = append(out, p)
		}
	}
	return out
}

// ProbeStatus returns a copy of one probe's rolling status.
func (m *Monitor) ProbeStatus(probe ProbeName) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.status[probe]
	if !ok {
		return Status{}, eggboterr.New(eggboterr.OutOfRange, "unknown probe name")
	}
	return *st, nil
}

// AllStatus returns a copy of every probe's rolling status, keyed by name.
func (m *Monitor) AllStatus() map[ProbeName]Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[ProbeName]Status, len(m.status))
	for k, v := range m.status {
		out[k] = *v
	}
	return out
}

// Trend compares the average of the first 3 and last 3 samples in the
// probe's bounded history.
func Trend(history []float64) string {
	if len(history) < 6 {
		return "insufficient_data"
	}
	first3 := average(history[:3])
	last3 := average(history[len(history)-3:])
	delta := last3 - first3
	switch {
	case abs(delta) < 0.5:
		return "stable"
	case delta > 0:
		return "rising"
	default:
		return "falling"
	}
}

func average(vs []float64) float64 {
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

// Calibrate sets the named probe's calibration offset using its most recent
// valid reading as the measured temperature.
func (m *Monitor) Calibrate(probe ProbeName, actualC float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.status[probe]
	if !ok {
		return eggboterr.New(eggboterr.OutOfRange, "unknown probe name")
	}
	cfg, ok := m.configs[probe]
	if !ok {
		return eggboterr.New(eggboterr.OutOfRange, "unknown probe name")
	}
	cfg = thermistor.Calibrate(cfg, thermistor.Celsius(st.Last.TemperatureC), thermistor.Celsius(actualC))
	m.configs[probe] = cfg
	return nil
}

// checkSafety is a hook the Engine's own safety supervisor supplements;
// the Monitor itself only raises the disconnection alert handled above.
func (m *Monitor) checkSafety() {}
