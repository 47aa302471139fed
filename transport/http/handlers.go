package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/eggbot-project/pitctl/eggbot"
	"github.com/eggbot-project/pitctl/monitor"
)

type handlers struct {
	engine *eggbot.Engine
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func clientError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
}

func serverError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now(),
	})
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Status())
}

func (h *handlers) telemetry(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"points": h.engine.Telemetry(),
	})
}

type setpointBody struct {
	SetpointC float64 `json:"setpoint_c"`
}

func (h *handlers) setSetpoint(w http.ResponseWriter, r *http.Request) {
	var body setpointBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		clientError(w, err)
		return
	}
	if err := h.engine.SetSetpoint(body.SetpointC); err != nil {
		clientError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Status())
}

type meatSetpointBody struct {
	MeatSetpointC *float64 `json:"meat_setpoint_c"`
}

func (h *handlers) setMeatSetpoint(w http.ResponseWriter, r *http.Request) {
	var body meatSetpointBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		clientError(w, err)
		return
	}
	if err := h.engine.SetMeatSetpoint(body.MeatSetpointC); err != nil {
		clientError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Status())
}

type damperBody struct {
	DamperPercent float64 `json:"damper_percent"`
}

func (h *handlers) setDamper(w http.ResponseWriter, r *http.Request) {
	var body damperBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		clientError(w, err)
		return
	}
	h.engine.SetDamperPercent(body.DamperPercent)
	writeJSON(w, http.StatusOK, h.engine.Status())
}

type pidGainsBody struct {
	PIDGains [3]float64 `json:"pid_gains"`
}

func (h *handlers) setPIDGains(w http.ResponseWriter, r *http.Request) {
	var body pidGainsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		clientError(w, err)
		return
	}
	h.engine.SetPIDGains(body.PIDGains[0], body.PIDGains[1], body.PIDGains[2])
	writeJSON(w, http.StatusOK, h.engine.Status())
}

func (h *handlers) systemStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"probes":      h.engine.AllProbeStatus(),
		"performance": h.engine.PerformanceStats(),
		"limits":      h.engine.TemperatureLimits(),
		"servo":       h.engine.ServoDiagnostics(),
		"alerts":      h.engine.SafetyEvents(),
	})
}

type loadPresetBody struct {
	PresetName string `json:"preset_name"`
}

func (h *handlers) loadPreset(w http.ResponseWriter, r *http.Request) {
	var body loadPresetBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		clientError(w, err)
		return
	}
	if err := h.engine.LoadPIDPreset(body.PresetName); err != nil {
		clientError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.PIDTuningInfo())
}

type calibrateBody struct {
	ProbeName        string  `json:"probe_name"`
	ActualTemperature float64 `json:"actual_temperature"`
}

func (h *handlers) calibrateProbe(w http.ResponseWriter, r *http.Request) {
	var body calibrateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		clientError(w, err)
		return
	}
	if err := h.engine.CalibrateProbe(monitor.ProbeName(body.ProbeName), body.ActualTemperature); err != nil {
		clientError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Status())
}

func (h *handlers) resetSafety(w http.ResponseWriter, r *http.Request) {
	h.engine.ResetSafetyShutdown()
	writeJSON(w, http.StatusOK, h.engine.Status())
}
