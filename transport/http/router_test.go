package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/eggbot-project/pitctl/eggbot"
)

func newTestRouter(t *testing.T) *eggbot.Engine {
	t.Helper()
	cfg := eggbot.DefaultConfig()
	cfg.ADC.Simulate = true
	cfg.Servo.Simulate = true
	cfg.LogsDir = t.TempDir()
	e, err := eggbot.New(cfg, nil, nil)
	if err != nil {
		t.Fatalf("unexpected engine construction error: %v", err)
	}
	return e
}

func TestHealthEndpoint(t *testing.T) {
	e := newTestRouter(t)
	r := NewRouter(e)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %v", body["status"])
	}
}

func TestSetSetpointEndpoint(t *testing.T) {
	e := newTestRouter(t)
	r := NewRouter(e)

	payload, _ := json.Marshal(setpointBody{SetpointC: 150})
	req := httptest.NewRequest(http.MethodPost, "/setpoint", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := e.Setpoint(); got != 150 {
		t.Fatalf("expected setpoint 150, got %v", got)
	}
}

func TestSetSetpointRejectsOutOfRange(t *testing.T) {
	e := newTestRouter(t)
	r := NewRouter(e)

	payload, _ := json.Marshal(setpointBody{SetpointC: 9000})
	req := httptest.NewRequest(http.MethodPost, "/setpoint", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestDamperEndpointSwitchesManual(t *testing.T) {
	e := newTestRouter(t)
	e.SetControlMode(eggbot.ModeAutomatic)
	r := NewRouter(e)

	payload, _ := json.Marshal(damperBody{DamperPercent: 75})
	req := httptest.NewRequest(http.MethodPost, "/damper", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if e.ControlMode() != eggbot.ModeManual {
		t.Fatalf("expected manual mode after damper command")
	}
}

func TestSafetyResetEndpoint(t *testing.T) {
	e := newTestRouter(t)
	r := NewRouter(e)

	req := httptest.NewRequest(http.MethodPost, "/pi/safety/reset", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestCORSHeaderAppliedWhenOriginAllowed(t *testing.T) {
	t.Setenv("CORS_ORIGINS", "http://example.com")
	e := newTestRouter(t)
	r := NewRouter(e)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected CORS header for allowed origin, got %q", got)
	}
}

func TestTelemetryEndpoint(t *testing.T) {
	e := newTestRouter(t)
	r := NewRouter(e)

	req := httptest.NewRequest(http.MethodGet, "/telemetry", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
