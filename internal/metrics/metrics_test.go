package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		healthy  func() bool
		wantCode int
		wantBody string
	}{
		{"no check", nil, http.StatusOK, "OK"},
		{"healthy", func() bool { return true }, http.StatusOK, "OK"},
		{"stale", func() bool { return false }, http.StatusServiceUnavailable, "STALE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer("127.0.0.1:0", tt.healthy, zerolog.Nop())
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestMetricsEndpointExposesGauges(t *testing.T) {
	BatteryVoltage.Set(3.71)

	s := NewServer("127.0.0.1:0", nil, zerolog.Nop())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "pioverlay_battery_voltage_volts 3.71") {
		t.Error("battery voltage gauge missing from /metrics output")
	}
}
