package normalize

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/mhollis/netatmo-publisher/internal/models"
)

var observedAt = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func kindsOf(ms []models.Measurement) map[models.MeasurementKind]float64 {
	out := make(map[models.MeasurementKind]float64, len(ms))
	for _, m := range ms {
		out[m.Kind] = m.Value
	}
	return out
}

func TestNormalize_TemperatureAndRain(t *testing.T) {
	payload := models.RawPayload{"temperature": 23.5, "rain": 0.2}

	got := Normalize("70:ee:50:3a:4c:14", payload, observedAt)
	if len(got) != 2 {
		t.Fatalf("Normalize() returned %d measurements, want 2", len(got))
	}

	byKind := kindsOf(got)
	if byKind[models.KindTemperature] != 23.5 {
		t.Errorf("temperature = %v, want 23.5", byKind[models.KindTemperature])
	}
	if byKind[models.KindRain] != 0.2 {
		t.Errorf("rain = %v, want 0.2", byKind[models.KindRain])
	}
	if _, present := byKind[models.KindRainLastHour]; present {
		t.Error("rainLastHour emitted without rain_lastHour field")
	}
}

func TestNormalize_RainLastHourIndependent(t *testing.T) {
	payload := models.RawPayload{"rain_lastHour": 1.4}

	got := Normalize("ab:cd", payload, observedAt)
	if len(got) != 1 {
		t.Fatalf("Normalize() returned %d measurements, want 1", len(got))
	}
	if got[0].Kind != models.KindRainLastHour {
		t.Errorf("Kind = %q, want %q", got[0].Kind, models.KindRainLastHour)
	}
	if got[0].Value != 1.4 {
		t.Errorf("Value = %v, want 1.4", got[0].Value)
	}
}

func TestNormalize_DropsUnusableFields(t *testing.T) {
	tests := []struct {
		name    string
		payload models.RawPayload
		want    int
	}{
		{"empty payload", models.RawPayload{}, 0},
		{"nil payload", nil, 0},
		{"string value dropped", models.RawPayload{"temperature": "23.5"}, 0},
		{"null value dropped", models.RawPayload{"humidity": nil}, 0},
		{"bool value dropped", models.RawPayload{"pressure": true}, 0},
		{"NaN dropped", models.RawPayload{"temperature": math.NaN()}, 0},
		{"Inf dropped", models.RawPayload{"wind_strength": math.Inf(1)}, 0},
		{"unknown fields ignored", models.RawPayload{"battery": 87.0, "firmware": 120.0}, 0},
		{"mixed usable and unusable", models.RawPayload{"temperature": 5.0, "humidity": "wet", "noise": 40.0}, 1},
		{"zero is a value, not absence", models.RawPayload{"rain": 0.0}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize("ab:cd", tt.payload, observedAt)
			if len(got) != tt.want {
				t.Errorf("Normalize() returned %d measurements, want %d", len(got), tt.want)
			}
		})
	}
}

func TestNormalize_FullPayload(t *testing.T) {
	payload := models.RawPayload{
		"temperature":   21.1,
		"humidity":      58.0,
		"pressure":      1017.3,
		"rain":          0.0,
		"rain_lastHour": 2.2,
		"wind_strength": 12.0,
		"gust_strength": 31.0,
	}

	got := Normalize("ab:cd", payload, observedAt)
	if len(got) != 7 {
		t.Fatalf("Normalize() returned %d measurements, want 7", len(got))
	}
	for _, m := range got {
		if m.StationID != "ab:cd" {
			t.Errorf("StationID = %q, want ab:cd", m.StationID)
		}
		if !m.ObservedAt.Equal(observedAt) {
			t.Errorf("ObservedAt = %v, want %v", m.ObservedAt, observedAt)
		}
		if m.Unit == "" {
			t.Errorf("measurement %q has empty unit", m.Kind)
		}
	}
}

func TestNormalize_JSONNumberValues(t *testing.T) {
	payload := models.RawPayload{
		"temperature": json.Number("19.5"),
		"humidity":    json.Number("not-a-number"),
	}

	got := Normalize("ab:cd", payload, observedAt)
	if len(got) != 1 {
		t.Fatalf("Normalize() returned %d measurements, want 1", len(got))
	}
	if got[0].Kind != models.KindTemperature || got[0].Value != 19.5 {
		t.Errorf("measurement = %+v, want temperature 19.5", got[0])
	}
}
