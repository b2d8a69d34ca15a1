package normalize

import (
	"encoding/json"
	"math"
	"time"

	"github.com/mhollis/netatmo-publisher/internal/models"
)

// fieldOrder fixes the emission order so downstream diffs are deterministic.
var fieldOrder = []string{
	"temperature",
	"humidity",
	"pressure",
	"rain",
	"rain_lastHour",
	"wind_strength",
	"gust_strength",
}

// fieldKinds is the total mapping from provider field name to measurement
// kind. "rain" and "rain_lastHour" are distinct accumulation windows and are
// never merged or derived from each other.
var fieldKinds = map[string]models.MeasurementKind{
	"temperature":   models.KindTemperature,
	"humidity":      models.KindHumidity,
	"pressure":      models.KindPressure,
	"rain":          models.KindRain,
	"rain_lastHour": models.KindRainLastHour,
	"wind_strength": models.KindWindStrength,
	"gust_strength": models.KindGustStrength,
}

// Normalize maps a raw station payload into the canonical measurement set.
// Fields absent, non-numeric, or non-finite are dropped, never coerced to
// zero; unknown fields are ignored. An empty result is valid and means the
// station was reachable but dataless.
func Normalize(stationID string, payload models.RawPayload, observedAt time.Time) []models.Measurement {
	out := make([]models.Measurement, 0, len(fieldOrder))
	for _, field := range fieldOrder {
		raw, ok := payload[field]
		if !ok {
			continue
		}
		value, ok := numericValue(raw)
		if !ok || math.IsNaN(value) || math.IsInf(value, 0) {
			continue
		}
		kind := fieldKinds[field]
		out = append(out, models.Measurement{
			StationID:  stationID,
			Kind:       kind,
			Value:      value,
			Unit:       kind.Unit(),
			ObservedAt: observedAt,
		})
	}
	return out
}

// numericValue extracts a float from the decoded JSON value. encoding/json
// yields float64 by default and json.Number when UseNumber is in effect.
func numericValue(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}
