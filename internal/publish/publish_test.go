package publish

import (
	"testing"
	"time"

	"github.com/mhollis/netatmo-publisher/internal/models"
)

var (
	station = models.StationDescriptor{
		StationID:   "70:ee:50:3a:4c:14",
		DisplayName: "station1",
	}
	observedAt = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
)

func measurement(kind models.MeasurementKind, value float64) models.Measurement {
	return models.Measurement{
		StationID:  station.StationID,
		Kind:       kind,
		Value:      value,
		Unit:       kind.Unit(),
		ObservedAt: observedAt,
	}
}

func writeByKey(writes []models.StateWrite, key string) (models.StateWrite, bool) {
	for _, w := range writes {
		if w.Key == key {
			return w, true
		}
	}
	return models.StateWrite{}, false
}

func TestPublish_FirstValueAlwaysWritten(t *testing.T) {
	p := New(0)
	current := []models.Measurement{measurement(models.KindTemperature, 23.5)}

	writes := p.Publish(station, current, observedAt, map[string]models.PublishedState{})
	if len(writes) != 2 {
		t.Fatalf("Publish() emitted %d writes, want 2 (value + last-seen)", len(writes))
	}

	w, ok := writeByKey(writes, "station1.temperature")
	if !ok {
		t.Fatal("missing station1.temperature write")
	}
	if w.State.Value != 23.5 {
		t.Errorf("Value = %v, want 23.5", w.State.Value)
	}
	if !w.State.Ack {
		t.Error("measurement write must carry ack=true")
	}
	if !w.State.Timestamp.Equal(observedAt) {
		t.Errorf("Timestamp = %v, want %v", w.State.Timestamp, observedAt)
	}
}

func TestPublish_EqualValueSkipsWrite(t *testing.T) {
	p := New(0)
	current := []models.Measurement{measurement(models.KindTemperature, 23.5)}
	previous := map[string]models.PublishedState{
		"station1.temperature": {Value: 23.5, Ack: true, Timestamp: observedAt.Add(-15 * time.Minute)},
	}

	writes := p.Publish(station, current, observedAt, previous)
	if len(writes) != 1 {
		t.Fatalf("Publish() emitted %d writes, want only the last-seen marker", len(writes))
	}
	if writes[0].Key != "station1.lastUpdated" {
		t.Errorf("remaining write key = %q, want station1.lastUpdated", writes[0].Key)
	}
}

func TestPublish_LastSeenAlwaysEmitted(t *testing.T) {
	p := New(0)

	// Dataless station: reachable fetch, zero measurements.
	writes := p.Publish(station, nil, observedAt, map[string]models.PublishedState{})
	if len(writes) != 1 {
		t.Fatalf("Publish() emitted %d writes, want 1", len(writes))
	}
	w := writes[0]
	if w.Key != "station1.lastUpdated" {
		t.Errorf("Key = %q, want station1.lastUpdated", w.Key)
	}
	if w.State.Value != float64(observedAt.Unix()) {
		t.Errorf("Value = %v, want %v", w.State.Value, float64(observedAt.Unix()))
	}
	if !w.State.Ack {
		t.Error("last-seen write must carry ack=true")
	}
}

func TestPublish_OneWritePerChangedField(t *testing.T) {
	p := New(0)
	current := []models.Measurement{
		measurement(models.KindTemperature, 24.0), // changed
		measurement(models.KindHumidity, 60.0),    // unchanged
		measurement(models.KindRain, 0.4),         // changed
	}
	previous := map[string]models.PublishedState{
		"station1.temperature": {Value: 23.5, Ack: true},
		"station1.humidity":    {Value: 60.0, Ack: true},
		"station1.rain":        {Value: 0.2, Ack: true},
	}

	writes := p.Publish(station, current, observedAt, previous)
	if len(writes) != 3 {
		t.Fatalf("Publish() emitted %d writes, want 3 (2 changed + last-seen)", len(writes))
	}
	if _, ok := writeByKey(writes, "station1.humidity"); ok {
		t.Error("unchanged humidity produced a write")
	}
	if _, ok := writeByKey(writes, "station1.temperature"); !ok {
		t.Error("changed temperature produced no write")
	}
	if _, ok := writeByKey(writes, "station1.rain"); !ok {
		t.Error("changed rain produced no write")
	}
}

func TestPublish_EpsilonSuppressesSmallChanges(t *testing.T) {
	p := New(0.5)
	previous := map[string]models.PublishedState{
		"station1.temperature": {Value: 23.5, Ack: true},
	}

	small := []models.Measurement{measurement(models.KindTemperature, 23.8)}
	writes := p.Publish(station, small, observedAt, previous)
	if _, ok := writeByKey(writes, "station1.temperature"); ok {
		t.Error("change within epsilon produced a write")
	}

	large := []models.Measurement{measurement(models.KindTemperature, 24.5)}
	writes = p.Publish(station, large, observedAt, previous)
	if _, ok := writeByKey(writes, "station1.temperature"); !ok {
		t.Error("change beyond epsilon produced no write")
	}
}

func TestKeys_CoverMeasurementsAndLastSeen(t *testing.T) {
	current := []models.Measurement{
		measurement(models.KindTemperature, 23.5),
		measurement(models.KindRainLastHour, 1.1),
	}

	keys := Keys("station1", current)
	want := []string{"station1.temperature", "station1.rainLastHour", "station1.lastUpdated"}
	if len(keys) != len(want) {
		t.Fatalf("Keys() returned %d keys, want %d", len(keys), len(want))
	}
	for i, k := range want {
		if keys[i] != k {
			t.Errorf("Keys()[%d] = %q, want %q", i, keys[i], k)
		}
	}
}
