package publish

import (
	"math"
	"time"

	"github.com/mhollis/netatmo-publisher/internal/models"
)

// lastSeenSuffix names the per-station freshness marker, updated on every
// successful fetch so external consumers can detect staleness.
const lastSeenSuffix = "lastUpdated"

// Publisher computes the write intentions for newly normalized measurements.
// It performs no I/O; the returned writes are applied by the caller.
type Publisher struct {
	epsilon float64
}

// New creates a Publisher. epsilon is the minimum numeric change that counts
// as a new value; zero means any difference is published.
func New(epsilon float64) *Publisher {
	if epsilon < 0 {
		epsilon = 0
	}
	return &Publisher{epsilon: epsilon}
}

// Key returns the state key for a station's measurement.
func Key(stationName string, kind models.MeasurementKind) string {
	return stationName + "." + string(kind)
}

// LastSeenKey returns the station's freshness-marker key.
func LastSeenKey(stationName string) string {
	return stationName + "." + lastSeenSuffix
}

// Keys lists every state key Publish may touch for the given measurements.
// The caller snapshots previous states for exactly these keys.
func Keys(stationName string, current []models.Measurement) []string {
	keys := make([]string, 0, len(current)+1)
	for _, m := range current {
		keys = append(keys, Key(stationName, m.Kind))
	}
	return append(keys, LastSeenKey(stationName))
}

// Publish diffs current measurements against the previous snapshot and
// returns one write per changed value plus the station's last-seen marker.
// Every write carries ack=true and the observation timestamp. An unchanged
// value (difference within epsilon) produces no measurement write.
func (p *Publisher) Publish(station models.StationDescriptor, current []models.Measurement, observedAt time.Time, previous map[string]models.PublishedState) []models.StateWrite {
	writes := make([]models.StateWrite, 0, len(current)+1)

	for _, m := range current {
		key := Key(station.DisplayName, m.Kind)
		if prev, ok := previous[key]; ok && !p.changed(prev.Value, m.Value) {
			continue
		}
		writes = append(writes, models.StateWrite{
			Key: key,
			State: models.PublishedState{
				Value:     m.Value,
				Ack:       true,
				Timestamp: m.ObservedAt,
			},
		})
	}

	// Freshness marker moves on every successful fetch, changed values or not.
	writes = append(writes, models.StateWrite{
		Key: LastSeenKey(station.DisplayName),
		State: models.PublishedState{
			Value:     float64(observedAt.Unix()),
			Ack:       true,
			Timestamp: observedAt,
		},
	})

	return writes
}

func (p *Publisher) changed(old, new float64) bool {
	if p.epsilon == 0 {
		return new != old
	}
	return math.Abs(new-old) > p.epsilon
}
