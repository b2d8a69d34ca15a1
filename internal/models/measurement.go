package models

import "time"

// MeasurementKind is the closed set of measurements the provider exposes.
// The string value doubles as the state-key suffix.
type MeasurementKind string

const (
	KindTemperature  MeasurementKind = "temperature"
	KindHumidity     MeasurementKind = "humidity"
	KindPressure     MeasurementKind = "pressure"
	KindRain         MeasurementKind = "rain"
	KindRainLastHour MeasurementKind = "rainLastHour"
	KindWindStrength MeasurementKind = "windStrength"
	KindGustStrength MeasurementKind = "gustStrength"
)

// Unit returns the provider unit for the kind.
func (k MeasurementKind) Unit() string {
	switch k {
	case KindTemperature:
		return "°C"
	case KindHumidity:
		return "%"
	case KindPressure:
		return "mbar"
	case KindRain, KindRainLastHour:
		return "mm"
	case KindWindStrength, KindGustStrength:
		return "km/h"
	}
	return ""
}

// Measurement is one normalized value for one station. Value is always finite;
// absent or non-numeric provider fields never become measurements.
type Measurement struct {
	StationID  string
	Kind       MeasurementKind
	Value      float64
	Unit       string
	ObservedAt time.Time
}

// PublishedState is the last value written for a state key, retained for
// diffing. Ack marks the value as confirmed sensor-sourced data.
type PublishedState struct {
	Value     float64   `json:"value"`
	Ack       bool      `json:"ack"`
	Timestamp time.Time `json:"timestamp"`
}

// StateWrite is one intended write to the host state store.
type StateWrite struct {
	Key   string
	State PublishedState
}
