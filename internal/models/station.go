package models

import "time"

// StationDescriptor identifies one public weather station extracted from
// configuration. StationID is unique within a run; DisplayName is either a
// positional counter (station1, station2, ...) or the raw station id,
// depending on the configured naming policy.
type StationDescriptor struct {
	RawLocator  string
	StationID   string
	DisplayName string
}

// Credential is an access token for the weather-map API together with its
// expiry. Owned by the credential cache; never handed out past ExpiresAt.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// ValidAt reports whether the credential can still be used at the given time.
func (c Credential) ValidAt(now time.Time) bool {
	return c.Token != "" && now.Before(c.ExpiresAt)
}

// RawPayload is the decoded provider response for one station, keyed by
// provider field name. Values are whatever encoding/json produced.
type RawPayload map[string]any
