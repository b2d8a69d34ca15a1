package stationref

import (
	"fmt"
	"net/url"
	"regexp"

	"github.com/mhollis/netatmo-publisher/internal/models"
)

// NamingPolicy selects how station display names are derived.
type NamingPolicy string

const (
	// NamingCounter names stations station1, station2, ... in first-seen order.
	NamingCounter NamingPolicy = "counter"
	// NamingID uses the raw station id as the display name.
	NamingID NamingPolicy = "id"
)

// stationParam is the query parameter carrying the station id in weather-map
// links.
const stationParam = "station"

// locatorPattern matches weather-map links embedded in free configuration
// text. The query part is permissive; candidates without a station parameter
// are dropped later.
var locatorPattern = regexp.MustCompile(`https://weathermap\.netatmo\.com/[^\s"'<>]*`)

// ParsePolicy validates a configured naming policy string.
func ParsePolicy(s string) (NamingPolicy, error) {
	switch NamingPolicy(s) {
	case NamingCounter, NamingID:
		return NamingPolicy(s), nil
	}
	return "", fmt.Errorf("naming policy must be %q or %q, got %q", NamingCounter, NamingID, s)
}

// Parse extracts station descriptors from free-form configuration text.
// Locators are matched in order, deduplicated by station id (first occurrence
// wins), and candidates whose query lacks a station parameter are skipped.
// An empty result is not an error; the caller decides how to report it.
func Parse(text string, policy NamingPolicy) []models.StationDescriptor {
	var out []models.StationDescriptor
	seen := make(map[string]struct{})

	for _, loc := range locatorPattern.FindAllString(text, -1) {
		id := stationID(loc)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		name := id
		if policy == NamingCounter {
			name = fmt.Sprintf("station%d", len(out)+1)
		}
		out = append(out, models.StationDescriptor{
			RawLocator:  loc,
			StationID:   id,
			DisplayName: name,
		})
	}
	return out
}

// stationID returns the percent-decoded station id from a locator, or ""
// when the locator has no usable station parameter.
func stationID(locator string) string {
	u, err := url.Parse(locator)
	if err != nil {
		return ""
	}
	values, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return ""
	}
	return values.Get(stationParam)
}
