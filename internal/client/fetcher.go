package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/mhollis/netatmo-publisher/internal/models"
	"github.com/mhollis/netatmo-publisher/internal/observability"
)

// DefaultMeasureURL is the public weather-map snapshot endpoint.
const DefaultMeasureURL = "https://app.netatmo.net/api/getpublicmeasure"

// StationFetcher retrieves the raw snapshot for one station. A single call
// performs exactly one bounded-timeout request; retry policy lives in the run
// coordinator so attempt counting stays observable.
type StationFetcher struct {
	measureURL string
	timeout    time.Duration
	client     *http.Client
	circuit    *gobreaker.CircuitBreaker
}

// NewStationFetcher creates a fetcher for the given snapshot endpoint. The
// circuit breaker trips after repeated consecutive failures so a dead
// provider is not hammered once per station.
func NewStationFetcher(measureURL string, timeout time.Duration) (*StationFetcher, error) {
	if measureURL == "" {
		measureURL = DefaultMeasureURL
	}
	if _, err := url.Parse(measureURL); err != nil {
		return nil, fmt.Errorf("invalid measure URL: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "weathermap",
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &StationFetcher{
		measureURL: measureURL,
		timeout:    timeout,
		client:     &http.Client{Timeout: timeout},
		circuit:    cb,
	}, nil
}

// Fetch performs one snapshot request for the station and classifies the
// outcome: payload on 2xx, ErrAuthentication on 401/403, ErrTransient on 5xx
// and transport failures, ErrPermanent on other 4xx or an unparseable body.
func (f *StationFetcher) Fetch(ctx context.Context, desc models.StationDescriptor, cred models.Credential) (models.RawPayload, error) {
	start := time.Now()
	payload, err := f.fetch(ctx, desc, cred)
	status := "success"
	if err != nil {
		status = string(ClassifyError(err))
	}
	observability.StationFetchesTotal.WithLabelValues(status).Inc()
	observability.StationFetchDurationSeconds.WithLabelValues(status).Observe(time.Since(start).Seconds())
	return payload, err
}

func (f *StationFetcher) fetch(ctx context.Context, desc models.StationDescriptor, cred models.Credential) (models.RawPayload, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := f.buildRequest(reqCtx, desc, cred)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrPermanent, err)
	}

	result, err := f.circuit.Execute(func() (any, error) {
		resp, err := f.client.Do(req)
		if err != nil {
			return nil, err
		}
		// 5xx counts as a breaker failure so a dead provider opens the
		// circuit. Auth and client errors are provider verdicts, not outages.
		if resp.StatusCode >= 500 {
			serr := classifyStatus(resp.StatusCode)
			resp.Body.Close()
			return nil, serr
		}
		return resp, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return nil, fmt.Errorf("%w: circuit open for %s", ErrTransient, desc.StationID)
		case errors.Is(err, ErrTransient):
			return nil, err
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			return nil, fmt.Errorf("%w: request timeout: %v", ErrTransient, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrTransient, err)
		}
	}
	resp := result.(*http.Response)
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response body: %v", ErrTransient, err)
	}

	return decodePayload(body)
}

func (f *StationFetcher) buildRequest(ctx context.Context, desc models.StationDescriptor, cred models.Credential) (*http.Request, error) {
	base, err := url.Parse(f.measureURL)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("station_id", desc.StationID)
	params.Set("access_token", cred.Token)
	base.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func classifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrAuthentication, code)
	case code >= 500:
		return fmt.Errorf("%w: HTTP %d", ErrTransient, code)
	case code >= 400:
		return fmt.Errorf("%w: HTTP %d", ErrPermanent, code)
	}
	return fmt.Errorf("%w: HTTP %d", ErrTransient, code)
}

// decodePayload decodes the snapshot body. The provider sometimes nests the
// measurement fields under a "body" object; either shape yields the flat
// field map.
func decodePayload(body []byte) (models.RawPayload, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", ErrPermanent, err)
	}
	if nested, ok := raw["body"].(map[string]any); ok {
		return models.RawPayload(nested), nil
	}
	return models.RawPayload(raw), nil
}
