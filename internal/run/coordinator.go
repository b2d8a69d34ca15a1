package run

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mhollis/netatmo-publisher/internal/client"
	"github.com/mhollis/netatmo-publisher/internal/models"
	"github.com/mhollis/netatmo-publisher/internal/normalize"
	"github.com/mhollis/netatmo-publisher/internal/observability"
	"github.com/mhollis/netatmo-publisher/internal/publish"
	"github.com/mhollis/netatmo-publisher/internal/state"
	"github.com/mhollis/netatmo-publisher/internal/stationref"
)

// TokenSource supplies the shared provider credential for a run.
type TokenSource interface {
	Token(ctx context.Context) (models.Credential, error)
	Invalidate()
}

// Fetcher retrieves one station's raw snapshot.
type Fetcher interface {
	Fetch(ctx context.Context, desc models.StationDescriptor, cred models.Credential) (models.RawPayload, error)
}

// Config holds the per-run policy knobs.
type Config struct {
	// References is the free-form configuration text containing station
	// locators; re-parsed at the start of every run.
	References string
	Naming     stationref.NamingPolicy

	// MaxInFlight bounds concurrent station pipelines.
	MaxInFlight int
	// RatePerSec caps station fetch attempts against provider limits;
	// zero disables the limiter.
	RatePerSec float64
	// RetryDelay is the fixed wait before the single transient retry.
	RetryDelay time.Duration
	// Epsilon is the minimum value change that gets published.
	Epsilon float64
}

// Coordinator drives one acquisition cycle: token, fan-out fetches,
// normalization, and publishing. Station failures are isolated; the only
// retry decisions in the system live here.
type Coordinator struct {
	cfg       Config
	tokens    TokenSource
	fetcher   Fetcher
	store     state.Store
	publisher *publish.Publisher
	logger    *zap.Logger
	limiter   *rate.Limiter
	clock     func() time.Time

	mu   sync.Mutex
	last *models.RunReport
}

// New creates a Coordinator.
func New(cfg Config, tokens TokenSource, fetcher Fetcher, store state.Store, logger *zap.Logger) *Coordinator {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 4
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	return &Coordinator{
		cfg:       cfg,
		tokens:    tokens,
		fetcher:   fetcher,
		store:     store,
		publisher: publish.New(cfg.Epsilon),
		logger:    logger,
		limiter:   rate.NewLimiter(limit, 1),
		clock:     time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (c *Coordinator) SetClock(now func() time.Time) {
	c.clock = now
}

// LastReport returns the most recent run report, or nil before the first run.
func (c *Coordinator) LastReport() *models.RunReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// RunOnce executes one complete cycle across all configured stations. It
// never aborts on a subset of station failures and always produces a report;
// ctx cancellation abandons in-flight stations without partial writes.
func (c *Coordinator) RunOnce(ctx context.Context) models.RunReport {
	report := models.RunReport{
		RunID:     uuid.NewString(),
		StartedAt: c.clock(),
	}
	logger := c.logger.With(zap.String("run_id", report.RunID))

	stations := stationref.Parse(c.cfg.References, c.cfg.Naming)
	if len(stations) == 0 {
		logger.Warn("no valid station references in configuration")
		report.Diagnostics = append(report.Diagnostics, models.Diagnostic{
			Kind:    models.ErrorKindConfiguration,
			Message: "no valid station references found",
		})
		return c.finish(ctx, logger, report)
	}
	logger.Info("run started", zap.Int("stations", len(stations)))

	cred, authDiags := c.acquireToken(ctx)
	report.Diagnostics = append(report.Diagnostics, authDiags...)
	if len(authDiags) > 0 {
		logger.Error("token acquisition exhausted its retry budget; run disconnected")
		return c.finish(ctx, logger, report)
	}

	sem := make(chan struct{}, c.cfg.MaxInFlight)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, desc := range stations {
		wg.Add(1)
		go func(desc models.StationDescriptor) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			outcome, writes := c.runStation(ctx, logger, desc, cred)

			mu.Lock()
			report.Outcomes = append(report.Outcomes, outcome)
			report.Writes += writes
			if !outcome.Succeeded {
				report.Diagnostics = append(report.Diagnostics, models.Diagnostic{
					StationID: desc.StationID,
					Kind:      outcome.ErrorKind,
					Message:   outcome.Err.Error(),
				})
			}
			mu.Unlock()
		}(desc)
	}
	wg.Wait()

	return c.finish(ctx, logger, report)
}

// acquireToken obtains the shared credential with a one-retry budget. Every
// failed attempt becomes a diagnostics entry; an empty slice means success.
func (c *Coordinator) acquireToken(ctx context.Context) (models.Credential, []models.Diagnostic) {
	var diags []models.Diagnostic
	for attempt := 0; attempt < 2; attempt++ {
		cred, err := c.tokens.Token(ctx)
		if err == nil {
			return cred, nil
		}
		diags = append(diags, models.Diagnostic{
			Kind:    client.ClassifyError(err),
			Message: err.Error(),
		})
		if ctx.Err() != nil {
			break
		}
	}
	return models.Credential{}, diags
}

// runStation executes the fetch+normalize+publish pipeline for one station
// and returns its outcome plus the number of state writes applied.
func (c *Coordinator) runStation(ctx context.Context, logger *zap.Logger, desc models.StationDescriptor, cred models.Credential) (models.RunOutcome, int) {
	outcome := models.RunOutcome{StationID: desc.StationID, DisplayName: desc.DisplayName}

	payload, err := c.fetchWithRetry(ctx, logger, desc, cred)
	if err != nil {
		outcome.Err = err
		outcome.ErrorKind = client.ClassifyError(err)
		logger.Warn("station fetch failed",
			zap.String("station", desc.StationID),
			zap.String("kind", string(outcome.ErrorKind)),
			zap.Error(err))
		return outcome, 0
	}

	// Shutdown mid-run: abandon without partial writes for this station.
	if ctx.Err() != nil {
		outcome.Err = fmt.Errorf("run canceled before publish: %w", ctx.Err())
		outcome.ErrorKind = models.ErrorKindTransient
		return outcome, 0
	}

	observedAt := c.clock()
	measurements := normalize.Normalize(desc.StationID, payload, observedAt)
	if len(measurements) == 0 {
		logger.Info("station reachable but payload yielded no usable fields",
			zap.String("station", desc.StationID))
	}

	previous := c.snapshot(ctx, desc.DisplayName, measurements)
	writes := c.publisher.Publish(desc, measurements, observedAt, previous)

	applied := 0
	for _, w := range writes {
		if err := c.store.Write(ctx, w.Key, w.State); err != nil {
			logger.Error("state write failed", zap.String("key", w.Key), zap.Error(err))
			continue
		}
		observability.StateWritesTotal.Inc()
		applied++
	}

	outcome.Succeeded = true
	outcome.Measurements = len(measurements)
	logger.Debug("station published",
		zap.String("station", desc.StationID),
		zap.Int("measurements", len(measurements)),
		zap.Int("writes", applied))
	return outcome, applied
}

// fetchWithRetry performs the single fetch plus the one retry the failure
// kind allows: a forced credential refresh for auth failures, a fixed delay
// for transient ones, nothing for permanent ones.
func (c *Coordinator) fetchWithRetry(ctx context.Context, logger *zap.Logger, desc models.StationDescriptor, cred models.Credential) (models.RawPayload, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", client.ErrTransient, err)
	}
	payload, err := c.fetcher.Fetch(ctx, desc, cred)
	if err == nil {
		return payload, nil
	}

	switch client.ClassifyError(err) {
	case models.ErrorKindAuthentication:
		c.tokens.Invalidate()
		fresh, terr := c.tokens.Token(ctx)
		if terr != nil {
			return nil, fmt.Errorf("credential refresh after rejection: %w", terr)
		}
		cred = fresh
	case models.ErrorKindTransient:
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", client.ErrTransient, ctx.Err())
		case <-time.After(c.cfg.RetryDelay):
		}
	default:
		return nil, err
	}

	observability.StationRetriesTotal.Inc()
	logger.Debug("retrying station fetch", zap.String("station", desc.StationID))
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", client.ErrTransient, err)
	}
	return c.fetcher.Fetch(ctx, desc, cred)
}

// snapshot reads the previous states for the keys this station's publish may
// touch. Taken at publish time; no lock is held across the diff.
func (c *Coordinator) snapshot(ctx context.Context, stationName string, measurements []models.Measurement) map[string]models.PublishedState {
	previous := make(map[string]models.PublishedState)
	for _, key := range publish.Keys(stationName, measurements) {
		st, ok, err := c.store.Read(ctx, key)
		if err != nil || !ok {
			continue
		}
		previous[key] = st
	}
	return previous
}

// finish aggregates outcomes, records the connectivity indicator, and
// publishes run metrics. Connectivity is true iff at least one station
// succeeded, regardless of how many failed.
func (c *Coordinator) finish(ctx context.Context, logger *zap.Logger, report models.RunReport) models.RunReport {
	for _, o := range report.Outcomes {
		if o.Succeeded {
			report.Connected = true
			break
		}
	}
	report.FinishedAt = c.clock()

	connected := 0.0
	if report.Connected {
		connected = 1
	}
	// Connectivity is written even when the run context is gone, so consumers
	// see the drop; a background context bounds the write instead.
	writeCtx := ctx
	if writeCtx.Err() != nil {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := c.store.Write(writeCtx, state.ConnectionKey, models.PublishedState{
		Value:     connected,
		Ack:       true,
		Timestamp: report.FinishedAt,
	}); err != nil {
		logger.Error("connectivity write failed", zap.Error(err))
	}

	observability.RunsTotal.Inc()
	observability.ConnectedGauge.Set(connected)
	observability.RunDurationSeconds.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())

	logger.Info("run finished",
		zap.Bool("connected", report.Connected),
		zap.Int("stations", len(report.Outcomes)),
		zap.Int("writes", report.Writes),
		zap.Int("diagnostics", len(report.Diagnostics)),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)))

	c.mu.Lock()
	c.last = &report
	c.mu.Unlock()
	return report
}
