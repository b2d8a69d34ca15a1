package client

import (
	"context"
	"errors"

	"github.com/mhollis/netatmo-publisher/internal/models"
)

// Sentinel errors for provider failures. The run coordinator decides retries
// from these; nothing in this package retries.
var (
	// ErrAuthentication covers token-exchange failures and 401/403 station
	// responses. The caller should invalidate the cached credential.
	ErrAuthentication = errors.New("authentication failed")
	// ErrTransient covers timeouts, transport failures and 5xx responses.
	// Eligible for a single retry at the coordinator level.
	ErrTransient = errors.New("transient provider failure")
	// ErrPermanent covers non-auth 4xx responses and unparseable bodies.
	// Not retried within a run.
	ErrPermanent = errors.New("permanent provider failure")
)

// ClassifyError maps a provider error to a stable kind for diagnostics and
// metric labels.
func ClassifyError(err error) models.ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthentication):
		return models.ErrorKindAuthentication
	case errors.Is(err, ErrPermanent):
		return models.ErrorKindPermanent
	case errors.Is(err, ErrTransient),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return models.ErrorKindTransient
	}
	return models.ErrorKindTransient
}
