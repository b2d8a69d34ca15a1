package models

import "time"

// ErrorKind is a stable label for failure classification in diagnostics and
// metrics.
type ErrorKind string

const (
	ErrorKindConfiguration  ErrorKind = "configuration"
	ErrorKindAuthentication ErrorKind = "authentication"
	ErrorKindTransient      ErrorKind = "transient"
	ErrorKindPermanent      ErrorKind = "permanent"
)

// RunOutcome records how one station fared during a run.
type RunOutcome struct {
	StationID    string
	DisplayName  string
	Succeeded    bool
	Measurements int
	ErrorKind    ErrorKind
	Err          error
}

// Diagnostic is one operator-visible failure entry. StationID is empty for
// run-level failures such as token acquisition.
type Diagnostic struct {
	StationID string
	Kind      ErrorKind
	Message   string
}

// RunReport summarizes one complete run. Connected is true iff at least one
// station succeeded; Writes counts measurement and last-seen state writes
// (the connectivity indicator is written separately).
type RunReport struct {
	RunID       string
	StartedAt   time.Time
	FinishedAt  time.Time
	Outcomes    []RunOutcome
	Connected   bool
	Writes      int
	Diagnostics []Diagnostic
}
