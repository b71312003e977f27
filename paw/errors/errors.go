package errors

import "fmt"

// ConfigurationError indicates no gateway could be resolved for a payer.
// Gateways are auto-created on first reference, so this is reserved for
// registry misconfiguration.
type ConfigurationError struct {
	Err   error
	Payer string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("no gateway resolvable for payer %s: %s", e.Payer, e.Err)
}

// NoStrategyError indicates a case with no chosen payer sequence.
type NoStrategyError struct {
	CaseID string
}

func (e *NoStrategyError) Error() string {
	return fmt.Sprintf("case %s has no payer strategy selected", e.CaseID)
}

// NoReferenceError indicates a status check was attempted for a payer that
// has no prior submission reference.
type NoReferenceError struct {
	CaseID string
	Payer  string
}

func (e *NoReferenceError) Error() string {
	return fmt.Sprintf("no submission reference for payer %s on case %s", e.Payer, e.CaseID)
}

// NoOptionsError indicates the recovery planner produced zero options,
// which points at a gap in the option catalog.
type NoOptionsError struct {
	CaseID     string
	DenialType string
}

func (e *NoOptionsError) Error() string {
	return fmt.Sprintf("no recovery options generated for case %s denial type %s", e.CaseID, e.DenialType)
}

// UpstreamError indicates a payer or generation service rejected the request
// or answered with an unexpected status. These are not retried.
type UpstreamError struct {
	Err         error
	Destination string
	StatusCode  int // 400, 422, etc
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s returned status %d: %s", e.Destination, e.StatusCode, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// NetworkError indicates the transport failed after exhausting retries.
type NetworkError struct {
	Err         error
	Destination string
	Attempts    int
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("request to %s failed after %d attempts: %s", e.Destination, e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }
