package models

import "errors"

var (
	// ErrAuth means the automation credential was rejected; retrying is pointless until it is replaced
	ErrAuth = errors.New("automation credential rejected")
	// ErrNoCredential means the account has no automation credential on file
	ErrNoCredential = errors.New("no automation credential for account")
	// ErrProviderRateLimited is the automation provider's own throttling, not our daily quota
	ErrProviderRateLimited = errors.New("automation provider rate limited")
	// ErrWorkflow means the remote workflow failed or did not complete in time
	ErrWorkflow = errors.New("workflow failed")
	// ErrConfiguration means a required setting is missing
	ErrConfiguration = errors.New("missing configuration")
	// ErrValidation means the input was rejected before any external call
	ErrValidation = errors.New("invalid input")
	// ErrQuotaExhausted means the daily cap for the action type has been reached
	ErrQuotaExhausted = errors.New("daily quota exhausted")
	// ErrNotFound means the requested entity does not exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidState means the entity is not in a state that allows the action
	ErrInvalidState = errors.New("invalid state for action")
)

// IsRetryable reports whether a failed unit of work should simply be picked up on the next tick
func IsRetryable(err error) bool {
	return errors.Is(err, ErrWorkflow) || errors.Is(err, ErrProviderRateLimited)
}

// IsSkip reports whether a unit of work was deliberately not performed rather than failed
func IsSkip(err error) bool {
	return errors.Is(err, ErrQuotaExhausted) || errors.Is(err, ErrConfiguration)
}
