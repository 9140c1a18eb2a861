package leads

import "errors"

var (
	// ErrLeadNotFound is returned when a lead is not found
	ErrLeadNotFound = errors.New("lead not found")

	// ErrInvalidLeadID is returned for zero or negative CRM lead ids
	ErrInvalidLeadID = errors.New("leads: lead id must be positive")

	// ErrStagesNotConfigured is returned when a move is requested without pipeline stage ids
	ErrStagesNotConfigured = errors.New("leads: pipeline stages not configured")
)
