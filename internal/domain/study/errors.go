package study

import "errors"

// Sentinel errors returned by the workflow core. Business-rule violations
// (invalid transition, already assigned, not assigned) are returned to the
// caller unretried; version conflicts are retried internally before
// ErrConcurrentModification surfaces.
var (
	ErrNotFound               = errors.New("study not found")
	ErrInvalidTransition      = errors.New("invalid workflow status transition")
	ErrAlreadyAssigned        = errors.New("study already assigned to this doctor")
	ErrNotAssigned            = errors.New("study not assigned to this doctor")
	ErrNoFilter               = errors.New("unrecognized date preset")
	ErrStorageTimeout         = errors.New("blob storage exceeded time bound")
	ErrConcurrentModification = errors.New("concurrent modification retries exhausted")
	ErrVersionConflict        = errors.New("stale study version")
	ErrUnknownStatus          = errors.New("unknown workflow status")
	ErrUnknownCategory        = errors.New("unknown category")
	ErrMissingExternalID      = errors.New("external study id is required")
)

// ErrorCode maps a core error to its stable code string for the transport
// layer. Unrecognized errors map to "internal" so no driver error leaks.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrAlreadyAssigned):
		return "already_assigned"
	case errors.Is(err, ErrNotAssigned):
		return "not_assigned"
	case errors.Is(err, ErrNoFilter):
		return "no_filter"
	case errors.Is(err, ErrStorageTimeout):
		return "storage_timeout"
	case errors.Is(err, ErrConcurrentModification):
		return "concurrent_modification"
	case errors.Is(err, ErrUnknownStatus):
		return "unknown_status"
	case errors.Is(err, ErrUnknownCategory):
		return "unknown_category"
	case errors.Is(err, ErrMissingExternalID):
		return "missing_external_id"
	default:
		return "internal"
	}
}
