package incidents

import "errors"

// Domain errors for the incidents module.
var (
	ErrIncidentNotFound = errors.New("incident not found")
	ErrServiceNotFound  = errors.New("referenced service not found")
	ErrNoServices       = errors.New("incident must reference at least one service")
	ErrInvalidType      = errors.New("invalid incident type")
	ErrInvalidStatus    = errors.New("invalid status for incident type")
	ErrInvalidSeverity  = errors.New("invalid severity")
	ErrEmptyMessage     = errors.New("update message must not be empty")
)
