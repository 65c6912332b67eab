package catalog

import "errors"

// Catalog errors.
var (
	ErrServiceNotFound     = errors.New("service not found")
	ErrServiceHasIncidents = errors.New("cannot delete a service with incidents, delete all incidents first")
	ErrInvalidStatus       = errors.New("invalid service status")
)
