package incidents

import (
	"context"

	"github.com/bissquit/status-garden/internal/domain"
	"github.com/jackc/pgx/v5"
)

// Repository defines the interface for incident storage.
type Repository interface {
	GetIncident(ctx context.Context, id string) (*domain.Incident, error)
	ListIncidents(ctx context.Context, filters IncidentFilters) ([]*domain.Incident, error)
	ListUpdates(ctx context.Context, incidentID string) ([]*domain.IncidentUpdate, error)

	// Transaction support
	BeginTx(ctx context.Context) (pgx.Tx, error)
	CreateIncidentTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident) error
	UpdateIncidentTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident) error
	DeleteIncidentTx(ctx context.Context, tx pgx.Tx, id string) error
	AssociateServicesTx(ctx context.Context, tx pgx.Tx, incidentID string, serviceIDs []string) error
	ReplaceServicesTx(ctx context.Context, tx pgx.Tx, incidentID string, serviceIDs []string) error
	CreateUpdateTx(ctx context.Context, tx pgx.Tx, update *domain.IncidentUpdate) error
	DeleteUpdatesTx(ctx context.Context, tx pgx.Tx, incidentID string) error
}

// IncidentFilters holds filter options for listing incidents.
type IncidentFilters struct {
	Type       *domain.IncidentType
	Status     *domain.IncidentStatus
	ServiceID  *string
	ActiveOnly bool
}
