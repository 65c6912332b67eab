package catalog

import (
	"context"

	"github.com/bissquit/status-garden/internal/domain"
)

// Repository defines the interface for service storage.
type Repository interface {
	CreateService(ctx context.Context, service *domain.Service) error
	GetService(ctx context.Context, id string) (*domain.Service, error)
	ListServices(ctx context.Context) ([]domain.Service, error)
	UpdateService(ctx context.Context, service *domain.Service) error
	UpdateServiceStatus(ctx context.Context, id string, status domain.ServiceStatus) (*domain.Service, error)
	DeleteService(ctx context.Context, id string) error

	// CountIncidentsForService returns the number of incidents referencing
	// the service, used to guard deletion.
	CountIncidentsForService(ctx context.Context, serviceID string) (int, error)
}
