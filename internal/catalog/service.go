// Package catalog provides business logic and HTTP handlers for managing
// services on the status page.
package catalog

import (
	"context"
	"fmt"

	"github.com/bissquit/status-garden/internal/domain"
)

// Broadcast event names.
const (
	EventServiceCreated       = "service:created"
	EventServiceUpdated       = "service:updated"
	EventServiceDeleted       = "service:deleted"
	EventServiceStatusChanged = "serviceStatusChanged"
)

// EventPublisher delivers best-effort notifications to live clients after
// a committed write. Implemented by the realtime hub; may be nil.
type EventPublisher interface {
	Broadcast(event string, payload any)
	BroadcastService(serviceID, event string, payload any)
}

// Service implements catalog business logic. All service writes pass
// through it so that every committed mutation is broadcast exactly once.
type Service struct {
	repo      Repository
	publisher EventPublisher
}

// NewService creates a new catalog service. publisher may be nil, in which
// case mutations are not broadcast.
func NewService(repo Repository, publisher EventPublisher) *Service {
	return &Service{repo: repo, publisher: publisher}
}

// CreateServiceInput holds data for creating a service.
type CreateServiceInput struct {
	Name        string
	Description string
	Status      domain.ServiceStatus
	TeamID      *string
}

// UpdateServiceInput holds data for a partial service update. Nil fields
// keep their prior values.
type UpdateServiceInput struct {
	Name        *string
	Description *string
	Status      *domain.ServiceStatus
	TeamID      *string
}

// CreateService creates a new service.
func (s *Service) CreateService(ctx context.Context, input CreateServiceInput) (*domain.Service, error) {
	status := input.Status
	if status == "" {
		status = domain.ServiceStatusOperational
	}
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}

	service := &domain.Service{
		Name:        input.Name,
		Description: input.Description,
		Status:      status,
		TeamID:      input.TeamID,
	}
	if err := s.repo.CreateService(ctx, service); err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}

	s.broadcast(EventServiceCreated, service)
	return service, nil
}

// GetService retrieves a service by ID.
func (s *Service) GetService(ctx context.Context, id string) (*domain.Service, error) {
	return s.repo.GetService(ctx, id)
}

// ListServices retrieves all services.
func (s *Service) ListServices(ctx context.Context) ([]domain.Service, error) {
	return s.repo.ListServices(ctx)
}

// UpdateService applies a partial update to a service.
func (s *Service) UpdateService(ctx context.Context, id string, input UpdateServiceInput) (*domain.Service, error) {
	service, err := s.repo.GetService(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		service.Name = *input.Name
	}
	if input.Description != nil {
		service.Description = *input.Description
	}
	if input.TeamID != nil {
		service.TeamID = input.TeamID
	}
	statusChanged := false
	if input.Status != nil && *input.Status != service.Status {
		if !input.Status.IsValid() {
			return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, *input.Status)
		}
		service.Status = *input.Status
		statusChanged = true
	}

	if err := s.repo.UpdateService(ctx, service); err != nil {
		return nil, fmt.Errorf("update service: %w", err)
	}

	s.broadcast(EventServiceUpdated, service)
	if statusChanged {
		s.broadcastStatusChange(service)
	}
	return service, nil
}

// SetServiceStatus persists a new status for the service. It is the single
// mutation entry point shared by the HTTP handler and the WebSocket
// updateServiceStatus message.
func (s *Service) SetServiceStatus(ctx context.Context, id string, status domain.ServiceStatus) (*domain.Service, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}

	service, err := s.repo.UpdateServiceStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}

	s.broadcast(EventServiceUpdated, service)
	s.broadcastStatusChange(service)
	return service, nil
}

// DeleteService deletes a service. Deletion is blocked while any incident
// references the service.
func (s *Service) DeleteService(ctx context.Context, id string) error {
	if _, err := s.repo.GetService(ctx, id); err != nil {
		return err
	}

	count, err := s.repo.CountIncidentsForService(ctx, id)
	if err != nil {
		return fmt.Errorf("count incidents: %w", err)
	}
	if count > 0 {
		return ErrServiceHasIncidents
	}

	if err := s.repo.DeleteService(ctx, id); err != nil {
		return fmt.Errorf("delete service: %w", err)
	}

	s.broadcast(EventServiceDeleted, map[string]string{"id": id})
	return nil
}

func (s *Service) broadcast(event string, payload any) {
	if s.publisher == nil {
		return
	}
	s.publisher.Broadcast(event, payload)
}

// broadcastStatusChange notifies clients that joined the service's room.
func (s *Service) broadcastStatusChange(service *domain.Service) {
	if s.publisher == nil {
		return
	}
	s.publisher.BroadcastService(service.ID, EventServiceStatusChanged, map[string]any{
		"service_id": service.ID,
		"status":     service.Status,
		"updated_at": service.UpdatedAt,
	})
}
