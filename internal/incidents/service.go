// Package incidents provides business logic and HTTP handlers for incidents
// and maintenance windows on the status page.
package incidents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bissquit/status-garden/internal/catalog"
	"github.com/bissquit/status-garden/internal/domain"
	"github.com/jackc/pgx/v5"
)

// Broadcast event names.
const (
	EventIncidentCreated       = "incident:created"
	EventIncidentUpdated       = "incident:updated"
	EventIncidentDeleted       = "incident:deleted"
	EventIncidentUpdateCreated = "incident-update:created"
)

// EventPublisher delivers best-effort notifications to live clients after
// a committed write. Implemented by the realtime hub; may be nil.
type EventPublisher interface {
	Broadcast(event string, payload any)
	BroadcastIncident(incidentID, event string, payload any)
}

// ServiceChecker verifies that referenced services exist. Implemented by
// the catalog service.
type ServiceChecker interface {
	GetService(ctx context.Context, id string) (*domain.Service, error)
}

// Service implements incident business logic.
type Service struct {
	repo      Repository
	catalog   ServiceChecker
	publisher EventPublisher
}

// NewService creates a new incident service. publisher may be nil, in which
// case mutations are not broadcast.
func NewService(repo Repository, catalog ServiceChecker, publisher EventPublisher) *Service {
	return &Service{
		repo:      repo,
		catalog:   catalog,
		publisher: publisher,
	}
}

// CreateIncidentInput holds data for creating an incident.
type CreateIncidentInput struct {
	Title       string
	Description string
	Type        domain.IncidentType
	Status      domain.IncidentStatus
	Severity    *domain.Severity
	ServiceIDs  []string
}

// UpdateIncidentInput holds data for a partial incident update. Nil fields
// keep their prior values. Message, when set, is attached to the update
// entry appended for this change.
type UpdateIncidentInput struct {
	Title       *string
	Description *string
	Status      *domain.IncidentStatus
	Severity    *domain.Severity
	ServiceIDs  []string
	Message     *string
}

// CreateIncident creates an incident together with its initial update entry
// in a single transaction.
func (s *Service) CreateIncident(ctx context.Context, input CreateIncidentInput) (*domain.Incident, error) {
	if !input.Type.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidType, input.Type)
	}

	status := input.Status
	if status == "" {
		status = initialStatus(input.Type)
	}
	if !status.IsValidForType(input.Type) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}

	if input.Severity != nil && !input.Severity.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSeverity, *input.Severity)
	}

	if len(input.ServiceIDs) == 0 {
		return nil, ErrNoServices
	}
	if err := s.checkServicesExist(ctx, input.ServiceIDs); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	incident := &domain.Incident{
		Title:       input.Title,
		Description: input.Description,
		Type:        input.Type,
		Status:      status,
		Severity:    input.Severity,
		ServiceIDs:  dedupe(input.ServiceIDs),
	}
	if status.IsTerminalFor(input.Type) {
		incident.ResolvedAt = &now
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	if err := s.repo.CreateIncidentTx(ctx, tx, incident); err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}

	if err := s.repo.AssociateServicesTx(ctx, tx, incident.ID, incident.ServiceIDs); err != nil {
		return nil, fmt.Errorf("associate services: %w", err)
	}

	initial := &domain.IncidentUpdate{
		IncidentID: incident.ID,
		Status:     incident.Status,
		Message:    initialMessage(incident),
	}
	if err := s.repo.CreateUpdateTx(ctx, tx, initial); err != nil {
		return nil, fmt.Errorf("create initial update: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	incident.Updates = []*domain.IncidentUpdate{initial}
	s.broadcast(EventIncidentCreated, incident)
	return incident, nil
}

// UpdateIncident applies a partial update. A status change keeps ResolvedAt
// in sync and appends an update entry; a supplied message appends one even
// without a status change.
func (s *Service) UpdateIncident(ctx context.Context, id string, input UpdateIncidentInput) (*domain.Incident, error) {
	incident, err := s.repo.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		incident.Title = *input.Title
	}
	if input.Description != nil {
		incident.Description = *input.Description
	}
	if input.Severity != nil {
		if !input.Severity.IsValid() {
			return nil, fmt.Errorf("%w: %s", ErrInvalidSeverity, *input.Severity)
		}
		incident.Severity = input.Severity
	}

	statusChanged := false
	if input.Status != nil {
		if !input.Status.IsValidForType(incident.Type) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, *input.Status)
		}
		statusChanged = incident.ApplyStatus(*input.Status, time.Now().UTC())
	}

	if input.ServiceIDs != nil {
		if len(input.ServiceIDs) == 0 {
			return nil, ErrNoServices
		}
		if err := s.checkServicesExist(ctx, input.ServiceIDs); err != nil {
			return nil, err
		}
		incident.ServiceIDs = dedupe(input.ServiceIDs)
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	if err := s.repo.UpdateIncidentTx(ctx, tx, incident); err != nil {
		return nil, fmt.Errorf("update incident: %w", err)
	}

	if input.ServiceIDs != nil {
		if err := s.repo.ReplaceServicesTx(ctx, tx, incident.ID, incident.ServiceIDs); err != nil {
			return nil, fmt.Errorf("replace services: %w", err)
		}
	}

	var update *domain.IncidentUpdate
	if statusChanged || input.Message != nil {
		message := fmt.Sprintf("Status changed to %s", incident.Status)
		if input.Message != nil && strings.TrimSpace(*input.Message) != "" {
			message = *input.Message
		}
		update = &domain.IncidentUpdate{
			IncidentID: incident.ID,
			Status:     incident.Status,
			Message:    message,
		}
		if err := s.repo.CreateUpdateTx(ctx, tx, update); err != nil {
			return nil, fmt.Errorf("create update: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	s.broadcast(EventIncidentUpdated, incident)
	s.broadcastToIncident(incident.ID, EventIncidentUpdated, incident)
	if update != nil {
		s.broadcast(EventIncidentUpdateCreated, update)
		s.broadcastToIncident(incident.ID, EventIncidentUpdateCreated, update)
	}
	return incident, nil
}

// AddUpdate appends an update entry to an incident. A supplied status that
// differs from the incident's current status also moves the incident.
func (s *Service) AddUpdate(ctx context.Context, incidentID, message string, status *domain.IncidentStatus) (*domain.IncidentUpdate, error) {
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}

	incident, err := s.repo.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}

	statusChanged := false
	if status != nil {
		if !status.IsValidForType(incident.Type) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, *status)
		}
		statusChanged = incident.ApplyStatus(*status, time.Now().UTC())
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	if statusChanged {
		if err := s.repo.UpdateIncidentTx(ctx, tx, incident); err != nil {
			return nil, fmt.Errorf("update incident: %w", err)
		}
	}

	update := &domain.IncidentUpdate{
		IncidentID: incident.ID,
		Status:     incident.Status,
		Message:    message,
	}
	if err := s.repo.CreateUpdateTx(ctx, tx, update); err != nil {
		return nil, fmt.Errorf("create update: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	s.broadcast(EventIncidentUpdateCreated, update)
	s.broadcastToIncident(incident.ID, EventIncidentUpdateCreated, update)
	if statusChanged {
		s.broadcast(EventIncidentUpdated, incident)
		s.broadcastToIncident(incident.ID, EventIncidentUpdated, incident)
	}
	return update, nil
}

// DeleteIncident deletes an incident and its update entries in a single
// transaction so no orphaned updates remain.
func (s *Service) DeleteIncident(ctx context.Context, id string) error {
	if _, err := s.repo.GetIncident(ctx, id); err != nil {
		return err
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	if err := s.repo.DeleteUpdatesTx(ctx, tx, id); err != nil {
		return fmt.Errorf("delete updates: %w", err)
	}
	if err := s.repo.DeleteIncidentTx(ctx, tx, id); err != nil {
		return fmt.Errorf("delete incident: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.broadcast(EventIncidentDeleted, map[string]string{"id": id})
	return nil
}

// GetIncident retrieves an incident with its updates, newest first.
func (s *Service) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	incident, err := s.repo.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}

	updates, err := s.repo.ListUpdates(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list updates: %w", err)
	}
	incident.Updates = updates
	return incident, nil
}

// ListIncidents retrieves incidents matching the filters, optionally with
// their updates embedded.
func (s *Service) ListIncidents(ctx context.Context, filters IncidentFilters, includeUpdates bool) ([]*domain.Incident, error) {
	incidents, err := s.repo.ListIncidents(ctx, filters)
	if err != nil {
		return nil, err
	}

	if includeUpdates {
		for _, incident := range incidents {
			updates, err := s.repo.ListUpdates(ctx, incident.ID)
			if err != nil {
				return nil, fmt.Errorf("list updates for %s: %w", incident.ID, err)
			}
			incident.Updates = updates
		}
	}
	return incidents, nil
}

// ListUpdates retrieves the update entries of an incident, newest first.
func (s *Service) ListUpdates(ctx context.Context, incidentID string) ([]*domain.IncidentUpdate, error) {
	if _, err := s.repo.GetIncident(ctx, incidentID); err != nil {
		return nil, err
	}
	return s.repo.ListUpdates(ctx, incidentID)
}

// ListActiveIncidents retrieves incidents that have not reached their
// terminal status.
func (s *Service) ListActiveIncidents(ctx context.Context) ([]*domain.Incident, error) {
	return s.repo.ListIncidents(ctx, IncidentFilters{ActiveOnly: true})
}

func (s *Service) checkServicesExist(ctx context.Context, serviceIDs []string) error {
	for _, id := range serviceIDs {
		if _, err := s.catalog.GetService(ctx, id); err != nil {
			if errors.Is(err, catalog.ErrServiceNotFound) {
				return fmt.Errorf("%w: %s", ErrServiceNotFound, id)
			}
			return fmt.Errorf("check service %s: %w", id, err)
		}
	}
	return nil
}

func (s *Service) broadcast(event string, payload any) {
	if s.publisher == nil {
		return
	}
	s.publisher.Broadcast(event, payload)
}

func (s *Service) broadcastToIncident(incidentID, event string, payload any) {
	if s.publisher == nil {
		return
	}
	s.publisher.BroadcastIncident(incidentID, event, payload)
}

// initialMessage builds the message of the synthesized first update entry.
func initialMessage(incident *domain.Incident) string {
	if incident.Description != "" {
		return fmt.Sprintf("Incident created: %s", incident.Description)
	}
	return fmt.Sprintf("Incident created: %s", incident.Title)
}

func initialStatus(t domain.IncidentType) domain.IncidentStatus {
	if t == domain.IncidentTypeMaintenance {
		return domain.IncidentStatusScheduled
	}
	return domain.IncidentStatusInvestigating
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		slog.Error("failed to rollback transaction", "error", err)
	}
}
