// Package overview assembles the public status page view: the service
// list, active incidents, and the derived overall status. Nothing here is
// persisted; the view is computed from current rows on every request.
package overview

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bissquit/status-garden/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ServiceLister provides the current service rows. Implemented by the
// catalog service.
type ServiceLister interface {
	ListServices(ctx context.Context) ([]domain.Service, error)
}

// IncidentLister provides incidents that have not reached their terminal
// status. Implemented by the incident service.
type IncidentLister interface {
	ListActiveIncidents(ctx context.Context) ([]*domain.Incident, error)
}

// StatusPage is the aggregated public view.
type StatusPage struct {
	Status          domain.OverallStatus `json:"status"`
	StatusLabel     string               `json:"status_label"`
	Services        []domain.Service     `json:"services"`
	ActiveIncidents []*domain.Incident   `json:"active_incidents"`
	GeneratedAt     time.Time            `json:"generated_at"`
}

// Service computes the aggregated status page.
type Service struct {
	services  ServiceLister
	incidents IncidentLister
	titler    cases.Caser
}

// NewService creates a new overview service.
func NewService(services ServiceLister, incidents IncidentLister) *Service {
	return &Service{
		services:  services,
		incidents: incidents,
		titler:    cases.Title(language.English),
	}
}

// StatusPage builds the current aggregated view.
func (s *Service) StatusPage(ctx context.Context) (*StatusPage, error) {
	services, err := s.services.ListServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}

	incidents, err := s.incidents.ListActiveIncidents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active incidents: %w", err)
	}

	status := domain.ComputeOverallStatus(services)
	return &StatusPage{
		Status:          status,
		StatusLabel:     s.Label(status),
		Services:        services,
		ActiveIncidents: incidents,
		GeneratedAt:     time.Now().UTC(),
	}, nil
}

// Label renders a human-readable form of the overall status, e.g.
// "All Operational" for all_operational.
func (s *Service) Label(status domain.OverallStatus) string {
	return s.titler.String(strings.ReplaceAll(string(status), "_", " "))
}
