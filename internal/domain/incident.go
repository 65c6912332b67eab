package domain

import "time"

// IncidentType represents the type of an incident record.
type IncidentType string

// Incident types.
const (
	IncidentTypeIncident    IncidentType = "incident"
	IncidentTypeMaintenance IncidentType = "maintenance"
)

// IsValid checks if the incident type is valid.
func (t IncidentType) IsValid() bool {
	return t == IncidentTypeIncident || t == IncidentTypeMaintenance
}

// TerminalStatus returns the status that closes an incident of this type.
func (t IncidentType) TerminalStatus() IncidentStatus {
	if t == IncidentTypeMaintenance {
		return IncidentStatusCompleted
	}
	return IncidentStatusResolved
}

// IncidentStatus represents the current status of an incident.
type IncidentStatus string

// Incident statuses. The first four apply to incidents, the last three
// to maintenance windows.
const (
	IncidentStatusInvestigating IncidentStatus = "investigating"
	IncidentStatusIdentified    IncidentStatus = "identified"
	IncidentStatusMonitoring    IncidentStatus = "monitoring"
	IncidentStatusResolved      IncidentStatus = "resolved"
	IncidentStatusScheduled     IncidentStatus = "scheduled"
	IncidentStatusInProgress    IncidentStatus = "in_progress"
	IncidentStatusCompleted     IncidentStatus = "completed"
)

// IsValidForType checks if the status is valid for the given incident type.
func (s IncidentStatus) IsValidForType(t IncidentType) bool {
	switch t {
	case IncidentTypeIncident:
		return s == IncidentStatusInvestigating ||
			s == IncidentStatusIdentified ||
			s == IncidentStatusMonitoring ||
			s == IncidentStatusResolved
	case IncidentTypeMaintenance:
		return s == IncidentStatusScheduled ||
			s == IncidentStatusInProgress ||
			s == IncidentStatusCompleted
	}
	return false
}

// IsTerminalFor checks if the status closes an incident of the given type.
func (s IncidentStatus) IsTerminalFor(t IncidentType) bool {
	return s == t.TerminalStatus()
}

// Severity represents the severity level of an incident.
type Severity string

// Severity levels.
const (
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

// IsValid checks if the severity is valid.
func (s Severity) IsValid() bool {
	return s == SeverityMinor || s == SeverityMajor || s == SeverityCritical
}

// Incident represents an incident or maintenance window affecting one or
// more services.
type Incident struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Type        IncidentType      `json:"type"`
	Status      IncidentStatus    `json:"status"`
	Severity    *Severity         `json:"severity,omitempty"`
	ServiceIDs  []string          `json:"service_ids"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	ResolvedAt  *time.Time        `json:"resolved_at"`
	Updates     []*IncidentUpdate `json:"updates,omitempty"`
}

// IsActive returns true while the incident has not reached its terminal
// status.
func (i *Incident) IsActive() bool {
	return !i.Status.IsTerminalFor(i.Type)
}

// ApplyStatus moves the incident to the given status and keeps ResolvedAt
// in sync: set when entering the terminal status, cleared when leaving it.
// Returns true if the status actually changed.
func (i *Incident) ApplyStatus(status IncidentStatus, now time.Time) bool {
	if status == i.Status {
		return false
	}
	i.Status = status
	if status.IsTerminalFor(i.Type) {
		i.ResolvedAt = &now
	} else {
		i.ResolvedAt = nil
	}
	return true
}

// IncidentUpdate is an append-only log entry recording a message and the
// incident's status at the time of posting.
type IncidentUpdate struct {
	ID         string         `json:"id"`
	IncidentID string         `json:"incident_id"`
	Status     IncidentStatus `json:"status"`
	Message    string         `json:"message"`
	CreatedAt  time.Time      `json:"created_at"`
}
