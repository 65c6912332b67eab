// Package postgres provides the PostgreSQL implementation of the incidents
// repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bissquit/status-garden/internal/domain"
	"github.com/bissquit/status-garden/internal/incidents"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is an interface for database operations that both *pgxpool.Pool
// and pgx.Tx implement.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements incidents.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetIncident retrieves an incident by ID with its service associations.
func (r *Repository) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	query := `
		SELECT id, title, description, type, status, severity,
			created_at, updated_at, resolved_at
		FROM incidents
		WHERE id = $1
	`
	var incident domain.Incident
	err := r.db.QueryRow(ctx, query, id).Scan(
		&incident.ID,
		&incident.Title,
		&incident.Description,
		&incident.Type,
		&incident.Status,
		&incident.Severity,
		&incident.CreatedAt,
		&incident.UpdatedAt,
		&incident.ResolvedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}

	serviceIDs, err := r.getServiceIDs(ctx, r.db, id)
	if err != nil {
		return nil, fmt.Errorf("get incident services: %w", err)
	}
	incident.ServiceIDs = serviceIDs

	return &incident, nil
}

// ListIncidents retrieves incidents with optional filters, newest first.
func (r *Repository) ListIncidents(ctx context.Context, filters incidents.IncidentFilters) ([]*domain.Incident, error) {
	query := `
		SELECT DISTINCT i.id, i.title, i.description, i.type, i.status,
			i.severity, i.created_at, i.updated_at, i.resolved_at
		FROM incidents i
	`
	var conditions []string
	var args []any
	argN := 1

	if filters.ServiceID != nil {
		query += ` JOIN incident_services isv ON isv.incident_id = i.id`
		conditions = append(conditions, fmt.Sprintf("isv.service_id = $%d", argN))
		args = append(args, *filters.ServiceID)
		argN++
	}
	if filters.Type != nil {
		conditions = append(conditions, fmt.Sprintf("i.type = $%d", argN))
		args = append(args, *filters.Type)
		argN++
	}
	if filters.Status != nil {
		conditions = append(conditions, fmt.Sprintf("i.status = $%d", argN))
		args = append(args, *filters.Status)
		argN++
	}
	if filters.ActiveOnly {
		conditions = append(conditions, `NOT (
			(i.type = 'incident' AND i.status = 'resolved') OR
			(i.type = 'maintenance' AND i.status = 'completed')
		)`)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY i.created_at DESC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	result := make([]*domain.Incident, 0)
	for rows.Next() {
		var incident domain.Incident
		err := rows.Scan(
			&incident.ID,
			&incident.Title,
			&incident.Description,
			&incident.Type,
			&incident.Status,
			&incident.Severity,
			&incident.CreatedAt,
			&incident.UpdatedAt,
			&incident.ResolvedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		result = append(result, &incident)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, incident := range result {
		serviceIDs, err := r.getServiceIDs(ctx, r.db, incident.ID)
		if err != nil {
			return nil, fmt.Errorf("get incident services: %w", err)
		}
		incident.ServiceIDs = serviceIDs
	}

	return result, nil
}

// ListUpdates retrieves the update entries of an incident, newest first.
func (r *Repository) ListUpdates(ctx context.Context, incidentID string) ([]*domain.IncidentUpdate, error) {
	query := `
		SELECT id, incident_id, status, message, created_at
		FROM incident_updates
		WHERE incident_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list updates: %w", err)
	}
	defer rows.Close()

	updates := make([]*domain.IncidentUpdate, 0)
	for rows.Next() {
		var update domain.IncidentUpdate
		err := rows.Scan(
			&update.ID,
			&update.IncidentID,
			&update.Status,
			&update.Message,
			&update.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan update: %w", err)
		}
		updates = append(updates, &update)
	}

	return updates, rows.Err()
}

// BeginTx starts a new transaction.
func (r *Repository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.db.Begin(ctx)
}

// CreateIncidentTx creates a new incident within a transaction.
func (r *Repository) CreateIncidentTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident) error {
	query := `
		INSERT INTO incidents (title, description, type, status, severity, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := tx.QueryRow(ctx, query,
		incident.Title,
		incident.Description,
		incident.Type,
		incident.Status,
		incident.Severity,
		incident.ResolvedAt,
	).Scan(&incident.ID, &incident.CreatedAt, &incident.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create incident: %w", err)
	}
	return nil
}

// UpdateIncidentTx updates an incident within a transaction.
func (r *Repository) UpdateIncidentTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident) error {
	query := `
		UPDATE incidents
		SET title = $2, description = $3, status = $4, severity = $5,
			resolved_at = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := tx.QueryRow(ctx, query,
		incident.ID,
		incident.Title,
		incident.Description,
		incident.Status,
		incident.Severity,
		incident.ResolvedAt,
	).Scan(&incident.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return incidents.ErrIncidentNotFound
		}
		return fmt.Errorf("update incident: %w", err)
	}
	return nil
}

// DeleteIncidentTx deletes an incident within a transaction.
func (r *Repository) DeleteIncidentTx(ctx context.Context, tx pgx.Tx, id string) error {
	result, err := tx.Exec(ctx, `DELETE FROM incidents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete incident: %w", err)
	}
	if result.RowsAffected() == 0 {
		return incidents.ErrIncidentNotFound
	}
	return nil
}

// AssociateServicesTx links services to an incident within a transaction.
func (r *Repository) AssociateServicesTx(ctx context.Context, tx pgx.Tx, incidentID string, serviceIDs []string) error {
	for _, serviceID := range serviceIDs {
		_, err := tx.Exec(ctx,
			`INSERT INTO incident_services (incident_id, service_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`,
			incidentID, serviceID,
		)
		if err != nil {
			return fmt.Errorf("associate service %s: %w", serviceID, err)
		}
	}
	return nil
}

// ReplaceServicesTx replaces an incident's service links within a
// transaction.
func (r *Repository) ReplaceServicesTx(ctx context.Context, tx pgx.Tx, incidentID string, serviceIDs []string) error {
	_, err := tx.Exec(ctx, `DELETE FROM incident_services WHERE incident_id = $1`, incidentID)
	if err != nil {
		return fmt.Errorf("clear incident services: %w", err)
	}
	return r.AssociateServicesTx(ctx, tx, incidentID, serviceIDs)
}

// CreateUpdateTx appends an update entry within a transaction.
func (r *Repository) CreateUpdateTx(ctx context.Context, tx pgx.Tx, update *domain.IncidentUpdate) error {
	query := `
		INSERT INTO incident_updates (incident_id, status, message)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	err := tx.QueryRow(ctx, query,
		update.IncidentID,
		update.Status,
		update.Message,
	).Scan(&update.ID, &update.CreatedAt)

	if err != nil {
		return fmt.Errorf("create update: %w", err)
	}
	return nil
}

// DeleteUpdatesTx deletes all update entries of an incident within a
// transaction.
func (r *Repository) DeleteUpdatesTx(ctx context.Context, tx pgx.Tx, incidentID string) error {
	_, err := tx.Exec(ctx, `DELETE FROM incident_updates WHERE incident_id = $1`, incidentID)
	if err != nil {
		return fmt.Errorf("delete updates: %w", err)
	}
	return nil
}

func (r *Repository) getServiceIDs(ctx context.Context, q querier, incidentID string) ([]string, error) {
	rows, err := q.Query(ctx,
		`SELECT service_id FROM incident_services WHERE incident_id = $1 ORDER BY service_id`,
		incidentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
