// Package postgres provides the PostgreSQL implementation of the catalog
// repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/status-garden/internal/catalog"
	"github.com/bissquit/status-garden/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements catalog.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateService creates a new service in the database.
func (r *Repository) CreateService(ctx context.Context, service *domain.Service) error {
	query := `
		INSERT INTO services (name, description, status, team_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		service.Name,
		service.Description,
		service.Status,
		service.TeamID,
	).Scan(&service.ID, &service.CreatedAt, &service.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}
	return nil
}

// GetService retrieves a service by ID.
func (r *Repository) GetService(ctx context.Context, id string) (*domain.Service, error) {
	query := `
		SELECT id, name, description, status, team_id, created_at, updated_at
		FROM services
		WHERE id = $1
	`
	var service domain.Service
	err := r.db.QueryRow(ctx, query, id).Scan(
		&service.ID,
		&service.Name,
		&service.Description,
		&service.Status,
		&service.TeamID,
		&service.CreatedAt,
		&service.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrServiceNotFound
		}
		return nil, fmt.Errorf("get service: %w", err)
	}
	return &service, nil
}

// ListServices retrieves all services ordered by name.
func (r *Repository) ListServices(ctx context.Context) ([]domain.Service, error) {
	query := `
		SELECT id, name, description, status, team_id, created_at, updated_at
		FROM services
		ORDER BY name
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	services := make([]domain.Service, 0)
	for rows.Next() {
		var service domain.Service
		err := rows.Scan(
			&service.ID,
			&service.Name,
			&service.Description,
			&service.Status,
			&service.TeamID,
			&service.CreatedAt,
			&service.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		services = append(services, service)
	}

	return services, rows.Err()
}

// UpdateService updates an existing service.
func (r *Repository) UpdateService(ctx context.Context, service *domain.Service) error {
	query := `
		UPDATE services
		SET name = $2, description = $3, status = $4, team_id = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query,
		service.ID,
		service.Name,
		service.Description,
		service.Status,
		service.TeamID,
	).Scan(&service.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.ErrServiceNotFound
		}
		return fmt.Errorf("update service: %w", err)
	}
	return nil
}

// UpdateServiceStatus persists a new status and returns the updated record.
func (r *Repository) UpdateServiceStatus(ctx context.Context, id string, status domain.ServiceStatus) (*domain.Service, error) {
	query := `
		UPDATE services
		SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING id, name, description, status, team_id, created_at, updated_at
	`
	var service domain.Service
	err := r.db.QueryRow(ctx, query, id, status).Scan(
		&service.ID,
		&service.Name,
		&service.Description,
		&service.Status,
		&service.TeamID,
		&service.CreatedAt,
		&service.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrServiceNotFound
		}
		return nil, fmt.Errorf("update service status: %w", err)
	}
	return &service, nil
}

// DeleteService deletes a service by ID.
func (r *Repository) DeleteService(ctx context.Context, id string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM services WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	if result.RowsAffected() == 0 {
		return catalog.ErrServiceNotFound
	}
	return nil
}

// CountIncidentsForService returns the number of incidents referencing the
// service.
func (r *Repository) CountIncidentsForService(ctx context.Context, serviceID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM incident_services WHERE service_id = $1`,
		serviceID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count incidents for service: %w", err)
	}
	return count, nil
}
