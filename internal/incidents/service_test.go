package incidents

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bissquit/status-garden/internal/catalog"
	"github.com/bissquit/status-garden/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTx satisfies pgx.Tx for the mock repository, which applies writes
// directly to its in-memory state.
type fakeTx struct {
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Begin(_ context.Context) (pgx.Tx, error) { return t, nil }
func (t *fakeTx) Commit(_ context.Context) error {
	t.committed = true
	return nil
}
func (t *fakeTx) Rollback(_ context.Context) error {
	if t.committed {
		return pgx.ErrTxClosed
	}
	t.rolledBack = true
	return nil
}
func (t *fakeTx) CopyFrom(_ context.Context, _ pgx.Identifier, _ []string, _ pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *fakeTx) SendBatch(_ context.Context, _ *pgx.Batch) pgx.BatchResults { return nil }
func (t *fakeTx) LargeObjects() pgx.LargeObjects                             { return pgx.LargeObjects{} }
func (t *fakeTx) Prepare(_ context.Context, _, _ string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *fakeTx) Exec(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (t *fakeTx) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) { return nil, nil }
func (t *fakeTx) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row        { return nil }
func (t *fakeTx) Conn() *pgx.Conn                                               { return nil }

// mockRepository implements Repository for testing.
type mockRepository struct {
	incidents map[string]*domain.Incident
	updates   map[string][]*domain.IncidentUpdate
	lastTx    *fakeTx
	nextID    int
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		incidents: make(map[string]*domain.Incident),
		updates:   make(map[string][]*domain.IncidentUpdate),
	}
}

func (m *mockRepository) GetIncident(_ context.Context, id string) (*domain.Incident, error) {
	if inc, ok := m.incidents[id]; ok {
		copied := *inc
		return &copied, nil
	}
	return nil, ErrIncidentNotFound
}

func (m *mockRepository) ListIncidents(_ context.Context, filters IncidentFilters) ([]*domain.Incident, error) {
	result := make([]*domain.Incident, 0)
	for _, inc := range m.incidents {
		if filters.Type != nil && inc.Type != *filters.Type {
			continue
		}
		if filters.Status != nil && inc.Status != *filters.Status {
			continue
		}
		if filters.ActiveOnly && !inc.IsActive() {
			continue
		}
		copied := *inc
		result = append(result, &copied)
	}
	return result, nil
}

func (m *mockRepository) ListUpdates(_ context.Context, incidentID string) ([]*domain.IncidentUpdate, error) {
	updates := m.updates[incidentID]
	// newest first
	reversed := make([]*domain.IncidentUpdate, 0, len(updates))
	for i := len(updates) - 1; i >= 0; i-- {
		reversed = append(reversed, updates[i])
	}
	return reversed, nil
}

func (m *mockRepository) BeginTx(_ context.Context) (pgx.Tx, error) {
	m.lastTx = &fakeTx{}
	return m.lastTx, nil
}

func (m *mockRepository) CreateIncidentTx(_ context.Context, _ pgx.Tx, incident *domain.Incident) error {
	m.nextID++
	incident.ID = fmt.Sprintf("inc-%d", m.nextID)
	incident.CreatedAt = time.Now()
	incident.UpdatedAt = incident.CreatedAt
	copied := *incident
	m.incidents[incident.ID] = &copied
	return nil
}

func (m *mockRepository) UpdateIncidentTx(_ context.Context, _ pgx.Tx, incident *domain.Incident) error {
	if _, ok := m.incidents[incident.ID]; !ok {
		return ErrIncidentNotFound
	}
	incident.UpdatedAt = time.Now()
	copied := *incident
	m.incidents[incident.ID] = &copied
	return nil
}

func (m *mockRepository) DeleteIncidentTx(_ context.Context, _ pgx.Tx, id string) error {
	if _, ok := m.incidents[id]; !ok {
		return ErrIncidentNotFound
	}
	delete(m.incidents, id)
	return nil
}

func (m *mockRepository) AssociateServicesTx(_ context.Context, _ pgx.Tx, incidentID string, serviceIDs []string) error {
	if inc, ok := m.incidents[incidentID]; ok {
		inc.ServiceIDs = serviceIDs
	}
	return nil
}

func (m *mockRepository) ReplaceServicesTx(_ context.Context, _ pgx.Tx, incidentID string, serviceIDs []string) error {
	return m.AssociateServicesTx(context.Background(), nil, incidentID, serviceIDs)
}

func (m *mockRepository) CreateUpdateTx(_ context.Context, _ pgx.Tx, update *domain.IncidentUpdate) error {
	m.nextID++
	update.ID = fmt.Sprintf("upd-%d", m.nextID)
	update.CreatedAt = time.Now()
	copied := *update
	m.updates[update.IncidentID] = append(m.updates[update.IncidentID], &copied)
	return nil
}

func (m *mockRepository) DeleteUpdatesTx(_ context.Context, _ pgx.Tx, incidentID string) error {
	delete(m.updates, incidentID)
	return nil
}

// mockCatalog implements ServiceChecker for testing.
type mockCatalog struct {
	services map[string]bool
}

func (m *mockCatalog) GetService(_ context.Context, id string) (*domain.Service, error) {
	if m.services[id] {
		return &domain.Service{ID: id}, nil
	}
	return nil, catalog.ErrServiceNotFound
}

// mockPublisher records broadcast calls.
type mockPublisher struct {
	events     []string
	roomEvents []string
}

func (m *mockPublisher) Broadcast(event string, _ any) {
	m.events = append(m.events, event)
}

func (m *mockPublisher) BroadcastIncident(_ string, event string, _ any) {
	m.roomEvents = append(m.roomEvents, event)
}

func newTestService() (*Service, *mockRepository, *mockPublisher) {
	repo := newMockRepository()
	cat := &mockCatalog{services: map[string]bool{"svc-1": true, "svc-2": true}}
	pub := &mockPublisher{}
	return NewService(repo, cat, pub), repo, pub
}

func TestCreateIncident_SynthesizesInitialUpdate(t *testing.T) {
	// Arrange
	service, repo, pub := newTestService()

	// Act
	incident, err := service.CreateIncident(context.Background(), CreateIncidentInput{
		Title:       "Database outage",
		Description: "Primary node unreachable",
		Type:        domain.IncidentTypeIncident,
		Status:      domain.IncidentStatusInvestigating,
		ServiceIDs:  []string{"svc-1", "svc-2"},
	})

	// Assert
	require.NoError(t, err)
	require.Len(t, incident.Updates, 1)
	assert.Equal(t, "Incident created: Primary node unreachable", incident.Updates[0].Message)
	assert.Equal(t, domain.IncidentStatusInvestigating, incident.Updates[0].Status)
	assert.Equal(t, []string{"svc-1", "svc-2"}, incident.ServiceIDs)
	assert.Nil(t, incident.ResolvedAt)
	assert.True(t, repo.lastTx.committed)
	assert.Equal(t, []string{EventIncidentCreated}, pub.events)
}

func TestCreateIncident_InitialMessageFallsBackToTitle(t *testing.T) {
	service, _, _ := newTestService()

	incident, err := service.CreateIncident(context.Background(), CreateIncidentInput{
		Title:      "Database outage",
		Type:       domain.IncidentTypeIncident,
		ServiceIDs: []string{"svc-1"},
	})

	require.NoError(t, err)
	require.Len(t, incident.Updates, 1)
	assert.Equal(t, "Incident created: Database outage", incident.Updates[0].Message)
	assert.Equal(t, domain.IncidentStatusInvestigating, incident.Status, "status should default by type")
}

func TestCreateIncident_UnknownServiceRejected(t *testing.T) {
	service, repo, pub := newTestService()

	incident, err := service.CreateIncident(context.Background(), CreateIncidentInput{
		Title:      "Database outage",
		Type:       domain.IncidentTypeIncident,
		ServiceIDs: []string{"svc-1", "ghost"},
	})

	assert.Nil(t, incident)
	assert.ErrorIs(t, err, ErrServiceNotFound)
	assert.Empty(t, repo.incidents, "nothing should be persisted")
	assert.Empty(t, pub.events)
}

func TestCreateIncident_StatusMustMatchType(t *testing.T) {
	service, _, _ := newTestService()

	incident, err := service.CreateIncident(context.Background(), CreateIncidentInput{
		Title:      "Planned upgrade",
		Type:       domain.IncidentTypeMaintenance,
		Status:     domain.IncidentStatusInvestigating,
		ServiceIDs: []string{"svc-1"},
	})

	assert.Nil(t, incident)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestCreateIncident_RequiresServices(t *testing.T) {
	service, _, _ := newTestService()

	incident, err := service.CreateIncident(context.Background(), CreateIncidentInput{
		Title: "Database outage",
		Type:  domain.IncidentTypeIncident,
	})

	assert.Nil(t, incident)
	assert.ErrorIs(t, err, ErrNoServices)
}

func TestUpdateIncident_ResolveSetsResolvedAt(t *testing.T) {
	// Arrange
	service, repo, pub := newTestService()
	created, err := service.CreateIncident(context.Background(), CreateIncidentInput{
		Title:      "Database outage",
		Type:       domain.IncidentTypeIncident,
		ServiceIDs: []string{"svc-1"},
	})
	require.NoError(t, err)
	pub.events = nil
	pub.roomEvents = nil
	resolved := domain.IncidentStatusResolved

	// Act
	updated, err := service.UpdateIncident(context.Background(), created.ID, UpdateIncidentInput{
		Status: &resolved,
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStatusResolved, updated.Status)
	require.NotNil(t, updated.ResolvedAt)

	updates := repo.updates[created.ID]
	require.Len(t, updates, 2)
	assert.Equal(t, "Status changed to resolved", updates[1].Message)
	assert.Equal(t, domain.IncidentStatusResolved, updates[1].Status)

	assert.Equal(t, []string{EventIncidentUpdated, EventIncidentUpdateCreated}, pub.events)
	assert.Equal(t, []string{EventIncidentUpdated, EventIncidentUpdateCreated}, pub.roomEvents)
}

func TestUpdateIncident_ReopenClearsResolvedAt(t *testing.T) {
	service, _, _ := newTestService()
	created, err := service.CreateIncident(context.Background(), CreateIncidentInput{
		Title:      "Database outage",
		Type:       domain.IncidentTypeIncident,
		Status:     domain.IncidentStatusResolved,
		ServiceIDs: []string{"svc-1"},
	})
	require.NoError(t, err)
	require.NotNil(t, created.ResolvedAt, "terminal status on create should set resolved_at")
	monitoring := domain.IncidentStatusMonitoring

	updated, err := service.UpdateIncident(context.Background(), created.ID, UpdateIncidentInput{
		Status: &monitoring,
	})

	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStatusMonitoring, updated.Status)
	assert.Nil(t, updated.ResolvedAt)
}

func TestUpdateIncident_SameStatusNoUpdateEntry(t *testing.T) {
	service, repo, _ := newTestService()
	created, err := service.CreateIncident(context.Background(), CreateIncidentInput{
		Title:      "Database outage",
		Type:       domain.IncidentTypeIncident,
		ServiceIDs: []string{"svc-1"},
	})
	require.NoError(t, err)
	investigating := domain.IncidentStatusInvestigating
	title := "Primary database outage"

	updated, err := service.UpdateIncident(context.Background(), created.ID, UpdateIncidentInput{
		Title:  &title,
		Status: &investigating,
	})

	require.NoError(t, err)
	assert.Equal(t, "Primary database outage", updated.Title)
	assert.Len(t, repo.updates[created.ID], 1, "repeating the current status should not append an entry")
}

func TestUpdateIncident_MessageAloneAppendsEntry(t *testing.T) {
	service, repo, _ := newTestService()
	created, err := service.CreateIncident(context.Background(), CreateIncidentInput{
		Title:      "Database outage",
		Type:       domain.IncidentTypeIncident,
		ServiceIDs: []string{"svc-1"},
	})
	require.NoError(t, err)
	message := "Engineers are on site"

	_, err = service.UpdateIncident(context.Background(), created.ID, UpdateIncidentInput{
		Message: &message,
	})

	require.NoError(t, err)
	updates := repo.updates[created.ID]
	require.Len(t, updates, 2)
	assert.Equal(t, "Engineers are on site", updates[1].Message)
	assert.Equal(t, domain.IncidentStatusInvestigating, updates[1].Status)
}

func TestUpdateIncident_NotFound(t *testing.T) {
	service, _, _ := newTestService()

	_, err := service.UpdateIncident(context.Background(), "missing", UpdateIncidentInput{})

	assert.ErrorIs(t, err, ErrIncidentNotFound)
}

func TestAddUpdate_EmptyMessageRejected(t *testing.T) {
	service, _, pub := newTestService()
	created, err := service.CreateIncident(context.Background(), CreateIncidentInput{
		Title:      "Database outage",
		Type:       domain.IncidentTypeIncident,
		ServiceIDs: []string{"svc-1"},
	})
	require.NoError(t, err)
	pub.events = nil

	update, err := service.AddUpdate(context.Background(), created.ID, "   ", nil)

	assert.Nil(t, update)
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, pub.events)
}

func TestAddUpdate_DefaultsToCurrentStatus(t *testing.T) {
	service, _, pub := newTestService()
	created, err := service.CreateIncident(context.Background(), CreateIncidentInput{
		Title:      "Database outage",
		Type:       domain.IncidentTypeIncident,
		ServiceIDs: []string{"svc-1"},
	})
	require.NoError(t, err)
	pub.events = nil

	update, err := service.AddUpdate(context.Background(), created.ID, "Still investigating", nil)

	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStatusInvestigating, update.Status)
	assert.Equal(t, []string{EventIncidentUpdateCreated}, pub.events)
}

func TestAddUpdate_DifferingStatusMovesIncident(t *testing.T) {
	// Arrange
	service, repo, pub := newTestService()
	created, err := service.CreateIncident(context.Background(), CreateIncidentInput{
		Title:      "Database outage",
		Type:       domain.IncidentTypeIncident,
		ServiceIDs: []string{"svc-1"},
	})
	require.NoError(t, err)
	pub.events = nil
	resolved := domain.IncidentStatusResolved

	// Act
	update, err := service.AddUpdate(context.Background(), created.ID, "All clear", &resolved)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStatusResolved, update.Status)

	stored := repo.incidents[created.ID]
	assert.Equal(t, domain.IncidentStatusResolved, stored.Status)
	assert.NotNil(t, stored.ResolvedAt)
	assert.Equal(t, []string{EventIncidentUpdateCreated, EventIncidentUpdated}, pub.events)
}

func TestAddUpdate_RepeatedTerminalStatusKeepsResolvedAt(t *testing.T) {
	// Arrange
	service, repo, _ := newTestService()
	created, err := service.CreateIncident(context.Background(), CreateIncidentInput{
		Title:      "Database outage",
		Type:       domain.IncidentTypeIncident,
		ServiceIDs: []string{"svc-1"},
	})
	require.NoError(t, err)
	resolved := domain.IncidentStatusResolved

	_, err = service.AddUpdate(context.Background(), created.ID, "All clear", &resolved)
	require.NoError(t, err)
	require.NotNil(t, repo.incidents[created.ID].ResolvedAt)
	firstResolvedAt := *repo.incidents[created.ID].ResolvedAt

	// Act
	second, err := service.AddUpdate(context.Background(), created.ID, "Confirming stability", &resolved)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStatusResolved, second.Status)

	updates := repo.updates[created.ID]
	require.Len(t, updates, 3, "the repeated status should still append an entry")
	assert.Equal(t, "Confirming stability", updates[2].Message)

	stored := repo.incidents[created.ID]
	require.NotNil(t, stored.ResolvedAt)
	assert.Equal(t, firstResolvedAt, *stored.ResolvedAt,
		"repeating the terminal status must not move resolved_at")
}

func TestDeleteIncident_RemovesUpdatesToo(t *testing.T) {
	service, repo, pub := newTestService()
	created, err := service.CreateIncident(context.Background(), CreateIncidentInput{
		Title:      "Database outage",
		Type:       domain.IncidentTypeIncident,
		ServiceIDs: []string{"svc-1"},
	})
	require.NoError(t, err)
	pub.events = nil

	err = service.DeleteIncident(context.Background(), created.ID)

	require.NoError(t, err)
	assert.NotContains(t, repo.incidents, created.ID)
	assert.NotContains(t, repo.updates, created.ID, "child updates must not be orphaned")
	assert.Equal(t, []string{EventIncidentDeleted}, pub.events)
}

func TestDeleteIncident_NotFound(t *testing.T) {
	service, _, _ := newTestService()

	err := service.DeleteIncident(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrIncidentNotFound)
}

func TestGetIncident_EmbedsUpdatesNewestFirst(t *testing.T) {
	service, _, _ := newTestService()
	created, err := service.CreateIncident(context.Background(), CreateIncidentInput{
		Title:      "Database outage",
		Type:       domain.IncidentTypeIncident,
		ServiceIDs: []string{"svc-1"},
	})
	require.NoError(t, err)
	_, err = service.AddUpdate(context.Background(), created.ID, "Root cause found", nil)
	require.NoError(t, err)

	incident, err := service.GetIncident(context.Background(), created.ID)

	require.NoError(t, err)
	require.Len(t, incident.Updates, 2)
	assert.Equal(t, "Root cause found", incident.Updates[0].Message)
}

func TestListActiveIncidents_ExcludesTerminal(t *testing.T) {
	service, _, _ := newTestService()
	_, err := service.CreateIncident(context.Background(), CreateIncidentInput{
		Title:      "Open incident",
		Type:       domain.IncidentTypeIncident,
		ServiceIDs: []string{"svc-1"},
	})
	require.NoError(t, err)
	_, err = service.CreateIncident(context.Background(), CreateIncidentInput{
		Title:      "Closed incident",
		Type:       domain.IncidentTypeIncident,
		Status:     domain.IncidentStatusResolved,
		ServiceIDs: []string{"svc-2"},
	})
	require.NoError(t, err)

	active, err := service.ListActiveIncidents(context.Background())

	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Open incident", active[0].Title)
}
