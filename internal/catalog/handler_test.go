package catalog

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bissquit/status-garden/internal/domain"
	"github.com/bissquit/status-garden/internal/testutil"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const openapiSpec = "../../api/openapi/openapi.yaml"

func newTestServer(t *testing.T) (*httptest.Server, *mockRepository) {
	t.Helper()

	repo := newMockRepository()
	handler := NewHandler(NewService(repo, nil))

	r := chi.NewRouter()
	r.Route("/api/v1", handler.RegisterRoutes)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server, repo
}

func doJSON(t *testing.T, method, url string, body any) (*http.Request, *http.Response) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return req, resp
}

func TestHTTP_CreateService(t *testing.T) {
	server, _ := newTestServer(t)
	validator := testutil.NewOpenAPIValidator(t, openapiSpec)

	req, resp := doJSON(t, http.MethodPost, server.URL+"/api/v1/services", map[string]any{
		"name":        "API Gateway",
		"description": "Public edge",
	})

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	validator.ValidateResponse(t, req, resp)

	var envelope struct {
		Data domain.Service `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Equal(t, "API Gateway", envelope.Data.Name)
	assert.Equal(t, domain.ServiceStatusOperational, envelope.Data.Status)
}

func TestHTTP_CreateService_MissingName(t *testing.T) {
	server, _ := newTestServer(t)
	validator := testutil.NewOpenAPIValidator(t, openapiSpec)

	req, resp := doJSON(t, http.MethodPost, server.URL+"/api/v1/services", map[string]any{
		"description": "no name",
	})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	validator.ValidateResponse(t, req, resp)
}

func TestHTTP_GetService_NotFound(t *testing.T) {
	server, _ := newTestServer(t)
	validator := testutil.NewOpenAPIValidator(t, openapiSpec)

	req, resp := doJSON(t, http.MethodGet, server.URL+"/api/v1/services/missing", nil)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	validator.ValidateResponse(t, req, resp)
}

func TestHTTP_SetServiceStatus(t *testing.T) {
	server, repo := newTestServer(t)
	validator := testutil.NewOpenAPIValidator(t, openapiSpec)
	repo.services["svc-1"] = &domain.Service{
		ID:     "svc-1",
		Name:   "Database",
		Status: domain.ServiceStatusOperational,
	}

	req, resp := doJSON(t, http.MethodPatch, server.URL+"/api/v1/services/svc-1/status", map[string]any{
		"status": "major_outage",
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	validator.ValidateResponse(t, req, resp)
	assert.Equal(t, domain.ServiceStatusMajorOutage, repo.services["svc-1"].Status)
}

func TestHTTP_SetServiceStatus_RejectsUnknownValue(t *testing.T) {
	server, repo := newTestServer(t)
	repo.services["svc-1"] = &domain.Service{ID: "svc-1", Status: domain.ServiceStatusOperational}

	_, resp := doJSON(t, http.MethodPatch, server.URL+"/api/v1/services/svc-1/status", map[string]any{
		"status": "on_fire",
	})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, domain.ServiceStatusOperational, repo.services["svc-1"].Status,
		"rejected status must not be persisted")
}

func TestHTTP_DeleteService_ConflictWithIncidents(t *testing.T) {
	server, repo := newTestServer(t)
	validator := testutil.NewOpenAPIValidator(t, openapiSpec)
	repo.services["svc-1"] = &domain.Service{ID: "svc-1", Name: "Database"}
	repo.incidentCounts["svc-1"] = 1

	req, resp := doJSON(t, http.MethodDelete, server.URL+"/api/v1/services/svc-1", nil)

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	validator.ValidateResponse(t, req, resp)
}

func TestHTTP_ListServices(t *testing.T) {
	server, repo := newTestServer(t)
	validator := testutil.NewOpenAPIValidator(t, openapiSpec)
	repo.services["svc-1"] = &domain.Service{ID: "svc-1", Name: "Database", Status: domain.ServiceStatusOperational}

	req, resp := doJSON(t, http.MethodGet, server.URL+"/api/v1/services", nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	validator.ValidateResponse(t, req, resp)
}
