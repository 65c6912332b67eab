//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/bissquit/status-garden/internal/testutil"
	"github.com/stretchr/testify/require"
)

// createTestService creates a service and returns its ID.
// Use deleteService in t.Cleanup for removal.
func createTestService(t *testing.T, client *testutil.Client, name string) string {
	t.Helper()

	resp, err := client.POST("/api/v1/services", map[string]interface{}{
		"name": name,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data.ID
}

// createTestIncident creates an incident affecting the given services and
// returns its ID.
func createTestIncident(t *testing.T, client *testutil.Client, title string, serviceIDs []string, opts ...incidentOption) string {
	t.Helper()

	payload := map[string]interface{}{
		"title":       title,
		"type":        "incident",
		"severity":    "minor",
		"description": "Test incident description",
		"service_ids": serviceIDs,
	}
	for _, opt := range opts {
		opt(payload)
	}

	resp, err := client.POST("/api/v1/incidents", payload)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data.ID
}

type incidentOption func(map[string]interface{})

func withType(typ string) incidentOption {
	return func(m map[string]interface{}) {
		m["type"] = typ
		if typ == "maintenance" {
			delete(m, "severity")
		}
	}
}

func withStatus(status string) incidentOption {
	return func(m map[string]interface{}) {
		m["status"] = status
	}
}

// resolveIncident posts a resolving update (incident -> resolved).
func resolveIncident(t *testing.T, client *testutil.Client, incidentID string) {
	t.Helper()

	resp, err := client.POST("/api/v1/incidents/"+incidentID+"/updates", map[string]interface{}{
		"status":  "resolved",
		"message": "Fixed",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
}

// deleteIncident deletes an incident. Does not fail if already deleted.
func deleteIncident(t *testing.T, client *testutil.Client, incidentID string) {
	t.Helper()

	resp, err := client.DELETE("/api/v1/incidents/" + incidentID)
	if err != nil {
		t.Logf("cleanup warning (incident %s): %v", incidentID, err)
		return
	}
	resp.Body.Close()
}

// deleteService deletes a service. Does not fail if it still has incidents.
func deleteService(t *testing.T, client *testutil.Client, serviceID string) {
	t.Helper()

	resp, err := client.DELETE("/api/v1/services/" + serviceID)
	if err != nil {
		t.Logf("cleanup warning (service %s): %v", serviceID, err)
		return
	}
	if resp.StatusCode == http.StatusConflict {
		t.Logf("cleanup warning (service %s): has incidents", serviceID)
	}
	resp.Body.Close()
}

// getServiceStatus fetches the current status of a service.
func getServiceStatus(t *testing.T, client *testutil.Client, serviceID string) string {
	t.Helper()

	resp, err := client.GET("/api/v1/services/" + serviceID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data.Status
}
