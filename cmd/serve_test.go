//go:build !integration

package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gbd-tools/harmonize-cli/internal/model"
)

func testReviewServer(t *testing.T) *reviewServer {
	t.Helper()
	return &reviewServer{
		ds: &model.Dataset{
			Columns: []string{"icd10_code", "gbd_cause", "mapping_strategy", "mapping_confidence", "escalation_reason"},
			Records: []model.Record{
				{ID: 1, Values: map[string]string{
					"icd10_code": "A00", "gbd_cause": "cholera",
					"mapping_strategy": "direct", "mapping_confidence": "1", "escalation_reason": "",
				}},
				{ID: 2, Values: map[string]string{
					"icd10_code": "Z99X", "gbd_cause": "",
					"mapping_strategy": "", "mapping_confidence": "", "escalation_reason": "no_candidate",
				}},
				{ID: 3, Values: map[string]string{
					"icd10_code": "B20x", "gbd_cause": "",
					"mapping_strategy": "", "mapping_confidence": "", "escalation_reason": "below_threshold",
				}},
			},
		},
		source: "icd10_code",
		target: "gbd_cause",
		output: filepath.Join(t.TempDir(), "reviewed.csv"),
	}
}

func TestServeRoutes_Health(t *testing.T) {
	handler := testReviewServer(t).routes()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestServeRoutes_Escalations(t *testing.T) {
	handler := testReviewServer(t).routes()

	req := httptest.NewRequest(http.MethodGet, "/api/escalations", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Escalations []escalationRow `json:"escalations"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Escalations, 2)
	assert.Equal(t, "Z99X", body.Escalations[0].SourceCode)
	assert.Equal(t, "no_candidate", body.Escalations[0].Reason)
	assert.Equal(t, "B20x", body.Escalations[1].SourceCode)
}

func TestServeRoutes_ApplyMappings(t *testing.T) {
	rs := testReviewServer(t)
	handler := rs.routes()

	payload := map[string]any{
		"mappings": map[string]string{"Z99X": "unspecified"},
	}
	body, _ := json.Marshal(payload)

	req := httptest.NewRequest(http.MethodPost, "/api/mappings", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Applied   int `json:"applied"`
		Remaining int `json:"remaining"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Applied)
	assert.Equal(t, 1, resp.Remaining)

	// The mapped record is settled in memory.
	rec := rs.ds.Records[1]
	assert.Equal(t, "unspecified", rec.Values["gbd_cause"])
	assert.Equal(t, "human", rec.Values["mapping_strategy"])
	assert.Equal(t, "", rec.Values["escalation_reason"])

	// And the output file was rewritten.
	raw, err := os.ReadFile(rs.output)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Z99X,unspecified,human,1,")
}

func TestServeRoutes_ApplyMappings_InvalidJSON(t *testing.T) {
	handler := testReviewServer(t).routes()

	req := httptest.NewRequest(http.MethodPost, "/api/mappings", bytes.NewReader([]byte("not json")))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid request body")
}

func TestServeRoutes_ApplyMappings_Empty(t *testing.T) {
	handler := testReviewServer(t).routes()

	req := httptest.NewRequest(http.MethodPost, "/api/mappings", bytes.NewReader([]byte("{}")))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "mappings is required")
}

func TestServeRoutes_FormListsEscalations(t *testing.T) {
	handler := testReviewServer(t).routes()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rr.Body.String(), "Z99X")
	assert.Contains(t, rr.Body.String(), "below_threshold")
}
