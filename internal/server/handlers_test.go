package server_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctxconfig/cac/internal/model"
)

func TestHealthEndpointUnauthenticated(t *testing.T) {
	resp, err := http.Get(testSrv.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data model.HealthResponse `json:"data"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, "healthy", body.Data.Status)
	assert.Equal(t, "connected", body.Data.Postgres)
}

func TestProtectedEndpointRejectsMissingToken(t *testing.T) {
	resp, err := http.Get(testSrv.URL + "/default-config")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProtectedEndpointRejectsWrongToken(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, testSrv.URL+"/default-config", nil)
	req.Header.Set("Authorization", "Bearer wrong-secret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPutAndGetDefaultConfig(t *testing.T) {
	key := "feature.max_results"
	putReq := map[string]any{
		"value":  float64(25),
		"schema": map[string]any{"type": "number"},
	}
	resp, err := authedRequest(http.MethodPut, testSrv.URL+"/default-config/"+key, putReq)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var putBody struct {
		Data model.DefaultConfigResponse `json:"data"`
	}
	decodeBody(t, resp, &putBody)
	assert.Equal(t, key, putBody.Data.Key)
	assert.Equal(t, float64(25), putBody.Data.Value)

	listResp, err := authedRequest(http.MethodGet, testSrv.URL+"/default-config", nil)
	require.NoError(t, err)
	defer func() { _ = listResp.Body.Close() }()
	require.Equal(t, http.StatusOK, listResp.StatusCode)

	var listBody struct {
		Data []model.DefaultConfigResponse `json:"data"`
	}
	decodeBody(t, listResp, &listBody)
	found := false
	for _, e := range listBody.Data {
		if e.Key == key {
			found = true
		}
	}
	assert.True(t, found, "expected %s in default-config list", key)
}

func TestPutDefaultConfigNewKeyRequiresValueAndSchema(t *testing.T) {
	resp, err := authedRequest(http.MethodPut, testSrv.URL+"/default-config/incomplete.key",
		map[string]any{"value": 1})
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPutDefaultConfigPartialUpsertPreservesUntouchedFields(t *testing.T) {
	key := "feature.partial_upsert"
	resp, err := authedRequest(http.MethodPut, testSrv.URL+"/default-config/"+key, map[string]any{
		"value":  "initial",
		"schema": map[string]any{"type": "string"},
	})
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := authedRequest(http.MethodPut, testSrv.URL+"/default-config/"+key, map[string]any{
		"value": "updated",
	})
	require.NoError(t, err)
	defer func() { _ = resp2.Body.Close() }()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	var body struct {
		Data model.DefaultConfigResponse `json:"data"`
	}
	decodeBody(t, resp2, &body)
	assert.Equal(t, "updated", body.Data.Value)
	assert.Equal(t, map[string]any{"type": "string"}, body.Data.Schema)
}

func TestDeleteDefaultConfigNotFound(t *testing.T) {
	resp, err := authedRequest(http.MethodDelete, testSrv.URL+"/default-config/does-not-exist", nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateDimensionAndPutContext(t *testing.T) {
	dimResp, err := authedRequest(http.MethodPost, testSrv.URL+"/dimension", map[string]any{
		"dimension": "region",
		"priority":  int32(10),
	})
	require.NoError(t, err)
	defer func() { _ = dimResp.Body.Close() }()
	require.Equal(t, http.StatusCreated, dimResp.StatusCode)

	ctxResp, err := authedRequest(http.MethodPut, testSrv.URL+"/context", map[string]any{
		"context":  map[string]any{"region": "us-east"},
		"override": map[string]any{"feature.max_results": 50},
	})
	require.NoError(t, err)
	defer func() { _ = ctxResp.Body.Close() }()
	require.Equal(t, http.StatusOK, ctxResp.StatusCode)

	var putBody struct {
		Data model.PutContextResponse `json:"data"`
	}
	decodeBody(t, ctxResp, &putBody)
	assert.NotEmpty(t, putBody.Data.ContextID)
	assert.NotEmpty(t, putBody.Data.OverrideID)

	// Idempotent: same context and override round-trips to the same IDs.
	ctxResp2, err := authedRequest(http.MethodPut, testSrv.URL+"/context", map[string]any{
		"context":  map[string]any{"region": "us-east"},
		"override": map[string]any{"feature.max_results": 50},
	})
	require.NoError(t, err)
	defer func() { _ = ctxResp2.Body.Close() }()
	var putBody2 struct {
		Data model.PutContextResponse `json:"data"`
	}
	decodeBody(t, ctxResp2, &putBody2)
	assert.Equal(t, putBody.Data.ContextID, putBody2.Data.ContextID)
	assert.Equal(t, putBody.Data.OverrideID, putBody2.Data.OverrideID)

	listResp, err := authedRequest(http.MethodGet, testSrv.URL+"/context/list", nil)
	require.NoError(t, err)
	defer func() { _ = listResp.Body.Close() }()
	var listBody struct {
		Data []model.ContextListEntry `json:"data"`
	}
	decodeBody(t, listResp, &listBody)
	found := false
	for _, c := range listBody.Data {
		if c.ID == putBody.Data.ContextID {
			found = true
		}
	}
	assert.True(t, found)
}

func TestPutContextMissingContextIsBadRequest(t *testing.T) {
	resp, err := authedRequest(http.MethodPut, testSrv.URL+"/context", map[string]any{
		"override": map[string]any{"k": "v"},
	})
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteContextNotFound(t *testing.T) {
	resp, err := authedRequest(http.MethodDelete, testSrv.URL+"/context/does-not-exist", nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExperimentLifecycle(t *testing.T) {
	key := "exp.button_color"
	resp, err := authedRequest(http.MethodPut, testSrv.URL+"/default-config/"+key, map[string]any{
		"value":  "blue",
		"schema": map[string]any{"type": "string"},
	})
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	createResp, err := authedRequest(http.MethodPost, testSrv.URL+"/experiments", map[string]any{
		"name":    "button color test",
		"context": map[string]any{"platform": "web"},
		"variants": []map[string]any{
			{"id": "control", "variant_type": "CONTROL", "overrides": map[string]any{key: "blue"}},
			{"id": "treatment", "variant_type": "EXPERIMENTAL", "overrides": map[string]any{key: "green"}},
		},
	})
	require.NoError(t, err)
	defer func() { _ = createResp.Body.Close() }()
	require.Equal(t, http.StatusCreated, createResp.StatusCode)

	var createBody struct {
		Data model.CreateExperimentResponse `json:"data"`
	}
	decodeBody(t, createResp, &createBody)
	assert.Equal(t, "CREATED", createBody.Data.Status)

	id := createBody.Data.ExperimentID

	rampResp, err := authedRequest(http.MethodPatch,
		fmt.Sprintf("%s/experiments/%d/ramp", testSrv.URL, id),
		map[string]any{"traffic_percentage": uint8(50)})
	require.NoError(t, err)
	defer func() { _ = rampResp.Body.Close() }()
	require.Equal(t, http.StatusOK, rampResp.StatusCode)

	var rampBody struct {
		Data model.ExperimentResponse `json:"data"`
	}
	decodeBody(t, rampResp, &rampBody)
	assert.Equal(t, "INPROGRESS", rampBody.Data.Status)
	assert.Equal(t, uint8(50), rampBody.Data.TrafficPercentage)

	concludeResp, err := authedRequest(http.MethodPatch,
		fmt.Sprintf("%s/experiments/%d/conclude", testSrv.URL, id),
		map[string]any{"chosen_variant": "treatment"})
	require.NoError(t, err)
	defer func() { _ = concludeResp.Body.Close() }()
	require.Equal(t, http.StatusOK, concludeResp.StatusCode)

	var concludeBody struct {
		Data model.ExperimentResponse `json:"data"`
	}
	decodeBody(t, concludeResp, &concludeBody)
	assert.Equal(t, "CONCLUDED", concludeBody.Data.Status)
	require.NotNil(t, concludeBody.Data.ChosenVariant)
	assert.Equal(t, "treatment", *concludeBody.Data.ChosenVariant)

	// Conclude promotes the winning variant's overrides to default config.
	getResp, err := authedRequest(http.MethodGet, testSrv.URL+"/default-config", nil)
	require.NoError(t, err)
	defer func() { _ = getResp.Body.Close() }()
	var listBody struct {
		Data []model.DefaultConfigResponse `json:"data"`
	}
	decodeBody(t, getResp, &listBody)
	for _, e := range listBody.Data {
		if e.Key == key {
			assert.Equal(t, "green", e.Value)
		}
	}
}

func TestListExperimentsFiltersByStatus(t *testing.T) {
	resp, err := authedRequest(http.MethodGet, testSrv.URL+"/experiments?status=CONCLUDED&count=100", nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data []model.ExperimentResponse `json:"data"`
	}
	decodeBody(t, resp, &body)
	for _, e := range body.Data {
		assert.Equal(t, "CONCLUDED", e.Status)
	}
}

func TestConfigSnapshotRequiresAuth(t *testing.T) {
	resp, err := http.Get(testSrv.URL + "/config")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestConfigSnapshotWithAuth(t *testing.T) {
	resp, err := authedRequest(http.MethodGet, testSrv.URL+"/config", nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data model.ConfigSnapshotResponse `json:"data"`
	}
	decodeBody(t, resp, &body)
	assert.NotNil(t, body.Data.Contexts)
	assert.NotNil(t, body.Data.DefaultConfigs)
}

func TestRampExperimentInvalidIDIsBadRequest(t *testing.T) {
	resp, err := authedRequest(http.MethodPatch, testSrv.URL+"/experiments/not-a-number/ramp",
		map[string]any{"traffic_percentage": uint8(10)})
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
