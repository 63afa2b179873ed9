package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/devrev/cryptgate/internal/backend"
	"github.com/devrev/cryptgate/internal/crypto"
	"github.com/devrev/cryptgate/internal/health"
	"github.com/devrev/cryptgate/internal/model"
	"github.com/devrev/cryptgate/internal/scheduler"
	"github.com/devrev/cryptgate/internal/service"
	"github.com/devrev/cryptgate/internal/snapshot"
	"github.com/devrev/cryptgate/internal/util/workerpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T, role model.ServiceRole) *httptest.Server {
	t.Helper()
	logger := zap.NewNop()

	store := backend.NewMemoryStore(logger)
	instances := []model.BackendInstance{{
		ID:      "crud-01",
		URL:     "http://localhost:8000",
		Role:    model.RoleMixed,
		Timeout: time.Second,
		Retries: 1,
	}}
	stores := map[string]backend.Store{"crud-01": store}

	snapshots, err := snapshot.NewCache(t.TempDir(), time.Hour, 24*time.Hour, logger)
	require.NoError(t, err)

	monitor := health.NewMonitor(instances, stores, time.Hour, logger)
	emergency := scheduler.NewEmergencyManager(snapshots, scheduler.NewAlerter("", 0, logger), 48*time.Hour, time.Hour, nil, logger)
	sched := scheduler.NewScheduler(model.StrategySingle, instances, stores, monitor, emergency, nil, logger)
	pool := workerpool.New(&workerpool.Config{Name: "batch", MaxWorkers: 4, Logger: logger})
	svc := service.NewCryptoService(role, crypto.NewEncryptor("test-salt"), sched, snapshots, pool, nil, logger)

	mux := http.NewServeMux()
	New(svc, logger).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) (*http.Response, response) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	var env response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp, env
}

func TestHandler_EncryptDecryptRoundTrip(t *testing.T) {
	srv := newTestServer(t, model.ServiceMixed)

	resp, env := postJSON(t, srv.URL+"/api/encrypt", map[string]string{
		"data":          "round trip payload",
		"password":      "pw",
		"resource_type": "credentials",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, env.Success)

	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	resourceID, _ := data["resource_id"].(string)
	require.NotEmpty(t, resourceID)

	resp, env = postJSON(t, srv.URL+"/api/decrypt", map[string]string{
		"password":      "pw",
		"resource_type": "credentials",
		"resource_id":   resourceID,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, env.Success)
	decData, ok := env.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "round trip payload", decData["data"])
}

func TestHandler_ErrorStatusCodes(t *testing.T) {
	mixed := newTestServer(t, model.ServiceMixed)
	encryptOnly := newTestServer(t, model.ServiceEncrypt)

	tests := []struct {
		name string
		url  string
		body any
		want int
	}{
		{
			name: "role not permitted",
			url:  encryptOnly.URL + "/api/decrypt",
			body: map[string]string{"password": "pw", "resource_type": "t", "encrypted_data": "eA=="},
			want: http.StatusForbidden,
		},
		{
			name: "invalid request both sources",
			url:  mixed.URL + "/api/decrypt",
			body: map[string]string{"password": "pw", "resource_type": "t", "resource_id": "x", "encrypted_data": "eA=="},
			want: http.StatusBadRequest,
		},
		{
			name: "empty password",
			url:  mixed.URL + "/api/encrypt",
			body: map[string]string{"data": "d", "password": "", "resource_type": "t"},
			want: http.StatusBadRequest,
		},
		{
			name: "tampered ciphertext",
			url:  mixed.URL + "/api/decrypt",
			body: map[string]string{"password": "pw", "resource_type": "t", "encrypted_data": "bm90LXJlYWwtY2lwaGVydGV4dA=="},
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "resource not found",
			url:  mixed.URL + "/api/decrypt",
			body: map[string]string{"password": "pw", "resource_type": "t", "resource_id": "missing"},
			want: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, env := postJSON(t, tt.url, tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Message)
		})
	}
}

func TestHandler_MalformedBody(t *testing.T) {
	srv := newTestServer(t, model.ServiceMixed)

	resp, err := http.Post(srv.URL+"/api/encrypt", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_BatchDecryptMixedResults(t *testing.T) {
	srv := newTestServer(t, model.ServiceMixed)

	_, env := postJSON(t, srv.URL+"/api/encrypt", map[string]string{
		"data":          "payload A",
		"password":      "right",
		"resource_type": "credentials",
	})
	data := env.Data.(map[string]any)
	encrypted, _ := data["encrypted_data"].(string)
	require.NotEmpty(t, encrypted)

	resp, env := postJSON(t, srv.URL+"/api/decrypt/batch", []map[string]string{
		{"password": "right", "resource_type": "credentials", "encrypted_data": encrypted},
		{"password": "wrong", "resource_type": "credentials", "encrypted_data": encrypted},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, "per-item failures keep the batch call successful")
	require.True(t, env.Success)

	items, ok := env.Data.([]any)
	require.True(t, ok)
	require.Len(t, items, 2)

	first := items[0].(map[string]any)
	assert.Equal(t, true, first["success"])

	second := items[1].(map[string]any)
	assert.NotEqual(t, true, second["success"])
	errMsg, _ := second["error"].(string)
	assert.NotEmpty(t, errMsg)
}

func TestHandler_Status(t *testing.T) {
	srv := newTestServer(t, model.ServiceMixed)

	resp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var env response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.True(t, env.Success)
	assert.NotEmpty(t, env.Message)
}
