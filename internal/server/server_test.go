package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ctxconfig/cac/internal/auth"
	"github.com/ctxconfig/cac/internal/experiment"
	"github.com/ctxconfig/cac/internal/server"
	"github.com/ctxconfig/cac/internal/testutil"
	"github.com/ctxconfig/cac/internal/validatorfn"
)

const testAdminSecret = "test-admin-secret"

var testSrv *httptest.Server

func TestMain(m *testing.M) {
	ctx := context.Background()

	tc := testutil.MustStartPostgres()
	logger := testutil.TestLogger()

	db, err := tc.NewTestDB(ctx, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create DB: %v\n", err)
		os.Exit(1)
	}

	verifier, err := auth.NewAdminVerifier(testAdminSecret)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create admin verifier: %v\n", err)
		os.Exit(1)
	}

	expSvc := experiment.NewService(db, experiment.OverlapFlags{
		AllowDiffKeysOverlappingCtx:    true,
		AllowSameKeysNonOverlappingCtx: true,
	})

	srv := server.New(server.ServerConfig{
		DB:                  db,
		Experiments:         expSvc,
		Validators:          validatorfn.NewDefaultRegistry(),
		AdminVerifier:       verifier,
		Logger:              logger,
		Port:                0,
		ReadTimeout:         30 * time.Second,
		WriteTimeout:        30 * time.Second,
		Version:             "test",
		MaxRequestBodyBytes: 1 * 1024 * 1024,
		CORSAllowedOrigins:  []string{"*"},
	})

	testSrv = httptest.NewServer(srv.Handler())

	code := m.Run()

	testSrv.Close()
	db.Close()
	tc.Terminate()
	os.Exit(code)
}

func authedRequest(method, url string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+testAdminSecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return http.DefaultClient.Do(req)
}

func decodeBody(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target))
}
