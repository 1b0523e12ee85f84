package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irisett-go/irisett/internal/activemonitor"
	"github.com/irisett-go/irisett/internal/config"
	"github.com/irisett-go/irisett/internal/definition"
	"github.com/irisett-go/irisett/internal/notify"
	"github.com/irisett-go/irisett/internal/storetest"
	"github.com/irisett-go/irisett/internal/tmpl"
)

// testServer wires a full Handlers stack against a real migrated
// in-memory gateway, the same shape cmd/irisett-cli/main.go wires at
// startup, and returns it behind an httptest.Server plus an
// already-authenticated bearer token.
func testServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	gw := storetest.NewGateway(t)
	ctx := context.Background()

	tmplCache := tmpl.NewCache()
	definitions := definition.New(gw, tmplCache)
	require.NoError(t, definitions.Load(ctx))
	require.NoError(t, definition.Seed(ctx, definitions))

	instances := activemonitor.New(gw)
	require.NoError(t, instances.Load(ctx, 0))

	groups := notify.NewGroupStore(gw)
	contacts := notify.NewContactStore(gw)

	authCfg := config.AuthConfig{AdminUser: "admin", AdminPassword: "s3cret-password", JWTSecret: "0123456789abcdef0123456789abcdef"}
	router, err := NewRouter(gw, definitions, instances, groups, contacts, tmplCache, nil, authCfg, nil)
	require.NoError(t, err)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	body, _ := json.Marshal(loginRequest{Username: "admin", Password: "s3cret-password"})
	resp, err := http.Post(srv.URL+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var login loginResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&login))
	return srv, login.Token
}

func authedRequest(t *testing.T, srv *httptest.Server, token, method, path string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestHealthz_NoAuthRequired(t *testing.T) {
	srv, _ := testServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLogin_RejectsBadPassword(t *testing.T) {
	srv, _ := testServer(t)
	body, _ := json.Marshal(loginRequest{Username: "admin", Password: "wrong"})
	resp, err := http.Post(srv.URL+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProtectedRoute_RejectsMissingToken(t *testing.T) {
	srv, _ := testServer(t)
	resp, err := http.Get(srv.URL + "/api/v1/definitions/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDefinitions_ListIncludesSeeded(t *testing.T) {
	srv, token := testServer(t)
	resp := authedRequest(t, srv, token, http.MethodGet, "/api/v1/definitions/", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var defs []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&defs))
	assert.NotEmpty(t, defs)
}

func TestInstanceLifecycle(t *testing.T) {
	srv, token := testServer(t)

	resp := authedRequest(t, srv, token, http.MethodGet, "/api/v1/definitions/", nil)
	var defs []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&defs))
	resp.Body.Close()
	require.NotEmpty(t, defs)
	pingID := int64(defs[0]["ID"].(float64))

	resp = authedRequest(t, srv, token, http.MethodPost, "/api/v1/instances/", instanceBody{
		DefinitionID: pingID,
		Arguments:    map[string]string{"hostname": "example.com"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created map[string]int64
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()
	instID := created["id"]
	require.NotZero(t, instID)

	resp = authedRequest(t, srv, token, http.MethodGet, "/api/v1/instances/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = authedRequest(t, srv, token, http.MethodDelete, "/api/v1/instances/"+itoa(instID), nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	// The instance was idle (no scheduler wired in this test), so the
	// delete purges it immediately instead of merely soft-marking it.
	resp = authedRequest(t, srv, token, http.MethodGet, "/api/v1/instances/"+itoa(instID), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestUpdateInstanceArgs_ValidatesAndPersists(t *testing.T) {
	srv, token := testServer(t)

	resp := authedRequest(t, srv, token, http.MethodGet, "/api/v1/definitions/", nil)
	var defs []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&defs))
	resp.Body.Close()
	pingID := int64(defs[0]["ID"].(float64))

	resp = authedRequest(t, srv, token, http.MethodPost, "/api/v1/instances/", instanceBody{
		DefinitionID: pingID,
		Arguments:    map[string]string{"hostname": "old.example.com"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created map[string]int64
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()
	instID := created["id"]

	resp = authedRequest(t, srv, token, http.MethodPatch, "/api/v1/instances/"+itoa(instID)+"/args", argsBody{
		Arguments: map[string]string{"hostname": "new.example.com"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = authedRequest(t, srv, token, http.MethodGet, "/api/v1/instances/"+itoa(instID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	resp.Body.Close()
	row := snap["Row"].(map[string]any)
	args := row["Arguments"].(map[string]any)
	assert.Equal(t, "new.example.com", args["hostname"])
}

func TestUpdateInstanceArgs_RejectsMissingRequiredArgument(t *testing.T) {
	srv, token := testServer(t)

	resp := authedRequest(t, srv, token, http.MethodGet, "/api/v1/definitions/", nil)
	var defs []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&defs))
	resp.Body.Close()
	pingID := int64(defs[0]["ID"].(float64))

	resp = authedRequest(t, srv, token, http.MethodPost, "/api/v1/instances/", instanceBody{
		DefinitionID: pingID,
		Arguments:    map[string]string{"hostname": "example.com"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created map[string]int64
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()
	instID := created["id"]

	resp = authedRequest(t, srv, token, http.MethodPatch, "/api/v1/instances/"+itoa(instID)+"/args", argsBody{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateInstance_RejectsMissingRequiredArgument(t *testing.T) {
	srv, token := testServer(t)

	resp := authedRequest(t, srv, token, http.MethodGet, "/api/v1/definitions/", nil)
	var defs []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&defs))
	resp.Body.Close()
	pingID := int64(defs[0]["ID"].(float64))

	resp = authedRequest(t, srv, token, http.MethodPost, "/api/v1/instances/", instanceBody{DefinitionID: pingID})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestContactAndMonitorGroupCRUD(t *testing.T) {
	srv, token := testServer(t)

	resp := authedRequest(t, srv, token, http.MethodPost, "/api/v1/contacts/", contactBody{Name: "alice", Email: "alice@example.com", Active: true})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var contact map[string]int64
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&contact))
	resp.Body.Close()

	resp = authedRequest(t, srv, token, http.MethodPost, "/api/v1/monitor-groups/", monitorGroupBody{Name: "site-a"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var group map[string]int64
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&group))
	resp.Body.Close()

	resp = authedRequest(t, srv, token, http.MethodGet, "/api/v1/monitor-groups/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = authedRequest(t, srv, token, http.MethodDelete, "/api/v1/monitor-groups/"+itoa(group["id"]), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = authedRequest(t, srv, token, http.MethodDelete, "/api/v1/contacts/"+itoa(contact["id"]), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
