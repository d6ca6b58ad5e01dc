package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"parchment/api/internal/apikey"
	"parchment/api/internal/store"
)

type memKeyStore struct {
	mu   sync.Mutex
	keys map[string]store.APIKey
}

func newMemKeyStore() *memKeyStore {
	return &memKeyStore{keys: map[string]store.APIKey{}}
}

func (m *memKeyStore) CreateAPIKey(ctx context.Context, key store.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key.ID] = key
	return nil
}
func (m *memKeyStore) GetAPIKey(ctx context.Context, id string) (store.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.keys[id]
	if !ok {
		return store.APIKey{}, sql.ErrNoRows
	}
	return key, nil
}
func (m *memKeyStore) TouchAPIKey(ctx context.Context, id string) error { return nil }
func (m *memKeyStore) RevokeAPIKey(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, id)
	return nil
}

func newTestServer(t *testing.T, st *fakeStore, requireKey bool) (*httptest.Server, string) {
	t.Helper()
	svc := newTestService(st, &fakeHistory{}, newFakeRegistry())

	var keys *apikey.Service
	var rawKey string
	if requireKey {
		keys = apikey.NewService(newMemKeyStore())
		issued, _, err := keys.Issue(context.Background(), "test")
		if err != nil {
			t.Fatalf("issue key: %v", err)
		}
		rawKey = issued
	}

	server := httptest.NewServer(NewHTTPServer(svc, keys, "*", requireKey).Handler())
	t.Cleanup(server.Close)
	return server, rawKey
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{}, false)

	resp, err := http.Get(server.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestReadyEndpoint(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{}, false)

	resp, err := http.Get(server.URL + "/api/ready")
	if err != nil {
		t.Fatalf("GET /api/ready: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var payload struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !payload.OK {
		t.Fatal("expected ok=true")
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{}, false)

	resp, err := http.Get(server.URL + "/api/nope")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestCreateTemplateOverHTTP(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{}, false)

	resp, err := http.Post(server.URL+"/api/templates", "application/json",
		strings.NewReader(`{"name":"Lease Agreement"}`))
	if err != nil {
		t.Fatalf("POST /api/templates: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var tpl store.Template
	if err := json.NewDecoder(resp.Body).Decode(&tpl); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tpl.Name != "Lease Agreement" {
		t.Fatalf("unexpected template: %+v", tpl)
	}
	if !strings.HasPrefix(tpl.ID, "tpl_") {
		t.Fatalf("expected tpl_ id, got %q", tpl.ID)
	}
}

func TestCreateTemplateRejectsBlankName(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{}, false)

	resp, err := http.Post(server.URL+"/api/templates", "application/json",
		strings.NewReader(`{"name":"  "}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestInvalidJSONBody(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{}, false)

	resp, err := http.Post(server.URL+"/api/templates", "application/json",
		strings.NewReader(`{"name":`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestSaveVersionContentOverHTTP(t *testing.T) {
	st := &fakeStore{
		getVersionFn: func(ctx context.Context, templateID, versionID string) (store.TemplateVersion, error) {
			return store.TemplateVersion{ID: versionID, TemplateID: templateID, Status: store.VersionStatusDraft}, nil
		},
	}
	server, _ := newTestServer(t, st, false)

	req, _ := http.NewRequest(http.MethodPut,
		server.URL+"/api/templates/tpl-1/versions/ver-1/content",
		strings.NewReader(`{"content": {"version":2,"content":[{"type":"paragraph","content":[{"type":"text","text":"Hi"}]}]}}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT content: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if st.saveCount() != 1 {
		t.Fatalf("expected 1 save, got %d", st.saveCount())
	}
}

func TestSaveVersionContentDiagnosticsOverHTTP(t *testing.T) {
	st := &fakeStore{
		getVersionFn: func(ctx context.Context, templateID, versionID string) (store.TemplateVersion, error) {
			return store.TemplateVersion{ID: versionID, TemplateID: templateID, Status: store.VersionStatusDraft}, nil
		},
	}
	server, _ := newTestServer(t, st, false)

	// Structured envelope whose inner content cannot decode as blocks.
	req, _ := http.NewRequest(http.MethodPut,
		server.URL+"/api/templates/tpl-1/versions/ver-1/content",
		strings.NewReader(`{"content": {"version":2,"content":"not-an-array"}}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT content: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}

	var result struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Success {
		t.Fatal("expected success=false")
	}
	if st.saveCount() != 0 {
		t.Fatal("invalid content must not be persisted")
	}
}

func TestVersionFetchIncludesSignerRolesAndInjectables(t *testing.T) {
	st := &fakeStore{
		getVersionFn: func(ctx context.Context, templateID, versionID string) (store.TemplateVersion, error) {
			return store.TemplateVersion{
				ID: versionID, TemplateID: templateID,
				Status:  store.VersionStatusPublished,
				Content: []byte(`{"version":2,"content":[]}`),
			}, nil
		},
		getSignerRolesFn: func(ctx context.Context, versionID string) ([]store.VersionSignerRole, error) {
			return []store.VersionSignerRole{{ID: "role-1", VersionID: versionID, Label: "tenant", SigningOrder: 1}}, nil
		},
		getInjectablesFn: func(ctx context.Context, versionID string) ([]store.VersionInjectable, error) {
			return []store.VersionInjectable{{ID: "inj-1", VersionID: versionID, VariableID: "var-rent"}}, nil
		},
	}
	server, _ := newTestServer(t, st, false)

	resp, err := http.Get(server.URL + "/api/templates/tpl-1/versions/ver-1")
	if err != nil {
		t.Fatalf("GET version: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var payload map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var roles []store.VersionSignerRole
	if err := json.Unmarshal(payload["signerRoles"], &roles); err != nil {
		t.Fatalf("signerRoles missing or malformed: %v", err)
	}
	if len(roles) != 1 || roles[0].Label != "tenant" {
		t.Fatalf("unexpected signerRoles: %+v", roles)
	}
	var injectables []store.VersionInjectable
	if err := json.Unmarshal(payload["injectables"], &injectables); err != nil {
		t.Fatalf("injectables missing or malformed: %v", err)
	}
	if len(injectables) != 1 || injectables[0].VariableID != "var-rent" {
		t.Fatalf("unexpected injectables: %+v", injectables)
	}
}

func TestVersionFetchDraftHasEmptyWorkflowRows(t *testing.T) {
	st := &fakeStore{
		getVersionFn: func(ctx context.Context, templateID, versionID string) (store.TemplateVersion, error) {
			return store.TemplateVersion{ID: versionID, TemplateID: templateID, Status: store.VersionStatusDraft}, nil
		},
	}
	server, _ := newTestServer(t, st, false)

	resp, err := http.Get(server.URL + "/api/templates/tpl-1/versions/ver-1")
	if err != nil {
		t.Fatalf("GET version: %v", err)
	}
	defer resp.Body.Close()

	var payload map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// Drafts have no extracted rows yet, but the fields are still arrays.
	if string(payload["signerRoles"]) != "[]" {
		t.Fatalf("expected empty signerRoles array, got %s", payload["signerRoles"])
	}
	if string(payload["injectables"]) != "[]" {
		t.Fatalf("expected empty injectables array, got %s", payload["injectables"])
	}
}

func TestSaveVersionContentMetaOverHTTP(t *testing.T) {
	var gotName, gotLanguage string
	st := &fakeStore{
		getVersionFn: func(ctx context.Context, templateID, versionID string) (store.TemplateVersion, error) {
			return store.TemplateVersion{ID: versionID, TemplateID: templateID, Status: store.VersionStatusDraft}, nil
		},
		updateVersionContentFn: func(ctx context.Context, versionID string, contentRaw []byte, name, language, plainText string) error {
			gotName, gotLanguage = name, language
			return nil
		},
	}
	server, _ := newTestServer(t, st, false)

	req, _ := http.NewRequest(http.MethodPut,
		server.URL+"/api/templates/tpl-1/versions/ver-1/content",
		strings.NewReader(`{"content": {"version":2,"content":[]}, "meta": {"title":"Renewal lease","language":"fr"}}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT content: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if gotName != "Renewal lease" || gotLanguage != "fr" {
		t.Fatalf("meta not plumbed through: name=%q language=%q", gotName, gotLanguage)
	}
}

func TestVersionNotFoundMapsTo404(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{}, false)

	resp, err := http.Get(server.URL + "/api/templates/tpl-1/versions/missing")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestAPIKeyRequired(t *testing.T) {
	server, rawKey := newTestServer(t, &fakeStore{}, true)

	// No key: rejected.
	resp, err := http.Get(server.URL + "/api/templates")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", resp.StatusCode)
	}

	// Bad key: rejected.
	req, _ := http.NewRequest(http.MethodGet, server.URL+"/api/templates", nil)
	req.Header.Set("X-API-Key", "pk_nope_nope")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad key, got %d", resp.StatusCode)
	}

	// Valid key in X-API-Key: allowed.
	req, _ = http.NewRequest(http.MethodGet, server.URL+"/api/templates", nil)
	req.Header.Set("X-API-Key", rawKey)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with key, got %d", resp.StatusCode)
	}

	// Valid key as bearer token: allowed.
	req, _ = http.NewRequest(http.MethodGet, server.URL+"/api/templates", nil)
	req.Header.Set("Authorization", "Bearer "+rawKey)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with bearer key, got %d", resp.StatusCode)
	}

	// Health stays open.
	resp, err = http.Get(server.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected open health check, got %d", resp.StatusCode)
	}
}

func TestIssueAndRevokeKeyOverHTTP(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{}, false)

	// Keys service absent: issuing is unavailable.
	resp, err := http.Post(server.URL+"/api/keys", "application/json",
		strings.NewReader(`{"name":"ci"}`))
	if err != nil {
		t.Fatalf("POST /api/keys: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without key service, got %d", resp.StatusCode)
	}
}
