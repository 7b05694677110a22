package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"

	appkafka "example.com/blogapi/internal/broker"
	config "example.com/blogapi/internal/init"
	"example.com/blogapi/internal/models"
	"example.com/blogapi/internal/service"
	"example.com/blogapi/internal/store"
	"github.com/gorilla/mux"
)

//
// --- Helpers ---
//

func testConfig() *config.Config {
	return &config.Config{
		SecretKey:              "test-secret",
		SessionCookieName:      "session",
		SessionRefreshIdentity: true,
		BcryptCost:             4,
		ReadPolicy:             "visibility",
		AdminCanDelete:         true,
	}
}

type testEnv struct {
	srv   *httptest.Server
	mem   *store.MemoryStore
	kafka *appkafka.MockKafka
}

// setupTestServer starts the full router over an in-memory store. Events go
// through the Kafka publisher into a mock that records them as activity.
func setupTestServer(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()
	mem := store.NewMemory()
	mk := &appkafka.MockKafka{Store: mem}

	s, err := New(mem, appkafka.NewPublisher(mk), cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{srv: ts, mem: mem, kafka: mk}
}

// newClient returns a client with its own cookie jar, i.e. its own session.
func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar.New failed: %v", err)
	}
	return &http.Client{Jar: jar}
}

func sendJSON(t *testing.T, c *http.Client, method, url string, body any, expectedStatus int) []byte {
	t.Helper()

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json.Marshal failed: %v", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != expectedStatus {
		t.Fatalf("%s %s: expected %d, got %d: %s", method, url, expectedStatus, resp.StatusCode, string(b))
	}
	return b
}

func decode[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("decode %s: %v", string(b), err)
	}
	return v
}

func (e *testEnv) signup(t *testing.T, username string) *http.Client {
	t.Helper()
	c := newClient(t)
	creds := map[string]string{"username": username, "password": "pw-" + username}
	sendJSON(t, c, http.MethodPost, e.srv.URL+"/register", creds, http.StatusCreated)
	sendJSON(t, c, http.MethodPost, e.srv.URL+"/login", creds, http.StatusOK)
	return c
}

// seedAdmin creates an admin out of band, the way the adduser command does.
func (e *testEnv) seedAdmin(t *testing.T, username string) *http.Client {
	t.Helper()
	auth := service.NewAuthenticator(e.mem, nil, service.AuthOptions{BcryptCost: 4})
	creds := service.CredentialsRequest{Username: username, Password: "pw-" + username}
	if _, err := auth.Register(context.Background(), creds, true); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	c := newClient(t)
	sendJSON(t, c, http.MethodPost, e.srv.URL+"/login", creds, http.StatusOK)
	return c
}

func (e *testEnv) createPost(t *testing.T, c *http.Client, content string) string {
	t.Helper()
	b := sendJSON(t, c, http.MethodPost, e.srv.URL+"/api/blog", map[string]string{"content": content}, http.StatusCreated)
	resp := decode[map[string]string](t, b)
	if resp["id"] == "" {
		t.Fatalf("no id in response: %s", string(b))
	}
	return resp["id"]
}

func (e *testEnv) listPosts(t *testing.T, c *http.Client) []service.PostView {
	t.Helper()
	return decode[[]service.PostView](t, sendJSON(t, c, http.MethodGet, e.srv.URL+"/api/blog", nil, http.StatusOK))
}

//
// --- Tests ---
//

func TestCheckSessionLifecycle(t *testing.T) {
	env := setupTestServer(t, testConfig())
	c := newClient(t)
	url := env.srv.URL + "/api/check-session"

	before := decode[map[string]any](t, sendJSON(t, c, http.MethodGet, url, nil, http.StatusOK))
	if before["logged_in"] != false {
		t.Fatalf("expected logged_in=false before login, got %v", before)
	}

	creds := map[string]string{"username": "alice", "password": "pw1"}
	sendJSON(t, c, http.MethodPost, env.srv.URL+"/register", creds, http.StatusCreated)
	login := decode[map[string]any](t, sendJSON(t, c, http.MethodPost, env.srv.URL+"/login", creds, http.StatusOK))
	if tok, _ := login["token"].(string); tok == "" {
		t.Fatalf("login response carries no token: %v", login)
	}

	during := decode[map[string]any](t, sendJSON(t, c, http.MethodGet, url, nil, http.StatusOK))
	if during["logged_in"] != true || during["username"] != "alice" || during["is_admin"] != false {
		t.Fatalf("unexpected session state after login: %v", during)
	}

	sendJSON(t, c, http.MethodPost, env.srv.URL+"/logout", nil, http.StatusOK)
	after := decode[map[string]any](t, sendJSON(t, c, http.MethodGet, url, nil, http.StatusOK))
	if after["logged_in"] != false {
		t.Fatalf("expected logged_in=false after logout, got %v", after)
	}

	// logout twice is fine
	sendJSON(t, c, http.MethodPost, env.srv.URL+"/logout", nil, http.StatusOK)
}

func TestBearerToken(t *testing.T) {
	env := setupTestServer(t, testConfig())
	c := &http.Client{}
	creds := map[string]string{"username": "alice", "password": "pw1"}
	sendJSON(t, c, http.MethodPost, env.srv.URL+"/register", creds, http.StatusCreated)
	login := decode[map[string]any](t, sendJSON(t, c, http.MethodPost, env.srv.URL+"/login", creds, http.StatusOK))

	req, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/api/check-session", nil)
	req.Header.Set("Authorization", "Bearer "+login["token"].(string))
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var state map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if state["logged_in"] != true || state["username"] != "alice" {
		t.Fatalf("bearer token not accepted: %v", state)
	}
}

func TestForgedCookieIsAnonymous(t *testing.T) {
	env := setupTestServer(t, testConfig())

	req, _ := http.NewRequest(http.MethodPost, env.srv.URL+"/api/blog", bytes.NewBufferString(`{"content":"x"}`))
	req.AddCookie(&http.Cookie{Name: "session", Value: "forged"})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for forged cookie, got %d", resp.StatusCode)
	}
}

func TestRegisterDuplicateAndLoginFailures(t *testing.T) {
	env := setupTestServer(t, testConfig())
	c := newClient(t)
	creds := map[string]string{"username": "alice", "password": "pw1"}

	sendJSON(t, c, http.MethodPost, env.srv.URL+"/register", creds, http.StatusCreated)
	b := sendJSON(t, c, http.MethodPost, env.srv.URL+"/register", creds, http.StatusConflict)
	if decode[map[string]string](t, b)["error"] == "" {
		t.Fatalf("expected error message, got %s", string(b))
	}

	sendJSON(t, c, http.MethodPost, env.srv.URL+"/register", map[string]string{"username": "bob"}, http.StatusBadRequest)

	// repeated successful logins do not make a wrong password work
	sendJSON(t, c, http.MethodPost, env.srv.URL+"/login", creds, http.StatusOK)
	sendJSON(t, c, http.MethodPost, env.srv.URL+"/login", creds, http.StatusOK)
	sendJSON(t, c, http.MethodPost, env.srv.URL+"/login",
		map[string]string{"username": "alice", "password": "nope"}, http.StatusUnauthorized)
	sendJSON(t, c, http.MethodPost, env.srv.URL+"/login",
		map[string]string{"username": "ghost", "password": "pw1"}, http.StatusUnauthorized)

	req, _ := http.NewRequest(http.MethodPost, env.srv.URL+"/login", bytes.NewBufferString("{"))
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", resp.StatusCode)
	}
}

func TestPostRequiresSession(t *testing.T) {
	env := setupTestServer(t, testConfig())
	anon := newClient(t)

	sendJSON(t, anon, http.MethodPost, env.srv.URL+"/api/blog", map[string]string{"content": "hi"}, http.StatusUnauthorized)
	sendJSON(t, anon, http.MethodGet, env.srv.URL+"/api/blog", nil, http.StatusUnauthorized)

	alice := env.signup(t, "alice")
	sendJSON(t, alice, http.MethodPost, env.srv.URL+"/api/blog", map[string]string{"content": "  "}, http.StatusBadRequest)
	sendJSON(t, alice, http.MethodPost, env.srv.URL+"/api/blog", map[string]string{}, http.StatusBadRequest)

	if got := env.listPosts(t, alice); len(got) != 0 {
		t.Fatalf("rejected posts must not be stored, got %v", got)
	}
	if posts, err := env.mem.ListPosts(context.Background()); err != nil || len(posts) != 0 {
		t.Fatalf("store should be empty, got %v (err=%v)", posts, err)
	}
}

func TestUsernameIsTrimmed(t *testing.T) {
	env := setupTestServer(t, testConfig())
	alice := env.signup(t, "alice")
	url := env.srv.URL

	blank := map[string]string{"username": "   ", "password": "pw"}
	sendJSON(t, newClient(t), http.MethodPost, url+"/register", blank, http.StatusBadRequest)

	bob := newClient(t)
	sendJSON(t, bob, http.MethodPost, url+"/register", map[string]string{"username": " bob", "password": "pw"}, http.StatusCreated)
	sendJSON(t, bob, http.MethodPost, url+"/login", map[string]string{"username": "bob", "password": "pw"}, http.StatusOK)

	id := env.createPost(t, alice, "hi")
	sendJSON(t, alice, http.MethodPatch, url+"/api/blog/"+id,
		map[string]any{"visible_to": []string{" bob"}}, http.StatusOK)

	if got := env.listPosts(t, bob); len(got) != 1 {
		t.Fatalf("bob should see alice's post, got %v", got)
	}
	sendJSON(t, bob, http.MethodGet, url+"/api/blog/"+id, nil, http.StatusOK)
}

func TestVisibilityScenario(t *testing.T) {
	env := setupTestServer(t, testConfig())
	alice := env.signup(t, "alice")
	bob := env.signup(t, "bob")
	carol := env.signup(t, "carol")
	admin := env.seedAdmin(t, "root")

	id := env.createPost(t, alice, "hi")

	if got := env.listPosts(t, bob); len(got) != 0 {
		t.Fatalf("bob should see nothing yet, got %v", got)
	}

	sendJSON(t, alice, http.MethodPatch, env.srv.URL+"/api/blog/"+id,
		map[string]any{"visible_to": []string{"bob"}}, http.StatusOK)

	got := env.listPosts(t, bob)
	if len(got) != 1 || got[0].Content != "hi" || got[0].Author != "alice" {
		t.Fatalf("bob should see alice's post, got %v", got)
	}
	if got[0].CanEdit || got[0].CanDelete {
		t.Fatalf("bob must not be able to edit or delete: %+v", got[0])
	}
	if !got[0].VisibleTo.Equal(models.NewAudience("bob")) {
		t.Fatalf("unexpected visible_to: %v", got[0].VisibleTo)
	}

	if got := env.listPosts(t, carol); len(got) != 0 {
		t.Fatalf("carol should see nothing, got %v", got)
	}
	sendJSON(t, carol, http.MethodGet, env.srv.URL+"/api/blog/"+id, nil, http.StatusForbidden)

	adminView := env.listPosts(t, admin)
	if len(adminView) != 1 || !adminView[0].CanEdit || !adminView[0].CanDelete {
		t.Fatalf("admin should see and manage the post, got %v", adminView)
	}

	// legacy camelCase key and comma separated list
	sendJSON(t, alice, http.MethodPut, env.srv.URL+"/api/blog/"+id,
		map[string]any{"visibleTo": "carol, bob"}, http.StatusOK)
	view := decode[service.PostView](t, sendJSON(t, carol, http.MethodGet, env.srv.URL+"/api/blog/"+id, nil, http.StatusOK))
	if view.Content != "hi" {
		t.Fatalf("content should be unchanged, got %q", view.Content)
	}
}

func TestUpdateAndDeleteAuthorization(t *testing.T) {
	env := setupTestServer(t, testConfig())
	alice := env.signup(t, "alice")
	bob := env.signup(t, "bob")
	anon := newClient(t)
	url := env.srv.URL + "/api/blog/"

	id := env.createPost(t, alice, "original")

	sendJSON(t, bob, http.MethodPut, url+id, map[string]string{"content": "hijacked"}, http.StatusForbidden)
	sendJSON(t, bob, http.MethodDelete, url+id, nil, http.StatusForbidden)
	sendJSON(t, anon, http.MethodPut, url+id, map[string]string{"content": "x"}, http.StatusUnauthorized)
	sendJSON(t, anon, http.MethodDelete, url+id, nil, http.StatusUnauthorized)
	sendJSON(t, alice, http.MethodPut, url+"missing", map[string]string{"content": "x"}, http.StatusNotFound)
	sendJSON(t, alice, http.MethodPut, url+id, map[string]string{"content": ""}, http.StatusBadRequest)

	got := env.listPosts(t, alice)
	if len(got) != 1 || got[0].Content != "original" {
		t.Fatalf("post must be unchanged after rejected updates, got %v", got)
	}

	sendJSON(t, alice, http.MethodPut, url+id, map[string]string{"content": "edited"}, http.StatusOK)
	if got := env.listPosts(t, alice); got[0].Content != "edited" {
		t.Fatalf("expected edited content, got %q", got[0].Content)
	}

	sendJSON(t, alice, http.MethodDelete, url+id, nil, http.StatusOK)
	if got := env.listPosts(t, alice); len(got) != 0 {
		t.Fatalf("post should be gone, got %v", got)
	}
	sendJSON(t, alice, http.MethodDelete, url+id, nil, http.StatusNotFound)
}

func TestAdminDeleteToggle(t *testing.T) {
	cfg := testConfig()
	cfg.AdminCanDelete = false
	env := setupTestServer(t, cfg)
	alice := env.signup(t, "alice")
	admin := env.seedAdmin(t, "root")

	id := env.createPost(t, alice, "mine")
	sendJSON(t, admin, http.MethodDelete, env.srv.URL+"/api/blog/"+id, nil, http.StatusForbidden)
	sendJSON(t, admin, http.MethodPut, env.srv.URL+"/api/blog/"+id, map[string]string{"content": "moderated"}, http.StatusOK)
}

func TestPublicReadPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.ReadPolicy = "public"
	env := setupTestServer(t, cfg)
	alice := env.signup(t, "alice")
	env.createPost(t, alice, "hello world")

	got := env.listPosts(t, newClient(t))
	if len(got) != 1 || got[0].CanEdit || got[0].CanDelete {
		t.Fatalf("anonymous reader should see one read-only post, got %v", got)
	}
}

func TestActivityLog(t *testing.T) {
	env := setupTestServer(t, testConfig())
	alice := env.signup(t, "alice")
	admin := env.seedAdmin(t, "root")
	env.createPost(t, alice, "hi")

	sendJSON(t, alice, http.MethodGet, env.srv.URL+"/api/activity", nil, http.StatusForbidden)
	sendJSON(t, newClient(t), http.MethodGet, env.srv.URL+"/api/activity", nil, http.StatusUnauthorized)
	sendJSON(t, admin, http.MethodGet, env.srv.URL+"/api/activity?limit=abc", nil, http.StatusBadRequest)

	events := decode[[]models.Event](t, sendJSON(t, admin, http.MethodGet, env.srv.URL+"/api/activity?limit=2", nil, http.StatusOK))
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != models.EventPostCreated || events[1].Type != models.EventUserLoggedIn {
		t.Fatalf("expected newest first, got %v", events)
	}
	if len(env.kafka.Written()) == 0 {
		t.Fatal("expected events to go through kafka")
	}
}

func TestPublishFailureDoesNotFailRequests(t *testing.T) {
	mem := store.NewMemory()
	s, err := New(mem, appkafka.NewPublisher(&appkafka.MockKafkaFail{}), testConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	env := &testEnv{srv: ts, mem: mem}

	alice := env.signup(t, "alice")
	env.createPost(t, alice, "still works")
}

func TestAboutListsRegisteredRoutes(t *testing.T) {
	s, err := New(store.NewMemory(), nil, testConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	router := s.Handler().(*mux.Router)

	registered := map[string]bool{}
	err = router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		path, err := route.GetPathTemplate()
		if err != nil {
			return err
		}
		methods, err := route.GetMethods()
		if err != nil {
			return err
		}
		for _, m := range methods {
			registered[m+" "+path] = true
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk failed: %v", err)
	}

	ts := httptest.NewServer(router)
	defer ts.Close()
	about := decode[struct {
		Routes []route `json:"routes"`
	}](t, sendJSON(t, http.DefaultClient, http.MethodGet, ts.URL+"/api/about", nil, http.StatusOK))

	if len(about.Routes) != len(registered) {
		t.Fatalf("about lists %d routes, router has %d", len(about.Routes), len(registered))
	}
	for _, rt := range about.Routes {
		if !registered[rt.Method+" "+rt.Path] {
			t.Errorf("documented route %s %s is not registered", rt.Method, rt.Path)
		}
	}
}

func TestUnknownRouteIsJSON(t *testing.T) {
	env := setupTestServer(t, testConfig())
	b := sendJSON(t, http.DefaultClient, http.MethodGet, env.srv.URL+"/nope", nil, http.StatusNotFound)
	if decode[map[string]string](t, b)["error"] == "" {
		t.Fatalf("expected JSON error, got %s", string(b))
	}
}
