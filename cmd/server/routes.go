package server

import "net/http"

const (
	authNone     = "none"
	authOptional = "session (optional)"
	authSession  = "session"
	authAdmin    = "admin session"
	authRead     = "per read policy"
)

// route is one entry of the API contract. The same table registers the
// handlers and is served by /api/about.
type route struct {
	Method   string   `json:"method"`
	Path     string   `json:"path"`
	Auth     string   `json:"auth"`
	Request  string   `json:"request,omitempty"`
	Response string   `json:"response"`
	Errors   []string `json:"errors,omitempty"`

	handler http.HandlerFunc
}

func (s *Server) routes() []route {
	postBody := "{id, content, author, author_id, created_at, visible_to, can_edit, can_delete}"
	update := "{content?, visible_to?}"

	return []route{
		{Method: http.MethodPost, Path: "/register", Auth: authNone,
			Request: "{username, password}", Response: "201 {message, id}",
			Errors: []string{"400 missing field", "409 username taken"}, handler: s.registerHandler},
		{Method: http.MethodPost, Path: "/login", Auth: authNone,
			Request: "{username, password}", Response: "200 {message, token, user_id, username, is_admin}; sets session cookie",
			Errors: []string{"400 missing field", "401 invalid credentials"}, handler: s.loginHandler},
		{Method: http.MethodPost, Path: "/logout", Auth: authOptional,
			Response: "200 {message}; clears session cookie", handler: s.logoutHandler},
		{Method: http.MethodGet, Path: "/api/check-session", Auth: authNone,
			Response: "200 {logged_in, user_id?, username?, is_admin?}", handler: s.checkSessionHandler},
		{Method: http.MethodPost, Path: "/api/blog", Auth: authSession,
			Request: "{content}", Response: "201 {message, id}",
			Errors: []string{"400 empty content", "401 not logged in"}, handler: s.createPostHandler},
		{Method: http.MethodGet, Path: "/api/blog", Auth: authRead,
			Response: "200 [" + postBody + "]",
			Errors: []string{"401 not logged in"}, handler: s.listPostsHandler},
		{Method: http.MethodGet, Path: "/api/blog/{id}", Auth: authRead,
			Response: "200 " + postBody,
			Errors: []string{"401 not logged in", "403 not visible", "404 no such post"}, handler: s.getPostHandler},
		{Method: http.MethodPut, Path: "/api/blog/{id}", Auth: authSession,
			Request: update, Response: "200 {message}",
			Errors: []string{"400 empty content", "401 not logged in", "403 not allowed", "404 no such post"}, handler: s.updatePostHandler},
		{Method: http.MethodPatch, Path: "/api/blog/{id}", Auth: authSession,
			Request: update, Response: "200 {message}",
			Errors: []string{"400 empty content", "401 not logged in", "403 not allowed", "404 no such post"}, handler: s.updatePostHandler},
		{Method: http.MethodDelete, Path: "/api/blog/{id}", Auth: authSession,
			Response: "200 {message}",
			Errors: []string{"401 not logged in", "403 not allowed", "404 no such post"}, handler: s.deletePostHandler},
		{Method: http.MethodGet, Path: "/api/activity", Auth: authAdmin,
			Request: "?limit=N (default 50, max 500)", Response: "200 [{id, type, actor_id, actor_name, post_id?, at}]",
			Errors: []string{"400 bad limit", "401 not logged in", "403 not an admin"}, handler: s.activityHandler},
		{Method: http.MethodGet, Path: "/api/about", Auth: authNone,
			Response: "200 {name, read_policy, routes}", handler: s.aboutHandler},
		{Method: http.MethodGet, Path: "/healthz", Auth: authNone,
			Response: "200 {status}", handler: s.healthHandler},
	}
}
