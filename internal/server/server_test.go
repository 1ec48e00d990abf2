package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"forumcore/internal/auth"
	"forumcore/internal/content"
	"forumcore/internal/models"
	"forumcore/internal/moderation"
	"forumcore/internal/session"
	"forumcore/internal/testutil"
)

const idle = 20 * time.Minute

type testEnv struct {
	srv   *Server
	clock *testutil.StubClock
}

func newTestServer(t *testing.T, opts ...session.Option) *testEnv {
	t.Helper()
	database := testutil.NewDB(t)
	clk := testutil.FixedClock()
	opts = append([]session.Option{session.WithClock(clk)}, opts...)
	sessions := session.NewManager(session.NewSQLStore(database), idle, opts...)
	srv := New(Deps{
		DB:         database,
		Auth:       auth.NewService(database, sessions, auth.WithVerifier(auth.BcryptVerifier{Cost: bcrypt.MinCost}), auth.WithClock(clk)),
		Sessions:   sessions,
		Content:    content.NewService(database, clk, nil),
		Moderation: moderation.NewEngine(database, clk, nil),
	})
	return &testEnv{srv: srv, clock: clk}
}

// user is a logged-in client.
type user struct {
	cookie *http.Cookie
	csrf   string
}

func (e *testEnv) do(t *testing.T, method, path string, u *user, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if u != nil {
		req.AddCookie(u.cookie)
	}
	w := httptest.NewRecorder()
	e.srv.ServeHTTP(w, req)
	return w
}

// post sends a state-changing request carrying the user's CSRF token.
func (e *testEnv) post(t *testing.T, path string, u *user, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	if form == nil {
		form = url.Values{}
	}
	form.Set("csrf_token", u.csrf)
	return e.do(t, http.MethodPost, path, u, form)
}

func (e *testEnv) signup(t *testing.T, name string) *user {
	t.Helper()
	form := url.Values{"username": {name}, "email": {name + "@example.com"}, "password": {"secret1"}}
	if w := e.do(t, http.MethodPost, "/register", nil, form); w.Code != http.StatusCreated {
		t.Fatalf("register %s code %d: %s", name, w.Code, w.Body)
	}
	return e.login(t, name)
}

func (e *testEnv) login(t *testing.T, name string) *user {
	t.Helper()
	w := e.do(t, http.MethodPost, "/login", nil, url.Values{"username": {name}, "password": {"secret1"}})
	if w.Code != http.StatusOK {
		t.Fatalf("login %s code %d: %s", name, w.Code, w.Body)
	}
	var sv sessionView
	decode(t, w, &sv)
	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("no cookie set")
	}
	return &user{cookie: cookies[0], csrf: sv.CSRFToken}
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func (e *testEnv) createPost(t *testing.T, u *user) int {
	t.Helper()
	w := e.post(t, "/posts", u, url.Values{"title": {"P1"}, "body": {"first post"}})
	if w.Code != http.StatusCreated {
		t.Fatalf("create post code %d: %s", w.Code, w.Body)
	}
	var p models.Post
	decode(t, w, &p)
	return p.ID
}

func postPath(id int, suffix string) string {
	return "/posts/" + strconv.Itoa(id) + suffix
}

func TestRegisterLogin(t *testing.T) {
	env := newTestServer(t)
	form := url.Values{"username": {"alice"}, "email": {"a@b.com"}, "password": {"secret"}}
	w := env.do(t, http.MethodPost, "/register", nil, form)
	if w.Code != http.StatusCreated {
		t.Fatalf("register code %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "password") {
		t.Error("account response leaks the password hash")
	}
	var a models.Account
	decode(t, w, &a)
	if !a.IsModerator {
		t.Error("first registrant is not a moderator")
	}

	w = env.do(t, http.MethodPost, "/login", nil, url.Values{"username": {"ALICE"}, "password": {"secret"}})
	if w.Code != http.StatusOK {
		t.Fatalf("login code %d", w.Code)
	}
	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("no cookie set")
	}
	c := cookies[0]
	if c.Name != DefaultCookieName || !c.HttpOnly || c.SameSite != http.SameSiteLaxMode {
		t.Errorf("cookie = %+v", c)
	}
	var sv sessionView
	decode(t, w, &sv)
	if sv.CSRFToken == "" || !sv.IsModerator || sv.IdleTimeoutSeconds != 1200 {
		t.Errorf("session view = %+v", sv)
	}
}

func TestRegister_Errors(t *testing.T) {
	env := newTestServer(t)
	env.signup(t, "alice")

	w := env.do(t, http.MethodPost, "/register", nil, url.Values{"username": {"Alice"}, "email": {"x@example.com"}, "password": {"secret1"}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("duplicate code %d", w.Code)
	}
	var body errorBody
	decode(t, w, &body)
	if body.Field != "username" {
		t.Errorf("field = %q, want username", body.Field)
	}

	w = env.do(t, http.MethodPost, "/login", nil, url.Values{"username": {"alice"}, "password": {"wrong!"}})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad password code %d", w.Code)
	}
}

func TestRequireSession(t *testing.T) {
	env := newTestServer(t)
	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/posts"},
		{http.MethodGet, "/session"},
		{http.MethodGet, "/reports"},
		{http.MethodPost, "/reports/1/resolve"},
	} {
		w := env.do(t, tc.method, tc.path, nil, nil)
		if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/login" {
			t.Errorf("%s %s: code %d location %q, want redirect to /login", tc.method, tc.path, w.Code, w.Header().Get("Location"))
		}
	}
}

func TestSessionIdleExpiry(t *testing.T) {
	env := newTestServer(t)
	alice := env.signup(t, "alice")

	for i := 0; i < 5; i++ {
		env.clock.Advance(idle - time.Second)
		if w := env.do(t, http.MethodGet, "/session", alice, nil); w.Code != http.StatusOK {
			t.Fatalf("validation %d: code %d", i, w.Code)
		}
	}

	env.clock.Advance(idle + time.Second)
	w := env.do(t, http.MethodGet, "/session", alice, nil)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("expired session code %d, want redirect", w.Code)
	}
	if c := w.Result().Cookies(); len(c) == 0 || c[0].MaxAge >= 0 {
		t.Error("expired session cookie not cleared")
	}
}

func TestCSRFMismatchDoesNotMutate(t *testing.T) {
	env := newTestServer(t)
	alice := env.signup(t, "alice")

	form := url.Values{"title": {"t"}, "body": {"b"}}
	if w := env.do(t, http.MethodPost, "/posts", alice, form); w.Code != http.StatusForbidden {
		t.Fatalf("missing csrf code %d", w.Code)
	}
	form.Set("csrf_token", "forged")
	if w := env.do(t, http.MethodPost, "/posts", alice, form); w.Code != http.StatusForbidden {
		t.Fatalf("wrong csrf code %d", w.Code)
	}

	w := env.do(t, http.MethodGet, "/posts", nil, nil)
	var posts []models.Post
	decode(t, w, &posts)
	if len(posts) != 0 {
		t.Fatalf("rejected requests created %d posts", len(posts))
	}

	id := env.createPost(t, alice)
	if w := env.do(t, http.MethodPost, postPath(id, "/delete"), alice, url.Values{"csrf_token": {"forged"}}); w.Code != http.StatusForbidden {
		t.Fatalf("delete with wrong csrf code %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, postPath(id, ""), nil, nil); w.Code != http.StatusOK {
		t.Fatalf("post gone after rejected delete: code %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, postPath(id, "/delete"), nil)
	req.AddCookie(alice.cookie)
	req.Header.Set(csrfHeader, alice.csrf)
	rec := httptest.NewRecorder()
	env.srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete with header token code %d", rec.Code)
	}
}

func TestCSRFBypass(t *testing.T) {
	env := newTestServer(t, session.WithCSRFBypass(true))
	alice := env.signup(t, "alice")
	w := env.do(t, http.MethodPost, "/posts", alice, url.Values{"title": {"t"}, "body": {"b"}})
	if w.Code != http.StatusCreated {
		t.Fatalf("code %d with csrf bypass", w.Code)
	}
}

func TestScenario_LockAndComment(t *testing.T) {
	env := newTestServer(t)
	alice := env.signup(t, "alice")
	bob := env.signup(t, "bob")
	id := env.createPost(t, alice)

	if w := env.post(t, postPath(id, "/delete"), bob, nil); w.Code != http.StatusForbidden {
		t.Fatalf("bob delete code %d", w.Code)
	}
	if w := env.post(t, postPath(id, "/lock"), bob, nil); w.Code != http.StatusForbidden {
		t.Fatalf("bob lock code %d", w.Code)
	}
	if w := env.post(t, postPath(id, "/lock"), alice, nil); w.Code != http.StatusOK {
		t.Fatalf("alice lock code %d", w.Code)
	}

	comment := url.Values{"body": {"hi"}}
	if w := env.post(t, postPath(id, "/comments"), bob, comment); w.Code != http.StatusForbidden {
		t.Fatalf("bob comment on locked post code %d", w.Code)
	}
	if w := env.post(t, postPath(id, "/comments"), alice, comment); w.Code != http.StatusForbidden {
		t.Fatalf("moderator comment on locked post code %d", w.Code)
	}

	w := env.post(t, postPath(id, "/toggle-lock"), alice, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("toggle code %d", w.Code)
	}
	var state map[string]bool
	decode(t, w, &state)
	if state["locked"] {
		t.Fatal("toggle-lock left post locked")
	}

	if w := env.post(t, postPath(id, "/comments"), bob, comment); w.Code != http.StatusCreated {
		t.Fatalf("bob comment after unlock code %d: %s", w.Code, w.Body)
	}

	w = env.do(t, http.MethodGet, postPath(id, ""), bob, nil)
	var view postView
	decode(t, w, &view)
	if len(view.Comments) != 1 || view.Comments[0].Body != "hi" {
		t.Errorf("comments = %+v", view.Comments)
	}
}

func TestScenario_ReportResolve(t *testing.T) {
	env := newTestServer(t)
	alice := env.signup(t, "alice")
	bob := env.signup(t, "bob")
	id := env.createPost(t, alice)

	w := env.post(t, postPath(id, "/report"), bob, url.Values{"reason": {"spam"}})
	if w.Code != http.StatusCreated {
		t.Fatalf("report code %d: %s", w.Code, w.Body)
	}
	var r models.Report
	decode(t, w, &r)
	if r.Status != models.ReportOpen {
		t.Fatalf("report status %q", r.Status)
	}

	resolve := "/reports/" + strconv.Itoa(r.ID) + "/resolve"
	if w := env.post(t, resolve, bob, nil); w.Code != http.StatusForbidden {
		t.Fatalf("bob resolve code %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/reports", bob, nil); w.Code != http.StatusForbidden {
		t.Fatalf("bob list reports code %d", w.Code)
	}

	w = env.post(t, resolve, alice, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("alice resolve code %d", w.Code)
	}
	decode(t, w, &r)
	if r.Status != models.ReportResolved {
		t.Fatalf("status after resolve %q", r.Status)
	}
	if w := env.post(t, resolve, alice, nil); w.Code != http.StatusOK {
		t.Fatalf("second resolve code %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/reports?status=open", alice, nil)
	var open []models.Report
	decode(t, w, &open)
	if len(open) != 0 {
		t.Errorf("open reports = %+v", open)
	}
	if w := env.do(t, http.MethodGet, "/reports?status=bogus", alice, nil); w.Code != http.StatusBadRequest {
		t.Errorf("bogus status code %d", w.Code)
	}
}

func TestDeletedPostVisibility(t *testing.T) {
	env := newTestServer(t)
	alice := env.signup(t, "alice")
	bob := env.signup(t, "bob")
	id := env.createPost(t, bob)

	if w := env.post(t, postPath(id, "/delete"), bob, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete code %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, postPath(id, ""), nil, nil); w.Code != http.StatusNotFound {
		t.Errorf("anonymous view code %d", w.Code)
	}
	if w := env.post(t, postPath(id, "/edit"), bob, url.Values{"title": {"t"}, "body": {"b"}}); w.Code != http.StatusNotFound {
		t.Errorf("edit deleted code %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, postPath(id, ""), alice, nil); w.Code != http.StatusOK {
		t.Errorf("moderator view code %d", w.Code)
	}
	if w := env.post(t, postPath(id, "/restore"), alice, nil); w.Code != http.StatusNoContent {
		t.Fatalf("restore code %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, postPath(id, ""), nil, nil); w.Code != http.StatusOK {
		t.Errorf("restored post code %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/posts/abc", nil, nil); w.Code != http.StatusNotFound {
		t.Errorf("malformed id code %d", w.Code)
	}
}

func TestLogout(t *testing.T) {
	env := newTestServer(t)
	alice := env.signup(t, "alice")
	if w := env.post(t, "/logout", alice, nil); w.Code != http.StatusNoContent {
		t.Fatalf("logout code %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/session", alice, nil); w.Code != http.StatusSeeOther {
		t.Errorf("session after logout code %d", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestServer(t)
	w := env.do(t, http.MethodGet, "/healthz", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("healthz code %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id header")
	}
}
