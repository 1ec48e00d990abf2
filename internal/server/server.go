// Package server exposes the forum over HTTP. Handlers are thin: they resolve
// the session, check the CSRF token on state-changing requests and hand the
// actor to the content and moderation services, which make every
// authorization decision.
package server

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"

	"forumcore/internal/auth"
	"forumcore/internal/content"
	"forumcore/internal/logging"
	"forumcore/internal/models"
	"forumcore/internal/moderation"
	"forumcore/internal/session"
)

const (
	DefaultCookieName = "session_id"
	csrfHeader        = "X-CSRF-Token"
	csrfField         = "csrf_token"
)

// Deps are the services a Server dispatches to.
type Deps struct {
	DB         *sql.DB
	Auth       *auth.Service
	Sessions   *session.Manager
	Content    *content.Service
	Moderation *moderation.Engine
	Log        *slog.Logger

	// SecureCookies marks the session cookie Secure. It is off only in
	// debug deployments served over plain HTTP.
	SecureCookies bool
}

type Server struct {
	DB         *sql.DB
	CookieName string

	auth       *auth.Service
	sessions   *session.Manager
	content    *content.Service
	moderation *moderation.Engine
	log        *slog.Logger
	secure     bool
	handler    http.Handler
}

func New(d Deps) *Server {
	s := &Server{
		DB:         d.DB,
		CookieName: DefaultCookieName,
		auth:       d.Auth,
		sessions:   d.Sessions,
		content:    d.Content,
		moderation: d.Moderation,
		log:        logging.OrDiscard(d.Log),
		secure:     d.SecureCookies,
	}
	s.handler = s.withRequestLog(s.routes())
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /logout", s.requireSession(s.handleLogout))
	mux.HandleFunc("GET /session", s.requireSession(s.handleSession))

	mux.HandleFunc("GET /posts", s.handleListPosts)
	mux.HandleFunc("GET /posts/{id}", s.handleGetPost)
	mux.HandleFunc("POST /posts", s.requireSession(s.handleCreatePost))
	mux.HandleFunc("POST /posts/{id}/edit", s.requireSession(s.handleEditPost))
	mux.HandleFunc("POST /posts/{id}/delete", s.requireSession(s.handleDeletePost))
	mux.HandleFunc("POST /posts/{id}/lock", s.requireSession(s.handleSetLocked(true)))
	mux.HandleFunc("POST /posts/{id}/unlock", s.requireSession(s.handleSetLocked(false)))
	mux.HandleFunc("POST /posts/{id}/toggle-lock", s.requireSession(s.handleToggleLock))
	mux.HandleFunc("POST /posts/{id}/restore", s.requireSession(s.handleRestore(models.TargetPost)))
	mux.HandleFunc("POST /posts/{id}/comments", s.requireSession(s.handleCreateComment))
	mux.HandleFunc("POST /posts/{id}/report", s.requireSession(s.handleReport(models.TargetPost)))

	mux.HandleFunc("POST /comments/{id}/edit", s.requireSession(s.handleEditComment))
	mux.HandleFunc("POST /comments/{id}/delete", s.requireSession(s.handleDeleteComment))
	mux.HandleFunc("POST /comments/{id}/restore", s.requireSession(s.handleRestore(models.TargetComment)))
	mux.HandleFunc("POST /comments/{id}/report", s.requireSession(s.handleReport(models.TargetComment)))

	mux.HandleFunc("GET /reports", s.requireSession(s.handleListReports))
	mux.HandleFunc("POST /reports/{id}/resolve", s.requireSession(s.handleResolve))
	return mux
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.DB != nil {
		if err := s.DB.PingContext(r.Context()); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// pathID parses the {id} wildcard. Malformed ids are reported as not found.
func pathID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
