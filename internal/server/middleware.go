package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"forumcore/internal/models"
	"forumcore/internal/policy"
)

type ctxKey int

const loggerKey ctxKey = iota

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withRequestLog tags each request with a req_id and logs its outcome.
func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		log := s.log.With("req_id", reqID)
		w.Header().Set("X-Request-ID", reqID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), loggerKey, log)))
		log.Info("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}

func (s *Server) logger(r *http.Request) *slog.Logger {
	if l, ok := r.Context().Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return s.log
}

type sessionHandler func(http.ResponseWriter, *http.Request, *models.Session)

// requireSession validates (and so refreshes) the session before anything
// else runs. Requests other than GET and HEAD must also carry the session's
// CSRF token, or they are rejected before the handler is reached.
func (s *Server) requireSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.currentSession(r)
		if err != nil {
			if errors.Is(err, models.ErrSessionExpired) || errors.Is(err, models.ErrSessionInvalid) {
				s.logger(r).Warn("session rejected", "path", r.URL.Path, "reason", err)
				s.clearCookie(w)
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}
			s.fail(w, r, err)
			return
		}

		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			if err := s.sessions.CheckCSRF(sess, csrfToken(r)); err != nil {
				s.logger(r).Warn("csrf rejected", "account_id", sess.AccountID, "path", r.URL.Path)
				s.fail(w, r, err)
				return
			}
		}
		next(w, r, sess)
	}
}

func (s *Server) currentSession(r *http.Request) (*models.Session, error) {
	cookie, err := r.Cookie(s.CookieName)
	if err != nil {
		return nil, models.ErrSessionInvalid
	}
	return s.sessions.Validate(r.Context(), cookie.Value)
}

// viewer resolves the actor for public reads. Without a usable session the
// caller browses anonymously.
func (s *Server) viewer(r *http.Request) policy.Actor {
	sess, err := s.currentSession(r)
	if err != nil {
		return policy.Actor{}
	}
	return actorOf(sess)
}

func actorOf(sess *models.Session) policy.Actor {
	return policy.Actor{ID: sess.AccountID, IsModerator: sess.IsModerator}
}

func csrfToken(r *http.Request) string {
	if v := r.Header.Get(csrfHeader); v != "" {
		return v
	}
	return r.PostFormValue(csrfField)
}

func (s *Server) setCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.CookieName,
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
