package server

import (
	"net/http"

	"forumcore/internal/models"
)

type sessionView struct {
	AccountID          int    `json:"account_id"`
	Username           string `json:"username"`
	IsModerator        bool   `json:"is_moderator"`
	CSRFToken          string `json:"csrf_token"`
	IdleTimeoutSeconds int    `json:"idle_timeout_seconds"`
}

type postView struct {
	Post     *models.Post     `json:"post"`
	Comments []models.Comment `json:"comments"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	a, err := s.auth.Register(r.Context(), r.FormValue("username"), r.FormValue("email"), r.FormValue("password"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	a, sess, err := s.auth.Login(r.Context(), r.FormValue("username"), r.FormValue("password"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.setCookie(w, sess.Token)
	writeJSON(w, http.StatusOK, s.sessionView(a, sess))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, sess *models.Session) {
	if err := s.auth.Logout(r.Context(), sess.Token); err != nil {
		s.fail(w, r, err)
		return
	}
	s.clearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request, sess *models.Session) {
	a, err := s.auth.Account(r.Context(), sess.AccountID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionView(a, sess))
}

// sessionView reports the role snapshot held by the session, which may lag
// the stored account role until the next login.
func (s *Server) sessionView(a *models.Account, sess *models.Session) sessionView {
	return sessionView{
		AccountID:          sess.AccountID,
		Username:           a.Username,
		IsModerator:        sess.IsModerator,
		CSRFToken:          sess.CSRFToken,
		IdleTimeoutSeconds: int(s.sessions.IdleTimeout().Seconds()),
	}
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	posts, err := s.content.ListPosts(r.Context(), atoi(q.Get("limit")), atoi(q.Get("offset")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if posts == nil {
		posts = []models.Post{}
	}
	writeJSON(w, http.StatusOK, posts)
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.fail(w, r, models.ErrNotFound)
		return
	}
	actor := s.viewer(r)
	p, err := s.content.GetPost(r.Context(), actor, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	comments, err := s.content.ListComments(r.Context(), actor, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if comments == nil {
		comments = []models.Comment{}
	}
	writeJSON(w, http.StatusOK, postView{Post: p, Comments: comments})
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request, sess *models.Session) {
	p, err := s.content.CreatePost(r.Context(), actorOf(sess), r.FormValue("title"), r.FormValue("body"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleEditPost(w http.ResponseWriter, r *http.Request, sess *models.Session) {
	id, ok := pathID(r)
	if !ok {
		s.fail(w, r, models.ErrNotFound)
		return
	}
	p, err := s.content.EditPost(r.Context(), actorOf(sess), id, r.FormValue("title"), r.FormValue("body"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request, sess *models.Session) {
	id, ok := pathID(r)
	if !ok {
		s.fail(w, r, models.ErrNotFound)
		return
	}
	if err := s.content.DeletePost(r.Context(), actorOf(sess), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request, sess *models.Session) {
	id, ok := pathID(r)
	if !ok {
		s.fail(w, r, models.ErrNotFound)
		return
	}
	c, err := s.content.CreateComment(r.Context(), actorOf(sess), id, r.FormValue("body"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleEditComment(w http.ResponseWriter, r *http.Request, sess *models.Session) {
	id, ok := pathID(r)
	if !ok {
		s.fail(w, r, models.ErrNotFound)
		return
	}
	c, err := s.content.EditComment(r.Context(), actorOf(sess), id, r.FormValue("body"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request, sess *models.Session) {
	id, ok := pathID(r)
	if !ok {
		s.fail(w, r, models.ErrNotFound)
		return
	}
	if err := s.content.DeleteComment(r.Context(), actorOf(sess), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetLocked(locked bool) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, sess *models.Session) {
		id, ok := pathID(r)
		if !ok {
			s.fail(w, r, models.ErrNotFound)
			return
		}
		if err := s.moderation.SetLocked(r.Context(), actorOf(sess), id, locked); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"locked": locked})
	}
}

func (s *Server) handleToggleLock(w http.ResponseWriter, r *http.Request, sess *models.Session) {
	id, ok := pathID(r)
	if !ok {
		s.fail(w, r, models.ErrNotFound)
		return
	}
	locked, err := s.moderation.ToggleLock(r.Context(), actorOf(sess), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"locked": locked})
}

func (s *Server) handleRestore(tt models.TargetType) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, sess *models.Session) {
		id, ok := pathID(r)
		if !ok {
			s.fail(w, r, models.ErrNotFound)
			return
		}
		if err := s.moderation.Restore(r.Context(), actorOf(sess), tt, id); err != nil {
			s.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleReport(tt models.TargetType) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, sess *models.Session) {
		id, ok := pathID(r)
		if !ok {
			s.fail(w, r, models.ErrNotFound)
			return
		}
		rep, err := s.moderation.Report(r.Context(), actorOf(sess), tt, id, r.FormValue("reason"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, rep)
	}
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request, sess *models.Session) {
	var status models.ReportStatus
	if v := r.URL.Query().Get("status"); v != "" {
		st, err := models.ParseReportStatus(v)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		status = st
	}
	reports, err := s.moderation.ListReports(r.Context(), actorOf(sess), status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if reports == nil {
		reports = []models.Report{}
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request, sess *models.Session) {
	id, ok := pathID(r)
	if !ok {
		s.fail(w, r, models.ErrNotFound)
		return
	}
	rep, err := s.moderation.Resolve(r.Context(), actorOf(sess), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
