package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dmitrymomot/oauth2client"
	"github.com/dmitrymomot/oauth2client/pkg/session"
)

type loginView struct {
	Flashes  map[string]string `json:"flashes,omitempty"`
	LoginURL string            `json:"login_url"`
}

type homeView struct {
	Flashes   map[string]string `json:"flashes,omitempty"`
	UserID    string            `json:"user_id"`
	LogoutURL string            `json:"logout_url"`
	CSRFToken string            `json:"csrf_token"`
}

// pages renders the demo's login and home endpoints as JSON.
type pages struct {
	sessions  *session.Manager
	log       *slog.Logger
	loginURL  string
	logoutURL string
}

func newPages(cfg oauth2client.Config, sessions *session.Manager, log *slog.Logger) *pages {
	prefix := "/" + strings.Trim(cfg.RoutePrefix, "/")
	loginURL := cfg.SSOLoginRoute
	if !cfg.SSOLoginEnabled || loginURL == "" {
		loginURL = prefix + "/redirect"
	}
	return &pages{
		sessions:  sessions,
		log:       log,
		loginURL:  loginURL,
		logoutURL: prefix + "/logout",
	}
}

func (p *pages) login(w http.ResponseWriter, r *http.Request) {
	view := loginView{LoginURL: p.loginURL}
	if sess, ok := session.FromContext(r.Context()); ok {
		view.Flashes = p.consumeFlashes(w, r, sess)
	}
	p.writeJSON(w, r, view)
}

func (p *pages) home(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	p.writeJSON(w, r, homeView{
		Flashes:   p.consumeFlashes(w, r, sess),
		UserID:    sess.UserID,
		LogoutURL: p.logoutURL,
		CSRFToken: sess.CSRFToken,
	})
}

// consumeFlashes drains flash messages and persists their removal.
func (p *pages) consumeFlashes(w http.ResponseWriter, r *http.Request, sess *session.Session) map[string]string {
	flashes := sess.Flashes()
	if len(flashes) == 0 || sess.IsNew() {
		return flashes
	}
	if err := p.sessions.Commit(r.Context(), w, sess); err != nil {
		p.log.ErrorContext(r.Context(), "failed to save session", slog.Any("error", err))
	}
	return flashes
}

func (p *pages) writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		p.log.ErrorContext(r.Context(), "failed to write response", slog.Any("error", err))
	}
}
