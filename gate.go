package oauth2client

import (
	"net/http"
	"net/url"

	"github.com/dmitrymomot/oauth2client/internal/httpx"
	"github.com/dmitrymomot/oauth2client/pkg/logger"
	"github.com/dmitrymomot/oauth2client/pkg/session"
)

type unauthenticatedResponse struct {
	Message string `json:"message"`
}

// RequireAuth lets authenticated requests through. Others get a 401 JSON body
// when they expect JSON, or a redirect to the start endpoint carrying the
// original URL as the redirect parameter.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := h.currentSession(r)
		if err == nil && sess.IsAuthenticated() {
			ctx := logger.WithUserID(r.Context(), sess.UserID)
			ctx = session.NewContext(ctx, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		if httpx.ExpectsJSON(r) {
			httpx.WriteJSON(w, http.StatusUnauthorized, unauthenticatedResponse{Message: "Unauthenticated."})
			return
		}

		target := h.cfg.startPath() + "?" + url.Values{"redirect": {httpx.FullURL(r)}}.Encode()
		http.Redirect(w, r, target, http.StatusFound)
	})
}

// UserID returns the authenticated user id for a request that passed RequireAuth.
func UserID(r *http.Request) string {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		return ""
	}
	return sess.UserID
}
