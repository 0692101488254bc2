// Package oauth2client signs users into an application through a single
// OAuth2 Authorization Code provider.
//
// The login flow is split across packages:
//
//   - pkg/state holds single-use authorization states.
//   - pkg/oauth speaks the provider protocol (authorization URL, code exchange,
//     refresh, user info).
//   - pkg/identity maps the provider profile onto a local user and keeps the
//     provider tokens encrypted at rest.
//   - pkg/session carries the browser session.
//
// This package ties them together behind HTTP endpoints:
//
//	sessions, err := session.NewManager(session.NewRedis(rdb), session.WithSecret(appKey))
//	if err != nil {
//	    return err
//	}
//
//	h, err := oauth2client.New(cfg, oauth2client.Dependencies{
//	    Client:     client,
//	    Reconciler: identity.NewReconciler(store.Users(), identity.WithMapping(mapping)),
//	    Tokens:     identity.NewTokenService(store.Tokens(), enc),
//	    Sessions:   sessions,
//	}, oauth2client.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//
//	r := chi.NewRouter()
//	h.Routes(r)
//	r.With(h.RequireAuth).Get("/dashboard", dashboard)
//
// # Endpoints
//
// With the default "/oauth2" prefix:
//
//   - GET /oauth2/redirect stores the intended URL and redirects to the provider.
//   - GET /oauth2/callback finishes the flow. Failures redirect to the login
//     route with the message flashed under the "oauth2" key.
//   - POST /oauth2/logout ends the session. It requires the session's
//     anti-forgery token in the X-CSRF-Token header or the _token form field.
//   - GET /login/sso is a shortcut to the redirect endpoint.
//
// # Callback outcomes
//
// Handler.Process returns an explicit [Result]. Failures carry a [FailureKind]
// that decides the flashed message, the log level and the metric label.
// Internal failures are reported as "Authentication failed: internal error".
package oauth2client
