// Package session provides cookie-backed browser sessions.
//
// A Manager loads the session named by the request cookie, or starts a fresh
// anonymous one, and attaches it to the request context. Handlers mutate the
// session and call Commit before writing the response:
//
//	mgr, err := session.NewManager(session.NewRedis(client), cfg.Options()...)
//	if err != nil {
//		return err
//	}
//	r.Use(mgr.Middleware)
//
//	sess, _ := session.FromContext(r.Context())
//	sess.Authenticate(userID, remember)
//	_ = mgr.RotateToken(sess)
//	if err := mgr.Commit(r.Context(), w, sess); err != nil { ... }
//
// Persistent sessions get a cookie with Max-Age; others get a browser-session
// cookie. With WithSecret the cookie value is HMAC-signed and a forged cookie
// is treated as no session. Flash messages are stored as session values and removed on read.
package session
