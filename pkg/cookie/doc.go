// Package cookie reads and writes a single named HTTP cookie with fixed
// attributes, optionally signed with HMAC-SHA256.
//
// A signed value is stored as base64(value).base64(signature). Reading a
// cookie whose signature does not match returns [ErrBadSig], so a forged
// value never reaches the caller.
//
//	jar, err := cookie.New("__sid",
//		cookie.WithSecret(os.Getenv("APP_KEY")),
//		cookie.WithSecure(true),
//	)
//	if err != nil {
//		return err
//	}
//
//	jar.Write(w, token, 0)
//	token, err := jar.Read(r)
//	if errors.Is(err, cookie.ErrBadSig) {
//		// treat as anonymous
//	}
//
// Secrets must be at least [MinSecretLen] bytes.
package cookie
