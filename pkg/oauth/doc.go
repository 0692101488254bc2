// Package oauth implements the client side of the OAuth2 authorization code grant
// against a single, configured identity provider.
//
// A [Client] owns the provider endpoints and client credentials, issues single-use
// anti-CSRF state values through a [state.Store], exchanges authorization codes and
// refresh tokens via golang.org/x/oauth2, and fetches the raw user-info [Profile].
//
// # Flow
//
//	client, err := oauth.New(oauth.Config{
//		ClientID:         os.Getenv("OAUTH2_CLIENT_ID"),
//		ClientSecret:     os.Getenv("OAUTH2_CLIENT_SECRET"),
//		RedirectURI:      "/oauth2/callback",
//		BaseURL:          "https://app.example.com",
//		AuthorizationURL: "https://id.example.com/oauth/authorize",
//		TokenURL:         "https://id.example.com/oauth/token",
//		UserInfoURL:      "https://id.example.com/api/user",
//		Scopes:           []string{"openid", "profile", "email"},
//	}, state.NewMemory())
//
//	// start: registers a fresh state for 10 minutes
//	u, err := client.AuthorizationURL(ctx, "")
//
//	// callback: the state is consumed before the token endpoint is contacted
//	tokens, err := client.ExchangeCode(ctx, code, st)
//	profile, err := client.FetchUserInfo(ctx, tokens.AccessToken)
//
// Client credentials are sent in the form body. Every provider request carries
// "Accept: application/json" and is bounded by [DefaultTimeout] unless overridden
// with [WithTimeout]. Nothing is retried.
//
// # Errors
//
//   - [ErrInvalidState]: state unknown, expired or already consumed; no network call was made
//   - [ErrStateStore]: the state store failed
//   - [ErrTokenExchangeFailed], [ErrTokenRefreshFailed]: transport error, non-2xx,
//     malformed body or missing access_token
//   - [ErrUserInfoFetchFailed]: transport error, non-2xx or a body that is not a JSON object
//
// Underlying causes are attached with [errors.Join]; match with [errors.Is].
package oauth
