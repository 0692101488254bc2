// Package state provides time-bounded key existence stores for OAuth2 anti-CSRF
// state tokens.
//
// A [Store] supports three operations: Put registers a key with a TTL, Has reports
// whether a key is still live, and Forget removes a key and reports whether it
// existed. Forget is atomic, so when several callbacks race on the same state value
// at most one of them observes it as present.
//
// Two backends are provided:
//
//   - [Memory]: process-local map with lazy expiry and a background janitor
//   - [Redis]: shared store backed by github.com/redis/go-redis/v9
//
// # Usage
//
//	states := state.NewMemory()
//	defer states.Close()
//
//	if err := states.Put(ctx, state.Key(token), state.DefaultTTL); err != nil {
//		return err
//	}
//
//	ok, err := states.Forget(ctx, state.Key(token))
//	if err != nil {
//		return err
//	}
//	if !ok {
//		// expired, replayed, or never issued
//	}
//
// With Redis:
//
//	client, err := redis.Open(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	states := state.NewRedis(client, state.WithPrefix("myapp"))
package state
