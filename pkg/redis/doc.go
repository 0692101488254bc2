// Package redis opens go-redis clients for the state and session stores.
//
// [Connect] builds a client from an env-tagged [Config], applies pool and timeout
// settings and pings the server, retrying with linear backoff while the server comes
// up. [Healthcheck] returns a probe for readiness endpoints.
//
//	var cfg redis.Config // REDIS_URL, REDIS_POOL_SIZE, ...
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	states := state.NewRedis(client, state.WithPrefix("app"))
//
// Both redis:// and rediss:// (TLS) URLs are accepted.
package redis
