// Package health provides liveness and readiness handlers for the demo server.
//
// Readiness runs named checks in parallel under a shared timeout. The Postgres
// and Redis adapters expose matching closures:
//
//	r.Route("/health", func(r chi.Router) {
//	    health.Routes(r, health.Checks{
//	        "postgres": db.Healthcheck(pool),
//	        "redis":    redis.Healthcheck(client),
//	    })
//	})
//
// Responses are plain text ("OK" / "Service Unavailable") unless the caller
// sends Accept: application/json or ?format=json.
package health
