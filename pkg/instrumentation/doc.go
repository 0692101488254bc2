// Package instrumentation wires OpenTelemetry meters and tracers for the OAuth2 client.
//
// When disabled, no-op providers are used and recording is free. When enabled, the
// global providers registered with go.opentelemetry.io/otel are used unless explicit
// providers are supplied in [Config]; exporter setup stays with the host application.
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName: "billing",
//		Enabled:     true,
//	})
//	if err != nil {
//		return err
//	}
//	client, err := oauth.New(cfg, states, oauth.WithInstrumentation(inst))
//
// Never put access tokens, refresh tokens, authorization codes or state values into
// span attributes or metric labels. Only metadata such as operation names, status
// codes and outcomes is recorded.
package instrumentation
