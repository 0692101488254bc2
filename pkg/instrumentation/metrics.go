package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the instruments recorded by the OAuth2 flow.
type Metrics struct {
	AuthorizationStarted metric.Int64Counter
	CallbackProcessed    metric.Int64Counter
	ProviderCalls        metric.Int64Counter
	ProviderDuration     metric.Float64Histogram
	RateLimitExceeded    metric.Int64Counter
	UsersReconciled      metric.Int64Counter
	TokensStored         metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.AuthorizationStarted, err = meter.Int64Counter(
		"oauth2.authorization.started",
		metric.WithDescription("Authorization redirects issued"),
		metric.WithUnit("{redirect}"),
	); err != nil {
		return nil, fmt.Errorf("authorization counter: %w", err)
	}

	if m.CallbackProcessed, err = meter.Int64Counter(
		"oauth2.callback.processed",
		metric.WithDescription("Callbacks processed by outcome"),
		metric.WithUnit("{callback}"),
	); err != nil {
		return nil, fmt.Errorf("callback counter: %w", err)
	}

	if m.ProviderCalls, err = meter.Int64Counter(
		"oauth2.provider.calls",
		metric.WithDescription("Calls to the identity provider"),
		metric.WithUnit("{call}"),
	); err != nil {
		return nil, fmt.Errorf("provider counter: %w", err)
	}

	if m.ProviderDuration, err = meter.Float64Histogram(
		"oauth2.provider.duration",
		metric.WithDescription("Identity provider call latency"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("provider histogram: %w", err)
	}

	if m.RateLimitExceeded, err = meter.Int64Counter(
		"oauth2.rate_limit.exceeded",
		metric.WithDescription("Requests rejected by the rate limiter"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("rate limit counter: %w", err)
	}

	if m.UsersReconciled, err = meter.Int64Counter(
		"identity.users.reconciled",
		metric.WithDescription("Local users reconciled from provider profiles"),
		metric.WithUnit("{user}"),
	); err != nil {
		return nil, fmt.Errorf("reconcile counter: %w", err)
	}

	if m.TokensStored, err = meter.Int64Counter(
		"identity.tokens.stored",
		metric.WithDescription("Token sets persisted"),
		metric.WithUnit("{token}"),
	); err != nil {
		return nil, fmt.Errorf("token counter: %w", err)
	}

	return m, nil
}

// RecordAuthorizationStarted counts an authorization redirect.
func (m *Metrics) RecordAuthorizationStarted(ctx context.Context) {
	m.AuthorizationStarted.Add(ctx, 1)
}

// RecordCallback counts a processed callback with its outcome label.
func (m *Metrics) RecordCallback(ctx context.Context, outcome string) {
	m.CallbackProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordProviderCall records a provider round-trip.
func (m *Metrics) RecordProviderCall(ctx context.Context, operation string, statusCode int, durationMs float64, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}

	m.ProviderCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Int("status", statusCode),
		attribute.String("result", result),
	))
	m.ProviderDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}

// RecordRateLimitExceeded counts a rejected request.
func (m *Metrics) RecordRateLimitExceeded(ctx context.Context, limiter string) {
	m.RateLimitExceeded.Add(ctx, 1, metric.WithAttributes(attribute.String("limiter", limiter)))
}

// RecordUserReconciled counts a reconciliation by action (created, updated).
func (m *Metrics) RecordUserReconciled(ctx context.Context, action string) {
	m.UsersReconciled.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

// RecordTokensStored counts a persisted token set.
func (m *Metrics) RecordTokensStored(ctx context.Context) {
	m.TokensStored.Add(ctx, 1)
}
