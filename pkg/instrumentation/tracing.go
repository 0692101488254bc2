package instrumentation

import (
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys. Values must be metadata only, never credentials.
const (
	AttrOperation     = "oauth2.operation"
	AttrGrantType     = "oauth2.grant_type"
	AttrStatusCode    = "oauth2.http.status_code"
	AttrTokenType     = "oauth2.token_type" //nolint:gosec // token type, not a token
	AttrRefreshIssued = "oauth2.refresh_issued"
	AttrOutcome       = "oauth2.outcome"
	AttrUserAction    = "identity.action"
)

// RecordError marks span as failed. Nil span or error is a no-op.
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetOK marks span as successful.
func SetOK(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}
