// Package logger builds slog loggers with context enrichment and optional Sentry
// reporting.
//
// Records are written as JSON (or text) to stdout. [ContextExtractor] functions add
// request-scoped attributes at log time; [RequestID] reads the chi request id and
// [UserID] reads the id stored with [WithUserID] by the access gate.
//
//	log := logger.New(cfg, logger.RequestID(), logger.UserID())
//	defer logger.Flush(2 * time.Second)
//
// When SENTRY_DSN is set, errors also create Sentry issues and warnings are
// forwarded as Sentry logs. Without a DSN, or if Sentry fails to initialize,
// logging continues on stdout only.
//
// [NewNope] discards everything and is the default for library components.
package logger
