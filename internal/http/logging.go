package http

import (
	"context"
	"log/slog"
)

// defaultLogger returns the handler base logger tagged with the http component.
func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", "http")
}

// handlerLogger prefers the request scoped logger, which already carries the
// request id, and adds the caller identity when a session was resolved.
func handlerLogger(ctx context.Context, fallback *slog.Logger, handlerName, operation string, attrs ...any) *slog.Logger {
	logger := LoggerFromContext(ctx)
	if logger == nil {
		logger = fallback
	}
	if logger == nil {
		logger = defaultLogger(nil)
	}

	pairs := []any{"handler", handlerName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if principal, ok := PrincipalFromContext(ctx); ok {
		pairs = append(pairs, "user_id", principal.UserID, "session_id", principal.SessionID)
	}
	return logger.With(append(pairs, attrs...)...)
}
