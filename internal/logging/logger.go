// Package logging is the logging facade used by services and servers.
// Production wires it to zap; tests use the slog text adapter or Nop.
package logging

import "context"

// Logger writes leveled records with alternating key/value attributes:
//
//	log.Info(ctx, "document uploaded", "document_id", id, "owner_id", owner)
//
// A request id stored with WithRequestID is attached automatically.
// Values must never be plaintext PII, passwords, tokens or key material.
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With binds attributes to every record of the returned logger.
	With(args ...any) Logger
}

// Nop discards everything. Handy in tests.
type Nop struct{}

func (Nop) Debug(context.Context, string, ...any) {}
func (Nop) Info(context.Context, string, ...any)  {}
func (Nop) Warn(context.Context, string, ...any)  {}
func (Nop) Error(context.Context, string, ...any) {}
func (n Nop) With(...any) Logger                  { return n }

const requestIDField = "request_id"

type requestIDKey struct{}

// WithRequestID returns a context whose log entries carry id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
