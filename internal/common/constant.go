package common

// SessionCookieName is the HTTP-only cookie carrying the signed session token.
const SessionCookieName = "vault_session"

// SessionMetadataKey is the gRPC metadata key used by the admin endpoint.
const SessionMetadataKey = "session_token"

// RequestIDHeader is echoed back on every HTTP response.
const RequestIDHeader = "X-Request-ID"
