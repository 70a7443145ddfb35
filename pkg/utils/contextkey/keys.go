package contextkey

// Key is a dedicated type to avoid context key collisions across packages.
type Key string

const (
	TraceID   Key = "trace_id"
	RequestID Key = "request_id"
	SessionID Key = "session_id"
	ClientIP  Key = "client_ip"
)
