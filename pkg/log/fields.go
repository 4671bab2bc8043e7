package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldHost      = "host"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor
	FieldUserID = "user_id"
	FieldEmail  = "email"
	FieldRole   = "role"

	// Chat
	FieldChatterID   = "chatter_id"
	FieldCounterpart = "counterpart_id"
	FieldChatState   = "chat_state"
	FieldAttempt     = "attempt"

	// Navigation
	FieldScreen = "screen"
	FieldIntent = "intent"

	FieldComponent = "component"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
