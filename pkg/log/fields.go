package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor (matches pkg/middleware/auth.go keys)
	FieldUsername = "username"

	// Service
	FieldService = "service"

	// Watch party
	FieldRoomCode = "room_code"
	FieldVideoID  = "video_id"
	FieldStreamID = "stream_id"
	FieldTopic    = "topic"
	FieldPhase    = "phase"
	FieldState    = "state"
	FieldClientID = "client_id"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
