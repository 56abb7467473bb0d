package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor
	FieldUserID = "user_id"

	// Chat
	FieldRoomID    = "room_id"
	FieldSessionID = "session_id"
	FieldSinkID    = "sink_id"
	FieldMsgID     = "msg_id"
	FieldHub       = "hub"
	FieldTopic     = "topic"
	FieldChannel   = "channel"

	// Service
	FieldService    = "service"
	FieldInstanceID = "instance_id"

	// gRPC
	FieldGRPCMethod = "grpc_method"
	FieldGRPCCode   = "grpc_code"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
