package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Service
	FieldService = "service"

	// Invocation
	FieldInvocationID = "invocation_id"
	FieldBucket       = "bucket"
	FieldKey          = "key"
	FieldStep         = "step"
	FieldOutcome      = "outcome"
	FieldVariant      = "variant"
	FieldDestination  = "destination"
	FieldLocalPath    = "local_path"

	// Event source
	FieldSource    = "source"
	FieldEventName = "event_name"
	FieldTopic     = "topic"
	FieldOffset    = "offset"
)
