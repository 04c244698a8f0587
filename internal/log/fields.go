package log

// Canonical field names.
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldProvider    = "provider"
	FieldStage       = "stage"
	FieldStatus      = "status"
	FieldURL         = "url"
	FieldContentID   = "content_id"
	FieldContentType = "content_type"
	FieldBytes       = "bytes"
	FieldDuration    = "duration"
	FieldPath        = "path"
)
