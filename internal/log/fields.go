package log

// Component names used across the service.
const (
	ComponentApp        = "app"
	ComponentHTTP       = "http"
	ComponentEngine     = "engine"
	ComponentStorage    = "storage"
	ComponentClassifier = "classifier"
	ComponentPublish    = "publish"
	ComponentWorker     = "worker"
	ComponentAMQP       = "amqp"
	ComponentIngest     = "ingest"
)

// Field names shared by log records.
const (
	FieldComponent   = "component"
	FieldOperation   = "operation"
	FieldRequestID   = "request_id"
	FieldError       = "error"
	FieldDuration    = "duration_ms"
	FieldYear        = "year"
	FieldMonth       = "month"
	FieldEntryID     = "entry_id"
	FieldAmountCents = "amount_cents"
	FieldCategory    = "category"
	FieldSkipped     = "skipped"
	FieldPeriod      = "period"
)
