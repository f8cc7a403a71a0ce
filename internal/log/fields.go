package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldOperation  = "operation"
	FieldError      = "error"
	FieldErrorType  = "error_type"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldAttempt    = "attempt"
	FieldCurrency   = "currency"
	FieldBase       = "base"
	FieldRateCount  = "rate_count"
	FieldRateSource = "rate_source"
	FieldExpiresAt  = "expires_at"
	FieldAge        = "age"
	FieldKey        = "key"
	FieldRequestID  = "request_id"
)

// Components defines standard component names
const (
	ComponentApp         = "app"
	ComponentSession     = "session"
	ComponentRates       = "rates"
	ComponentGateway     = "gateway"
	ComponentAPI         = "api"
	ComponentStorage     = "storage"
	ComponentSecureStore = "securestore"
	ComponentCache       = "cache"
	ComponentAMQP        = "amqp"
	ComponentWorker      = "worker"
)

// Operations defines standard operation names
const (
	OpLogin      = "login"
	OpLoad       = "load"
	OpPersist    = "persist"
	OpRefresh    = "refresh"
	OpFetch      = "fetch"
	OpConvert    = "convert"
	OpRequest    = "request"
	OpInvalidate = "invalidate"
	OpSweep      = "sweep"
	OpPublish    = "publish"
	OpConsume    = "consume"
	OpShutdown   = "shutdown"
	OpStartup    = "startup"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeAuth          = "auth_error"
	ErrorTypeDecode        = "decode_error"
	ErrorTypeRateFetch     = "rate_fetch_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithErrorType adds the error category
func (f LogFields) WithErrorType(t string) LogFields {
	f[FieldErrorType] = t
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithRequest adds the fields of an outbound API request
func (f LogFields) WithRequest(method, path string, attempt int) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldAttempt] = attempt
	return f
}

// WithResponse adds the fields of an API response
func (f LogFields) WithResponse(statusCode int, durationMs int64) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	return f
}

// WithRates adds rate table fields
func (f LogFields) WithRates(base string, count int, source string) LogFields {
	f[FieldBase] = base
	f[FieldRateCount] = count
	f[FieldRateSource] = source
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
