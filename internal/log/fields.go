package log

import "trendai/internal/core"

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldQuery       = "query"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldUserAgent   = "user_agent"
	FieldSuccess     = "success"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldDimension   = "dimension"
	FieldYear        = "year"
	FieldMonth       = "month"
	FieldCategoryL1  = "category_l1"
	FieldCategoryL3  = "category_l3"
	FieldRecordCount = "record_count"
	FieldTotal       = "total_filtered"
	FieldRising      = "rising"
	FieldStable      = "stable"
	FieldFalling     = "falling"
	FieldMessageID   = "message_id"
	FieldSnapshotID  = "snapshot_id"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentTrend     = "trend"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentSources   = "sources"
	ComponentCache     = "cache"
	ComponentMetrics   = "metrics"
	ComponentRateLimit = "rate_limit"
	ComponentBackend   = "backend"
	ComponentImport    = "import"
)

// Operations defines standard operation names
const (
	OpReport    = "report"
	OpBreakdown = "breakdown"
	OpImages    = "images"
	OpMeta      = "meta"
	OpImport    = "import"
	OpRefresh   = "refresh"
	OpPublish   = "publish"
	OpMigrate   = "migrate"
	OpShutdown  = "shutdown"
	OpStartup   = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds the error message; nil errors are skipped.
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithCriteria adds the filter fields that are set.
func (f LogFields) WithCriteria(c core.Criteria) LogFields {
	if c.Year > 0 {
		f[FieldYear] = c.Year
	}
	if c.Month > 0 {
		f[FieldMonth] = c.Month
	}
	if c.CategoryL1 != "" {
		f[FieldCategoryL1] = c.CategoryL1
	}
	if c.CategoryL3 != "" {
		f[FieldCategoryL3] = c.CategoryL3
	}
	return f
}

// WithReport adds bucket sizes and the filtered total.
func (f LogFields) WithReport(dim core.Dimension, r core.TrendReport) LogFields {
	f[FieldDimension] = string(dim)
	f[FieldTotal] = r.TotalFilteredCount
	f[FieldRising] = len(r.Rising)
	f[FieldStable] = len(r.Stable)
	f[FieldFalling] = len(r.Falling)
	return f
}

func (f LogFields) WithHTTPRequest(method, path, query, userAgent string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	if userAgent != "" {
		f[FieldUserAgent] = userAgent
	}
	return f
}

func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = statusCode < 400
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
