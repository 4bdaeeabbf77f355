package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Fields flow through context enrichment, so the scan being processed and the stage it is
// in show up on every log line without being passed around explicitly.
type LogFields struct {
	ScanID    *int64  // Scan (task) ID
	MessageID *string // Redis stream message ID
	EmailID   *string // Provider message ID of the email being processed
	Stage     *string // Pipeline stage (e.g. "classify", "extract", "grouping")
	Component string  // Component name (OTel semantic convention style, e.g. "tripscan.pipeline")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.ScanID != nil {
		result.ScanID = new.ScanID
	}
	if new.MessageID != nil {
		result.MessageID = new.MessageID
	}
	if new.EmailID != nil {
		result.EmailID = new.EmailID
	}
	if new.Stage != nil {
		result.Stage = new.Stage
	}
	if new.Component != "" {
		result.Component = new.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{ScanID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen bytes, appending "..." if truncated.
// Useful for logging potentially long strings like prompts or model output.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
