package otelhelper

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrorTypeKey holds the Go type of a recorded error.
const ErrorTypeKey = "cadence.error.type"

// SetError marks span failed. attrs identify the lead or node the failure
// belongs to, so per-lead launch failures stay visible on the launch span.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	attrs = append(attrs, attribute.String(ErrorTypeKey, fmt.Sprintf("%T", err)))
	span.AddEvent("cadence.failure", trace.WithAttributes(attrs...))
}
