package otelhelper

import (
	"errors"

	"github.com/dukex/flowrun/pkg/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SetError marks span as failed and records err on it; a wrapped *models.ExecutionError
// also tags the span with its error code and the node it happened at.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	var detail *models.ExecutionError
	if errors.As(err, &detail) {
		attrs = append(attrs, attribute.String(ErrorCodeKey, detail.Code))

		if detail.NodeID != "" {
			attrs = append(attrs, attribute.String(NodeIDKey, detail.NodeID))
		}
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attrs...)
}
