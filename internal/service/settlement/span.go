package settlement

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/josh-kwaku/pawn-settlement/internal/domain"
)

func endSpan(span trace.Span, err error) {
	if err != nil {
		code := domain.ErrorCode(err)
		span.SetAttributes(attribute.String("error.code", code))
		span.SetStatus(codes.Error, code)
		span.RecordError(err)
	}
	span.End()
}
