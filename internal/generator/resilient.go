package generator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/cory-johannsen/rhymeduel/internal/generator"

// Resilient bounds every call to the wrapped Generator with a timeout and
// replaces failures with the fallback turn. It never returns an error.
type Resilient struct {
	next     Generator
	timeout  time.Duration
	fallback []string
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewResilient wraps next. A zero timeout disables the deadline.
//
// Precondition: next and logger must be non-nil.
func NewResilient(next Generator, timeout time.Duration, fallback []string, logger *zap.Logger) *Resilient {
	return &Resilient{
		next:     next,
		timeout:  timeout,
		fallback: append([]string(nil), fallback...),
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
	}
}

// Generate calls the wrapped Generator, falling back on error or timeout.
func (r *Resilient) Generate(ctx context.Context, req Request) ([]string, error) {
	ctx, span := r.tracer.Start(ctx, "generator.Generate", trace.WithAttributes(
		attribute.Int("rhymeduel.seat", req.Seat),
		attribute.Int("rhymeduel.round", req.Round),
	))
	defer span.End()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	lines, err := r.next.Generate(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn("content generation failed, using fallback",
			zap.Int("seat", req.Seat),
			zap.Int("round", req.Round),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return append([]string(nil), r.fallback...), nil
	}
	span.SetAttributes(attribute.Int("rhymeduel.lines", len(lines)))
	r.logger.Debug("content generated",
		zap.Int("seat", req.Seat),
		zap.Int("round", req.Round),
		zap.Duration("elapsed", time.Since(start)),
	)
	return lines, nil
}
