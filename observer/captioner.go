package observer

import (
	"context"
	"time"

	lode "github.com/lodekb/lode"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedCaptioner wraps a lode.Captioner with OTEL instrumentation.
type ObservedCaptioner struct {
	inner lode.Captioner
	inst  *Instruments
	model string
}

// WrapCaptioner returns an instrumented captioner.
func WrapCaptioner(inner lode.Captioner, model string, inst *Instruments) *ObservedCaptioner {
	return &ObservedCaptioner{inner: inner, inst: inst, model: model}
}

func (o *ObservedCaptioner) Name() string { return o.inner.Name() }

func (o *ObservedCaptioner) Caption(ctx context.Context, data []byte, mimeType string) (string, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "llm.caption", trace.WithAttributes(
		AttrLLMModel.String(o.model),
		AttrLLMProvider.String(o.inner.Name()),
		AttrCaptionBytes.Int(len(data)),
		AttrCaptionMimeType.String(mimeType),
	))
	defer span.End()
	start := time.Now()

	caption, err := o.inner.Caption(ctx, data, mimeType)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	o.inst.CaptionRequests.Add(ctx, 1, metric.WithAttributes(
		AttrLLMModel.String(o.model),
		AttrLLMProvider.String(o.inner.Name()),
		attribute.String("status", status),
	))
	o.inst.CaptionDuration.Record(ctx, durationMs, metric.WithAttributes(
		AttrLLMModel.String(o.model),
		AttrLLMProvider.String(o.inner.Name()),
	))

	// Structured log
	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("caption completed"))
	rec.AddAttributes(
		otellog.String("llm.model", o.model),
		otellog.String("llm.provider", o.inner.Name()),
		otellog.Int("caption.image_bytes", len(data)),
		otellog.String("caption.mime_type", mimeType),
		otellog.Float64("llm.duration_ms", durationMs),
		otellog.String("status", status),
	)
	o.inst.Logger.Emit(ctx, rec)

	return caption, err
}

var _ lode.Captioner = (*ObservedCaptioner)(nil)
