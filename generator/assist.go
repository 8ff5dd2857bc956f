package generator

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"classifieds_ad_publisher/metrics"
)

var tracer = otel.Tracer("classifieds_ad_publisher/generator")

// DescriptionWriter 根据标题和分类生成商品描述。
type DescriptionWriter struct {
	llm     LLMClient
	logger  *zap.Logger
	metrics *metrics.Manager
}

func NewDescriptionWriter(llm LLMClient, logger *zap.Logger, m *metrics.Manager) (*DescriptionWriter, error) {
	if llm == nil {
		return nil, errors.New("llm client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DescriptionWriter{llm: llm, logger: logger, metrics: m}, nil
}

// GenerateDescription issues one completion and returns its text verbatim.
// It never fails: backend errors come back as fallback text.
func (w *DescriptionWriter) GenerateDescription(ctx context.Context, title, category string) Generation {
	ctx, span := tracer.Start(ctx, "generator.GenerateDescription")
	defer span.End()
	span.SetAttributes(attribute.String("listing.category", category))

	raw, err := w.llm.Complete(ctx, BuildDescriptionPrompt(title, category))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		w.logger.Warn("description generation failed",
			zap.String("title", title),
			zap.String("category", category),
			zap.Error(err),
		)
		w.metrics.Generation("fallback")
		return Generation{Text: FallbackUnavailable, Fallback: true}
	}
	if raw == "" {
		w.logger.Warn("description generation returned empty text", zap.String("title", title))
		w.metrics.Generation("fallback")
		return Generation{Text: FallbackEmpty, Fallback: true}
	}

	w.logger.Debug("description generated", zap.String("title", title), zap.Int("chars", len(raw)))
	w.metrics.Generation("ok")
	return Generation{Text: raw}
}
