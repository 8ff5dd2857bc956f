package generator

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"classifieds_ad_publisher/metrics"
)

// Moderator asks the model whether a listing is safe to publish.
//
// Moderation fails open: a transport error, timeout, non-200 answer or an
// unusable payload all produce Verdict{Safe: true}. An unavailable backend
// must not stop sellers from posting. No retries happen here.
type Moderator struct {
	llm     LLMClient
	logger  *zap.Logger
	metrics *metrics.Manager
}

func NewModerator(llm LLMClient, logger *zap.Logger, m *metrics.Manager) (*Moderator, error) {
	if llm == nil {
		return nil, errors.New("llm client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Moderator{llm: llm, logger: logger, metrics: m}, nil
}

func (m *Moderator) Moderate(ctx context.Context, title, description string) Verdict {
	ctx, span := tracer.Start(ctx, "generator.Moderate")
	defer span.End()

	raw, err := m.llm.Complete(ctx, BuildModerationPrompt(title, description))
	if err == nil {
		var v Verdict
		if v, err = ParseVerdict(raw); err == nil {
			span.SetAttributes(attribute.Bool("moderation.safe", v.Safe))
			if v.Safe {
				m.metrics.Moderation("safe")
			} else {
				m.metrics.Moderation("unsafe")
				m.logger.Info("listing rejected by moderation",
					zap.String("title", title),
					zap.String("reason", v.Reason),
				)
			}
			return v
		}
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "moderation unavailable, failing open")
	m.logger.Warn("moderation failed, treating listing as safe",
		zap.String("title", title),
		zap.Error(err),
	)
	m.metrics.Moderation("fail_open")
	return Verdict{Safe: true}
}
