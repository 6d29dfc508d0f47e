package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	feedbackDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kodelab",
		Subsystem: "ai",
		Name:      "feedback_duration_seconds",
		Help:      "Duration of feedback generation requests",
	}, []string{"model"})

	feedbackFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kodelab",
		Subsystem: "ai",
		Name:      "feedback_failures_total",
		Help:      "Number of feedback generation failures",
	}, []string{"model"})
)

// OpenAIConfig defines configuration options for the OpenAI generator.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAIGenerator implements Generator against the OpenAI chat completion API.
type OpenAIGenerator struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIGenerator builds a generator using the provided configuration.
func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(openai.DefaultConfig(cfg.APIKey)),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/kodelab-id/kodelab-api/pkg/ai"),
		logger: logger.With().Str("component", "openai_generator").Logger(),
	}, nil
}

// Generate sends the verdict-specific prompt to OpenAI and returns the
// tutoring feedback text.
func (g *OpenAIGenerator) Generate(parent context.Context, req FeedbackRequest) (FeedbackResult, error) {
	ctx, span := g.tracer.Start(parent, "openai.generate_feedback", trace.WithAttributes(
		attribute.String("model", g.cfg.Model),
		attribute.String("feedback.verdict", req.Verdict),
	))
	defer span.End()

	request := openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(req)},
		},
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, request)
	feedbackDuration.WithLabelValues(g.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		feedbackFailures.WithLabelValues(g.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return FeedbackResult{}, fmt.Errorf("%w: %v", ErrProvider, err)
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("%w: no choices returned", ErrProvider)
		feedbackFailures.WithLabelValues(g.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return FeedbackResult{}, err
	}

	feedback := strings.TrimSpace(resp.Choices[0].Message.Content)
	if feedback == "" {
		err := fmt.Errorf("%w: empty completion", ErrProvider)
		feedbackFailures.WithLabelValues(g.cfg.Model).Inc()
		span.RecordError(err)
		return FeedbackResult{}, err
	}

	return FeedbackResult{
		Feedback: feedback,
		Model:    g.cfg.Model,
		Raw: map[string]interface{}{
			"usage": resp.Usage,
		},
	}, nil
}
