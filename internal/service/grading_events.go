package service

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATS subjects and queue groups for the grading pipeline. Queue groups
// make each message land on exactly one worker per group.
const (
	subjectGradingJobs      = "kodelab.grading.jobs"
	subjectGradingCompleted = "kodelab.grading.completed"
	queueGroupGrading       = "kodelab-grading-workers"
	queueGroupFeedback      = "kodelab-feedback-workers"
)

// GradingJob asks a background worker to grade a pending submission.
type GradingJob struct {
	SubmissionID uint `json:"submission_id"`
}

// GradingCompleted announces that a submission reached a terminal state.
// The feedback worker consumes it to trigger best-effort generation.
type GradingCompleted struct {
	SubmissionID uint   `json:"submission_id"`
	Verdict      string `json:"verdict"`
}

// GradingBus decouples the orchestrator from its background consumers.
type GradingBus interface {
	PublishJob(ctx context.Context, job GradingJob) error
	SubscribeJobs(ctx context.Context, handler func(context.Context, GradingJob)) error
	PublishCompleted(ctx context.Context, event GradingCompleted) error
	SubscribeCompleted(ctx context.Context, handler func(context.Context, GradingCompleted)) error
}

// NewGradingBus returns a NATS backed bus, or an in-process channel bus
// when no broker connection is available.
func NewGradingBus(conn *nats.Conn, logger zerolog.Logger) GradingBus {
	if conn == nil {
		return newLocalGradingBus(logger)
	}
	return &natsGradingBus{
		conn:   conn,
		logger: logger.With().Str("component", "grading_bus").Logger(),
	}
}

type natsGradingBus struct {
	conn   *nats.Conn
	logger zerolog.Logger
}

func (b *natsGradingBus) PublishJob(ctx context.Context, job GradingJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return b.conn.Publish(subjectGradingJobs, payload)
}

func (b *natsGradingBus) SubscribeJobs(ctx context.Context, handler func(context.Context, GradingJob)) error {
	sub, err := b.conn.QueueSubscribe(subjectGradingJobs, queueGroupGrading, func(msg *nats.Msg) {
		var job GradingJob
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			b.logger.Warn().Err(err).Msg("invalid grading job payload")
			return
		}
		handler(ctx, job)
	})
	if err != nil {
		return err
	}

	go b.drainOnDone(ctx, sub)
	return nil
}

func (b *natsGradingBus) PublishCompleted(ctx context.Context, event GradingCompleted) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.conn.Publish(subjectGradingCompleted, payload)
}

func (b *natsGradingBus) SubscribeCompleted(ctx context.Context, handler func(context.Context, GradingCompleted)) error {
	sub, err := b.conn.QueueSubscribe(subjectGradingCompleted, queueGroupFeedback, func(msg *nats.Msg) {
		var event GradingCompleted
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			b.logger.Warn().Err(err).Msg("invalid grading completed payload")
			return
		}
		handler(ctx, event)
	})
	if err != nil {
		return err
	}

	go b.drainOnDone(ctx, sub)
	return nil
}

func (b *natsGradingBus) drainOnDone(ctx context.Context, sub *nats.Subscription) {
	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		b.logger.Warn().Err(err).Msg("failed to drain grading subscription")
	}
}

const localBusBuffer = 64

// localGradingBus keeps the async contract alive without a broker, the
// way a development deployment without NATS would run.
type localGradingBus struct {
	logger    zerolog.Logger
	jobs      chan GradingJob
	completed chan GradingCompleted
}

func newLocalGradingBus(logger zerolog.Logger) *localGradingBus {
	return &localGradingBus{
		logger:    logger.With().Str("component", "grading_bus_local").Logger(),
		jobs:      make(chan GradingJob, localBusBuffer),
		completed: make(chan GradingCompleted, localBusBuffer),
	}
}

func (b *localGradingBus) PublishJob(ctx context.Context, job GradingJob) error {
	select {
	case b.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *localGradingBus) SubscribeJobs(ctx context.Context, handler func(context.Context, GradingJob)) error {
	go func() {
		for {
			select {
			case job := <-b.jobs:
				handler(ctx, job)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (b *localGradingBus) PublishCompleted(ctx context.Context, event GradingCompleted) error {
	select {
	case b.completed <- event:
		return nil
	default:
		// Feedback is best-effort; dropping the event beats blocking grading.
		b.logger.Warn().Uint("submission_id", event.SubmissionID).Msg("completed event buffer full, dropping")
		return nil
	}
}

func (b *localGradingBus) SubscribeCompleted(ctx context.Context, handler func(context.Context, GradingCompleted)) error {
	go func() {
		for {
			select {
			case event := <-b.completed:
				handler(ctx, event)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}
