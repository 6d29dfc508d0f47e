package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/kodelab-id/kodelab-api/internal/dto"
	"github.com/kodelab-id/kodelab-api/internal/models"
	"github.com/kodelab-id/kodelab-api/internal/observability"
	"github.com/kodelab-id/kodelab-api/internal/repository"
	"github.com/kodelab-id/kodelab-api/pkg/ai"
)

// FeedbackService generates and serves tutoring feedback for graded
// submissions. Generation is best-effort and fully decoupled from
// grading: a dead provider never touches the submission row.
type FeedbackService interface {
	Generate(ctx context.Context, submissionID uint) error
	Get(ctx context.Context, submissionID uint, viewerID uint, role string) (dto.FeedbackResponse, error)
	Wait(ctx context.Context, submissionID uint, viewerID uint, role string) (dto.FeedbackResponse, error)
	Start(ctx context.Context) error
}

// ErrFeedbackPending indicates feedback has not been produced within the
// polling window. The submission itself is fine; callers should retry.
var ErrFeedbackPending = errors.New("feedback not ready yet")

// ErrSubmissionNotGraded indicates feedback was requested before the
// submission reached a terminal state.
var ErrSubmissionNotGraded = errors.New("submission has not been graded")

// FeedbackConfig carries retry and polling tunables.
type FeedbackConfig struct {
	MaxRetries  int
	RetryDelay  time.Duration
	PollDelay   time.Duration
	PollRetries int
}

type feedbackService struct {
	submissions repository.SubmissionRepository
	activities  repository.ActivityRepository
	generator   ai.Generator
	bus         GradingBus
	logger      zerolog.Logger
	config      FeedbackConfig

	// sleep is swapped out in tests to avoid real waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewFeedbackService constructs the feedback generator and poller. The
// generator may be nil when no provider is configured; Generate then
// records a terminal error so pollers are not left hanging.
func NewFeedbackService(submissionRepo repository.SubmissionRepository, activityRepo repository.ActivityRepository, generator ai.Generator, bus GradingBus, logger zerolog.Logger, cfg FeedbackConfig) FeedbackService {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.PollDelay <= 0 {
		cfg.PollDelay = 2 * time.Second
	}
	if cfg.PollRetries <= 0 {
		cfg.PollRetries = 15
	}
	return &feedbackService{
		submissions: submissionRepo,
		activities:  activityRepo,
		generator:   generator,
		bus:         bus,
		logger:      logger.With().Str("component", "feedback_service").Logger(),
		config:      cfg,
		sleep:       sleepCtx,
	}
}

// Start attaches the feedback worker to grading completion events.
func (s *feedbackService) Start(ctx context.Context) error {
	return s.bus.SubscribeCompleted(ctx, func(ctx context.Context, event GradingCompleted) {
		if err := s.Generate(ctx, event.SubmissionID); err != nil {
			s.logger.Warn().Err(err).Uint("submission_id", event.SubmissionID).Msg("feedback generation failed")
		}
	})
}

// Generate produces and stores feedback for one graded submission. It
// retries transient provider failures a bounded number of times; after
// the last attempt it writes a terminal error record instead.
func (s *feedbackService) Generate(ctx context.Context, submissionID uint) error {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSubmissionNotFound
		}
		return err
	}
	if !submission.IsTerminal() {
		return ErrSubmissionNotGraded
	}
	if submission.Feedback != nil && submission.Feedback.Succeeded() {
		return nil
	}

	verdict := feedbackVerdict(submission)
	record := models.FeedbackRecord{
		SubmissionID: submission.ID,
		Verdict:      verdict,
	}

	if s.generator == nil {
		record.Error = "no feedback provider configured"
		return s.submissions.SaveFeedback(ctx, &record)
	}

	request, err := s.buildRequest(ctx, submission, verdict)
	if err != nil {
		return err
	}

	attempts := s.config.MaxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, genErr := s.generator.Generate(ctx, request)
		if genErr == nil {
			observability.FeedbackAttempts().WithLabelValues("ok").Inc()
			now := time.Now()
			record.Feedback = result.Feedback
			record.Model = result.Model
			record.Raw = result.Raw
			record.Error = ""
			record.GeneratedAt = &now
			if err := s.submissions.SaveFeedback(ctx, &record); err != nil {
				return err
			}
			s.logger.Info().Uint("submission_id", submission.ID).Str("verdict", verdict).Msg("feedback generated")
			return nil
		}

		lastErr = genErr
		observability.FeedbackAttempts().WithLabelValues("error").Inc()
		s.logger.Warn().Err(genErr).Uint("submission_id", submission.ID).Int("attempt", attempt).Msg("feedback attempt failed")
		if attempt < attempts {
			if err := s.sleep(ctx, s.config.RetryDelay); err != nil {
				lastErr = err
				break
			}
		}
	}

	record.Error = lastErr.Error()
	if err := s.submissions.SaveFeedback(ctx, &record); err != nil {
		return err
	}
	return fmt.Errorf("generate feedback: %w", lastErr)
}

func (s *feedbackService) Get(ctx context.Context, submissionID uint, viewerID uint, role string) (dto.FeedbackResponse, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.FeedbackResponse{}, ErrSubmissionNotFound
		}
		return dto.FeedbackResponse{}, err
	}
	if !canViewSubmission(viewerID, role, submission) {
		return dto.FeedbackResponse{}, ErrSubmissionForbidden
	}
	if !submission.IsTerminal() {
		return dto.FeedbackResponse{}, ErrSubmissionNotGraded
	}

	if submission.Feedback == nil && submission.Status == models.SubmissionStatusCompleted {
		// The completion event may have been lost; nudge a worker.
		s.announceRetry(ctx, submission)
	}
	return dto.NewFeedbackResponse(submission.Feedback), nil
}

// Wait polls for feedback up to the configured ceiling. It returns
// ErrFeedbackPending when the window closes without a record, which is
// distinct from a stored generation error.
func (s *feedbackService) Wait(ctx context.Context, submissionID uint, viewerID uint, role string) (dto.FeedbackResponse, error) {
	for attempt := 0; attempt < s.config.PollRetries; attempt++ {
		response, err := s.Get(ctx, submissionID, viewerID, role)
		if err != nil {
			return dto.FeedbackResponse{}, err
		}
		if response.Status != "pending" {
			return response, nil
		}
		if attempt == s.config.PollRetries-1 {
			break
		}
		if err := s.sleep(ctx, s.config.PollDelay); err != nil {
			return dto.FeedbackResponse{}, err
		}
	}
	return dto.FeedbackResponse{Status: "pending"}, ErrFeedbackPending
}

func (s *feedbackService) buildRequest(ctx context.Context, submission models.Submission, verdict string) (ai.FeedbackRequest, error) {
	activity, err := s.activities.GetByID(ctx, submission.ActivityID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return ai.FeedbackRequest{}, err
	}

	request := ai.FeedbackRequest{
		Verdict:          verdict,
		Language:         submission.Language,
		ProblemStatement: activity.ProblemStatement,
		Source:           submission.Source,
		ErrorMessage:     submission.ErrorMessage,
	}
	if failed, ok := firstFailure(submission.Results); ok {
		request.ExpectedOutput = failed.ExpectedOutput
		request.ActualOutput = failed.ActualOutput
	}
	return request, nil
}

func (s *feedbackService) announceRetry(ctx context.Context, submission models.Submission) {
	event := GradingCompleted{
		SubmissionID: submission.ID,
		Verdict:      submission.Result,
	}
	if err := s.bus.PublishCompleted(ctx, event); err != nil {
		s.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("failed to re-trigger feedback")
	}
}

// feedbackVerdict maps a terminal submission onto the tutoring verdict
// used to pick a prompt.
func feedbackVerdict(submission models.Submission) string {
	switch submission.Result {
	case models.SubmissionResultPass:
		return models.FeedbackVerdictAccepted
	case models.SubmissionResultFail:
		return models.FeedbackVerdictWrongAnswer
	default:
		return models.FeedbackVerdictError
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
