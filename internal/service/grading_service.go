package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/kodelab-id/kodelab-api/internal/dto"
	"github.com/kodelab-id/kodelab-api/internal/models"
	"github.com/kodelab-id/kodelab-api/internal/observability"
	"github.com/kodelab-id/kodelab-api/internal/repository"
	"github.com/kodelab-id/kodelab-api/pkg/judge"
	"github.com/kodelab-id/kodelab-api/pkg/lock"
)

// GradingService orchestrates submission grading end to end.
type GradingService interface {
	SubmitSync(ctx context.Context, studentID uint, payload dto.SubmitCodeRequest) (dto.SubmissionResponse, error)
	SubmitAsync(ctx context.Context, studentID uint, payload dto.SubmitCodeRequest) (dto.AsyncSubmitResponse, error)
	DryRun(ctx context.Context, studentID uint, payload dto.DryRunRequest) (dto.DryRunResponse, error)
	Get(ctx context.Context, id uint, viewerID uint, role string) (dto.SubmissionResponse, error)
	ListForStudent(ctx context.Context, studentID uint, offset, limit int) ([]dto.SubmissionResponse, int64, error)
	Grade(ctx context.Context, submissionID uint) error
	Start(ctx context.Context) error
}

// ErrActivityNotFound indicates the referenced activity does not exist.
var ErrActivityNotFound = errors.New("activity not found")

// ErrSubmissionNotFound indicates the submission cannot be located.
var ErrSubmissionNotFound = errors.New("submission not found")

// ErrSubmissionForbidden indicates the caller may not access the submission.
var ErrSubmissionForbidden = errors.New("forbidden")

// ErrUnsupportedLanguage indicates the requested language is not allowed.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// ErrLanguageMismatch indicates the submission language differs from the activity's.
var ErrLanguageMismatch = errors.New("language does not match activity")

// ErrNoTestCases indicates the activity has nothing to grade against.
var ErrNoTestCases = errors.New("activity has no test cases")

// ErrDeadlinePassed indicates the activity deadline is in the past.
var ErrDeadlinePassed = errors.New("activity deadline has passed")

// ErrGradingInFlight indicates another worker is already grading the submission.
var ErrGradingInFlight = errors.New("submission is already being graded")

// GradingConfig carries the orchestrator's tunables.
type GradingConfig struct {
	Workers int
	LockTTL time.Duration
}

type gradingService struct {
	submissions repository.SubmissionRepository
	activities  repository.ActivityRepository
	runner      *CaseRunner
	executor    judge.Executor
	bus         GradingBus
	locks       *lock.Manager
	validator   *validator.Validate
	logger      zerolog.Logger
	config      GradingConfig
}

// NewGradingService constructs the grading orchestrator. The lock manager
// may be nil, in which case per-submission exclusivity relies on the
// single-consumer queue group alone.
func NewGradingService(submissionRepo repository.SubmissionRepository, activityRepo repository.ActivityRepository, runner *CaseRunner, executor judge.Executor, bus GradingBus, locks *lock.Manager, validate *validator.Validate, logger zerolog.Logger, cfg GradingConfig) GradingService {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	return &gradingService{
		submissions: submissionRepo,
		activities:  activityRepo,
		runner:      runner,
		executor:    executor,
		bus:         bus,
		locks:       locks,
		validator:   validate,
		logger:      logger.With().Str("component", "grading_service").Logger(),
		config:      cfg,
	}
}

// Start attaches the background grading workers to the job queue.
func (s *gradingService) Start(ctx context.Context) error {
	for i := 0; i < s.config.Workers; i++ {
		err := s.bus.SubscribeJobs(ctx, func(ctx context.Context, job GradingJob) {
			if err := s.Grade(ctx, job.SubmissionID); err != nil {
				s.logger.Error().Err(err).Uint("submission_id", job.SubmissionID).Msg("background grading failed")
			}
		})
		if err != nil {
			return fmt.Errorf("subscribe grading jobs: %w", err)
		}
	}
	return nil
}

func (s *gradingService) SubmitSync(ctx context.Context, studentID uint, payload dto.SubmitCodeRequest) (dto.SubmissionResponse, error) {
	submission, err := s.createPending(ctx, studentID, payload)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	if err := s.Grade(ctx, submission.ID); err != nil {
		return dto.SubmissionResponse{}, err
	}

	graded, err := s.submissions.GetByID(ctx, submission.ID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	return dto.NewSubmissionResponse(graded), nil
}

func (s *gradingService) SubmitAsync(ctx context.Context, studentID uint, payload dto.SubmitCodeRequest) (dto.AsyncSubmitResponse, error) {
	submission, err := s.createPending(ctx, studentID, payload)
	if err != nil {
		return dto.AsyncSubmitResponse{}, err
	}

	if err := s.bus.PublishJob(ctx, GradingJob{SubmissionID: submission.ID}); err != nil {
		// The queue being down must not lose the submission. Fall back to
		// grading in-process, matching the sync path's behavior.
		s.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("job publish failed, grading in-process")
		go func(id uint) {
			if gradeErr := s.Grade(context.Background(), id); gradeErr != nil {
				s.logger.Error().Err(gradeErr).Uint("submission_id", id).Msg("fallback grading failed")
			}
		}(submission.ID)
	}

	return dto.AsyncSubmitResponse{
		SubmissionID: submission.ID,
		Status:       submission.Status,
	}, nil
}

func (s *gradingService) DryRun(ctx context.Context, studentID uint, payload dto.DryRunRequest) (dto.DryRunResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.DryRunResponse{}, err
	}
	if !judge.IsSupportedLanguage(payload.Language) {
		return dto.DryRunResponse{}, ErrUnsupportedLanguage
	}

	activity, err := s.activities.GetByID(ctx, payload.ActivityID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.DryRunResponse{}, ErrActivityNotFound
		}
		return dto.DryRunResponse{}, err
	}

	stdin := payload.Stdin
	if stdin == "" && len(activity.TestCases) > 0 {
		stdin = activity.TestCases[0].Input
	}

	result, err := s.executor.Execute(ctx, judge.ExecutionRequest{
		Source:   payload.Source,
		Language: payload.Language,
		Stdin:    stdin,
	})
	if err != nil {
		return dto.DryRunResponse{}, err
	}

	response := dto.DryRunResponse{
		Output:      result.Stdout,
		TimeSeconds: result.TimeSeconds,
		MemoryKB:    result.MemoryKB,
		TimedOut:    result.TimedOut,
	}
	if result.Errored() {
		response.Error = result.ErrorText()
	}
	return response, nil
}

func (s *gradingService) Get(ctx context.Context, id uint, viewerID uint, role string) (dto.SubmissionResponse, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}
	if !canViewSubmission(viewerID, role, submission) {
		return dto.SubmissionResponse{}, ErrSubmissionForbidden
	}
	return dto.NewSubmissionResponse(submission), nil
}

func (s *gradingService) ListForStudent(ctx context.Context, studentID uint, offset, limit int) ([]dto.SubmissionResponse, int64, error) {
	submissions, total, err := s.submissions.ListByStudent(ctx, studentID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	return dto.NewSubmissionResponseSlice(submissions), total, nil
}

// Grade runs the full pipeline for one submission: lock, execute the
// activity's test cases, score, persist, and announce completion. It is
// idempotent for submissions that already reached a terminal state.
func (s *gradingService) Grade(ctx context.Context, submissionID uint) error {
	ctx, span := otel.Tracer("kodelab/grading").Start(ctx, "grading.grade")
	span.SetAttributes(attribute.Int("submission.id", int(submissionID)))
	defer span.End()

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSubmissionNotFound
		}
		return err
	}
	if submission.IsTerminal() {
		return nil
	}

	if s.locks != nil {
		held, lockErr := s.locks.Acquire(ctx, gradingLockKey(submissionID), s.config.LockTTL)
		if lockErr != nil {
			if errors.Is(lockErr, lock.ErrNotAcquired) {
				return ErrGradingInFlight
			}
			return fmt.Errorf("acquire grading lock: %w", lockErr)
		}
		defer func() {
			if releaseErr := held.Release(context.Background()); releaseErr != nil {
				s.logger.Warn().Err(releaseErr).Uint("submission_id", submissionID).Msg("failed to release grading lock")
			}
		}()

		// Another worker may have graded this submission between the
		// first read and the lock grant. Re-read under the lock so a
		// terminal row is never written twice.
		submission, err = s.submissions.GetByID(ctx, submissionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSubmissionNotFound
			}
			return err
		}
		if submission.IsTerminal() {
			return nil
		}
	}

	activity, err := s.activities.GetByID(ctx, submission.ActivityID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.failSubmission(ctx, &submission, ErrActivityNotFound)
		}
		return err
	}
	if len(activity.TestCases) == 0 {
		return s.failSubmission(ctx, &submission, ErrNoTestCases)
	}

	submission.Status = models.SubmissionStatusRunning
	submission.Result = models.SubmissionResultPending
	if err := s.submissions.Update(ctx, &submission); err != nil {
		return err
	}

	observability.GradingInFlight().Inc()
	defer observability.GradingInFlight().Dec()
	started := time.Now()

	results, runErr := s.runner.Run(ctx, submission.Source, submission.Language, activity.TestCases)
	observability.GradingDuration().WithLabelValues(submission.Language).Observe(time.Since(started).Seconds())
	if runErr != nil {
		if failErr := s.failSubmission(ctx, &submission, runErr); failErr != nil {
			return failErr
		}
		return runErr
	}

	summary := ScoreResults(results)
	now := time.Now()
	submission.Status = models.SubmissionStatusCompleted
	submission.Result = summary.Result
	submission.Score = summary.Score
	submission.ExecutionTime = summary.ExecutionTime
	submission.MemoryKB = summary.MemoryKB
	submission.ErrorMessage = joinCaseErrors(results)
	submission.CompletedAt = &now
	submission.IsFinal = true
	if failed, ok := firstFailure(results); ok {
		submission.Output = failed.ActualOutput
	} else if len(results) > 0 {
		submission.Output = results[0].ActualOutput
	}

	// Latest graded submission wins the final slot for the activity.
	if err := s.submissions.ClearFinalForActivity(ctx, submission.StudentID, submission.ActivityID); err != nil {
		return err
	}
	if err := s.submissions.SaveResults(ctx, &submission, results); err != nil {
		return err
	}

	observability.GradingRuns().WithLabelValues(summary.Result).Inc()
	s.logger.Info().
		Uint("submission_id", submission.ID).
		Str("result", summary.Result).
		Int("score", summary.Score).
		Int("passed", summary.PassedCases).
		Int("total", summary.TotalCases).
		Msg("submission graded")

	s.announceCompleted(ctx, submission)
	return nil
}

func (s *gradingService) createPending(ctx context.Context, studentID uint, payload dto.SubmitCodeRequest) (models.Submission, error) {
	if err := s.validator.Struct(payload); err != nil {
		return models.Submission{}, err
	}
	if !judge.IsSupportedLanguage(payload.Language) {
		return models.Submission{}, ErrUnsupportedLanguage
	}

	activity, err := s.activities.GetByID(ctx, payload.ActivityID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, ErrActivityNotFound
		}
		return models.Submission{}, err
	}
	if activity.Language != "" && activity.Language != payload.Language {
		return models.Submission{}, ErrLanguageMismatch
	}
	if len(activity.TestCases) == 0 {
		return models.Submission{}, ErrNoTestCases
	}
	if activity.IsPastDeadline(time.Now()) {
		return models.Submission{}, ErrDeadlinePassed
	}

	submission := models.Submission{
		StudentID:  studentID,
		ActivityID: activity.ID,
		Source:     payload.Source,
		Language:   payload.Language,
		Status:     models.SubmissionStatusPending,
		Result:     models.SubmissionResultPending,
	}
	if err := s.submissions.Create(ctx, &submission); err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

// failSubmission moves a submission to its failed terminal state without
// per-case results. No completion event fires, there is nothing for the
// feedback generator to explain.
func (s *gradingService) failSubmission(ctx context.Context, submission *models.Submission, cause error) error {
	now := time.Now()
	submission.Status = models.SubmissionStatusFailed
	submission.Result = models.SubmissionResultError
	submission.ErrorMessage = cause.Error()
	submission.CompletedAt = &now
	if err := s.submissions.Update(ctx, submission); err != nil {
		return err
	}
	observability.GradingRuns().WithLabelValues("failed").Inc()
	s.logger.Error().Err(cause).Uint("submission_id", submission.ID).Msg("submission failed")
	return nil
}

func (s *gradingService) announceCompleted(ctx context.Context, submission models.Submission) {
	event := GradingCompleted{
		SubmissionID: submission.ID,
		Verdict:      submission.Result,
	}
	if err := s.bus.PublishCompleted(ctx, event); err != nil {
		s.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("failed to publish completion event")
	}
}

func canViewSubmission(viewerID uint, role string, submission models.Submission) bool {
	switch role {
	case models.RoleProfessor, models.RoleAdmin:
		return true
	default:
		return submission.StudentID == viewerID
	}
}

func gradingLockKey(submissionID uint) string {
	return fmt.Sprintf("grading:submission:%d", submissionID)
}
