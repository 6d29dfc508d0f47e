package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/kodelab-id/kodelab-api/internal/models"
	"github.com/kodelab-id/kodelab-api/pkg/ai"
)

type stubGenerator struct {
	mu       sync.Mutex
	failures int
	calls    int
	result   ai.FeedbackResult
}

func (g *stubGenerator) Generate(ctx context.Context, req ai.FeedbackRequest) (ai.FeedbackResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.calls <= g.failures {
		return ai.FeedbackResult{}, fmt.Errorf("attempt %d: %w", g.calls, ai.ErrProvider)
	}
	return g.result, nil
}

func newFeedbackFixture(t *testing.T, generator ai.Generator, cfg FeedbackConfig) (*feedbackService, *memSubmissionRepo, *recordingBus, *int) {
	t.Helper()
	subs := newMemSubmissionRepo()
	activities := &stubActivityRepo{activities: make(map[uint]models.Activity)}
	bus := &recordingBus{}
	svc := NewFeedbackService(subs, activities, generator, bus, zerolog.Nop(), cfg).(*feedbackService)

	sleeps := 0
	svc.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps++
		return nil
	}
	return svc, subs, bus, &sleeps
}

func seedGradedSubmission(t *testing.T, subs *memSubmissionRepo) models.Submission {
	t.Helper()
	now := time.Now()
	submission := models.Submission{
		StudentID:   7,
		ActivityID:  1,
		Source:      "print(3)",
		Language:    "python",
		Status:      models.SubmissionStatusCompleted,
		Result:      models.SubmissionResultFail,
		Score:       0,
		CompletedAt: &now,
	}
	require.NoError(t, subs.Create(context.Background(), &submission))
	results := []models.TestCaseResult{{
		SubmissionID:   submission.ID,
		CaseNumber:     1,
		Input:          "in",
		ExpectedOutput: "4",
		ActualOutput:   "3",
	}}
	require.NoError(t, subs.SaveResults(context.Background(), &submission, results))
	return submission
}

func TestGenerateRetriesThenSucceeds(t *testing.T) {
	generator := &stubGenerator{
		failures: 2,
		result:   ai.FeedbackResult{Feedback: "Check your addition.", Model: "gpt-4o-mini"},
	}
	svc, subs, _, sleeps := newFeedbackFixture(t, generator, FeedbackConfig{MaxRetries: 2})
	submission := seedGradedSubmission(t, subs)

	require.NoError(t, svc.Generate(context.Background(), submission.ID))
	require.Equal(t, 3, generator.calls)
	require.Equal(t, 2, *sleeps)

	stored, err := subs.GetByID(context.Background(), submission.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Feedback)
	require.True(t, stored.Feedback.Succeeded())
	require.Equal(t, "Check your addition.", stored.Feedback.Feedback)
	require.Equal(t, models.FeedbackVerdictWrongAnswer, stored.Feedback.Verdict)
	require.NotNil(t, stored.Feedback.GeneratedAt)
}

func TestGenerateExhaustsRetries(t *testing.T) {
	generator := &stubGenerator{failures: 10}
	svc, subs, _, _ := newFeedbackFixture(t, generator, FeedbackConfig{MaxRetries: 2})
	submission := seedGradedSubmission(t, subs)

	err := svc.Generate(context.Background(), submission.ID)
	require.ErrorIs(t, err, ai.ErrProvider)
	require.Equal(t, 3, generator.calls)

	stored, getErr := subs.GetByID(context.Background(), submission.ID)
	require.NoError(t, getErr)
	require.NotNil(t, stored.Feedback)
	require.False(t, stored.Feedback.Succeeded())
	require.NotEmpty(t, stored.Feedback.Error)
	require.Empty(t, stored.Feedback.Feedback)
}

func TestGenerateRequiresTerminalSubmission(t *testing.T) {
	svc, subs, _, _ := newFeedbackFixture(t, &stubGenerator{}, FeedbackConfig{})
	pending := models.Submission{StudentID: 7, ActivityID: 1, Status: models.SubmissionStatusRunning}
	require.NoError(t, subs.Create(context.Background(), &pending))

	require.ErrorIs(t, svc.Generate(context.Background(), pending.ID), ErrSubmissionNotGraded)
}

func TestGenerateSkipsExistingFeedback(t *testing.T) {
	generator := &stubGenerator{}
	svc, subs, _, _ := newFeedbackFixture(t, generator, FeedbackConfig{})
	submission := seedGradedSubmission(t, subs)

	now := time.Now()
	require.NoError(t, subs.SaveFeedback(context.Background(), &models.FeedbackRecord{
		SubmissionID: submission.ID,
		Feedback:     "already here",
		Verdict:      models.FeedbackVerdictWrongAnswer,
		GeneratedAt:  &now,
	}))

	require.NoError(t, svc.Generate(context.Background(), submission.ID))
	require.Zero(t, generator.calls)
}

func TestGenerateWithoutProviderWritesTerminalError(t *testing.T) {
	svc, subs, _, _ := newFeedbackFixture(t, nil, FeedbackConfig{})
	submission := seedGradedSubmission(t, subs)

	require.NoError(t, svc.Generate(context.Background(), submission.ID))

	stored, err := subs.GetByID(context.Background(), submission.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Feedback)
	require.False(t, stored.Feedback.Succeeded())
	require.NotEmpty(t, stored.Feedback.Error)
}

func TestWaitReturnsFeedbackWhenItLands(t *testing.T) {
	svc, subs, _, _ := newFeedbackFixture(t, &stubGenerator{}, FeedbackConfig{PollRetries: 5})
	submission := seedGradedSubmission(t, subs)

	polls := 0
	svc.sleep = func(ctx context.Context, d time.Duration) error {
		polls++
		if polls == 2 {
			now := time.Now()
			require.NoError(t, subs.SaveFeedback(context.Background(), &models.FeedbackRecord{
				SubmissionID: submission.ID,
				Feedback:     "Walk through the failing case by hand.",
				Verdict:      models.FeedbackVerdictWrongAnswer,
				GeneratedAt:  &now,
			}))
		}
		return nil
	}

	response, err := svc.Wait(context.Background(), submission.ID, 7, models.RoleStudent)
	require.NoError(t, err)
	require.True(t, response.HasFeedback)
	require.Equal(t, "ready", response.Status)
	require.Equal(t, 2, polls)
}

func TestWaitGivesUpAfterCeiling(t *testing.T) {
	svc, subs, _, sleeps := newFeedbackFixture(t, &stubGenerator{}, FeedbackConfig{PollRetries: 3})
	submission := seedGradedSubmission(t, subs)

	_, err := svc.Wait(context.Background(), submission.ID, 7, models.RoleStudent)
	require.ErrorIs(t, err, ErrFeedbackPending)
	// No sleep after the last read; the poller reports pending right away.
	require.Equal(t, 2, *sleeps)
}

func TestWaitSurfacesStoredGenerationError(t *testing.T) {
	svc, subs, _, _ := newFeedbackFixture(t, &stubGenerator{}, FeedbackConfig{PollRetries: 3})
	submission := seedGradedSubmission(t, subs)

	require.NoError(t, subs.SaveFeedback(context.Background(), &models.FeedbackRecord{
		SubmissionID: submission.ID,
		Verdict:      models.FeedbackVerdictWrongAnswer,
		Error:        "provider unavailable",
	}))

	response, err := svc.Wait(context.Background(), submission.ID, 7, models.RoleStudent)
	require.NoError(t, err)
	require.False(t, response.HasFeedback)
	require.Equal(t, "error", response.Status)
	require.Equal(t, "provider unavailable", response.Error)
}

func TestGetReannouncesMissingFeedback(t *testing.T) {
	svc, subs, bus, _ := newFeedbackFixture(t, &stubGenerator{}, FeedbackConfig{})
	submission := seedGradedSubmission(t, subs)

	response, err := svc.Get(context.Background(), submission.ID, 7, models.RoleStudent)
	require.NoError(t, err)
	require.Equal(t, "pending", response.Status)

	events := bus.completedEvents()
	require.Len(t, events, 1)
	require.Equal(t, submission.ID, events[0].SubmissionID)
}

func TestGetEnforcesFeedbackOwnership(t *testing.T) {
	svc, subs, _, _ := newFeedbackFixture(t, &stubGenerator{}, FeedbackConfig{})
	submission := seedGradedSubmission(t, subs)

	_, err := svc.Get(context.Background(), submission.ID, 8, models.RoleStudent)
	require.ErrorIs(t, err, ErrSubmissionForbidden)
}
