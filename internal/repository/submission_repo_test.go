package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/kodelab-id/kodelab-api/internal/models"
)

func setupSubmissionDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Activity{},
		&models.TestCase{},
		&models.Submission{},
		&models.TestCaseResult{},
		&models.FeedbackRecord{},
	))
	return db
}

func TestSubmissionRepositorySaveResultsIsAtomic(t *testing.T) {
	db := setupSubmissionDB(t)
	repo := NewSubmissionRepository(db)

	submission := models.Submission{StudentID: 1, ActivityID: 1, Source: "print(1)", Language: "python", Status: models.SubmissionStatusRunning, Result: models.SubmissionResultPending}
	require.NoError(t, repo.Create(context.Background(), &submission))

	now := time.Now().UTC()
	submission.Status = models.SubmissionStatusCompleted
	submission.Result = models.SubmissionResultPass
	submission.Score = 100
	submission.CompletedAt = &now

	results := []models.TestCaseResult{
		{CaseNumber: 1, Passed: true, Input: "", ExpectedOutput: "1", ActualOutput: "1"},
		{CaseNumber: 2, Passed: true, Input: "2", ExpectedOutput: "2", ActualOutput: "2"},
	}
	require.NoError(t, repo.SaveResults(context.Background(), &submission, results))

	stored, err := repo.GetByID(context.Background(), submission.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusCompleted, stored.Status)
	require.Len(t, stored.Results, 2)
	require.Equal(t, 1, stored.Results[0].CaseNumber)
	require.Equal(t, 2, stored.Results[1].CaseNumber)
	require.Equal(t, 100, stored.Score)
}

func TestSubmissionRepositorySaveFeedbackUpserts(t *testing.T) {
	db := setupSubmissionDB(t)
	repo := NewSubmissionRepository(db)

	submission := models.Submission{StudentID: 4, ActivityID: 2, Source: "x", Language: "python", Status: models.SubmissionStatusCompleted, Result: models.SubmissionResultFail}
	require.NoError(t, repo.Create(context.Background(), &submission))

	failed := models.FeedbackRecord{SubmissionID: submission.ID, Verdict: models.FeedbackVerdictWrongAnswer, Error: "provider unavailable"}
	require.NoError(t, repo.SaveFeedback(context.Background(), &failed))

	now := time.Now().UTC()
	succeeded := models.FeedbackRecord{SubmissionID: submission.ID, Verdict: models.FeedbackVerdictWrongAnswer, Feedback: "Look at the loop bound.", Model: "gpt-4o-mini", GeneratedAt: &now}
	require.NoError(t, repo.SaveFeedback(context.Background(), &succeeded))

	stored, err := repo.GetByID(context.Background(), submission.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Feedback)
	require.Equal(t, failed.ID, stored.Feedback.ID, "retry must overwrite the same record")
	require.Equal(t, "Look at the loop bound.", stored.Feedback.Feedback)
	require.Empty(t, stored.Feedback.Error)
}

func TestSubmissionRepositoryClearFinalForActivity(t *testing.T) {
	db := setupSubmissionDB(t)
	repo := NewSubmissionRepository(db)

	first := models.Submission{StudentID: 7, ActivityID: 3, Source: "a", Language: "python", Status: models.SubmissionStatusCompleted, Result: models.SubmissionResultFail, IsFinal: true}
	require.NoError(t, repo.Create(context.Background(), &first))

	require.NoError(t, repo.ClearFinalForActivity(context.Background(), 7, 3))

	stored, err := repo.GetByID(context.Background(), first.ID)
	require.NoError(t, err)
	require.False(t, stored.IsFinal)
}
