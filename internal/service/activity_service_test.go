package service

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kodelab-id/kodelab-api/internal/dto"
	"github.com/kodelab-id/kodelab-api/internal/models"
)

type countingActivityRepo struct {
	stubActivityRepo
	getCalls int
}

func (r *countingActivityRepo) GetByID(ctx context.Context, id uint) (models.Activity, error) {
	r.getCalls++
	return r.stubActivityRepo.GetByID(ctx, id)
}

func newActivityFixture(t *testing.T) (ActivityService, *countingActivityRepo) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := &countingActivityRepo{stubActivityRepo: stubActivityRepo{activities: make(map[uint]models.Activity)}}
	svc := NewActivityService(repo, cache, validator.New(), zerolog.Nop())
	return svc, repo
}

func TestActivityCreateSanitizesStatement(t *testing.T) {
	svc, repo := newActivityFixture(t)

	response, err := svc.Create(context.Background(), 1, dto.ActivityCreateRequest{
		Title:            "Sum two numbers",
		ProblemStatement: "<p>Add the inputs.</p><script>alert('x')</script>",
		Language:         "python",
		TestCases: []dto.TestCaseInput{
			{Input: "1 2", ExpectedOutput: "3"},
			{Input: "2 2", ExpectedOutput: "4"},
		},
	})
	require.NoError(t, err)
	require.NotContains(t, response.ProblemStatement, "script")
	require.Contains(t, response.ProblemStatement, "<p>Add the inputs.</p>")
	require.Len(t, response.TestCases, 2)
	require.Equal(t, 1, response.TestCases[0].Position)
	require.Equal(t, "3", response.TestCases[0].ExpectedOutput)

	stored, err := repo.stubActivityRepo.GetByID(context.Background(), response.ID)
	require.NoError(t, err)
	require.Len(t, stored.TestCases, 2)
}

func TestActivityCreateValidation(t *testing.T) {
	svc, _ := newActivityFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, 1, dto.ActivityCreateRequest{
		Title:            "No cases",
		ProblemStatement: "x",
		Language:         "python",
	})
	require.Error(t, err)

	_, err = svc.Create(ctx, 1, dto.ActivityCreateRequest{
		Title:            "Bad language",
		ProblemStatement: "x",
		Language:         "brainfuck",
		TestCases:        []dto.TestCaseInput{{ExpectedOutput: "1"}},
	})
	require.ErrorIs(t, err, ErrUnsupportedLanguage)
}

func TestActivityGetHidesExpectedOutputFromStudents(t *testing.T) {
	svc, repo := newActivityFixture(t)
	repo.activities[1] = pythonActivity(1, "42")

	student, err := svc.Get(context.Background(), 1, models.RoleStudent)
	require.NoError(t, err)
	require.Empty(t, student.TestCases[0].ExpectedOutput)

	professor, err := svc.Get(context.Background(), 1, models.RoleProfessor)
	require.NoError(t, err)
	require.Equal(t, "42", professor.TestCases[0].ExpectedOutput)
}

func TestActivityGetServesFromCache(t *testing.T) {
	svc, repo := newActivityFixture(t)
	repo.activities[1] = pythonActivity(1, "42")

	_, err := svc.Get(context.Background(), 1, models.RoleStudent)
	require.NoError(t, err)
	_, err = svc.Get(context.Background(), 1, models.RoleStudent)
	require.NoError(t, err)
	require.Equal(t, 1, repo.getCalls)
}

func TestActivityGetNotFound(t *testing.T) {
	svc, _ := newActivityFixture(t)

	_, err := svc.Get(context.Background(), 404, models.RoleStudent)
	require.ErrorIs(t, err, ErrActivityNotFound)
	require.NotErrorIs(t, err, gorm.ErrRecordNotFound)
}
