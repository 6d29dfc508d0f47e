package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/kodelab-id/kodelab-api/internal/models"
)

func seedItems() []models.Activity {
	return []models.Activity{
		{
			Title:            "Echo input",
			ProblemStatement: "Print the input unchanged.",
			Language:         "python",
			TestCases:        []models.TestCase{{Input: "hi", ExpectedOutput: "hi"}},
		},
		{
			Title:    "Missing cases are skipped",
			Language: "python",
		},
		{
			Title:            "Unknown language is skipped",
			ProblemStatement: "x",
			Language:         "cobol",
			TestCases:        []models.TestCase{{ExpectedOutput: "1"}},
		},
	}
}

func TestSeedActivitiesCreatesValidItems(t *testing.T) {
	repo := &stubActivityRepo{activities: make(map[uint]models.Activity)}
	svc := NewSeedService(repo, true, "secret", zerolog.Nop())

	created, err := svc.SeedActivities(context.Background(), "secret", seedItems())
	require.NoError(t, err)
	require.EqualValues(t, 1, created)
	require.Len(t, repo.activities, 1)

	for _, activity := range repo.activities {
		require.Equal(t, "Echo input", activity.Title)
		require.Equal(t, 1, activity.TestCases[0].Position)
	}
}

func TestSeedActivitiesRequiresToken(t *testing.T) {
	repo := &stubActivityRepo{activities: make(map[uint]models.Activity)}
	svc := NewSeedService(repo, true, "secret", zerolog.Nop())

	_, err := svc.SeedActivities(context.Background(), "wrong", seedItems())
	require.ErrorIs(t, err, ErrSeedUnauthorized)

	emptyToken := NewSeedService(repo, true, "", zerolog.Nop())
	_, err = emptyToken.SeedActivities(context.Background(), "", seedItems())
	require.ErrorIs(t, err, ErrSeedUnauthorized)
}

func TestSeedActivitiesDisabled(t *testing.T) {
	repo := &stubActivityRepo{activities: make(map[uint]models.Activity)}
	svc := NewSeedService(repo, false, "secret", zerolog.Nop())

	_, err := svc.SeedActivities(context.Background(), "secret", seedItems())
	require.ErrorIs(t, err, ErrSeedDisabled)
}
