package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kodelab-id/kodelab-api/internal/models"
	"github.com/kodelab-id/kodelab-api/internal/repository"
	"github.com/kodelab-id/kodelab-api/pkg/judge"
)

var (
	// ErrSeedDisabled indicates the seeding tools are disabled by configuration.
	ErrSeedDisabled = errors.New("seeding is disabled")
	// ErrSeedUnauthorized indicates the provided token is invalid.
	ErrSeedUnauthorized = errors.New("invalid seed token")
)

// SeedService loads demo activities into fresh environments. It is token
// gated and meant for development and staging only.
type SeedService interface {
	SeedActivities(ctx context.Context, token string, items []models.Activity) (int64, error)
}

type seedService struct {
	activities repository.ActivityRepository
	enabled    bool
	token      string
	logger     zerolog.Logger
}

// NewSeedService constructs a seeding service.
func NewSeedService(activityRepo repository.ActivityRepository, enabled bool, token string, logger zerolog.Logger) SeedService {
	return &seedService{
		activities: activityRepo,
		enabled:    enabled,
		token:      token,
		logger:     logger.With().Str("component", "seed_service").Logger(),
	}
}

func (s *seedService) SeedActivities(ctx context.Context, token string, items []models.Activity) (int64, error) {
	if !s.enabled {
		return 0, ErrSeedDisabled
	}
	if !s.validateToken(token) {
		return 0, ErrSeedUnauthorized
	}

	var created int64
	for i := range items {
		activity := items[i]
		if activity.Title == "" || len(activity.TestCases) == 0 {
			continue
		}
		if !judge.IsSupportedLanguage(activity.Language) {
			continue
		}
		activity.ID = 0
		for j := range activity.TestCases {
			activity.TestCases[j].ID = 0
			activity.TestCases[j].Position = j + 1
		}
		if err := s.activities.Create(ctx, &activity); err != nil {
			return created, err
		}
		created++
	}

	s.logger.Info().Int64("created", created).Msg("activities seeded")
	return created, nil
}

func (s *seedService) validateToken(token string) bool {
	expected := strings.TrimSpace(s.token)
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.TrimSpace(token))) == 1
}
