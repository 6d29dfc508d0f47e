package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/kodelab-id/kodelab-api/internal/dto"
	"github.com/kodelab-id/kodelab-api/internal/models"
	"github.com/kodelab-id/kodelab-api/internal/repository"
	"github.com/kodelab-id/kodelab-api/pkg/judge"
)

// ActivityService exposes authoring and browsing of coding activities.
type ActivityService interface {
	Create(ctx context.Context, professorID uint, payload dto.ActivityCreateRequest) (dto.ActivityResponse, error)
	Get(ctx context.Context, id uint, role string) (dto.ActivityResponse, error)
	List(ctx context.Context, offset, limit int) ([]dto.ActivityResponse, int64, error)
}

const activityCacheTTL = 5 * time.Minute

type activityService struct {
	repo      repository.ActivityRepository
	cache     *redis.Client
	validator *validator.Validate
	logger    zerolog.Logger
	policy    *bluemonday.Policy
}

// NewActivityService constructs the activity service. The cache client
// may be nil; reads then always hit the database.
func NewActivityService(repo repository.ActivityRepository, cache *redis.Client, validate *validator.Validate, logger zerolog.Logger) ActivityService {
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("p", "strong", "em", "a", "ul", "ol", "li", "br", "pre", "code")
	policy.AllowAttrs("href", "title", "target").OnElements("a")
	return &activityService{
		repo:      repo,
		cache:     cache,
		validator: validate,
		logger:    logger.With().Str("component", "activity_service").Logger(),
		policy:    policy,
	}
}

func (s *activityService) Create(ctx context.Context, professorID uint, payload dto.ActivityCreateRequest) (dto.ActivityResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ActivityResponse{}, err
	}
	if !judge.IsSupportedLanguage(payload.Language) {
		return dto.ActivityResponse{}, ErrUnsupportedLanguage
	}

	activity := models.Activity{
		ProfessorID:      professorID,
		Title:            s.policy.Sanitize(payload.Title),
		ProblemStatement: s.policy.Sanitize(payload.ProblemStatement),
		Language:         payload.Language,
		StarterCode:      payload.StarterCode,
		ExpectedOutput:   payload.ExpectedOutput,
		Deadline:         payload.Deadline,
	}
	for i, testCase := range payload.TestCases {
		activity.TestCases = append(activity.TestCases, models.TestCase{
			Position:       i + 1,
			Input:          testCase.Input,
			ExpectedOutput: testCase.ExpectedOutput,
		})
	}

	if err := s.repo.Create(ctx, &activity); err != nil {
		return dto.ActivityResponse{}, err
	}
	s.invalidateList(ctx)
	s.logger.Info().Uint("activity_id", activity.ID).Str("language", activity.Language).Msg("activity created")
	return dto.NewActivityResponse(activity, true), nil
}

func (s *activityService) Get(ctx context.Context, id uint, role string) (dto.ActivityResponse, error) {
	includeExpected := role == models.RoleProfessor || role == models.RoleAdmin

	cacheKey := fmt.Sprintf("activities:detail:v1:%d:%t", id, includeExpected)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil && cached != "" {
			var response dto.ActivityResponse
			if err := json.Unmarshal([]byte(cached), &response); err == nil {
				return response, nil
			}
		}
	}

	activity, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ActivityResponse{}, ErrActivityNotFound
		}
		return dto.ActivityResponse{}, err
	}

	response := dto.NewActivityResponse(activity, includeExpected)
	s.cacheSet(ctx, cacheKey, response)
	return response, nil
}

func (s *activityService) List(ctx context.Context, offset, limit int) ([]dto.ActivityResponse, int64, error) {
	activities, total, err := s.repo.List(ctx, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	return dto.NewActivityResponseSlice(activities), total, nil
}

func (s *activityService) cacheSet(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, payload, activityCacheTTL).Err(); err != nil {
		s.logger.Debug().Err(err).Str("key", key).Msg("activity cache write failed")
	}
}

func (s *activityService) invalidateList(ctx context.Context) {
	if s.cache == nil {
		return
	}
	iter := s.cache.Scan(ctx, 0, "activities:detail:v1:*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.cache.Del(ctx, iter.Val()).Err(); err != nil {
			s.logger.Debug().Err(err).Msg("activity cache invalidation failed")
		}
	}
}
