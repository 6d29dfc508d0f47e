package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/kodelab-id/kodelab-api/internal/models"
)

// SubmissionRepository exposes persistence helpers for submissions, their
// per-case results and the feedback sub-record.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) error
	Update(ctx context.Context, submission *models.Submission) error
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	ListByStudent(ctx context.Context, studentID uint, offset, limit int) ([]models.Submission, int64, error)
	SaveResults(ctx context.Context, submission *models.Submission, results []models.TestCaseResult) error
	SaveFeedback(ctx context.Context, record *models.FeedbackRecord) error
	ClearFinalForActivity(ctx context.Context, studentID, activityID uint) error
}

// NewSubmissionRepository constructs a submission repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

type submissionRepository struct {
	db *gorm.DB
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *submissionRepository) Update(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Save(submission).Error
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	err := r.db.WithContext(ctx).
		Preload("Results", func(db *gorm.DB) *gorm.DB {
			return db.Order("case_number ASC")
		}).
		Preload("Feedback").
		First(&submission, id).Error
	if err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) ListByStudent(ctx context.Context, studentID uint, offset, limit int) ([]models.Submission, int64, error) {
	db := r.db.WithContext(ctx).Model(&models.Submission{}).Where("student_id = ?", studentID)

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if offset > 0 {
		db = db.Offset(offset)
	}
	if limit > 0 {
		db = db.Limit(limit)
	}

	var submissions []models.Submission
	if err := db.Order("created_at DESC").Find(&submissions).Error; err != nil {
		return nil, 0, err
	}

	return submissions, total, nil
}

// SaveResults persists the terminal submission row together with its
// per-case results in one transaction so readers never observe a
// completed submission without its result set.
func (r *submissionRepository) SaveResults(ctx context.Context, submission *models.Submission, results []models.TestCaseResult) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(submission).Error; err != nil {
			return err
		}

		if len(results) == 0 {
			return nil
		}

		for i := range results {
			results[i].SubmissionID = submission.ID
		}

		if err := tx.Create(&results).Error; err != nil {
			return err
		}

		submission.Results = results
		return nil
	})
}

// SaveFeedback upserts the single feedback record for a submission.
// Retries overwrite the previous attempt; a successful write is final.
func (r *submissionRepository) SaveFeedback(ctx context.Context, record *models.FeedbackRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.FeedbackRecord
		err := tx.Where("submission_id = ?", record.SubmissionID).First(&existing).Error
		switch {
		case err == nil:
			record.ID = existing.ID
			record.CreatedAt = existing.CreatedAt
			return tx.Save(record).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(record).Error
		default:
			return err
		}
	})
}

// ClearFinalForActivity unsets is_final on earlier graded attempts so the
// latest submit is the one dashboards read (latest-wins policy).
func (r *submissionRepository) ClearFinalForActivity(ctx context.Context, studentID, activityID uint) error {
	return r.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("student_id = ? AND activity_id = ? AND is_final = ?", studentID, activityID, true).
		Update("is_final", false).Error
}
