package models

import "time"

// Activity is a coding exercise authored by a professor. Test cases are
// immutable once attached and their position defines case numbering.
type Activity struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	ProfessorID      uint       `gorm:"not null;index" json:"professor_id"`
	Title            string     `gorm:"size:255;not null" json:"title"`
	ProblemStatement string     `gorm:"type:text;not null" json:"problem_statement"`
	Language         string     `gorm:"size:32;not null" json:"language"`
	StarterCode      string     `gorm:"type:text" json:"starter_code"`
	ExpectedOutput   string     `gorm:"type:text" json:"expected_output"`
	Deadline         *time.Time `json:"deadline"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	TestCases        []TestCase `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"test_cases"`
}

// IsPastDeadline reports whether submissions should no longer be accepted.
func (a Activity) IsPastDeadline(reference time.Time) bool {
	return a.Deadline != nil && reference.After(*a.Deadline)
}

// TestCase is an ordered input/expected-output pair belonging to an activity.
type TestCase struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ActivityID     uint      `gorm:"not null;index" json:"activity_id"`
	Position       int       `gorm:"not null" json:"position"`
	Input          string    `gorm:"type:text" json:"input"`
	ExpectedOutput string    `gorm:"type:text;not null" json:"expected_output"`
	CreatedAt      time.Time `json:"created_at"`
}
