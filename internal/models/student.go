package models

import "time"

// Roles carried in JWT claims and checked by the RBAC middleware.
const (
	RoleStudent   = "student"
	RoleProfessor = "professor"
	RoleAdmin     = "admin"
)

// Student represents a learner that can submit code against activities.
// Account management lives in the surrounding portal; the grading pipeline
// only needs a stable identity row to hang submissions off.
type Student struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	StudentNo string    `gorm:"size:50;uniqueIndex;not null" json:"student_no"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Email     string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Program   string    `gorm:"size:100" json:"program"`
	Year      int       `json:"year"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Professor represents an activity author.
type Professor struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"size:255;not null" json:"name"`
	Email      string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Department string    `gorm:"size:100" json:"department"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
