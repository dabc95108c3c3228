package models

import "time"

// Submission statuses. Once graded a submission never regresses.
const (
	// SubmissionStatusSubmitted indicates the work arrived before the deadline.
	SubmissionStatusSubmitted = "submitted"
	// SubmissionStatusLate indicates the work arrived after the deadline.
	SubmissionStatusLate = "late"
	// SubmissionStatusGraded indicates the submission has been evaluated.
	SubmissionStatusGraded = "graded"
)

// Submission represents a student's attempt record against an assignment.
// The unique index on (assignment_id, student_id) is the authority that keeps
// duplicate submissions out even under concurrent submits.
type Submission struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	AssignmentID  uint       `gorm:"not null;uniqueIndex:idx_submission_assignment_student" json:"assignment_id"`
	StudentID     uint       `gorm:"not null;uniqueIndex:idx_submission_assignment_student" json:"student_id"`
	SubmittedAt   time.Time  `gorm:"not null" json:"submitted_at"`
	Text          string     `gorm:"type:text" json:"text"`
	AttachmentURL string     `gorm:"size:512" json:"attachment_url"`
	Status        string     `gorm:"size:32;not null" json:"status"`
	GradeMarks    *float64   `json:"grade_marks"`
	GradeFeedback string     `gorm:"type:text" json:"grade_feedback"`
	GradedBy      *uint      `json:"graded_by"`
	GradedAt      *time.Time `json:"graded_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	Assignment    Assignment `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"assignment"`
	Student       User       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"student"`
}

// IsGraded reports whether the submission has a final grade.
func (s Submission) IsGraded() bool {
	return s.Status == SubmissionStatusGraded
}
