package dto

import (
	"time"

	"github.com/classora/classroom-api/internal/models"
)

// SubmissionCreateRequest is the payload a student sends when handing in work.
type SubmissionCreateRequest struct {
	Text          string `json:"text" validate:"omitempty,max=20000"`
	AttachmentURL string `json:"attachment_url" validate:"omitempty,url,max=512"`
}

// GradeRequest is used by faculty to grade a submission. Re-grading is
// allowed and overwrites the previous grade.
type GradeRequest struct {
	Marks    float64 `json:"marks" validate:"gte=0"`
	Feedback string  `json:"feedback" validate:"omitempty,max=10000"`
}

// SubmissionResponse is returned to API clients when viewing submissions.
type SubmissionResponse struct {
	ID            uint           `json:"id"`
	AssignmentID  uint           `json:"assignment_id"`
	StudentID     uint           `json:"student_id"`
	SubmittedAt   time.Time      `json:"submitted_at"`
	Text          string         `json:"text,omitempty"`
	AttachmentURL string         `json:"attachment_url,omitempty"`
	Status        string         `json:"status"`
	GradeMarks    *float64       `json:"grade_marks"`
	GradeFeedback string         `json:"grade_feedback,omitempty"`
	GradedBy      *uint          `json:"graded_by"`
	GradedAt      *time.Time     `json:"graded_at"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Assignment    AssignmentLite `json:"assignment"`
	Student       UserLite       `json:"student"`
}

// AssignmentLite summarizes an assignment in submission responses.
type AssignmentLite struct {
	ID         uint      `json:"id"`
	CourseID   uint      `json:"course_id"`
	Title      string    `json:"title"`
	DueDate    time.Time `json:"due_date"`
	TotalMarks float64   `json:"total_marks"`
}

// UserLite summarizes a user without exposing full profile data.
type UserLite struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// NewSubmissionResponse converts a Submission model into a DTO.
func NewSubmissionResponse(model models.Submission) SubmissionResponse {
	response := SubmissionResponse{
		ID:            model.ID,
		AssignmentID:  model.AssignmentID,
		StudentID:     model.StudentID,
		SubmittedAt:   model.SubmittedAt,
		Text:          model.Text,
		AttachmentURL: model.AttachmentURL,
		Status:        model.Status,
		GradeMarks:    model.GradeMarks,
		GradeFeedback: model.GradeFeedback,
		GradedBy:      model.GradedBy,
		GradedAt:      model.GradedAt,
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
	}

	if model.Assignment.ID != 0 {
		response.Assignment = AssignmentLite{
			ID:         model.Assignment.ID,
			CourseID:   model.Assignment.CourseID,
			Title:      model.Assignment.Title,
			DueDate:    model.Assignment.DueDate,
			TotalMarks: model.Assignment.TotalMarks,
		}
	}

	if model.Student.ID != 0 {
		response.Student = UserLite{
			ID:    model.Student.ID,
			Name:  model.Student.Name,
			Email: model.Student.Email,
		}
	}

	return response
}

// NewSubmissionResponseSlice converts submission models into DTOs.
func NewSubmissionResponseSlice(models []models.Submission) []SubmissionResponse {
	responses := make([]SubmissionResponse, 0, len(models))
	for _, submission := range models {
		responses = append(responses, NewSubmissionResponse(submission))
	}

	return responses
}
