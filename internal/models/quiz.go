package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// QuizOption is a single selectable answer on a quiz question.
type QuizOption struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// QuizQuestion is one question inside a quiz's question set.
type QuizQuestion struct {
	Text    string       `json:"text"`
	Options []QuizOption `json:"options"`
	Marks   float64      `json:"marks"`
}

// Quiz represents an auto-scored quiz definition. Questions are stored as a
// JSON document; scoring reads them back through DecodeQuestions.
type Quiz struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	CourseID         uint           `gorm:"not null;index" json:"course_id"`
	Title            string         `gorm:"size:255;not null" json:"title"`
	Description      string         `gorm:"type:text" json:"description"`
	Questions        datatypes.JSON `gorm:"not null" json:"questions"`
	TotalMarks       float64        `gorm:"not null" json:"total_marks"`
	TimeLimitMinutes int            `gorm:"not null;default:0" json:"time_limit_minutes"`
	Published        bool           `gorm:"not null;default:false" json:"published"`
	// ShuffleQuestions and AllowReview are stored for clients but never
	// interpreted by the scoring path.
	ShuffleQuestions bool      `gorm:"not null;default:false" json:"shuffle_questions"`
	AllowReview      bool      `gorm:"not null;default:true" json:"allow_review"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	Course           Course    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"course"`
}

// DecodeQuestions unmarshals the stored question set.
func (q Quiz) DecodeQuestions() ([]QuizQuestion, error) {
	var questions []QuizQuestion
	if err := json.Unmarshal(q.Questions, &questions); err != nil {
		return nil, fmt.Errorf("failed to decode quiz questions: %w", err)
	}
	return questions, nil
}

// TimeLimit returns the quiz time limit as a duration, zero meaning unlimited.
func (q Quiz) TimeLimit() time.Duration {
	return time.Duration(q.TimeLimitMinutes) * time.Minute
}
