package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Quiz attempt statuses. Completed and expired are terminal; scoring is
// automatic, so quizzes never enter an assignment-style "graded" state.
const (
	AttemptStatusInProgress = "in_progress"
	AttemptStatusCompleted  = "completed"
	AttemptStatusExpired    = "expired"
)

// QuizAnswer records a student's choice for one question plus the scoring verdict.
type QuizAnswer struct {
	QuestionIndex  int  `json:"question_index"`
	SelectedOption int  `json:"selected_option"`
	IsCorrect      bool `json:"is_correct"`
}

// QuizAttempt is a student's attempt record against a quiz. At most one
// attempt per (quiz, student) exists, enforced by the unique index.
type QuizAttempt struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	QuizID        uint           `gorm:"not null;uniqueIndex:idx_attempt_quiz_student" json:"quiz_id"`
	StudentID     uint           `gorm:"not null;uniqueIndex:idx_attempt_quiz_student" json:"student_id"`
	StartedAt     time.Time      `gorm:"not null" json:"started_at"`
	SubmittedAt   *time.Time     `json:"submitted_at"`
	Answers       datatypes.JSON `json:"answers"`
	Score         float64        `gorm:"not null;default:0" json:"score"`
	Percentage    int            `gorm:"not null;default:0" json:"percentage"`
	TimeTakenSecs int            `gorm:"not null;default:0" json:"time_taken_secs"`
	Status        string         `gorm:"size:32;not null" json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Quiz          Quiz           `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"quiz"`
	Student       User           `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"student"`
}

// IsTerminal reports whether the attempt reached a final state.
func (a QuizAttempt) IsTerminal() bool {
	return a.Status == AttemptStatusCompleted || a.Status == AttemptStatusExpired
}

// DecodeAnswers unmarshals the stored answer set.
func (a QuizAttempt) DecodeAnswers() ([]QuizAnswer, error) {
	if len(a.Answers) == 0 {
		return nil, nil
	}
	var answers []QuizAnswer
	if err := json.Unmarshal(a.Answers, &answers); err != nil {
		return nil, fmt.Errorf("failed to decode attempt answers: %w", err)
	}
	return answers, nil
}
