package dto

import (
	"time"

	"github.com/classora/classroom-api/internal/models"
)

// QuizAnswerRequest is a single answer inside a quiz submission.
type QuizAnswerRequest struct {
	QuestionIndex  int `json:"question_index" validate:"gte=0"`
	SelectedOption int `json:"selected_option" validate:"gte=0"`
}

// QuizSubmitRequest carries the full answer set for an attempt.
type QuizSubmitRequest struct {
	Answers []QuizAnswerRequest `json:"answers" validate:"required,dive"`
}

// QuizAnswerResponse echoes a stored answer including the scoring verdict.
type QuizAnswerResponse struct {
	QuestionIndex  int  `json:"question_index"`
	SelectedOption int  `json:"selected_option"`
	IsCorrect      bool `json:"is_correct"`
}

// QuizAttemptResponse serializes an attempt for API clients.
type QuizAttemptResponse struct {
	ID            uint                 `json:"id"`
	QuizID        uint                 `json:"quiz_id"`
	StudentID     uint                 `json:"student_id"`
	StartedAt     time.Time            `json:"started_at"`
	SubmittedAt   *time.Time           `json:"submitted_at"`
	Score         float64              `json:"score"`
	Percentage    int                  `json:"percentage"`
	TimeTakenSecs int                  `json:"time_taken_secs"`
	Status        string               `json:"status"`
	Answers       []QuizAnswerResponse `json:"answers,omitempty"`
}

// NewQuizAttemptResponse converts an attempt model into a DTO.
func NewQuizAttemptResponse(model models.QuizAttempt) QuizAttemptResponse {
	response := QuizAttemptResponse{
		ID:            model.ID,
		QuizID:        model.QuizID,
		StudentID:     model.StudentID,
		StartedAt:     model.StartedAt,
		SubmittedAt:   model.SubmittedAt,
		Score:         model.Score,
		Percentage:    model.Percentage,
		TimeTakenSecs: model.TimeTakenSecs,
		Status:        model.Status,
	}

	if answers, err := model.DecodeAnswers(); err == nil {
		for _, answer := range answers {
			response.Answers = append(response.Answers, QuizAnswerResponse{
				QuestionIndex:  answer.QuestionIndex,
				SelectedOption: answer.SelectedOption,
				IsCorrect:      answer.IsCorrect,
			})
		}
	}

	return response
}

// NewQuizAttemptResponseSlice converts attempt models into DTOs.
func NewQuizAttemptResponseSlice(models []models.QuizAttempt) []QuizAttemptResponse {
	responses := make([]QuizAttemptResponse, 0, len(models))
	for _, attempt := range models {
		responses = append(responses, NewQuizAttemptResponse(attempt))
	}

	return responses
}
