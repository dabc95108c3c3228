package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/classora/classroom-api/internal/dto"
	"github.com/classora/classroom-api/internal/models"
	"github.com/classora/classroom-api/internal/observability"
	"github.com/classora/classroom-api/internal/repository"
)

// ErrQuizNotFound indicates the quiz does not exist or is unpublished.
var ErrQuizNotFound = errors.New("quiz not found")

// ErrAttemptNotFound indicates no attempt exists for the student.
var ErrAttemptNotFound = errors.New("quiz attempt not found")

// ErrAttemptExists indicates the student already started this quiz.
var ErrAttemptExists = errors.New("quiz attempt already exists")

// ErrAttemptFinished indicates the attempt already reached a terminal state.
var ErrAttemptFinished = errors.New("quiz attempt already finished")

// ErrQuizForbidden indicates the requester may not view the attempt data.
var ErrQuizForbidden = errors.New("not permitted to view quiz attempts")

// QuizService drives the attempt state machine: in_progress on start, then
// completed or expired on submit. Scoring is fully automatic; there is no
// faculty grading step for quizzes.
type QuizService interface {
	Start(ctx context.Context, quizID uint, actor Actor) (dto.QuizAttemptResponse, error)
	Submit(ctx context.Context, quizID uint, actor Actor, payload dto.QuizSubmitRequest) (dto.QuizAttemptResponse, error)
	ListAttempts(ctx context.Context, quizID uint, actor Actor) ([]dto.QuizAttemptResponse, error)
}

type quizService struct {
	quizzes   repository.QuizRepository
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewQuizService constructs a QuizService instance.
func NewQuizService(quizRepo repository.QuizRepository, validate *validator.Validate, logger zerolog.Logger) QuizService {
	return &quizService{
		quizzes:   quizRepo,
		validator: validate,
		logger:    logger.With().Str("component", "quiz_service").Logger(),
		tracer:    otel.Tracer("github.com/classora/classroom-api/internal/service/quiz"),
		now:       time.Now,
	}
}

func (s *quizService) Start(ctx context.Context, quizID uint, actor Actor) (dto.QuizAttemptResponse, error) {
	ctx, span := s.tracer.Start(ctx, "quiz.start", trace.WithAttributes(
		attribute.Int64("quiz_id", int64(quizID)),
		attribute.Int64("student_id", int64(actor.ID)),
	))
	defer span.End()

	quiz, err := s.publishedQuiz(ctx, quizID)
	if err != nil {
		return dto.QuizAttemptResponse{}, err
	}

	attempt := models.QuizAttempt{
		QuizID:    quiz.ID,
		StudentID: actor.ID,
		StartedAt: s.now(),
		Status:    models.AttemptStatusInProgress,
	}

	if err := s.quizzes.CreateAttempt(ctx, &attempt); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			span.SetStatus(codes.Error, "duplicate_attempt")
			return dto.QuizAttemptResponse{}, ErrAttemptExists
		}
		span.RecordError(err)
		return dto.QuizAttemptResponse{}, err
	}

	observability.QuizAttemptsTotal().WithLabelValues(models.AttemptStatusInProgress).Inc()
	s.logger.Info().Uint("quiz_id", quiz.ID).Uint("student_id", actor.ID).Msg("quiz attempt started")

	return dto.NewQuizAttemptResponse(attempt), nil
}

func (s *quizService) Submit(ctx context.Context, quizID uint, actor Actor, payload dto.QuizSubmitRequest) (dto.QuizAttemptResponse, error) {
	ctx, span := s.tracer.Start(ctx, "quiz.submit", trace.WithAttributes(
		attribute.Int64("quiz_id", int64(quizID)),
		attribute.Int64("student_id", int64(actor.ID)),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		return dto.QuizAttemptResponse{}, err
	}

	quiz, err := s.publishedQuiz(ctx, quizID)
	if err != nil {
		return dto.QuizAttemptResponse{}, err
	}

	attempt, err := s.quizzes.GetAttempt(ctx, quiz.ID, actor.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.QuizAttemptResponse{}, ErrAttemptNotFound
		}
		span.RecordError(err)
		return dto.QuizAttemptResponse{}, err
	}

	// Terminal states are final: completed and expired attempts cannot be
	// resubmitted.
	if attempt.IsTerminal() {
		span.SetStatus(codes.Error, "attempt_finished")
		return dto.QuizAttemptResponse{}, ErrAttemptFinished
	}

	now := s.now()
	submitted := now
	attempt.SubmittedAt = &submitted
	timeTaken := now.Sub(attempt.StartedAt)
	attempt.TimeTakenSecs = int(timeTaken / time.Second)

	// A submit inside the window completes; past it the attempt expires and
	// scores nothing. Landing exactly on the limit still counts.
	if limit := quiz.TimeLimit(); limit > 0 && timeTaken > limit {
		attempt.Status = models.AttemptStatusExpired
		attempt.Score = 0
		attempt.Percentage = 0
	} else {
		if err := s.score(&attempt, quiz, payload.Answers); err != nil {
			span.RecordError(err)
			return dto.QuizAttemptResponse{}, err
		}
		attempt.Status = models.AttemptStatusCompleted
	}

	// The repository only writes while the stored status is still in_progress,
	// so a submit racing this one cannot overwrite a finished attempt.
	if err := s.quizzes.FinishAttempt(ctx, &attempt); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			span.SetStatus(codes.Error, "attempt_finished")
			return dto.QuizAttemptResponse{}, ErrAttemptFinished
		}
		span.RecordError(err)
		return dto.QuizAttemptResponse{}, err
	}

	observability.QuizAttemptsTotal().WithLabelValues(attempt.Status).Inc()
	span.SetAttributes(
		attribute.Float64("quiz.score", attempt.Score),
		attribute.String("quiz.status", attempt.Status),
	)
	s.logger.Info().
		Uint("quiz_id", quiz.ID).
		Uint("student_id", actor.ID).
		Float64("score", attempt.Score).
		Str("status", attempt.Status).
		Msg("quiz attempt submitted")

	return dto.NewQuizAttemptResponse(attempt), nil
}

// score grades every answer against the option flagged correct, sums marks
// and derives the rounded percentage.
func (s *quizService) score(attempt *models.QuizAttempt, quiz models.Quiz, answers []dto.QuizAnswerRequest) error {
	questions, err := quiz.DecodeQuestions()
	if err != nil {
		return err
	}

	graded := make([]models.QuizAnswer, 0, len(answers))
	var score float64
	for _, answer := range answers {
		entry := models.QuizAnswer{
			QuestionIndex:  answer.QuestionIndex,
			SelectedOption: answer.SelectedOption,
		}
		if answer.QuestionIndex >= 0 && answer.QuestionIndex < len(questions) {
			question := questions[answer.QuestionIndex]
			if answer.SelectedOption >= 0 && answer.SelectedOption < len(question.Options) &&
				question.Options[answer.SelectedOption].IsCorrect {
				entry.IsCorrect = true
				score += question.Marks
			}
		}
		graded = append(graded, entry)
	}

	encoded, err := json.Marshal(graded)
	if err != nil {
		return err
	}

	attempt.Answers = datatypes.JSON(encoded)
	attempt.Score = score
	if quiz.TotalMarks > 0 {
		attempt.Percentage = int(math.Round(score / quiz.TotalMarks * 100))
	}

	return nil
}

func (s *quizService) ListAttempts(ctx context.Context, quizID uint, actor Actor) ([]dto.QuizAttemptResponse, error) {
	quiz, err := s.quizzes.GetByID(ctx, quizID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuizNotFound
		}
		return nil, err
	}

	if actor.IsAdmin() || (actor.IsStaff() && quiz.Course.IsOwnedBy(actor.ID)) {
		attempts, err := s.quizzes.ListAttempts(ctx, quizID)
		if err != nil {
			return nil, err
		}
		return dto.NewQuizAttemptResponseSlice(attempts), nil
	}

	if !actor.IsStudent() {
		return nil, ErrQuizForbidden
	}

	attempt, err := s.quizzes.GetAttempt(ctx, quizID, actor.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return []dto.QuizAttemptResponse{}, nil
		}
		return nil, err
	}

	return []dto.QuizAttemptResponse{dto.NewQuizAttemptResponse(attempt)}, nil
}

func (s *quizService) publishedQuiz(ctx context.Context, quizID uint) (models.Quiz, error) {
	quiz, err := s.quizzes.GetByID(ctx, quizID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Quiz{}, ErrQuizNotFound
		}
		return models.Quiz{}, err
	}
	if !quiz.Published {
		return models.Quiz{}, ErrQuizNotFound
	}
	return quiz, nil
}
