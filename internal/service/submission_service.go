package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/classora/classroom-api/internal/dto"
	"github.com/classora/classroom-api/internal/models"
	"github.com/classora/classroom-api/internal/observability"
	"github.com/classora/classroom-api/internal/repository"
)

// ErrAssignmentNotFound indicates the assignment does not exist or is unpublished.
var ErrAssignmentNotFound = errors.New("assignment not found")

// ErrSubmissionNotFound indicates a submission could not be found.
var ErrSubmissionNotFound = errors.New("submission not found")

// ErrAlreadySubmitted indicates the student has already handed in work for
// this assignment. Submissions are never overwritten.
var ErrAlreadySubmitted = errors.New("assignment already submitted")

// ErrNotCourseOwner indicates the grader does not own the parent course.
var ErrNotCourseOwner = errors.New("grader does not own the course")

// ErrSubmissionForbidden indicates the requester may not view the submission data.
var ErrSubmissionForbidden = errors.New("not permitted to view submissions")

// ErrMarksExceedTotal indicates a grade surpasses the assignment total.
var ErrMarksExceedTotal = errors.New("marks exceed assignment total")

// SubmissionService drives the assignment submission lifecycle: hand-in,
// grading and listing. Status moves pending -> submitted|late -> graded and
// never regresses.
type SubmissionService interface {
	Submit(ctx context.Context, assignmentID uint, actor Actor, payload dto.SubmissionCreateRequest) (dto.SubmissionResponse, error)
	Grade(ctx context.Context, assignmentID, submissionID uint, actor Actor, payload dto.GradeRequest) (dto.SubmissionResponse, error)
	List(ctx context.Context, assignmentID uint, actor Actor) ([]dto.SubmissionResponse, error)
}

// Notifier publishes a user-facing notification as a side effect of an engine
// transition. A nil Notifier disables the side effect.
type Notifier interface {
	Notify(ctx context.Context, userID uint, kind, body string)
}

type submissionService struct {
	submissions repository.SubmissionRepository
	assignments repository.AssignmentRepository
	validator   *validator.Validate
	notifier    Notifier
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewSubmissionService constructs a SubmissionService instance.
func NewSubmissionService(subRepo repository.SubmissionRepository, assignmentRepo repository.AssignmentRepository, validate *validator.Validate, notifier Notifier, logger zerolog.Logger) SubmissionService {
	return &submissionService{
		submissions: subRepo,
		assignments: assignmentRepo,
		validator:   validate,
		notifier:    notifier,
		logger:      logger.With().Str("component", "submission_service").Logger(),
		tracer:      otel.Tracer("github.com/classora/classroom-api/internal/service/submission"),
		now:         time.Now,
	}
}

func (s *submissionService) Submit(ctx context.Context, assignmentID uint, actor Actor, payload dto.SubmissionCreateRequest) (dto.SubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submission.submit", trace.WithAttributes(
		attribute.Int64("assignment_id", int64(assignmentID)),
		attribute.Int64("student_id", int64(actor.ID)),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		return dto.SubmissionResponse{}, err
	}

	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrAssignmentNotFound
		}
		span.RecordError(err)
		return dto.SubmissionResponse{}, err
	}

	// Unpublished assignments are invisible to students.
	if !assignment.Published {
		return dto.SubmissionResponse{}, ErrAssignmentNotFound
	}

	now := s.now()
	status := models.SubmissionStatusSubmitted
	if assignment.IsPastDue(now) {
		status = models.SubmissionStatusLate
	}

	submission := models.Submission{
		AssignmentID:  assignmentID,
		StudentID:     actor.ID,
		SubmittedAt:   now,
		Text:          payload.Text,
		AttachmentURL: payload.AttachmentURL,
		Status:        status,
	}

	if err := s.submissions.Create(ctx, &submission); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			span.SetStatus(codes.Error, "duplicate_submission")
			return dto.SubmissionResponse{}, ErrAlreadySubmitted
		}
		span.RecordError(err)
		return dto.SubmissionResponse{}, err
	}

	created, err := s.submissions.GetByID(ctx, submission.ID)
	if err != nil {
		span.RecordError(err)
		return dto.SubmissionResponse{}, err
	}

	observability.SubmissionsTotal().WithLabelValues(status).Inc()
	s.logger.Info().
		Uint("submission_id", created.ID).
		Uint("assignment_id", assignmentID).
		Str("status", status).
		Msg("submission created")

	return dto.NewSubmissionResponse(created), nil
}

func (s *submissionService) Grade(ctx context.Context, assignmentID, submissionID uint, actor Actor, payload dto.GradeRequest) (dto.SubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submission.grade", trace.WithAttributes(
		attribute.Int64("submission_id", int64(submissionID)),
		attribute.Int64("grader_id", int64(actor.ID)),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		return dto.SubmissionResponse{}, err
	}

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		span.RecordError(err)
		return dto.SubmissionResponse{}, err
	}

	if submission.AssignmentID != assignmentID {
		return dto.SubmissionResponse{}, ErrSubmissionNotFound
	}

	if !actor.IsAdmin() && !submission.Assignment.Course.IsOwnedBy(actor.ID) {
		span.SetStatus(codes.Error, "grader_not_owner")
		return dto.SubmissionResponse{}, ErrNotCourseOwner
	}

	if payload.Marks > submission.Assignment.TotalMarks {
		return dto.SubmissionResponse{}, ErrMarksExceedTotal
	}

	// Re-grading overwrites the previous grade: this is the intended
	// correction path, not an oversight.
	marks := payload.Marks
	gradedAt := s.now()
	gradedBy := actor.ID
	submission.GradeMarks = &marks
	submission.GradeFeedback = payload.Feedback
	submission.GradedBy = &gradedBy
	submission.GradedAt = &gradedAt
	submission.Status = models.SubmissionStatusGraded

	if err := s.submissions.Update(ctx, &submission); err != nil {
		span.RecordError(err)
		return dto.SubmissionResponse{}, err
	}

	if s.notifier != nil {
		body := fmt.Sprintf("Your submission for %q was graded: %.1f/%.0f", submission.Assignment.Title, marks, submission.Assignment.TotalMarks)
		s.notifier.Notify(ctx, submission.StudentID, "submission_graded", body)
	}

	observability.GradesTotal().Inc()
	s.logger.Info().
		Uint("submission_id", submission.ID).
		Float64("marks", marks).
		Msg("submission graded")

	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) List(ctx context.Context, assignmentID uint, actor Actor) ([]dto.SubmissionResponse, error) {
	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}

	// The owning faculty member and admins see everything; a student sees
	// only their own submission.
	if actor.IsAdmin() || (actor.IsStaff() && assignment.Course.IsOwnedBy(actor.ID)) {
		submissions, err := s.submissions.ListByAssignment(ctx, assignmentID)
		if err != nil {
			return nil, err
		}
		return dto.NewSubmissionResponseSlice(submissions), nil
	}

	if !actor.IsStudent() {
		return nil, ErrSubmissionForbidden
	}

	submission, err := s.submissions.GetByAssignmentAndStudent(ctx, assignmentID, actor.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return []dto.SubmissionResponse{}, nil
		}
		return nil, err
	}

	return []dto.SubmissionResponse{dto.NewSubmissionResponse(submission)}, nil
}
