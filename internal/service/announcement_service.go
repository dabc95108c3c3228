package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/classora/classroom-api/internal/dto"
	"github.com/classora/classroom-api/internal/models"
	"github.com/classora/classroom-api/internal/observability"
	"github.com/classora/classroom-api/internal/repository"
)

// ErrCourseNotFound indicates the course does not exist.
var ErrCourseNotFound = errors.New("course not found")

// ErrAnnouncementForbidden indicates the caller may not post to the course.
var ErrAnnouncementForbidden = errors.New("not permitted to post announcements")

// AnnouncementService manages course-scoped announcements. Creation fans out
// a broadcast to the course topic after the write lands.
type AnnouncementService interface {
	Create(ctx context.Context, courseID uint, actor Actor, payload dto.AnnouncementCreateRequest) (dto.AnnouncementResponse, error)
	ListByCourse(ctx context.Context, courseID uint, page, pageSize int) ([]dto.AnnouncementResponse, error)
}

type announcementService struct {
	repo        repository.AnnouncementRepository
	courses     repository.CourseRepository
	validator   *validator.Validate
	cache       *redis.Client
	ttl         time.Duration
	broadcaster Broadcaster
	policy      *bluemonday.Policy
	logger      zerolog.Logger
}

// NewAnnouncementService constructs the announcement service.
func NewAnnouncementService(repo repository.AnnouncementRepository, courses repository.CourseRepository, validate *validator.Validate, cache *redis.Client, ttl time.Duration, broadcaster Broadcaster, logger zerolog.Logger) AnnouncementService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("p", "strong", "em", "a", "ul", "ol", "li", "br")
	policy.AllowAttrs("href", "title", "target").OnElements("a")
	if broadcaster == nil {
		broadcaster = NopBroadcaster{}
	}
	return &announcementService{
		repo:        repo,
		courses:     courses,
		validator:   validate,
		cache:       cache,
		ttl:         ttl,
		broadcaster: broadcaster,
		policy:      policy,
		logger:      logger.With().Str("component", "announcement_service").Logger(),
	}
}

func (s *announcementService) Create(ctx context.Context, courseID uint, actor Actor, payload dto.AnnouncementCreateRequest) (dto.AnnouncementResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AnnouncementResponse{}, err
	}

	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AnnouncementResponse{}, ErrCourseNotFound
		}
		return dto.AnnouncementResponse{}, err
	}

	if !actor.IsAdmin() && !(actor.IsStaff() && course.IsOwnedBy(actor.ID)) {
		return dto.AnnouncementResponse{}, ErrAnnouncementForbidden
	}

	announcement := models.Announcement{
		CourseID: courseID,
		AuthorID: actor.ID,
		Title:    strings.TrimSpace(payload.Title),
		Body:     s.policy.Sanitize(payload.Body),
	}

	if err := s.repo.Create(ctx, &announcement); err != nil {
		return dto.AnnouncementResponse{}, err
	}

	s.invalidate(ctx, courseID)

	response := dto.NewAnnouncementResponse(announcement)
	s.broadcaster.Publish(CourseTopic(courseID), EventAnnouncement, response)

	observability.AnnouncementsTotal().Inc()
	s.logger.Info().Uint("course_id", courseID).Uint("announcement_id", announcement.ID).Msg("announcement published")

	return response, nil
}

func (s *announcementService) ListByCourse(ctx context.Context, courseID uint, page, pageSize int) ([]dto.AnnouncementResponse, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	cacheKey := ""
	if s.cache != nil {
		cacheKey = fmt.Sprintf("announcements:course:%d:%d:%d", courseID, page, pageSize)
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil && cached != "" {
			var response []dto.AnnouncementResponse
			if err := json.Unmarshal([]byte(cached), &response); err == nil {
				return response, nil
			}
		}
	}

	items, _, err := s.repo.ListByCourse(ctx, courseID, repository.AnnouncementFilter{Page: page, PageSize: pageSize})
	if err != nil {
		return nil, err
	}

	response := dto.NewAnnouncementResponseSlice(items)

	if cacheKey != "" && s.cache != nil {
		if payload, err := json.Marshal(response); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.ttl).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to cache announcements")
			}
		}
	}

	return response, nil
}

func (s *announcementService) invalidate(ctx context.Context, courseID uint) {
	if s.cache == nil {
		return
	}

	pattern := fmt.Sprintf("announcements:course:%d:*", courseID)
	iter := s.cache.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := s.cache.Del(ctx, iter.Val()).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to evict announcement cache entry")
		}
	}
	if err := iter.Err(); err != nil {
		s.logger.Warn().Err(err).Msg("announcement cache scan failed")
	}
}
