package dto

import (
	"time"

	"github.com/classora/classroom-api/internal/models"
)

// AnnouncementCreateRequest is the payload to post a course announcement.
type AnnouncementCreateRequest struct {
	Title string `json:"title" validate:"required,min=3,max=255"`
	Body  string `json:"body" validate:"required,min=1,max=20000"`
}

// AnnouncementResponse describes an announcement returned by the API.
type AnnouncementResponse struct {
	ID        uint      `json:"id"`
	CourseID  uint      `json:"course_id"`
	AuthorID  uint      `json:"author_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// NewAnnouncementResponse converts a model into a DTO.
func NewAnnouncementResponse(model models.Announcement) AnnouncementResponse {
	return AnnouncementResponse{
		ID:        model.ID,
		CourseID:  model.CourseID,
		AuthorID:  model.AuthorID,
		Title:     model.Title,
		Body:      model.Body,
		CreatedAt: model.CreatedAt,
	}
}

// NewAnnouncementResponseSlice converts announcement models into DTOs.
func NewAnnouncementResponseSlice(items []models.Announcement) []AnnouncementResponse {
	out := make([]AnnouncementResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewAnnouncementResponse(item))
	}
	return out
}

// NotificationResponse represents notification data returned to clients.
type NotificationResponse struct {
	ID        uint      `json:"id"`
	UserID    uint      `json:"user_id"`
	Type      string    `json:"type"`
	Body      string    `json:"body"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// NewNotificationResponse converts a notification model to DTO.
func NewNotificationResponse(model models.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        model.ID,
		UserID:    model.UserID,
		Type:      model.Type,
		Body:      model.Body,
		Read:      model.Read,
		CreatedAt: model.CreatedAt,
	}
}

// NewNotificationResponseSlice converts a slice to DTOs.
func NewNotificationResponseSlice(items []models.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewNotificationResponse(item))
	}
	return out
}

// UploadResponse is returned after storing an attachment.
type UploadResponse struct {
	URL       string `json:"url"`
	FileName  string `json:"file_name"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
}
