package models

import "time"

// Course carries the minimal identity surface the engines need: a title and
// the owning faculty member used for grading and listing permission checks.
type Course struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	OwnerID   uint      `gorm:"not null;index" json:"owner_id"`
	Owner     User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"owner"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsOwnedBy reports whether the given user owns this course.
func (c Course) IsOwnedBy(userID uint) bool {
	return c.OwnerID == userID
}
