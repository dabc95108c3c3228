package service

import "fmt"

// Broadcaster delivers an event to every subscriber of a topic. Delivery is
// fire-and-forget: implementations must never fail the caller, and callers
// only publish after the backing write has been persisted.
type Broadcaster interface {
	Publish(topic, event string, payload interface{})
}

// RoomTopic names the broadcast topic for a chat room.
func RoomTopic(roomID uint) string {
	return fmt.Sprintf("room:%d", roomID)
}

// CourseTopic names the broadcast topic for course-wide events such as
// announcements.
func CourseTopic(courseID uint) string {
	return fmt.Sprintf("course:%d", courseID)
}

// UserTopic names the broadcast topic for per-user events such as
// notifications.
func UserTopic(userID uint) string {
	return fmt.Sprintf("user:%d", userID)
}

// NopBroadcaster discards every publish. Used where fan-out is optional.
type NopBroadcaster struct{}

// Publish implements Broadcaster.
func (NopBroadcaster) Publish(string, string, interface{}) {}
