package models

import "time"

// NotificationType classifies a queued notification.
type NotificationType string

const (
	NotificationFriendRequest  NotificationType = "friendRequest"
	NotificationFriendAccepted NotificationType = "friendAccepted"
	NotificationEventInvite    NotificationType = "eventInvite"
	NotificationEventUpdate    NotificationType = "eventUpdate"
	NotificationGeneral        NotificationType = "general"
)

// NotificationRecord is an ephemeral record queued at the recipient.
// Only IsRead is ever mutated; everything else is written once.
type NotificationRecord struct {
	ID             string           `json:"id"`
	Type           NotificationType `json:"type"`
	Title          string           `json:"title"`
	Message        string           `json:"message"`
	Timestamp      time.Time        `json:"timestamp"`
	IsRead         bool             `json:"is_read"`
	FromUserID     ProfileID        `json:"from_user_id,omitempty"`
	RelatedEventID string           `json:"related_event_id,omitempty"`
}
