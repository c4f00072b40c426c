package models

import "time"

// RequestStatus is transient bookkeeping while a request is resolved.
// Accepted/rejected records are deleted, never retained.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
)

// FriendRequest is an ephemeral record queued at the recipient. It exists
// only while pending; accept and reject both delete it.
type FriendRequest struct {
	ID         string        `json:"id"`
	FromUserID ProfileID     `json:"from_user_id"`
	Timestamp  time.Time     `json:"timestamp"`
	Status     RequestStatus `json:"status"`
}
