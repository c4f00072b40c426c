package models

import "time"

// Profile is the durable user record. ID equals the authenticated
// session's identifier once reconciliation has run; legacy records that
// were keyed differently carry MigratedToUserID and an empty
// HashedPhoneNumber so they can never match a discovery query again.
type Profile struct {
	ID                ProfileID `json:"id" bson:"_id"`
	FirstName         string    `json:"first_name" bson:"first_name"`
	LastName          string    `json:"last_name" bson:"last_name"`
	Username          string    `json:"username" bson:"username"`
	PhoneNumber       string    `json:"-" bson:"phone_number"`
	HashedPhoneNumber string    `json:"-" bson:"hashed_phone_number"`
	PasswordHash      string    `json:"-" bson:"password_hash"`
	Friends           []string  `json:"friends" bson:"friends"`
	JoinDate          time.Time `json:"join_date" bson:"join_date"`
	ShareLocation     bool      `json:"share_location" bson:"share_location"`
	AllowNotifications bool     `json:"allow_notifications" bson:"allow_notifications"`
	IsAdmin           bool      `json:"-" bson:"is_admin"`
	MigratedToUserID  ProfileID `json:"-" bson:"migrated_to_user_id,omitempty"`

	ProfileImageURL     string `json:"profile_image_url,omitempty" bson:"profile_image_url,omitempty"`
	ProfileThumbnailURL string `json:"profile_thumbnail_url,omitempty" bson:"profile_thumbnail_url,omitempty"`
}

// HasFriend reports whether id is in the profile's friend set.
func (p *Profile) HasFriend(id ProfileID) bool {
	for _, f := range p.Friends {
		if f == string(id) {
			return true
		}
	}
	return false
}
