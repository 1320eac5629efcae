package model

import "time"

// Session binds an opaque token to a user. Sessions do not expire on their own;
// they live until sign-out.
type Session struct {
	ID        string    `json:"sessionId"`
	UserID    string    `json:"tagferId"`
	CreatedAt time.Time `json:"createdAt"`
}
