// Package model defines the data structures used throughout the application.
package model

import "time"

// User is an account in the identity provider.
//
// ID is the tagferId chosen at signup. It is stored lower-cased and never
// changes. PasswordHash is a bcrypt hash and is never serialized.
type User struct {
	ID           string    `json:"tagferId"`
	Email        string    `json:"email"`
	PhoneNumber  string    `json:"phoneNumber"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// NewUser is the signup payload accepted by the identity provider.
type NewUser struct {
	TagferID    string `json:"tagferId"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	PhoneNumber string `json:"phoneNumber"`
}
