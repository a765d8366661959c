// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const (
	MaxUsernameLen  = 36
	DefaultUsername = "guest"
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
)

// SessionID is assigned by the server on accept and lives as long as the connection.
type SessionID int64

type User struct {
	ID       SessionID `json:"id"`
	Username string    `json:"username"`
}

// NewUser returns a user carrying the default display name.
func NewUser(id SessionID) *User {
	return &User{ID: id, Username: DefaultUsername}
}

func (u *User) SetUsername(username string) error {
	username = strings.TrimSpace(username)
	if len(username) == 0 {
		return ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	u.Username = username
	return nil
}
