package domain

import "time"

// User is the domain model for ticket owners. PasswordHash is the only
// credential material ever persisted; the plaintext never leaves the
// registration/login request.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}
