package models

import "time"

// User is the slice of the marketplace user record this service needs:
// just enough to verify credentials and address alert notifications.
// Account management itself lives in the main platform backend.
type User struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	Name         string    `db:"name"`
	CreatedAt    time.Time `db:"created_at"`
}
