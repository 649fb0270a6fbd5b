package users

import "time"

// User is the identity record the authorization core consumes. Accounts
// are created and authenticated by the external auth component; this
// package only reads them.
type User struct {
	ID         int64
	Email      string
	Name       string
	IsActive   bool
	LegacyRole string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
