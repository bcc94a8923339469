package domain

import "time"

// Account models anyone who can authenticate: requesters who open tickets
// and operators who work them.
type Account struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	AvatarURL    *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
