package models

import "time"

// Account is a registered user identity. Username uniqueness is
// case-insensitive: the lookup tables key on the lowercased username while
// the account row keeps the casing supplied at registration.
type Account struct {
	AccountBucket int    `db:"account_bucket" json:"-"`
	AccountID     string `db:"account_id" json:"id"`
	Username      string `db:"username" json:"username"`
	EmailAddress  string `db:"email_address" json:"email_address"`
	FullName      string `db:"full_name" json:"full_name"`

	// Credential material. Never serialized to clients; the handler also
	// blanks these before responding.
	PasswordHash       string `db:"password_hash" json:"-"`
	PasswordSalt       string `db:"password_salt" json:"-"`
	PasswordIterations int    `db:"password_iterations" json:"-"`

	IsVerified bool       `db:"is_verified" json:"is_verified"`
	VerifiedAt *time.Time `db:"verified_at" json:"verified_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}
