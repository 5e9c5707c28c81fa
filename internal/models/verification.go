package models

import "time"

// VerificationRequest is a single-use proof that an account's email address
// is reachable. An account accumulates one row per issued code; the newest
// unconsumed, unexpired row is the authoritative pending request.
type VerificationRequest struct {
	AccountID  string     `db:"account_id" json:"account_id"`
	Code       string     `db:"code" json:"-"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	ExpiresAt  time.Time  `db:"expires_at" json:"expires_at"`
	ConsumedAt *time.Time `db:"consumed_at" json:"consumed_at,omitempty"`
}

// Consumed reports whether the code has already been redeemed.
func (v *VerificationRequest) Consumed() bool {
	return v.ConsumedAt != nil
}

// Expired reports whether the code is past its validity window.
func (v *VerificationRequest) Expired(now time.Time) bool {
	return now.After(v.ExpiresAt)
}
