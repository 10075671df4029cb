// Package token peeks at the claims embedded in access tokens. It never verifies
// signatures: the issuer does that on every request.
package token

import (
	"math"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultRenewBuffer is how far ahead of expiry a token is considered due for renewal.
const DefaultRenewBuffer = 300 * time.Second

// Now returns the current time. It can be overridden in tests.
var Now = time.Now

// Claims is the best-effort decode of an access token. Nil times mean the claim was
// absent or undecodable.
type Claims struct {
	ExpiresAt *time.Time
	IssuedAt  *time.Time
	SubjectID string
	Role      string
	TenantID  string
}

type accessClaims struct {
	jwt.RegisteredClaims
	UserID   string `json:"user_id,omitempty"`
	Role     string `json:"role,omitempty"`
	TenantID string `json:"tenant_id,omitempty"`
}

var parser = jwt.NewParser(jwt.WithoutClaimsValidation())

// Decode returns the claims of raw. Malformed input yields an empty Claims, never an error.
func Decode(raw string) Claims {
	if raw == "" {
		return Claims{}
	}

	var ac accessClaims
	if _, _, err := parser.ParseUnverified(raw, &ac); err != nil {
		return Claims{}
	}

	out := Claims{
		SubjectID: ac.Subject,
		Role:      ac.Role,
		TenantID:  ac.TenantID,
	}
	if out.SubjectID == "" {
		out.SubjectID = ac.UserID
	}
	if ac.ExpiresAt != nil {
		t := ac.ExpiresAt.Time
		out.ExpiresAt = &t
	}
	if ac.IssuedAt != nil {
		t := ac.IssuedAt.Time
		out.IssuedAt = &t
	}
	return out
}

// IsExpired reports whether raw has no decodable expiry or its expiry is at or before now.
func IsExpired(raw string) bool {
	return IsExpiredAt(raw, Now())
}

// IsExpiredAt is IsExpired evaluated at now.
func IsExpiredAt(raw string, now time.Time) bool {
	exp := Decode(raw).ExpiresAt
	return exp == nil || !exp.After(now)
}

// ShouldRenew reports whether raw expires within buffer of now. Undecodable tokens
// always need renewal.
func ShouldRenew(raw string, buffer time.Duration) bool {
	return ShouldRenewAt(raw, buffer, Now())
}

// ShouldRenewAt is ShouldRenew evaluated at now. The window [exp-buffer, exp] is inclusive.
func ShouldRenewAt(raw string, buffer time.Duration, now time.Time) bool {
	exp := Decode(raw).ExpiresAt
	if exp == nil {
		return true
	}
	return exp.Sub(now) <= buffer
}

// SecondsUntilExpiry returns the whole seconds left before raw expires, 0 when expired
// or undecodable.
func SecondsUntilExpiry(raw string) int64 {
	return SecondsUntilExpiryAt(raw, Now())
}

// SecondsUntilExpiryAt is SecondsUntilExpiry evaluated at now.
func SecondsUntilExpiryAt(raw string, now time.Time) int64 {
	exp := Decode(raw).ExpiresAt
	if exp == nil {
		return 0
	}
	left := exp.Sub(now)
	if left <= 0 {
		return 0
	}
	return int64(math.Floor(left.Seconds()))
}
