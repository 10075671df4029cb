package ports

import (
	"context"

	"github.com/surveyhub/portal/internal/core/domain"
)

// AuthResult is what the issuer returns for a successful login or registration.
type AuthResult struct {
	Identity    *domain.Identity
	Credentials domain.Credentials
}

// ValidationResult is the issuer's verdict on an access credential. Identity may be nil
// when the issuer only confirms validity.
type ValidationResult struct {
	Valid    bool
	Identity *domain.Identity
}

// Issuer is the external authority that authenticates principals and issues/validates tokens.
// Errors are *domain.IssuerError values unwrapping to the domain taxonomy.
type Issuer interface {
	Login(ctx context.Context, username, password string) (*AuthResult, error)
	Register(ctx context.Context, reg domain.Registration) (*AuthResult, error)
	// Refresh mints a new access token. The returned refresh token is empty unless the
	// issuer rotated it.
	Refresh(ctx context.Context, refreshToken string) (domain.Credentials, error)
	Validate(ctx context.Context, accessToken string) (*ValidationResult, error)
	Me(ctx context.Context, accessToken string) (*domain.Identity, error)
	Logout(ctx context.Context, creds domain.Credentials) error
}
