package middleware

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surveyhub/portal/internal/core/domain"
)

func TestTenant_SuperAdminWithoutTenantIsAccepted(t *testing.T) {
	a := newAuthenticator(fixtureIssuer(), nil)

	tc, reached, err := run(withBearer("tok-root"), a.Require(), a.Tenant())
	require.NoError(t, err)
	assert.True(t, reached)
	assert.Equal(t, domain.RoleSuperAdmin, tc.Role)
	assert.Empty(t, tc.TenantID)
}

func TestTenant_InstitutionAdminWithoutTenantIsForbidden(t *testing.T) {
	a := newAuthenticator(fixtureIssuer(), nil)

	_, reached, err := run(withBearer("tok-orphan"), a.Require(), a.Tenant())
	require.ErrorIs(t, err, domain.ErrForbidden)
	assert.NotErrorIs(t, err, domain.ErrInvalidCredential)
	assert.False(t, reached)
	assert.Equal(t, "no institution assigned to this account", domain.UserMessage(err))
}

func TestTenant_InactiveAccountIsForbidden(t *testing.T) {
	a := newAuthenticator(fixtureIssuer(), nil)

	_, _, err := run(withBearer("tok-inactive"), a.Require(), a.Tenant())
	require.ErrorIs(t, err, domain.ErrForbidden)
	assert.Equal(t, "account is inactive", domain.UserMessage(err))
}

func TestTenant_OverwritesStageAContext(t *testing.T) {
	a := newAuthenticator(fixtureIssuer(), nil)

	tc, _, err := run(withBearer("tok-admin"), a.Require(), a.Tenant())
	require.NoError(t, err)
	// Validation only reported the role; the tenant comes from the identity record.
	assert.Equal(t, "inst-1", tc.TenantID)
	assert.Equal(t, "tok-admin", tc.AccessToken)
}

func TestTenant_WithoutStageARejectsEverything(t *testing.T) {
	issuer := fixtureIssuer()
	a := newAuthenticator(issuer, nil)

	for _, tok := range []string{"tok-root", "tok-admin", "tok-viewer"} {
		_, reached, err := run(withBearer(tok), a.Tenant())
		require.ErrorIs(t, err, domain.ErrAuthenticationRequired, tok)
		assert.False(t, reached)
	}
	assert.Equal(t, int32(0), issuer.mes.Load())
}

func TestTenant_AfterOptionalWithoutCredential(t *testing.T) {
	a := newAuthenticator(fixtureIssuer(), nil)

	_, _, err := run(withBearer("forged"), a.Optional(), a.Tenant())
	require.ErrorIs(t, err, domain.ErrAuthenticationRequired)
}

func TestTenant_IssuerFailures(t *testing.T) {
	tests := []struct {
		name  string
		meErr error
		want  error
	}{
		{"rejected", &domain.IssuerError{Op: "me", Status: 401, Kind: domain.ErrInvalidCredential}, domain.ErrInvalidCredential},
		{"forbidden upstream", &domain.IssuerError{Op: "me", Status: 403, Kind: domain.ErrForbidden}, domain.ErrForbidden},
		{"transport", errors.New("i/o timeout"), domain.ErrUpstreamUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issuer := fixtureIssuer()
			issuer.meErr = tt.meErr
			a := newAuthenticator(issuer, nil)

			_, _, err := run(withBearer("tok-admin"), a.Require(), a.Tenant())
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCheckTenant(t *testing.T) {
	for _, role := range domain.Roles {
		id := &domain.Identity{ID: "x", Role: role, Active: true}
		err := checkTenant(id)
		if role == domain.RoleSuperAdmin {
			assert.NoError(t, err, role)
		} else {
			assert.ErrorIs(t, err, domain.ErrForbidden, role)
		}
	}
	assert.ErrorIs(t, checkTenant(&domain.Identity{Role: "janitor", TenantID: "t", Active: true}), domain.ErrForbidden)
}
