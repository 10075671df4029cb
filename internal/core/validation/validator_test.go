package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surveyhub/portal/internal/core/domain"
)

type credentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func TestStruct_Valid(t *testing.T) {
	assert.NoError(t, Struct(credentials{Username: "alice", Password: "pw"}))
}

func TestStruct_RequiredUsesJSONNames(t *testing.T) {
	err := Struct(credentials{Username: "alice"})

	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Equal(t, "password is required", ve.Message)
	assert.Equal(t, map[string]string{"password": "password is required"}, ve.Fields)
}

func TestStruct_RegistrationMismatchAndAggregation(t *testing.T) {
	err := Struct(domain.Registration{
		Username:        "bob",
		Email:           "not-an-email",
		Password:        "longenough",
		PasswordConfirm: "different1",
		FirstName:       "Bob",
	})

	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "passwords do not match", ve.Fields["password_confirm"])
	assert.Equal(t, "email must be a valid email", ve.Fields["email"])
	assert.Equal(t, "email must be a valid email; passwords do not match", ve.Message)
}

func TestStruct_NumericBounds(t *testing.T) {
	type page struct {
		Limit int64 `json:"limit" validate:"min=1,max=200"`
	}

	var ve *domain.ValidationError
	require.True(t, errors.As(Struct(page{Limit: 500}), &ve))
	assert.Equal(t, "limit must be at most 200", ve.Fields["limit"])

	require.True(t, errors.As(Struct(page{Limit: 0}), &ve))
	assert.Equal(t, "limit must be at least 1", ve.Fields["limit"])
}
