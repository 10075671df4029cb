package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/surveyhub/portal/internal/core/validation"
)

// echoValidator lets Echo call c.Validate(req). Failures are *domain.ValidationError,
// which the error handler renders with per-field messages.
type echoValidator struct{}

// NewValidator returns a validator ready to be assigned to echo.Echo.Validator.
func NewValidator() echo.Validator {
	return echoValidator{}
}

// Validate satisfies the echo.Validator interface.
func (echoValidator) Validate(i any) error {
	return validation.Struct(i)
}
