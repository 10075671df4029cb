package handler

import (
	"errors"
	"testing"

	"github.com/surveyhub/portal/internal/core/domain"
)

func TestValidator_ReturnsDomainValidationError(t *testing.T) {
	v := NewValidator()

	if err := v.Validate(&listAuditQuery{Limit: 20}); err != nil {
		t.Fatalf("expected valid query, got %v", err)
	}

	err := v.Validate(&listAuditQuery{Limit: 201})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
