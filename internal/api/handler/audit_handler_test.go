package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/surveyhub/portal/internal/core/domain"
)

type stubAuditReader struct {
	tenant string
	limit  int64
	events []domain.SessionEvent
	err    error
}

func (s *stubAuditReader) ListByTenant(_ context.Context, tenantID string, limit int64) ([]domain.SessionEvent, error) {
	s.tenant, s.limit = tenantID, limit
	return s.events, s.err
}

func TestAuditHandler_ListsCallerTenant(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	reader := &stubAuditReader{events: []domain.SessionEvent{
		{SessionID: "ab12", Kind: domain.EventLoginSucceeded, SubjectID: "u-1", Role: domain.RoleCoordinator, TenantID: "inst-1", At: at},
	}}
	c, rec := newTenantContext("/api/v1/audit/sessions?institucion=inst-9", &domain.TenantContext{
		SubjectID: "u-1", Role: domain.RoleInstitutionAdmin, TenantID: "inst-1",
	})

	if err := NewAuditHandler(reader).List(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if reader.tenant != "inst-1" {
		t.Fatalf("tenant override must be ignored for tenant-bound roles, got %q", reader.tenant)
	}
	if reader.limit != defaultAuditLimit {
		t.Fatalf("expected default limit, got %d", reader.limit)
	}

	var out []auditEventResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(out) != 1 || out[0].Kind != "login_succeeded" || !out[0].At.Equal(at) {
		t.Fatalf("unexpected events: %+v", out)
	}
}

func TestAuditHandler_SuperAdminSelectsTenant(t *testing.T) {
	reader := &stubAuditReader{}
	c, rec := newTenantContext("/api/v1/audit/sessions?institucion=inst-9&limit=10", &domain.TenantContext{
		SubjectID: "root", Role: domain.RoleSuperAdmin,
	})

	if err := NewAuditHandler(reader).List(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if reader.tenant != "inst-9" || reader.limit != 10 {
		t.Fatalf("unexpected query: tenant=%q limit=%d", reader.tenant, reader.limit)
	}
	if rec.Body.String() != "[]\n" {
		t.Fatalf("expected empty array, got %q", rec.Body.String())
	}
}

func TestAuditHandler_SuperAdminRequiresTenant(t *testing.T) {
	c, _ := newTenantContext("/api/v1/audit/sessions", &domain.TenantContext{SubjectID: "root", Role: domain.RoleSuperAdmin})

	err := NewAuditHandler(&stubAuditReader{}).List(c)
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Fields["institucion"] == "" {
		t.Fatalf("expected validation error on institucion, got %v", err)
	}
}

func TestAuditHandler_LimitOutOfRange(t *testing.T) {
	c, _ := newTenantContext("/api/v1/audit/sessions?limit=500", &domain.TenantContext{
		SubjectID: "u-1", Role: domain.RoleInstitutionAdmin, TenantID: "inst-1",
	})

	err := NewAuditHandler(&stubAuditReader{}).List(c)
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Fields["limit"] == "" {
		t.Fatalf("expected validation error on limit, got %v", err)
	}
}

func TestAuditHandler_ReaderError(t *testing.T) {
	reader := &stubAuditReader{err: domain.ErrUpstreamUnavailable}
	c, _ := newTenantContext("/api/v1/audit/sessions", &domain.TenantContext{
		SubjectID: "u-1", Role: domain.RoleInstitutionAdmin, TenantID: "inst-1",
	})

	if err := NewAuditHandler(reader).List(c); !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("expected reader error, got %v", err)
	}
}
