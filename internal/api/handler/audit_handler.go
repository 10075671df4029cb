package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/surveyhub/portal/internal/core/domain"
	"github.com/surveyhub/portal/internal/core/ports"
)

const defaultAuditLimit = 50

type AuditHandler struct {
	reader ports.AuditReader
}

func NewAuditHandler(reader ports.AuditReader) *AuditHandler {
	return &AuditHandler{reader: reader}
}

type listAuditQuery struct {
	Limit int64 `query:"limit" json:"limit" validate:"omitempty,min=1,max=200"`
	// Tenant is honoured only for roles that operate across tenants.
	Tenant string `query:"institucion" json:"institucion"`
}

type auditEventResponse struct {
	Session   string    `json:"session"`
	Kind      string    `json:"kind"`
	SubjectID string    `json:"subjectId,omitempty"`
	Role      string    `json:"role,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

// List returns recent session events of the caller's institution.
//
// @Summary      Session audit trail
// @Tags         audit
// @Produce      json
// @Security     BearerAuth
// @Param        limit        query     int     false  "Max events (1-200)"
// @Param        institucion  query     string  false  "Institution (superadmin only)"
// @Success      200  {array}   auditEventResponse
// @Failure      400  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Router       /api/v1/audit/sessions [get]
func (h *AuditHandler) List(c echo.Context) error {
	tc, err := tenantContext(c)
	if err != nil {
		return err
	}

	var q listAuditQuery
	if err := c.Bind(&q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid query")
	}
	if err := c.Validate(&q); err != nil {
		return err
	}
	if q.Limit == 0 {
		q.Limit = defaultAuditLimit
	}

	tenant := tc.TenantID
	if !tc.Role.RequiresTenant() && q.Tenant != "" {
		tenant = q.Tenant
	}
	if tenant == "" {
		return domain.NewValidationError(map[string]string{"institucion": "institucion is required"})
	}

	events, err := h.reader.ListByTenant(c.Request().Context(), tenant, q.Limit)
	if err != nil {
		return err
	}
	out := make([]auditEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, auditEventResponse{
			Session:   e.SessionID,
			Kind:      string(e.Kind),
			SubjectID: e.SubjectID,
			Role:      string(e.Role),
			Reason:    e.Reason,
			At:        e.At,
		})
	}
	return c.JSON(http.StatusOK, out)
}
