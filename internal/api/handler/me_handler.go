package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/surveyhub/portal/internal/core/domain"
	"github.com/surveyhub/portal/internal/core/permission"
)

type MeHandler struct{}

func NewMeHandler() *MeHandler { return &MeHandler{} }

type meResponse struct {
	SubjectID   string      `json:"subjectId"`
	Role        domain.Role `json:"role"`
	TenantID    string      `json:"tenantId,omitempty"`
	Permissions []string    `json:"permissions"`
}

// Me returns the tenant context resolved by the authorization chain.
//
// @Summary      Current principal
// @Tags         account
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  meResponse
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Router       /api/v1/me [get]
func (h *MeHandler) Me(c echo.Context) error {
	tc, err := tenantContext(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, meResponse{
		SubjectID:   tc.SubjectID,
		Role:        tc.Role,
		TenantID:    tc.TenantID,
		Permissions: permission.Strings(tc.Role),
	})
}
