package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/surveyhub/portal/internal/core/domain"
	"github.com/surveyhub/portal/internal/core/ports"
)

// SessionCookie configures the browser cookie carrying the server-side session ID.
type SessionCookie struct {
	Name   string
	Secure bool
	TTL    time.Duration
}

type AuthHandler struct {
	authService ports.AuthService
	cookie      SessionCookie
}

func NewAuthHandler(authService ports.AuthService, cookie SessionCookie) *AuthHandler {
	if cookie.Name == "" {
		cookie.Name = "portal_session"
	}
	return &AuthHandler{authService: authService, cookie: cookie}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login authenticates against the issuer and binds the result to the session cookie.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  domain.SessionView
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	res, err := h.authService.Login(c.Request().Context(), h.sessionID(c), req.Username, req.Password)
	if err != nil {
		return err
	}
	h.setCookie(c, res.SessionID)
	return c.JSON(http.StatusOK, res.View)
}

// Register creates an account and signs it in.
//
// @Summary      Register a new account
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      domain.Registration  true  "Account details"
// @Success      201   {object}  domain.SessionView
// @Failure      400   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req domain.Registration
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	res, err := h.authService.Register(c.Request().Context(), h.sessionID(c), req)
	if err != nil {
		return err
	}
	h.setCookie(c, res.SessionID)
	return c.JSON(http.StatusCreated, res.View)
}

// Logout ends the session. It always succeeds.
//
// @Summary      Logout
// @Tags         auth
// @Success      204
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	h.authService.Logout(c.Request().Context(), h.sessionID(c))
	h.clearCookie(c)
	return c.NoContent(http.StatusNoContent)
}

// Refresh renews the session's access token.
//
// @Summary      Refresh the access token
// @Tags         auth
// @Produce      json
// @Success      200   {object}  domain.SessionView
// @Failure      401   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /auth/refresh [post]
func (h *AuthHandler) Refresh(c echo.Context) error {
	sid := h.sessionID(c)
	if sid == "" {
		return domain.ErrAuthenticationRequired
	}
	res, err := h.authService.Refresh(c.Request().Context(), sid)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res.View)
}

// Session returns the current session view, restoring it after a restart when needed.
//
// @Summary      Current session
// @Tags         auth
// @Produce      json
// @Success      200   {object}  domain.SessionView
// @Failure      503   {object}  map[string]string
// @Router       /auth/session [get]
func (h *AuthHandler) Session(c echo.Context) error {
	sid := h.sessionID(c)
	res, err := h.authService.Current(c.Request().Context(), sid)
	if err != nil {
		return err
	}
	if sid != "" && res.SessionID == "" {
		h.clearCookie(c)
	}
	return c.JSON(http.StatusOK, res.View)
}

func (h *AuthHandler) sessionID(c echo.Context) string {
	ck, err := c.Cookie(h.cookie.Name)
	if err != nil {
		return ""
	}
	return ck.Value
}

func (h *AuthHandler) setCookie(c echo.Context, sid string) {
	ck := h.baseCookie()
	ck.Value = sid
	if h.cookie.TTL > 0 {
		ck.MaxAge = int(h.cookie.TTL.Seconds())
	}
	c.SetCookie(ck)
}

func (h *AuthHandler) clearCookie(c echo.Context) {
	ck := h.baseCookie()
	ck.MaxAge = -1
	c.SetCookie(ck)
}

func (h *AuthHandler) baseCookie() *http.Cookie {
	return &http.Cookie{
		Name:     h.cookie.Name,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
