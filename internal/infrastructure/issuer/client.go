// Package issuer talks to the upstream credential issuer over its JSON HTTP API.
package issuer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/surveyhub/portal/internal/core/domain"
	"github.com/surveyhub/portal/internal/core/ports"
	"github.com/surveyhub/portal/internal/pkg/metrics"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20

	// Cookie names used when the issuer delivers tokens out of band.
	accessCookie  = "access_token"
	refreshCookie = "refresh_token"
)

// Client implements ports.Issuer.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

var _ ports.Issuer = (*Client)(nil)

// NewClient returns a Client for baseURL. A zero timeout means defaultTimeout.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// Login exchanges a username/password pair for an identity and a credential pair.
func (c *Client) Login(ctx context.Context, username, password string) (*ports.AuthResult, error) {
	return c.authenticate(ctx, "login", "/login", loginRequest{Username: username, Password: password})
}

// Register creates an account and returns it signed in.
func (c *Client) Register(ctx context.Context, reg domain.Registration) (*ports.AuthResult, error) {
	return c.authenticate(ctx, "register", "/register", registerRequest{
		Username:        reg.Username,
		Email:           reg.Email,
		Password:        reg.Password,
		PasswordConfirm: reg.PasswordConfirm,
		FirstName:       reg.FirstName,
		LastName:        reg.LastName,
		InstitucionID:   reg.TenantID,
	})
}

func (c *Client) authenticate(ctx context.Context, op, path string, payload any) (*ports.AuthResult, error) {
	resp, body, err := c.do(ctx, op, http.MethodPost, path, "", payload)
	if err != nil {
		return nil, err
	}

	var w authWire
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, c.decodeFailure(op, resp.StatusCode, err)
	}
	creds := w.credentials()
	fromCookies(resp, &creds)

	id := w.identity()
	if id == nil || id.ID == "" {
		return nil, &domain.IssuerError{Op: op, Status: resp.StatusCode, Message: "issuer returned no identity", Kind: domain.ErrUpstreamUnavailable}
	}
	return &ports.AuthResult{Identity: id, Credentials: creds}, nil
}

// Refresh mints a new access token. The refresh token is returned only when rotated.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (domain.Credentials, error) {
	resp, body, err := c.do(ctx, "refresh", http.MethodPost, "/token/refresh", "", refreshRequest{Refresh: refreshToken})
	if err != nil {
		return domain.Credentials{}, err
	}

	var w tokensWire
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &w); err != nil {
			return domain.Credentials{}, c.decodeFailure("refresh", resp.StatusCode, err)
		}
	}
	creds := domain.Credentials{Access: w.Access, Refresh: w.Refresh}
	fromCookies(resp, &creds)
	return creds, nil
}

// Validate asks the issuer whether accessToken is still good.
func (c *Client) Validate(ctx context.Context, accessToken string) (*ports.ValidationResult, error) {
	resp, body, err := c.do(ctx, "validate", http.MethodGet, "/validate-token", accessToken, nil)
	if err != nil {
		return nil, err
	}

	var w validateWire
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, c.decodeFailure("validate", resp.StatusCode, err)
	}
	res := &ports.ValidationResult{Valid: w.Valid}
	if w.Identity != nil {
		res.Identity = w.Identity.toDomain()
	} else if w.User != nil {
		res.Identity = w.User.toDomain()
	}
	return res, nil
}

// Me fetches the full identity record behind accessToken.
func (c *Client) Me(ctx context.Context, accessToken string) (*domain.Identity, error) {
	resp, body, err := c.do(ctx, "me", http.MethodGet, "/users/me", accessToken, nil)
	if err != nil {
		return nil, err
	}

	var w identityWire
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, c.decodeFailure("me", resp.StatusCode, err)
	}
	if w.ID == "" {
		return nil, &domain.IssuerError{Op: "me", Status: resp.StatusCode, Message: "issuer returned no identity", Kind: domain.ErrUpstreamUnavailable}
	}
	return w.toDomain(), nil
}

// Logout revokes the refresh token upstream.
func (c *Client) Logout(ctx context.Context, creds domain.Credentials) error {
	_, _, err := c.do(ctx, "logout", http.MethodPost, "/logout", creds.Access, refreshRequest{Refresh: creds.Refresh})
	return err
}

// do sends one request and returns the response with its body when the status is 2xx.
// Every other outcome is returned as a *domain.IssuerError.
func (c *Client) do(ctx context.Context, op, method, path, bearer string, payload any) (*http.Response, []byte, error) {
	start := time.Now()
	outcome := "upstream"
	defer func() {
		metrics.IssuerRequestDuration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
	}()

	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: marshal request: %w", op, err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("op", op).Msg("issuer request failed")
		return nil, nil, &domain.IssuerError{Op: op, Message: "upstream unavailable, please try again", Kind: domain.ErrUpstreamUnavailable}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.log.Warn().Err(err).Str("op", op).Msg("read issuer response")
		return nil, nil, &domain.IssuerError{Op: op, Status: resp.StatusCode, Kind: domain.ErrUpstreamUnavailable}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		outcome = "ok"
		c.log.Debug().Str("op", op).Int("status", resp.StatusCode).Dur("took", time.Since(start)).Msg("issuer call")
		return resp, body, nil
	}

	ierr := statusError(op, resp.StatusCode, body)
	if !errors.Is(ierr, domain.ErrUpstreamUnavailable) {
		outcome = "rejected"
	} else {
		c.log.Warn().Str("op", op).Int("status", resp.StatusCode).Msg("issuer error response")
	}
	return nil, nil, ierr
}

// statusError maps an error response to the domain taxonomy.
func statusError(op string, status int, body []byte) *domain.IssuerError {
	msg, fields := errorMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	e := &domain.IssuerError{Op: op, Status: status, Message: msg, Fields: fields}

	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		e.Kind = domain.ErrValidation
	case status == http.StatusUnauthorized && op == "login":
		e.Kind = domain.ErrBadLogin
	case status == http.StatusUnauthorized:
		e.Kind = domain.ErrInvalidCredential
	case status == http.StatusForbidden && (op == "refresh" || op == "validate"):
		e.Kind = domain.ErrInvalidCredential
	case status == http.StatusForbidden:
		e.Kind = domain.ErrForbidden
	default:
		e.Kind = domain.ErrUpstreamUnavailable
	}
	return e
}

func (c *Client) decodeFailure(op string, status int, err error) error {
	c.log.Warn().Err(err).Str("op", op).Int("status", status).Msg("decode issuer response")
	return &domain.IssuerError{Op: op, Status: status, Message: "unexpected response from issuer", Kind: domain.ErrUpstreamUnavailable}
}

// fromCookies fills tokens the issuer delivered as cookies instead of in the body.
func fromCookies(resp *http.Response, creds *domain.Credentials) {
	for _, ck := range resp.Cookies() {
		switch {
		case ck.Name == accessCookie && creds.Access == "":
			creds.Access = ck.Value
		case ck.Name == refreshCookie && creds.Refresh == "":
			creds.Refresh = ck.Value
		}
	}
}
