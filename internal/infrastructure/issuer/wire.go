package issuer

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"github.com/surveyhub/portal/internal/core/domain"
)

// flexString accepts a JSON string or number. The issuer serializes primary keys as
// integers on some endpoints and strings on others.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type identityWire struct {
	ID            flexString      `json:"id"`
	Username      string          `json:"username"`
	Email         string          `json:"email"`
	Role          string          `json:"role"`
	Rol           string          `json:"rol"`
	TenantID      flexString      `json:"tenant_id"`
	InstitucionID flexString      `json:"institucion_id"`
	Institucion   *tenantWire     `json:"institucion"`
	FirstName     string          `json:"first_name"`
	LastName      string          `json:"last_name"`
	DisplayName   string          `json:"display_name"`
	FullName      string          `json:"full_name"`
	IsActive      *bool           `json:"is_active"`
	Active        *bool           `json:"active"`
	Flags         map[string]bool `json:"flags"`
}

type tenantWire struct {
	ID flexString `json:"id"`
}

func (w *identityWire) toDomain() *domain.Identity {
	if w == nil {
		return nil
	}
	id := &domain.Identity{
		ID:       string(w.ID),
		Username: w.Username,
		Email:    w.Email,
		Role:     domain.Role(firstNonEmpty(w.Role, w.Rol)),
		TenantID: firstNonEmpty(string(w.TenantID), string(w.InstitucionID)),
		Active:   true,
		Flags:    w.Flags,
	}
	if id.TenantID == "" && w.Institucion != nil {
		id.TenantID = string(w.Institucion.ID)
	}
	switch {
	case w.IsActive != nil:
		id.Active = *w.IsActive
	case w.Active != nil:
		id.Active = *w.Active
	}
	id.DisplayName = firstNonEmpty(w.DisplayName, w.FullName, strings.TrimSpace(w.FirstName+" "+w.LastName))
	return id
}

type tokensWire struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// authWire is the login/register response. Tokens arrive either at the top level or
// nested under "tokens"; the identity under "identity" or "user".
type authWire struct {
	Identity *identityWire `json:"identity"`
	User     *identityWire `json:"user"`
	Access   string        `json:"access"`
	Refresh  string        `json:"refresh"`
	Tokens   *tokensWire   `json:"tokens"`
}

func (w *authWire) identity() *domain.Identity {
	if w.Identity != nil {
		return w.Identity.toDomain()
	}
	return w.User.toDomain()
}

func (w *authWire) credentials() domain.Credentials {
	c := domain.Credentials{Access: w.Access, Refresh: w.Refresh}
	if w.Tokens != nil {
		if c.Access == "" {
			c.Access = w.Tokens.Access
		}
		if c.Refresh == "" {
			c.Refresh = w.Tokens.Refresh
		}
	}
	return c
}

type validateWire struct {
	Valid    bool          `json:"valid"`
	Identity *identityWire `json:"identity"`
	User     *identityWire `json:"user"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name,omitempty"`
	InstitucionID   string `json:"institucion_id,omitempty"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

// errorMessage extracts the user-facing message and any field errors from an error
// body. It tries message, detail, error and fieldErrors in that order, then a bare
// field map, and returns "" when nothing is usable.
func errorMessage(body []byte) (string, map[string]string) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return "", nil
	}

	var fields map[string]string
	if raw, ok := obj["fieldErrors"]; ok {
		fields = fieldMap(raw)
	}

	for _, key := range []string{"message", "detail", "error"} {
		if msg := messageOf(obj[key]); msg != "" {
			return msg, fields
		}
	}
	if len(fields) > 0 {
		return domain.JoinFieldMessages(fields), fields
	}

	// Form validation errors: {"email": ["already taken"], "non_field_errors": [...]}.
	fields = make(map[string]string)
	for k, raw := range obj {
		if msg := messageOf(raw); msg != "" {
			fields[k] = msg
		}
	}
	if len(fields) == 0 {
		return "", nil
	}
	if msg, ok := fields["non_field_errors"]; ok && len(fields) == 1 {
		return msg, nil
	}
	return domain.JoinFieldMessages(fields), fields
}

func fieldMap(raw json.RawMessage) map[string]string {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if msg := messageOf(v); msg != "" {
			out[k] = msg
		}
	}
	return out
}

// messageOf renders a string, a list of strings or the first message of an object.
func messageOf(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.TrimSpace(strings.Join(list, " "))
	}
	var nested map[string]json.RawMessage
	if err := json.Unmarshal(raw, &nested); err == nil {
		keys := make([]string, 0, len(nested))
		for k := range nested {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if msg := messageOf(nested[k]); msg != "" {
				return msg
			}
		}
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
