package domain

import "time"

// Role is one of the fixed enumeration of principals the upstream issuer assigns.
type Role string

const (
	RoleSuperAdmin       Role = "superadmin"
	RoleInstitutionAdmin Role = "institucion_admin"
	RoleCoordinator      Role = "coordinador"
	RoleSurveyor         Role = "encuestador"
	RoleViewer           Role = "visualizador"
)

// Roles lists every role in the enumeration. Tables keyed by Role must cover all of them.
var Roles = []Role{
	RoleSuperAdmin,
	RoleInstitutionAdmin,
	RoleCoordinator,
	RoleSurveyor,
	RoleViewer,
}

// Valid reports whether r belongs to the enumeration.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// RequiresTenant reports whether a principal with this role must be assigned to a tenant.
// The super-tenant role operates across tenants and is exempt.
func (r Role) RequiresTenant() bool {
	return r != RoleSuperAdmin
}

// Identity models the authenticated principal as reported by the issuer.
type Identity struct {
	ID          string          `json:"id"`
	Username    string          `json:"username"`
	Email       string          `json:"email,omitempty"`
	Role        Role            `json:"role"`
	TenantID    string          `json:"tenant_id,omitempty"` // empty means no tenant assignment
	DisplayName string          `json:"display_name"`
	Active      bool            `json:"active"`
	Flags       map[string]bool `json:"flags,omitempty"`
}

// Clone returns a deep copy so store snapshots never alias each other.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	if i.Flags != nil {
		c.Flags = make(map[string]bool, len(i.Flags))
		for k, v := range i.Flags {
			c.Flags[k] = v
		}
	}
	return &c
}

// Credentials is the access/refresh pair minted by the issuer.
type Credentials struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Empty reports whether no access credential is held.
func (c Credentials) Empty() bool {
	return c.Access == ""
}

// Registration carries the fields required to create an account.
type Registration struct {
	Username        string `json:"username" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	FirstName       string `json:"first_name" validate:"required"`
	LastName        string `json:"last_name"`
	TenantID        string `json:"tenant_id,omitempty"`
}

// PersistedSession is the server-side record that lets a browser session survive a restart.
type PersistedSession struct {
	Credentials   Credentials `json:"credentials"`
	SubjectID     string      `json:"subject_id"`
	LastRenewalAt time.Time   `json:"last_renewal_at"`
}

// SessionView is the read-only projection of a session exposed to the frontend.
type SessionView struct {
	Authenticated bool       `json:"isAuthenticated"`
	Role          Role       `json:"role,omitempty"`
	TenantID      string     `json:"tenantId,omitempty"`
	DisplayName   string     `json:"displayName,omitempty"`
	Permissions   []string   `json:"permissions"`
	LastRenewalAt *time.Time `json:"lastRenewalAt,omitempty"`
}
