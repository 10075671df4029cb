// Package permission maps roles to the capabilities they grant.
//
// The table is static for the process lifetime. Validate must be called at startup;
// a role missing from the table is a configuration bug, not an empty grant.
package permission

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/surveyhub/portal/internal/core/domain"
)

// Capability names an allowed action on a resource, formatted "resource:action".
type Capability string

const (
	InstitutionsRead  Capability = "institutions:read"
	InstitutionsWrite Capability = "institutions:write"
	UsersRead         Capability = "users:read"
	UsersWrite        Capability = "users:write"
	UsersDelete       Capability = "users:delete"
	SurveysRead       Capability = "surveys:read"
	SurveysWrite      Capability = "surveys:write"
	SurveysDelete     Capability = "surveys:delete"
	ResponsesRead     Capability = "responses:read"
	ResponsesWrite    Capability = "responses:write"
	ResponsesExport   Capability = "responses:export"
	ReportsRead       Capability = "reports:read"
)

type capabilitySet map[Capability]struct{}

func setOf(caps ...Capability) capabilitySet {
	s := make(capabilitySet, len(caps))
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return s
}

var table = map[domain.Role]capabilitySet{
	domain.RoleSuperAdmin: setOf(
		InstitutionsRead, InstitutionsWrite,
		UsersRead, UsersWrite, UsersDelete,
		SurveysRead, SurveysWrite, SurveysDelete,
		ResponsesRead, ResponsesWrite, ResponsesExport,
		ReportsRead,
	),
	domain.RoleInstitutionAdmin: setOf(
		InstitutionsRead,
		UsersRead, UsersWrite, UsersDelete,
		SurveysRead, SurveysWrite, SurveysDelete,
		ResponsesRead, ResponsesExport,
		ReportsRead,
	),
	domain.RoleCoordinator: setOf(
		SurveysRead, SurveysWrite,
		ResponsesRead,
		ReportsRead,
	),
	domain.RoleSurveyor: setOf(
		SurveysRead,
		ResponsesWrite,
	),
	domain.RoleViewer: setOf(
		SurveysRead,
		ReportsRead,
	),
}

// Validate fails when any role of the enumeration has no entry in the table.
func Validate() error {
	for _, r := range domain.Roles {
		if _, ok := table[r]; !ok {
			return fmt.Errorf("permission: role %q has no capability entry", r)
		}
	}
	return nil
}

// CapabilitiesFor returns the sorted capabilities granted to role. Unknown roles get nil.
func CapabilitiesFor(role domain.Role) []Capability {
	set, ok := table[role]
	if !ok {
		return nil
	}
	out := make([]Capability, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings is CapabilitiesFor rendered as plain strings, never nil.
func Strings(role domain.Role) []string {
	caps := CapabilitiesFor(role)
	out := make([]string, 0, len(caps))
	for _, c := range caps {
		out = append(out, string(c))
	}
	return out
}

// HasCapability reports whether role grants c.
func HasCapability(role domain.Role, c Capability) bool {
	_, ok := table[role][c]
	return ok
}

// ForRequest derives the capability an HTTP method needs on resource:
// GET/HEAD read, DELETE delete, everything else write.
func ForRequest(resource, method string) Capability {
	action := "write"
	switch method {
	case http.MethodGet, http.MethodHead:
		action = "read"
	case http.MethodDelete:
		action = "delete"
	}
	return Capability(resource + ":" + action)
}
