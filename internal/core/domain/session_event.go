package domain

import "time"

// SessionEventKind names a step in a browser session's lifecycle.
type SessionEventKind string

const (
	EventLoginSucceeded   SessionEventKind = "login_succeeded"
	EventLoginFailed      SessionEventKind = "login_failed"
	EventRegistered       SessionEventKind = "registered"
	EventLogout           SessionEventKind = "logout"
	EventRefreshSucceeded SessionEventKind = "refresh_succeeded"
	EventRefreshFailed    SessionEventKind = "refresh_failed"
	EventSessionRestored  SessionEventKind = "session_restored"
	EventSessionEnded     SessionEventKind = "session_ended"
)

// SessionEvent is an audit record of a session state change.
type SessionEvent struct {
	SessionID string
	Kind      SessionEventKind
	SubjectID string
	Role      Role
	TenantID  string
	Reason    string // optional
	At        time.Time
}

// TenantContext is attached to a request by the authorization middleware. Handlers that touch
// tenant-scoped data read TenantID from here, never from client input.
type TenantContext struct {
	SubjectID   string
	Role        Role
	TenantID    string
	AccessToken string
}
