package models

import "time"

// Nature is the category of an identity or key.
type Nature string

const (
	NatureSystem    Nature = "system"
	NatureWorkspace Nature = "workspace"
	NatureRuntime   Nature = "runtime"
	NatureSkill     Nature = "skill"
)

// Valid reports whether n is one of the known natures.
func (n Nature) Valid() bool {
	switch n {
	case NatureSystem, NatureWorkspace, NatureRuntime, NatureSkill:
		return true
	}

	return false
}

// Key prefixes carried by issued secrets. Only the prefix and a few
// following characters are ever used as a rate-limit key.
const (
	SystemKeyPrefix    = "SYS_"
	WorkspaceKeyPrefix = "WSK_"
	SkillKeyPrefix     = "SKL_"
	RuntimeKeyPrefix   = "RTK_"
)

// IdentityKey binds an opaque secret to the entity it authenticates.
// Records are immutable once issued.
type IdentityKey struct {
	ID        string     `json:"id"`
	Key       string     `json:"key"`
	Nature    Nature     `json:"nature"`
	RelatedID string     `json:"relatedId"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Expired reports whether the key has an expiry that lies before now.
func (k *IdentityKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

// System is the platform-level owner of runtimes that do not belong to
// a workspace.
type System struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Workspace is a tenant.
type Workspace struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RuntimeStatus is the operational state of a runtime.
type RuntimeStatus string

const (
	RuntimeActive   RuntimeStatus = "ACTIVE"
	RuntimeInactive RuntimeStatus = "INACTIVE"
)

// RuntimeType is where a runtime executes.
type RuntimeType string

const (
	RuntimeEdge    RuntimeType = "EDGE"
	RuntimeMCPHost RuntimeType = "MCP_HOST"
)

// Root is a filesystem or workspace scope declared by a runtime.
type Root struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// OwnerScope identifies who owns a runtime: either the system or a
// workspace. Exactly one field is set.
type OwnerScope struct {
	SystemID    string
	WorkspaceID string
}

// Runtime is a remote agent process registered through a handshake.
type Runtime struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	SystemID    string        `json:"systemId,omitempty"`
	WorkspaceID string        `json:"workspaceId,omitempty"`
	Status      RuntimeStatus `json:"status"`
	Type        RuntimeType   `json:"type"`
	Roots       []Root        `json:"roots,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// Skill is a named capability set inside a workspace.
type Skill struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	WorkspaceID string    `json:"workspaceId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// HandshakeRequest is sent by a remote agent to prove possession of a key.
type HandshakeRequest struct {
	Key      string `json:"key"`
	Nature   Nature `json:"nature"`
	Name     string `json:"name"`
	HostIP   string `json:"hostIP"`
	PID      *int   `json:"pid,omitempty"`
	Hostname string `json:"hostname,omitempty"`
	Roots    []Root `json:"roots,omitempty"`
}

// HandshakeError is the only error value ever returned to a remote peer.
const HandshakeErrAuthenticationFailed = "AUTHENTICATION_FAILED"

// HandshakeResponse is the reply to a HandshakeRequest. WorkspaceID is
// nil for system-owned runtimes.
type HandshakeResponse struct {
	Nature      Nature  `json:"nature"`
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	WorkspaceID *string `json:"workspaceId"`
	Error       string  `json:"error,omitempty"`
}
