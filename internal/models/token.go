package models

import "time"

// TokenType distinguishes long-lived master keys from short-lived
// runtime keys.
type TokenType string

const (
	TokenMasterKey  TokenType = "MasterKey"
	TokenRuntimeKey TokenType = "RuntimeKey"
)

// PendingWorkspace marks a runtime token whose workspace is not known yet.
const PendingWorkspace = "pending"

// Token is a persisted credential. Key holds a hash, never the secret.
type Token struct {
	ID          string     `json:"id"`
	Key         string     `json:"key"`
	Type        TokenType  `json:"type"`
	WorkspaceID string     `json:"workspaceId"`
	ToolsetID   string     `json:"toolsetId"`
	RuntimeID   string     `json:"runtimeId,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	RevokedAt   *time.Time `json:"revokedAt,omitempty"`
}

// Active reports whether the token is neither expired nor revoked. It
// says nothing about whether a presented secret matches.
func (t *Token) Active(now time.Time) bool {
	if t.RevokedAt != nil {
		return false
	}

	return t.ExpiresAt == nil || now.Before(*t.ExpiresAt)
}

// Toolset groups the tools a skill or runtime may call.
type Toolset struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	WorkspaceID string `json:"workspaceId"`
}
