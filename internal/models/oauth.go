// Package models defines types shared across internal packages.
package models

// OAuthStatePayload is the content sealed into the opaque state parameter
// handed to an OAuth provider. CreatedAt is in unix milliseconds.
type OAuthStatePayload struct {
	UserID      string   `json:"userId"`
	WorkspaceID string   `json:"workspaceId"`
	Provider    string   `json:"provider"`
	RedirectURI string   `json:"redirectUri"`
	Scopes      []string `json:"scopes"`
	Nonce       string   `json:"nonce"`
	CreatedAt   int64    `json:"createdAt"`
}
