package tokens

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenType distinguishes the kinds of tokens the service issues.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
	TokenTypeID      TokenType = "id"
	TokenTypeService TokenType = "service"
)

// Claims is the full claim set carried by trustcore tokens.
type Claims struct {
	jwt.RegisteredClaims

	TokenType TokenType `json:"token_type"`
	Scope     []string  `json:"scope"`
	TenantID  string    `json:"tenant_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	DeviceID  string    `json:"device_id,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
}

// HasScope reports whether the claim set carries the given scope.
func (c *Claims) HasScope(scope string) bool {
	for _, s := range c.Scope {
		if s == scope {
			return true
		}
	}
	return false
}
