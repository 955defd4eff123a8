package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims carries the operator identity used for audit attribution.
// Full authentication and authorization live in the upstream gateway;
// this service only reads the actor name out of a trusted token.
type JWTClaims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Actor returns the best identity string for audit rows.
func (c *JWTClaims) Actor() string {
	if c == nil {
		return "system"
	}
	if c.Name != "" {
		return c.Name
	}
	if c.UserID != "" {
		return c.UserID
	}
	return "system"
}
