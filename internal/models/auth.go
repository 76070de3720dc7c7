package models

import "github.com/golang-jwt/jwt/v5"

// Claims is the payload of an operator access token.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}
