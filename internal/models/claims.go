package models

import "github.com/golang-jwt/jwt/v5"

// Claims is the token payload the gateway issues after authentication.
type Claims struct {
	jwt.RegisteredClaims
	Id       string
	UserID   string
	Username string
	Email    string
}
