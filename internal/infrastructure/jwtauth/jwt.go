// Package jwtauth issues and verifies HS256 tokens for local development
// and for the chat CLI when Firebase is not available.
package jwtauth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"coursehub/internal/domain/entity"
	"coursehub/internal/domain/service"
	"coursehub/pkg/errors"
)

type Claims struct {
	UserID string `json:"uid"`
	Role   string `json:"role,omitempty"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
	expiry time.Duration
}

func NewVerifier(secret string, expiry time.Duration) *Verifier {
	return &Verifier{secret: []byte(secret), expiry: expiry}
}

var _ service.IdentityVerifier = (*Verifier)(nil)

func (v *Verifier) Generate(id entity.Identity) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: id.UserID,
		Role:   id.Role,
		Name:   id.Name,
		Email:  id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.expiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func (v *Verifier) Verify(_ context.Context, token string) (*entity.Identity, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, errors.Unauthorized("Invalid or expired token", err)
	}
	if claims.UserID == "" {
		return nil, errors.Unauthorized("Token has no subject", nil)
	}

	role := claims.Role
	if role == "" {
		role = entity.RoleStudent
	}
	return &entity.Identity{
		UserID: claims.UserID,
		Role:   role,
		Name:   claims.Name,
		Email:  claims.Email,
	}, nil
}
