// Package auth is the platform auth bridge: before any chat-store
// operation the acting user exchanges a backend-issued bearer token for
// a short-lived store-native credential. Session state is an explicit
// object with an init/refresh/teardown lifecycle, never package-global.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Nguyeniris123/jobchat/internal/chat"
)

// Identity is the participant identity carried by a store credential.
type Identity struct {
	ParticipantID string
	DisplayName   string
	Role          chat.Role
}

// Credential is a store-native credential: a signed token plus the
// identity and expiry baked into it.
type Credential struct {
	Token     string
	Identity  Identity
	ExpiresAt time.Time
}

// AuthError is a credential exchange or validation failure that
// survived the bridge's single retry. Fatal for the current screen
// session.
type AuthError struct {
	Cause error
}

func (e *AuthError) Error() string { return fmt.Sprintf("auth failed: %v", e.Cause) }
func (e *AuthError) Unwrap() error { return e.Cause }

// BackendTokenValidator checks a backend-issued bearer token and
// returns the participant identity it asserts. The dev-mode account
// service implements it; against a real deployment this is a call to
// the job backend's verification endpoint.
type BackendTokenValidator interface {
	ValidateBackendToken(tokenString string) (Identity, error)
}

type storeClaims struct {
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	jwt.RegisteredClaims
}

// CredentialService mints and validates store credentials. It
// implements Exchanger for in-process composition.
type CredentialService struct {
	secret    []byte
	ttl       time.Duration
	validator BackendTokenValidator
}

func NewCredentialService(secret string, ttl time.Duration, validator BackendTokenValidator) *CredentialService {
	return &CredentialService{secret: []byte(secret), ttl: ttl, validator: validator}
}

// Exchange swaps a backend bearer token for a store credential.
func (s *CredentialService) Exchange(backendToken string) (*Credential, error) {
	identity, err := s.validator.ValidateBackendToken(backendToken)
	if err != nil {
		return nil, fmt.Errorf("backend token rejected: %w", err)
	}

	expiresAt := time.Now().Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, storeClaims{
		DisplayName: identity.DisplayName,
		Role:        string(identity.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "jobchat-store",
			Subject:   identity.ParticipantID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, err
	}
	return &Credential{Token: signed, Identity: identity, ExpiresAt: expiresAt}, nil
}

// ValidateCredential checks a store credential and returns the identity
// it carries.
func (s *CredentialService) ValidateCredential(tokenString string) (Identity, error) {
	claims := &storeClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return Identity{}, err
	}
	if !token.Valid || claims.Subject == "" {
		return Identity{}, errors.New("invalid store credential")
	}
	return Identity{
		ParticipantID: claims.Subject,
		DisplayName:   claims.DisplayName,
		Role:          chat.Role(claims.Role),
	}, nil
}
