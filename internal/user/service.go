// Package user is the dev-mode account service. In production the job
// backend owns accounts and issues bearer tokens; this package stands
// in for it so the chat service runs standalone: local accounts with
// bcrypt-hashed passwords, backend-style JWTs on login, and the user
// lookup the directory uses for display names.
package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Nguyeniris123/jobchat/internal/auth"
	"github.com/Nguyeniris123/jobchat/internal/chat"
)

type Service struct {
	repo      Repository
	jwtSecret string
}

type backendClaims struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	jwt.RegisteredClaims
}

func NewService(repo Repository, secret string) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: secret,
	}
}

func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*Account, error) {
	role := chat.Role(req.Role)
	if role != chat.RoleInitiator && role != chat.RoleCounterpart {
		return nil, fmt.Errorf("role must be %q or %q", chat.RoleInitiator, chat.RoleCounterpart)
	}
	if req.Username == "" || req.Password == "" {
		return nil, errors.New("username and password are required")
	}
	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Username
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	a := &Account{
		ID:          uuid.NewString(),
		Username:    req.Username,
		DisplayName: displayName,
		Role:        role,
		Password:    string(hashedPwd),
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	a.Password = ""
	return a, nil
}

func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	a, err := s.repo.GetByUsername(ctx, req.Username)
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(a.Password), []byte(req.Password)); err != nil {
		return nil, errors.New("invalid credentials")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, backendClaims{
		Username:    a.Username,
		DisplayName: a.DisplayName,
		Role:        string(a.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "jobchat-backend",
			Subject:   a.ID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	})

	ss, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, err
	}

	return &LoginResponse{
		AccessToken: ss,
		ID:          a.ID,
		DisplayName: a.DisplayName,
		Role:        a.Role,
	}, nil
}

// ValidateBackendToken implements auth.BackendTokenValidator: the
// credential exchange trusts tokens this service issued on login.
func (s *Service) ValidateBackendToken(tokenString string) (auth.Identity, error) {
	claims := &backendClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return auth.Identity{}, err
	}
	if !token.Valid || claims.Subject == "" {
		return auth.Identity{}, errors.New("invalid backend token")
	}
	return auth.Identity{
		ParticipantID: claims.Subject,
		DisplayName:   claims.DisplayName,
		Role:          chat.Role(claims.Role),
	}, nil
}

// DisplayName implements chat.NameResolver against the local account
// table.
func (s *Service) DisplayName(ctx context.Context, participantID string) (string, error) {
	a, err := s.repo.GetByID(ctx, participantID)
	if err != nil {
		return "", err
	}
	return a.DisplayName, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Account, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	a.Password = ""
	return a, nil
}

func (s *Service) Search(ctx context.Context, query string) ([]Account, error) {
	return s.repo.Search(ctx, query)
}
