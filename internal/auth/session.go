package auth

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Exchanger swaps a backend bearer token for a store credential.
// CredentialService implements it in-process; a remote bridge would
// implement it over HTTP.
type Exchanger interface {
	Exchange(backendToken string) (*Credential, error)
}

// Session holds one user's store credential with an explicit
// lifecycle. The exchange is retried once before surfacing AuthError.
type Session struct {
	exchanger Exchanger

	mu           sync.Mutex
	backendToken string
	cred         *Credential
}

func NewSession(exchanger Exchanger) *Session {
	return &Session{exchanger: exchanger}
}

// Init performs the initial credential exchange for the given backend
// token.
func (s *Session) Init(backendToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backendToken = backendToken
	return s.exchange()
}

// Refresh re-exchanges the stored backend token, replacing the current
// credential.
func (s *Session) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backendToken == "" {
		return &AuthError{Cause: errNotInitialized}
	}
	return s.exchange()
}

// Credential returns the current store credential, or false when the
// session is not initialized or has been torn down.
func (s *Session) Credential() (*Credential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred == nil {
		return nil, false
	}
	return s.cred, true
}

// Teardown drops the credential and the backend token. Idempotent.
func (s *Session) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backendToken = ""
	s.cred = nil
}

func (s *Session) exchange() error {
	cred, err := s.exchanger.Exchange(s.backendToken)
	if err != nil {
		log.Warn().Err(err).Msg("credential exchange failed, retrying once")
		cred, err = s.exchanger.Exchange(s.backendToken)
	}
	if err != nil {
		s.cred = nil
		return &AuthError{Cause: err}
	}
	s.cred = cred
	return nil
}
