package user

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// MemoryRepository keeps accounts in process for tests and no-infra
// dev mode.
type MemoryRepository struct {
	mu     sync.Mutex
	byID   map[string]Account
	byName map[string]string // username -> id
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:   make(map[string]Account),
		byName: make(map[string]string),
	}
}

func (r *MemoryRepository) Create(ctx context.Context, account *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[account.Username]; exists {
		return errors.New("username already taken")
	}
	r.byID[account.ID] = *account
	r.byName[account.Username] = account.ID
	return nil
}

func (r *MemoryRepository) GetByUsername(ctx context.Context, username string) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byName[username]
	if !ok {
		return nil, ErrAccountNotFound
	}
	a := r.byID[id]
	return &a, nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) Search(ctx context.Context, query string) ([]Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	query = strings.ToLower(query)
	var out []Account
	for _, a := range r.byID {
		if strings.Contains(strings.ToLower(a.Username), query) ||
			strings.Contains(strings.ToLower(a.DisplayName), query) {
			a.Password = ""
			out = append(out, a)
			if len(out) == 10 {
				break
			}
		}
	}
	return out, nil
}
