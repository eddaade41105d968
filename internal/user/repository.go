package user

import (
	"context"
	"database/sql"
	"errors"
)

// ErrAccountNotFound is returned by repository lookups for unknown
// accounts or usernames.
var ErrAccountNotFound = errors.New("account not found")

// Repository stores dev-mode accounts. The SQL implementation backs the
// postgres deployment; the memory one backs tests and no-infra mode.
type Repository interface {
	Create(ctx context.Context, account *Account) error
	GetByUsername(ctx context.Context, username string) (*Account, error)
	GetByID(ctx context.Context, id string) (*Account, error)
	Search(ctx context.Context, query string) ([]Account, error)
}

type SQLRepository struct {
	db *sql.DB
}

var _ Repository = (*SQLRepository)(nil)

func NewSQLRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) Create(ctx context.Context, account *Account) error {
	query := `INSERT INTO accounts (id, username, display_name, role, password)
	          VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, query,
		account.ID, account.Username, account.DisplayName, account.Role, account.Password)
	return err
}

func (r *SQLRepository) GetByUsername(ctx context.Context, username string) (*Account, error) {
	a := &Account{}
	query := `SELECT id, username, display_name, role, password FROM accounts WHERE username = $1`
	err := r.db.QueryRowContext(ctx, query, username).
		Scan(&a.ID, &a.Username, &a.DisplayName, &a.Role, &a.Password)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *SQLRepository) GetByID(ctx context.Context, id string) (*Account, error) {
	a := &Account{}
	query := `SELECT id, username, display_name, role, password FROM accounts WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&a.ID, &a.Username, &a.DisplayName, &a.Role, &a.Password)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *SQLRepository) Search(ctx context.Context, query string) ([]Account, error) {
	// Capped to keep the endpoint fast.
	q := `SELECT id, username, display_name, role FROM accounts
	      WHERE username ILIKE $1 OR display_name ILIKE $1 LIMIT 10`
	rows, err := r.db.QueryContext(ctx, q, "%"+query+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Username, &a.DisplayName, &a.Role); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}
