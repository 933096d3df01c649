package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"wayfarer.app/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL. Refresh tokens live in their
// own table keyed by token value, so membership checks and removals are
// single-row operations; the contract stays "membership implies validity".
type PGStore struct {
	db *sql.DB
}

// NewPGStore wraps an open database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const accountColumns = `id, first_name, last_name, email, password_hash, role,
	reset_code, reset_code_expires_at, created_at, updated_at`

func (s *PGStore) CreateAccount(ctx context.Context, a *Account) error {
	if a.ID == "" {
		a.ID = ids.New()
	}
	a.Email = strings.ToLower(strings.TrimSpace(a.Email))
	_, err := s.db.ExecContext(ctx,
		`insert into accounts(id, first_name, last_name, email, password_hash, role)
		 values($1,$2,$3,$4,$5,$6)`,
		a.ID, a.FirstName, a.LastName, a.Email, a.PasswordHash, string(a.Role),
	)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

func (s *PGStore) FindAccount(ctx context.Context, id string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where id=$1`, id)
	return scanAccount(row)
}

func (s *PGStore) FindAccountByEmail(ctx context.Context, email string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where email=lower($1)`,
		strings.TrimSpace(email))
	return scanAccount(row)
}

func (s *PGStore) FindAccountByRefreshToken(ctx context.Context, token string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select a.id, a.first_name, a.last_name, a.email, a.password_hash, a.role,
		        a.reset_code, a.reset_code_expires_at, a.created_at, a.updated_at
		   from accounts a
		   join refresh_tokens t on t.account_id = a.id
		  where t.token=$1`, token)
	return scanAccount(row)
}

func (s *PGStore) AppendRefreshToken(ctx context.Context, accountID, token string) error {
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_tokens(token, account_id) values($1,$2)`,
		token, accountID)
	return err
}

func (s *PGStore) RemoveRefreshToken(ctx context.Context, accountID, token string) error {
	res, err := s.db.ExecContext(ctx,
		`delete from refresh_tokens where token=$1 and account_id=$2`,
		token, accountID)
	if err != nil {
		return err
	}
	return requireRows(res)
}

func (s *PGStore) SetRole(ctx context.Context, accountID string, role Role) error {
	res, err := s.db.ExecContext(ctx,
		`update accounts set role=$2, updated_at=now() where id=$1`,
		accountID, string(role))
	if err != nil {
		return err
	}
	return requireRows(res)
}

func (s *PGStore) SetResetCode(ctx context.Context, accountID, code string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update accounts set reset_code=$2, reset_code_expires_at=$3, updated_at=now() where id=$1`,
		accountID, code, expiresAt)
	if err != nil {
		return err
	}
	return requireRows(res)
}

func (s *PGStore) UpdatePassword(ctx context.Context, accountID, passwordHash string) error {
	// Password update and reset-code clearing ride the same statement so a
	// consumed code can never be replayed.
	res, err := s.db.ExecContext(ctx,
		`update accounts
		    set password_hash=$2, reset_code=null, reset_code_expires_at=null, updated_at=now()
		  where id=$1`,
		accountID, passwordHash)
	if err != nil {
		return err
	}
	return requireRows(res)
}

// Helpers ------------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*Account, error) {
	var (
		a       Account
		role    string
		code    sql.NullString
		codeExp sql.NullTime
	)
	err := row.Scan(&a.ID, &a.FirstName, &a.LastName, &a.Email, &a.PasswordHash,
		&role, &code, &codeExp, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	a.Role = Role(role)
	if code.Valid {
		a.ResetCode = code.String
	}
	if codeExp.Valid {
		a.ResetCodeExpiresAt = codeExp.Time
	}
	return &a, nil
}

func requireRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
