package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ironrift/server/internal/model"
)

// PostgresAccountRepository реализует хранилище аккаунтов поверх PostgreSQL.
type PostgresAccountRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresAccountRepository создаёт новый PostgreSQL repository.
func NewPostgresAccountRepository(pool *pgxpool.Pool) *PostgresAccountRepository {
	return &PostgresAccountRepository{pool: pool}
}

const accountColumns = `id, username, password_hash, email, created_at, last_login, is_banned, ban_reason, ban_expires_at`

func scanAccount(row pgx.Row) (*model.Account, error) {
	var acc model.Account
	var lastLogin, banExpires *time.Time
	err := row.Scan(
		&acc.ID, &acc.Username, &acc.PasswordHash, &acc.Email, &acc.CreatedAt,
		&lastLogin, &acc.IsBanned, &acc.BanReason, &banExpires,
	)
	if err != nil {
		return nil, err
	}
	if lastLogin != nil {
		acc.LastLogin = *lastLogin
	}
	if banExpires != nil {
		acc.BanExpiresAt = *banExpires
	}
	return &acc, nil
}

// Create создаёт новый аккаунт.
// Возвращает nil, nil если имя уже занято.
func (r *PostgresAccountRepository) Create(ctx context.Context, username, passwordHash, email string) (*model.Account, error) {
	username = strings.ToLower(username)
	row := r.pool.QueryRow(ctx,
		`INSERT INTO accounts (username, password_hash, email)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (username) DO NOTHING
		 RETURNING `+accountColumns,
		username, passwordHash, email,
	)
	acc, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("creating account %q: %w", username, err)
	}
	return acc, nil
}

// ByUsername возвращает аккаунт по имени.
// Возвращает nil, nil если аккаунт не найден.
func (r *PostgresAccountRepository) ByUsername(ctx context.Context, username string) (*model.Account, error) {
	username = strings.ToLower(username)
	row := r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username,
	)
	acc, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying account %q: %w", username, err)
	}
	return acc, nil
}

// ByID возвращает аккаунт по id.
// Возвращает nil, nil если аккаунт не найден.
func (r *PostgresAccountRepository) ByID(ctx context.Context, id int64) (*model.Account, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id,
	)
	acc, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying account id=%d: %w", id, err)
	}
	return acc, nil
}

// UpdateLastLogin обновляет время последнего входа.
func (r *PostgresAccountRepository) UpdateLastLogin(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE accounts SET last_login = $1 WHERE id = $2`, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("updating last login for id=%d: %w", id, err)
	}
	return nil
}

// SetPassword заменяет хеш пароля аккаунта.
func (r *PostgresAccountRepository) SetPassword(ctx context.Context, id int64, passwordHash string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE accounts SET password_hash = $1 WHERE id = $2`, passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("updating password for id=%d: %w", id, err)
	}
	return nil
}

// SetBan банит аккаунт. Нулевое значение until означает перманентный бан.
func (r *PostgresAccountRepository) SetBan(ctx context.Context, id int64, reason string, until time.Time) error {
	var expires *time.Time
	if !until.IsZero() {
		expires = &until
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE accounts SET is_banned = TRUE, ban_reason = $1, ban_expires_at = $2 WHERE id = $3`,
		reason, expires, id,
	)
	if err != nil {
		return fmt.Errorf("banning account id=%d: %w", id, err)
	}
	return nil
}

// ClearBan снимает бан с аккаунта (используется когда срок бана истёк).
func (r *PostgresAccountRepository) ClearBan(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE accounts SET is_banned = FALSE, ban_reason = '', ban_expires_at = NULL WHERE id = $1`, id,
	)
	if err != nil {
		return fmt.Errorf("clearing ban for id=%d: %w", id, err)
	}
	return nil
}
