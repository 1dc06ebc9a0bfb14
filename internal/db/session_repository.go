package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ironrift/server/internal/model"
)

// PostgresSessionRepository реализует хранилище сессий поверх PostgreSQL.
// Сессия переживает рестарт auth сервиса, поэтому хранится не в памяти.
type PostgresSessionRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresSessionRepository создаёт новый PostgreSQL repository.
func NewPostgresSessionRepository(pool *pgxpool.Pool) *PostgresSessionRepository {
	return &PostgresSessionRepository{pool: pool}
}

// Create сохраняет новую сессию.
func (r *PostgresSessionRepository) Create(ctx context.Context, s *model.Session) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (token, account_id, created_at, expires_at, last_seen_ip)
		 VALUES ($1, $2, $3, $4, $5)`,
		s.Token, s.AccountID, s.CreatedAt, s.ExpiresAt, s.LastSeenIP,
	)
	if err != nil {
		return fmt.Errorf("creating session for account=%d: %w", s.AccountID, err)
	}
	return nil
}

// ByToken возвращает сессию по токену.
// Возвращает nil, nil если сессия не найдена.
func (r *PostgresSessionRepository) ByToken(ctx context.Context, token string) (*model.Session, error) {
	var s model.Session
	err := r.pool.QueryRow(ctx,
		`SELECT token, account_id, created_at, expires_at, last_seen_ip FROM sessions WHERE token = $1`, token,
	).Scan(&s.Token, &s.AccountID, &s.CreatedAt, &s.ExpiresAt, &s.LastSeenIP)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return &s, nil
}

// Delete удаляет сессию по токену.
// Возвращает false если сессии не было.
func (r *PostgresSessionRepository) Delete(ctx context.Context, token string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	if err != nil {
		return false, fmt.Errorf("deleting session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteByAccount удаляет все сессии аккаунта.
// Возвращает количество удалённых сессий.
func (r *PostgresSessionRepository) DeleteByAccount(ctx context.Context, accountID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE account_id = $1`, accountID)
	if err != nil {
		return 0, fmt.Errorf("deleting sessions for account=%d: %w", accountID, err)
	}
	return tag.RowsAffected(), nil
}

// DeleteExpired удаляет все сессии с истёкшим сроком.
// Возвращает количество удалённых сессий.
func (r *PostgresSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
