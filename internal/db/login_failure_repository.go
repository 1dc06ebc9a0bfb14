package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLoginFailureRepository хранит неудачные попытки входа. Счётчик
// используется для rate limiting'а и поэтому должен переживать рестарт
// auth сервиса, иначе перезапуск сбрасывает блокировки.
type PostgresLoginFailureRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresLoginFailureRepository создаёт новый PostgreSQL repository.
func NewPostgresLoginFailureRepository(pool *pgxpool.Pool) *PostgresLoginFailureRepository {
	return &PostgresLoginFailureRepository{pool: pool}
}

// Record фиксирует одну неудачную попытку входа.
func (r *PostgresLoginFailureRepository) Record(ctx context.Context, username, ip string, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO login_failures (username, ip, failed_at) VALUES ($1, $2, $3)`,
		username, ip, at,
	)
	if err != nil {
		return fmt.Errorf("recording login failure for %q: %w", username, err)
	}
	return nil
}

// CountRecent возвращает число неудачных попыток пары (username, ip)
// начиная с since.
func (r *PostgresLoginFailureRepository) CountRecent(ctx context.Context, username, ip string, since time.Time) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM login_failures
		 WHERE username = $1 AND ip = $2 AND failed_at >= $3`,
		username, ip, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting login failures for %q: %w", username, err)
	}
	return n, nil
}

// DeleteFor убирает историю пары (username, ip) после успешного входа.
func (r *PostgresLoginFailureRepository) DeleteFor(ctx context.Context, username, ip string) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM login_failures WHERE username = $1 AND ip = $2`,
		username, ip,
	)
	if err != nil {
		return 0, fmt.Errorf("clearing login failures for %q: %w", username, err)
	}
	return tag.RowsAffected(), nil
}

// DeleteOlder удаляет попытки старше cutoff. Вызывается sweeper'ом, чтобы
// таблица держала только скользящее окно.
func (r *PostgresLoginFailureRepository) DeleteOlder(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM login_failures WHERE failed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweeping login failures: %w", err)
	}
	return tag.RowsAffected(), nil
}
