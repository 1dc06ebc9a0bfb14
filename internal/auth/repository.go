package auth

import (
	"context"
	"time"

	"github.com/ironrift/server/internal/model"
)

// AccountRepository определяет интерфейс для работы с аккаунтами.
// Используется для dependency injection в тестах.
type AccountRepository interface {
	// Create создаёт новый аккаунт.
	// Возвращает nil, nil если имя уже занято.
	Create(ctx context.Context, username, passwordHash, email string) (*model.Account, error)

	// ByUsername возвращает аккаунт по имени.
	// Возвращает nil, nil если аккаунт не найден.
	ByUsername(ctx context.Context, username string) (*model.Account, error)

	// ByID возвращает аккаунт по id.
	// Возвращает nil, nil если аккаунт не найден.
	ByID(ctx context.Context, id int64) (*model.Account, error)

	// UpdateLastLogin обновляет время последнего входа.
	UpdateLastLogin(ctx context.Context, id int64) error

	// SetPassword заменяет хеш пароля аккаунта.
	SetPassword(ctx context.Context, id int64, passwordHash string) error

	// ClearBan снимает бан (используется когда срок бана истёк).
	ClearBan(ctx context.Context, id int64) error
}

// LoginFailureRepository хранит неудачные попытки входа для rate
// limiting'а. Счётчик ведётся по паре (username, ip).
type LoginFailureRepository interface {
	// Record фиксирует одну неудачную попытку.
	Record(ctx context.Context, username, ip string, at time.Time) error

	// CountRecent возвращает число попыток пары начиная с since.
	CountRecent(ctx context.Context, username, ip string, since time.Time) (int64, error)

	// DeleteFor убирает историю пары после успешного входа.
	DeleteFor(ctx context.Context, username, ip string) (int64, error)

	// DeleteOlder удаляет попытки старше cutoff.
	DeleteOlder(ctx context.Context, cutoff time.Time) (int64, error)
}

// SessionRepository определяет интерфейс для работы с сессиями.
type SessionRepository interface {
	// Create сохраняет новую сессию.
	Create(ctx context.Context, s *model.Session) error

	// ByToken возвращает сессию по токену.
	// Возвращает nil, nil если сессия не найдена.
	ByToken(ctx context.Context, token string) (*model.Session, error)

	// Delete удаляет сессию. Возвращает false если сессии не было.
	Delete(ctx context.Context, token string) (bool, error)

	// DeleteByAccount удаляет все сессии аккаунта.
	DeleteByAccount(ctx context.Context, accountID int64) (int64, error)

	// DeleteExpired удаляет сессии с истёкшим сроком.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
