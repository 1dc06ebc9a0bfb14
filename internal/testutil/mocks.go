package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/ironrift/server/internal/model"
)

// MemAccountRepository — in-memory имплементация хранилища аккаунтов для
// unit тестов. Не требует реального PostgreSQL.
type MemAccountRepository struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]*model.Account
	byName map[string]int64
}

// NewMemAccountRepository создаёт новый MemAccountRepository экземпляр.
func NewMemAccountRepository() *MemAccountRepository {
	return &MemAccountRepository{
		byID:   make(map[int64]*model.Account),
		byName: make(map[string]int64),
	}
}

// Create создаёт новый аккаунт. Возвращает nil, nil если имя занято.
func (m *MemAccountRepository) Create(ctx context.Context, username, passwordHash, email string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byName[username]; exists {
		return nil, nil
	}

	m.nextID++
	acc := &model.Account{
		ID:           m.nextID,
		Username:     username,
		PasswordHash: passwordHash,
		Email:        email,
		CreatedAt:    time.Now(),
	}
	m.byID[acc.ID] = acc
	m.byName[username] = acc.ID

	return cloneAccount(acc), nil
}

// ByUsername возвращает аккаунт по имени. Возвращает nil, nil если не найден.
func (m *MemAccountRepository) ByUsername(ctx context.Context, username string) (*model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, exists := m.byName[username]
	if !exists {
		return nil, nil
	}
	return cloneAccount(m.byID[id]), nil
}

// ByID возвращает аккаунт по id. Возвращает nil, nil если не найден.
func (m *MemAccountRepository) ByID(ctx context.Context, id int64) (*model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	acc, exists := m.byID[id]
	if !exists {
		return nil, nil
	}
	return cloneAccount(acc), nil
}

// UpdateLastLogin обновляет время последнего входа.
func (m *MemAccountRepository) UpdateLastLogin(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if acc, exists := m.byID[id]; exists {
		acc.LastLogin = time.Now()
	}
	return nil
}

// SetPassword заменяет хеш пароля аккаунта.
func (m *MemAccountRepository) SetPassword(ctx context.Context, id int64, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if acc, exists := m.byID[id]; exists {
		acc.PasswordHash = passwordHash
	}
	return nil
}

// SetBan банит аккаунт. Нулевое until означает перманентный бан.
func (m *MemAccountRepository) SetBan(ctx context.Context, id int64, reason string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if acc, exists := m.byID[id]; exists {
		acc.IsBanned = true
		acc.BanReason = reason
		acc.BanExpiresAt = until
	}
	return nil
}

// ClearBan снимает бан.
func (m *MemAccountRepository) ClearBan(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if acc, exists := m.byID[id]; exists {
		acc.IsBanned = false
		acc.BanReason = ""
		acc.BanExpiresAt = time.Time{}
	}
	return nil
}

// Count возвращает количество аккаунтов.
func (m *MemAccountRepository) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

// Reset очищает все данные.
func (m *MemAccountRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID = 0
	m.byID = make(map[int64]*model.Account)
	m.byName = make(map[string]int64)
}

// cloneAccount возвращает копию чтобы избежать race conditions.
func cloneAccount(acc *model.Account) *model.Account {
	c := *acc
	return &c
}

// MemSessionRepository — in-memory имплементация хранилища сессий для
// unit тестов.
type MemSessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
}

// NewMemSessionRepository создаёт новый MemSessionRepository экземпляр.
func NewMemSessionRepository() *MemSessionRepository {
	return &MemSessionRepository{
		sessions: make(map[string]*model.Session),
	}
}

// Create сохраняет новую сессию.
func (m *MemSessionRepository) Create(ctx context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *s
	m.sessions[s.Token] = &c
	return nil
}

// ByToken возвращает сессию по токену. Возвращает nil, nil если не найдена.
func (m *MemSessionRepository) ByToken(ctx context.Context, token string) (*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, exists := m.sessions[token]
	if !exists {
		return nil, nil
	}
	c := *s
	return &c, nil
}

// Delete удаляет сессию. Возвращает false если сессии не было.
func (m *MemSessionRepository) Delete(ctx context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[token]; !exists {
		return false, nil
	}
	delete(m.sessions, token)
	return true, nil
}

// DeleteByAccount удаляет все сессии аккаунта.
func (m *MemSessionRepository) DeleteByAccount(ctx context.Context, accountID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for token, s := range m.sessions {
		if s.AccountID == accountID {
			delete(m.sessions, token)
			n++
		}
	}
	return n, nil
}

// DeleteExpired удаляет сессии с истёкшим сроком.
func (m *MemSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for token, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, token)
			n++
		}
	}
	return n, nil
}

// Count возвращает количество сессий.
func (m *MemSessionRepository) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Reset очищает все данные.
func (m *MemSessionRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = make(map[string]*model.Session)
}

// MemLoginFailureRepository — in-memory имплементация счётчика неудачных
// входов для unit тестов.
type MemLoginFailureRepository struct {
	mu       sync.Mutex
	failures []model.LoginFailure
}

// NewMemLoginFailureRepository создаёт новый MemLoginFailureRepository экземпляр.
func NewMemLoginFailureRepository() *MemLoginFailureRepository {
	return &MemLoginFailureRepository{}
}

// Record фиксирует одну неудачную попытку.
func (m *MemLoginFailureRepository) Record(ctx context.Context, username, ip string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, model.LoginFailure{Username: username, IP: ip, FailedAt: at})
	return nil
}

// CountRecent возвращает число попыток пары начиная с since.
func (m *MemLoginFailureRepository) CountRecent(ctx context.Context, username, ip string, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, f := range m.failures {
		if f.Username == username && f.IP == ip && !f.FailedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// DeleteFor убирает историю пары.
func (m *MemLoginFailureRepository) DeleteFor(ctx context.Context, username, ip string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.failures[:0]
	var n int64
	for _, f := range m.failures {
		if f.Username == username && f.IP == ip {
			n++
			continue
		}
		kept = append(kept, f)
	}
	m.failures = kept
	return n, nil
}

// DeleteOlder удаляет попытки старше cutoff.
func (m *MemLoginFailureRepository) DeleteOlder(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.failures[:0]
	var n int64
	for _, f := range m.failures {
		if f.FailedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, f)
	}
	m.failures = kept
	return n, nil
}

// Count возвращает количество записей.
func (m *MemLoginFailureRepository) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.failures)
}
