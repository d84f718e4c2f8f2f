package repository

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/queueease/internal/model"
	"github.com/iliyamo/queueease/internal/utils"
)

// MemoryAccounts keeps users and refresh tokens in process.  It mirrors
// UserRepo and TokenRepo for APP_ENV=memory and handler tests.
type MemoryAccounts struct {
	mu     sync.Mutex
	users  map[uint64]model.User
	tokens map[string]memoryToken
	nextID uint64
}

type memoryToken struct {
	userID  uint64
	exp     time.Time
	revoked bool
}

func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{users: map[uint64]model.User{}, tokens: map[string]memoryToken{}}
}

func (m *MemoryAccounts) Create(_ context.Context, email, password, role string, cost int) (uint64, error) {
	email = utils.NormalizeEmail(email)
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return 0, ErrEmailExists
		}
	}
	m.nextID++
	now := time.Now().UTC()
	m.users[m.nextID] = model.User{
		ID: m.nextID, Email: email, PasswordHash: hash, Role: role,
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	return m.nextID, nil
}

func (m *MemoryAccounts) GetByEmail(_ context.Context, email string) (model.User, error) {
	email = utils.NormalizeEmail(email)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, ErrNotFound
}

func (m *MemoryAccounts) GetByID(_ context.Context, id uint64) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return u, nil
}

func (m *MemoryAccounts) Exists(_ context.Context, id uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	return ok && u.IsActive, nil
}

func (m *MemoryAccounts) StoreRefresh(_ context.Context, userID uint64, tokenHash string, exp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[tokenHash] = memoryToken{userID: userID, exp: exp}
	return nil
}

func (m *MemoryAccounts) ValidateRefresh(_ context.Context, tokenHash string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[tokenHash]
	if !ok || t.revoked || time.Now().UTC().After(t.exp) {
		return 0, ErrNotFound
	}
	return t.userID, nil
}

func (m *MemoryAccounts) RevokeByHash(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tokens[tokenHash]; ok {
		t.revoked = true
		m.tokens[tokenHash] = t
	}
	return nil
}

func (m *MemoryAccounts) RevokeAllForUser(_ context.Context, userID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for h, t := range m.tokens {
		if t.userID == userID {
			t.revoked = true
			m.tokens[h] = t
		}
	}
	return nil
}
