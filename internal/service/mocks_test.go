package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rideya/rideya-backend/internal/models"
	"github.com/rideya/rideya-backend/internal/repository"
)

// mockAuthRepository реализует AuthRepository поверх map с теми же гарантиями атомарности, что и SQL.
type mockAuthRepository struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

func newMockAuthRepository() *mockAuthRepository {
	return &mockAuthRepository{users: make(map[uuid.UUID]*models.User)}
}

// add сохраняет копию пользователя, как это сделала бы база.
func (m *mockAuthRepository) add(u *models.User) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	m.users[u.ID] = cloneUser(u)
	return u
}

func (m *mockAuthRepository) get(id uuid.UUID) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return cloneUser(u)
	}
	return nil
}

func (m *mockAuthRepository) setActive(id uuid.UUID, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id].IsActive = active
}

func (m *mockAuthRepository) tokens(id uuid.UUID) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.users[id].RefreshTokens...)
}

func cloneUser(u *models.User) *models.User {
	cp := *u
	cp.RefreshTokens = append([]string(nil), u.RefreshTokens...)
	return &cp
}

func (m *mockAuthRepository) Create(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if (user.Email != nil && u.Email != nil && *u.Email == *user.Email) ||
			(user.Phone != nil && u.Phone != nil && *u.Phone == *user.Phone) {
			return repository.ErrUserExists
		}
	}
	user.ID = uuid.New()
	user.IsActive = true
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	m.users[user.ID] = cloneUser(user)
	return nil
}

func (m *mockAuthRepository) find(match func(*models.User) bool) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockAuthRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.ID == id })
}

func (m *mockAuthRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.Email != nil && *u.Email == email })
}

func (m *mockAuthRepository) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.Phone != nil && *u.Phone == phone })
}

func (m *mockAuthRepository) GetByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.GoogleID != nil && *u.GoogleID == googleID })
}

func (m *mockAuthRepository) AppendRefreshToken(ctx context.Context, userID uuid.UUID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.RefreshTokens = append(u.RefreshTokens, token)
	return nil
}

func (m *mockAuthRepository) RotateRefreshToken(ctx context.Context, userID uuid.UUID, oldToken, newToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || !u.HasRefreshToken(oldToken) {
		return repository.ErrRefreshTokenNotFound
	}
	u.RefreshTokens = append(without(u.RefreshTokens, oldToken), newToken)
	return nil
}

func (m *mockAuthRepository) RemoveRefreshToken(ctx context.Context, userID uuid.UUID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.RefreshTokens = without(u.RefreshTokens, token)
	}
	return nil
}

func (m *mockAuthRepository) LinkGoogleID(ctx context.Context, userID uuid.UUID, googleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.GoogleID = &googleID
	u.EmailVerified = true
	return nil
}

func (m *mockAuthRepository) MarkPhoneVerified(ctx context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PhoneVerified = true
	u.IsVerified = true
	return nil
}

func without(list []string, token string) []string {
	out := make([]string, 0, len(list))
	for _, t := range list {
		if t != token {
			out = append(out, t)
		}
	}
	return out
}

// mockOTPRepository хранит коды в памяти. Время задаётся снаружи через now.
type mockOTPRepository struct {
	mu   sync.Mutex
	otps map[uuid.UUID]*models.OTP
	now  func() time.Time
}

func newMockOTPRepository(now func() time.Time) *mockOTPRepository {
	return &mockOTPRepository{otps: make(map[uuid.UUID]*models.OTP), now: now}
}

func (m *mockOTPRepository) Replace(ctx context.Context, phone, codeHash string, expiresAt time.Time) (*models.OTP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, o := range m.otps {
		if o.Phone == phone && !o.Verified {
			delete(m.otps, id)
		}
	}
	otp := &models.OTP{ID: uuid.New(), Phone: phone, CodeHash: codeHash, ExpiresAt: expiresAt, CreatedAt: m.now()}
	cp := *otp
	m.otps[otp.ID] = &cp
	return otp, nil
}

func (m *mockOTPRepository) GetActive(ctx context.Context, phone string) (*models.OTP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.otps {
		if o.Phone == phone && !o.Verified {
			cp := *o
			return &cp, nil
		}
	}
	return nil, repository.ErrOTPNotFound
}

func (m *mockOTPRepository) IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.otps[id]
	if !ok {
		return 0, repository.ErrOTPNotFound
	}
	o.Attempts++
	return o.Attempts, nil
}

func (m *mockOTPRepository) Consume(ctx context.Context, id uuid.UUID, maxAttempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.otps[id]
	if !ok || o.Verified || o.Attempts >= maxAttempts || !m.now().Before(o.ExpiresAt) {
		return repository.ErrOTPNotActive
	}
	o.Verified = true
	return nil
}

func (m *mockOTPRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, o := range m.otps {
		if !now.Before(o.ExpiresAt) {
			delete(m.otps, id)
			n++
		}
	}
	return n, nil
}

func (m *mockOTPRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.otps)
}

// fakeSMS запоминает отправленные сообщения.
type fakeSMS struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeSMS) Send(ctx context.Context, to, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, to+": "+body)
	return "SM" + uuid.NewString()[:8], nil
}

// clock управляемые часы для тестов.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: time.Now()} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
