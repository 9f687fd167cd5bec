package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartossh/Rampart/localstorage"
)

func sign(t *testing.T, p Profile, exp time.Time) string {
	t.Helper()
	claims := Claims{
		Profile:     p,
		Authorities: []string{p.Role},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(exp.Add(-time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestStoreDecodesRole(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New(memory(t), WithClock(func() time.Time { return now }))
	exp := now.Add(time.Hour)
	access := sign(t, Profile{ID: "u1", Name: "Admin", Email: "admin@example.com", Role: "admin"}, exp)

	require.NoError(t, s.Store(TokenSet{AccessToken: access, RefreshToken: "r1", ExpiresIn: 3600}))

	role, err := s.Role()
	require.NoError(t, err)
	assert.Equal(t, "admin", role)
	assert.True(t, s.IsRole("admin"))
	assert.False(t, s.IsRole("user"))

	ts, ok := s.TokenSet()
	require.True(t, ok)
	assert.Equal(t, now, ts.CreatedOn.UTC())
	assert.Equal(t, "admin", ts.Role)
	require.NotNil(t, ts.Profile)
	assert.Equal(t, "admin@example.com", ts.Profile.Email)

	at, err := s.ExpiresAt()
	require.NoError(t, err)
	assert.Equal(t, exp.Unix(), at.Unix())

	rt, ok := s.RefreshToken()
	assert.True(t, ok)
	assert.Equal(t, "r1", rt)
}

func TestStoreRejectsInvalidToken(t *testing.T) {
	s := New(memory(t))
	err := s.Store(TokenSet{AccessToken: "not-a-jwt"})
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, ok := s.AccessToken()
	assert.False(t, ok)
}

func TestProfileWithoutSessionNavigates(t *testing.T) {
	var navigated int
	s := New(memory(t), WithNavigator(NavigatorFunc(func() { navigated++ })))

	_, err := s.Profile()
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, 1, navigated)
	assert.False(t, s.IsRole("admin"))
}

func TestProfileDecodedFromPersistedToken(t *testing.T) {
	storage := memory(t)
	first := New(storage)
	require.NoError(t, first.Store(TokenSet{AccessToken: sign(t, Profile{ID: "u2", Role: "user"}, time.Now().Add(time.Hour))}))

	second := New(storage)
	p, err := second.Profile()
	require.NoError(t, err)
	assert.Equal(t, "u2", p.ID)
	assert.Equal(t, "user", p.Role)
}

func TestResetClearsCache(t *testing.T) {
	var navigated int
	s := New(memory(t), WithNavigator(NavigatorFunc(func() { navigated++ })))
	require.NoError(t, s.Store(TokenSet{AccessToken: sign(t, Profile{ID: "u3", Role: "admin"}, time.Now().Add(time.Hour))}))
	require.NoError(t, s.Reset())

	_, ok := s.AccessToken()
	assert.False(t, ok)
	_, err := s.Role()
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, 1, navigated)
}

type hookedStorage struct {
	Storage
	onGet func()
}

func (h *hookedStorage) Get(key string, v any) (bool, error) {
	ok, err := h.Storage.Get(key, v)
	if f := h.onGet; f != nil {
		h.onGet = nil
		f()
	}
	return ok, err
}

func TestResetDuringProfileDecodeIsNotOverwritten(t *testing.T) {
	backing := memory(t)
	require.NoError(t, New(backing).Store(TokenSet{AccessToken: sign(t, Profile{ID: "u4", Role: "admin"}, time.Now().Add(time.Hour))}))

	storage := &hookedStorage{Storage: backing}
	s := New(storage)
	reset := make(chan error, 1)
	storage.onGet = func() {
		go func() { reset <- s.Reset() }()
		time.Sleep(50 * time.Millisecond)
	}

	p, err := s.Profile()
	require.NoError(t, err)
	assert.Equal(t, "u4", p.ID)
	require.NoError(t, <-reset)

	_, err = s.Profile()
	assert.ErrorIs(t, err, ErrNoSession)
	assert.False(t, s.IsRole("admin"))
}

func memory(t *testing.T) *localstorage.Store {
	t.Helper()
	s, err := localstorage.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}
