package identity

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Loka-Media/store.loka.media-sub004/internal/domain"
	"github.com/Loka-Media/store.loka.media-sub004/internal/session"
)

type mockAuthClient struct {
	m     sync.Mutex
	calls int
	resp  *LoginResponse
	err   error
}

func (m *mockAuthClient) Login(context.Context, string, string) (*LoginResponse, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

func (m *mockAuthClient) callCount() int {
	m.m.Lock()
	defer m.m.Unlock()
	return m.calls
}

type failingStore struct {
	session.Store
	err error
}

func (f *failingStore) Commit(context.Context, string, session.Credentials) error {
	return f.err
}

func testLog() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(logger)
}

func loginResponse() *LoginResponse {
	return &LoginResponse{
		AccessToken:  "access-123",
		RefreshToken: "refresh-456",
		User: domain.SessionUser{
			ID:    "u-1",
			Name:  "Jane Doe",
			Email: "jane@example.com",
			Role:  "customer",
		},
	}
}

func TestLogin_EmptyEmail_NoNetworkCall(t *testing.T) {
	auth := &mockAuthClient{resp: loginResponse()}
	sut := NewCoordinator(auth, session.NewMemoryStore(), testLog())

	_, err := sut.Login(context.Background(), "s-1", "", "secret", nil)
	assert.ErrorIs(t, err, ErrMissingCredentials)
	assert.Equal(t, 0, auth.callCount())
}

func TestLogin_EmptyPassword_NoNetworkCall(t *testing.T) {
	auth := &mockAuthClient{resp: loginResponse()}
	sut := NewCoordinator(auth, session.NewMemoryStore(), testLog())

	_, err := sut.Login(context.Background(), "s-1", "jane@example.com", "", nil)
	assert.ErrorIs(t, err, ErrMissingCredentials)
	assert.Equal(t, 0, auth.callCount())
}

func TestLogin_Success_CommitsAllSessionKeys(t *testing.T) {
	auth := &mockAuthClient{resp: loginResponse()}
	store := session.NewMemoryStore()
	sut := NewCoordinator(auth, store, testLog())

	user, err := sut.Login(context.Background(), "s-1", "jane@example.com", "secret", nil)
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.ID)
	assert.Equal(t, "access-123", user.AccessToken)

	ctx := context.Background()
	for _, key := range []string{session.KeyToken, session.KeyAccessToken, session.KeyRefreshToken, session.KeyUser} {
		_, getErr := store.Get(ctx, "s-1", key)
		assert.NoError(t, getErr, "key %s must be committed", key)
	}

	token, _ := store.Get(ctx, "s-1", session.KeyToken)
	compat, _ := store.Get(ctx, "s-1", session.KeyAccessToken)
	assert.Equal(t, token, compat, "token is duplicated for compatibility")
}

func TestLogin_Success_InvokesContinuation(t *testing.T) {
	auth := &mockAuthClient{resp: loginResponse()}
	sut := NewCoordinator(auth, session.NewMemoryStore(), testLog())

	var continued *domain.SessionUser
	_, err := sut.Login(context.Background(), "s-1", "jane@example.com", "secret", func(u *domain.SessionUser) {
		continued = u
	})
	require.NoError(t, err)
	require.NotNil(t, continued)
	assert.Equal(t, "u-1", continued.ID)
}

func TestLogin_BadCredentials_SessionUntouched(t *testing.T) {
	auth := &mockAuthClient{err: ErrBadCredentials}
	store := session.NewMemoryStore()
	sut := NewCoordinator(auth, store, testLog())

	continued := false
	_, err := sut.Login(context.Background(), "s-1", "jane@example.com", "wrong", func(*domain.SessionUser) {
		continued = true
	})
	assert.ErrorIs(t, err, ErrBadCredentials)
	assert.False(t, continued)

	_, getErr := store.Get(context.Background(), "s-1", session.KeyUser)
	assert.ErrorIs(t, getErr, session.ErrKeyNotFound)
}

func TestLogin_NetworkError_Wrapped(t *testing.T) {
	auth := &mockAuthClient{err: fmt.Errorf("connection reset")}
	sut := NewCoordinator(auth, session.NewMemoryStore(), testLog())

	_, err := sut.Login(context.Background(), "s-1", "jane@example.com", "secret", nil)
	require.ErrorContains(t, err, "login failed")
}

func TestLogin_CommitFailure_NoContinuation(t *testing.T) {
	auth := &mockAuthClient{resp: loginResponse()}
	store := &failingStore{err: fmt.Errorf("redis down")}
	sut := NewCoordinator(auth, store, testLog())

	continued := false
	_, err := sut.Login(context.Background(), "s-1", "jane@example.com", "secret", func(*domain.SessionUser) {
		continued = true
	})
	require.ErrorContains(t, err, "failed to persist session")
	assert.False(t, continued)
}

func TestCurrentUser_AnonymousSession(t *testing.T) {
	sut := NewCoordinator(&mockAuthClient{}, session.NewMemoryStore(), testLog())

	user, err := sut.CurrentUser(context.Background(), "s-unknown")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestCurrentUser_AfterLogin(t *testing.T) {
	auth := &mockAuthClient{resp: loginResponse()}
	store := session.NewMemoryStore()
	sut := NewCoordinator(auth, store, testLog())

	_, err := sut.Login(context.Background(), "s-1", "jane@example.com", "secret", nil)
	require.NoError(t, err)

	user, err := sut.CurrentUser(context.Background(), "s-1")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "u-1", user.ID)
	assert.Equal(t, "jane@example.com", user.Email)
}

func TestLogout_ClearsSession(t *testing.T) {
	auth := &mockAuthClient{resp: loginResponse()}
	store := session.NewMemoryStore()
	sut := NewCoordinator(auth, store, testLog())

	_, err := sut.Login(context.Background(), "s-1", "jane@example.com", "secret", nil)
	require.NoError(t, err)

	require.NoError(t, sut.Logout(context.Background(), "s-1"))
	user, err := sut.CurrentUser(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Nil(t, user)
}
