package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Loka-Media/store.loka.media-sub004/internal/domain"
	"github.com/Loka-Media/store.loka.media-sub004/internal/session"
)

var (
	ErrMissingCredentials = errors.New("email and password are required")
	ErrBadCredentials     = errors.New("invalid email or password")
)

// AuthClient is the authentication service contract.
type AuthClient interface {
	Login(ctx context.Context, email, password string) (*LoginResponse, error)
}

type LoginResponse struct {
	AccessToken  string
	RefreshToken string
	User         domain.SessionUser
}

// Coordinator authenticates a user mid-checkout without resetting in-flight
// checkout state. Credentials are committed to the session store atomically,
// then the caller-supplied continuation runs with the new identity.
type Coordinator struct {
	auth     AuthClient
	sessions session.Store
	log      *logrus.Entry
}

func NewCoordinator(auth AuthClient, sessions session.Store, log *logrus.Entry) *Coordinator {
	return &Coordinator{
		auth:     auth,
		sessions: sessions,
		log:      log,
	}
}

// Login validates credentials, authenticates against the auth service and
// persists the resulting identity. onAuthenticated is invoked only after the
// session commit succeeds; on any failure the persisted session is untouched.
func (c *Coordinator) Login(ctx context.Context, sessionID, email, password string, onAuthenticated func(*domain.SessionUser)) (*domain.SessionUser, error) {
	if email == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	resp, err := c.auth.Login(ctx, email, password)
	if err != nil {
		if errors.Is(err, ErrBadCredentials) {
			return nil, err
		}
		c.log.WithError(err).Warn("login call failed")
		return nil, fmt.Errorf("login failed: %w", err)
	}

	user := resp.User
	user.AccessToken = resp.AccessToken
	user.RefreshToken = resp.RefreshToken

	err = c.sessions.Commit(ctx, sessionID, session.Credentials{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		User:         &user,
	})
	if err != nil {
		c.log.WithError(err).Error("session commit failed")
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	c.log.WithField("user_id", user.ID).Info("user authenticated")

	if onAuthenticated != nil {
		onAuthenticated(&user)
	}
	return &user, nil
}

// CurrentUser returns the authenticated user for the session, or nil when the
// session is anonymous.
func (c *Coordinator) CurrentUser(ctx context.Context, sessionID string) (*domain.SessionUser, error) {
	raw, err := c.sessions.Get(ctx, sessionID, session.KeyUser)
	if errors.Is(err, session.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var user domain.SessionUser
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, fmt.Errorf("corrupt session user: %w", err)
	}
	return &user, nil
}

// Logout clears all credential keys for the session.
func (c *Coordinator) Logout(ctx context.Context, sessionID string) error {
	return c.sessions.Clear(ctx, sessionID)
}
