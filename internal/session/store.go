package session

import (
	"context"
	"errors"

	"github.com/Loka-Media/store.loka.media-sub004/internal/domain"
)

// Session storage keys. Token is duplicated under AccessToken for
// compatibility with older storefront clients that still read "token".
const (
	KeyToken        = "token"
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyUser         = "user"
)

// Credentials is everything a successful login persists. Commit writes all
// of it in one atomic operation so a crash can never leave a session holding
// a token without its user record, or vice versa.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	User         *domain.SessionUser
}

type Store interface {
	Get(ctx context.Context, sessionID, key string) (string, error)
	Set(ctx context.Context, sessionID, key, value string) error
	Delete(ctx context.Context, sessionID, key string) error
	Commit(ctx context.Context, sessionID string, creds Credentials) error
	Clear(ctx context.Context, sessionID string) error
}

var ErrKeyNotFound = errors.New("session key not found")
