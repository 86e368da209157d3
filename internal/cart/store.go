package cart

import (
	"context"
	"errors"

	"github.com/Loka-Media/store.loka.media-sub004/internal/domain"
)

var (
	ErrCartNotFound    = errors.New("cart not found")
	ErrInvalidQuantity = errors.New("item quantity must be at least 1")
)

// Store holds session-lifetime carts: guest carts keyed by browser session,
// saved carts keyed by user id. Implementations must reject any write that
// would persist an item with quantity below 1.
type Store interface {
	GetGuestCart(ctx context.Context, sessionID string) (*domain.Cart, error)
	SaveGuestCart(ctx context.Context, sessionID string, cart *domain.Cart) error
	DeleteGuestCart(ctx context.Context, sessionID string) error

	GetUserCart(ctx context.Context, userID string) (*domain.Cart, error)
	SaveUserCart(ctx context.Context, userID string, cart *domain.Cart) error
	DeleteUserCart(ctx context.Context, userID string) error
}

func validateItems(cart *domain.Cart) error {
	for _, item := range cart.Items {
		if item.Quantity < 1 {
			return ErrInvalidQuantity
		}
	}
	return nil
}
