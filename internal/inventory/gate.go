package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Loka-Media/store.loka.media-sub004/internal/domain"
)

var ErrCheckInFlight = errors.New("availability check already in flight")

// VariantQuantity is one (variant, quantity) pair in a batched availability
// request.
type VariantQuantity struct {
	VariantID int64 `json:"variant_id"`
	Quantity  int32 `json:"quantity"`
}

type AvailabilityResponse struct {
	Success          bool                  `json:"success"`
	AllAvailable     bool                  `json:"all_available"`
	UnavailableCount int                   `json:"unavailable_count"`
	Checks           []domain.VariantCheck `json:"checks"`
}

// FulfillmentChecker is the fulfillment provider's stock-availability
// contract. One call covers the whole batch.
type FulfillmentChecker interface {
	CheckVariantAvailability(ctx context.Context, items []VariantQuantity) (*AvailabilityResponse, error)
}

// Gate blocks checkout until the fulfillment provider confirms stock for
// every fulfillment-managed cart item. The gate fails closed: a provider
// error yields Available=false, never an absent result. Overlapping checks
// are rejected, and the last result is cached until Reset.
type Gate struct {
	client FulfillmentChecker
	log    *logrus.Entry

	mu       sync.Mutex
	checking bool
	last     *domain.AvailabilityResult
}

func NewGate(client FulfillmentChecker, log *logrus.Entry) *Gate {
	return &Gate{
		client: client,
		log:    log,
	}
}

func (g *Gate) CheckAvailability(ctx context.Context, items []domain.CartItem) (*domain.AvailabilityResult, error) {
	batch := fulfillmentItems(items)
	if len(batch) == 0 {
		// Nothing fulfillment-managed in the cart; never block on it.
		return g.store(&domain.AvailabilityResult{
			Available: true,
			Message:   "All items are available",
		}), nil
	}

	g.mu.Lock()
	if g.checking {
		g.mu.Unlock()
		return nil, ErrCheckInFlight
	}
	g.checking = true
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.checking = false
		g.mu.Unlock()
	}()

	resp, err := g.client.CheckVariantAvailability(ctx, batch)
	if err != nil || !resp.Success {
		g.log.WithError(err).Warn("availability check failed, blocking checkout")
		return g.store(&domain.AvailabilityResult{
			Available: false,
			Message:   "Could not verify item availability. Please try again.",
		}), nil
	}

	result := &domain.AvailabilityResult{
		Available: resp.AllAvailable,
		Checks:    resp.Checks,
		Message:   "All items are available",
	}
	if resp.UnavailableCount > 0 {
		result.Message = fmt.Sprintf("%d item(s) unavailable", resp.UnavailableCount)
	}
	return g.store(result), nil
}

// Last returns the most recent result. Cart mutations do not invalidate it;
// callers must re-check after any cart change.
func (g *Gate) Last() *domain.AvailabilityResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = nil
}

func (g *Gate) store(result *domain.AvailabilityResult) *domain.AvailabilityResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = result
	return result
}

func fulfillmentItems(items []domain.CartItem) []VariantQuantity {
	batch := make([]VariantQuantity, 0, len(items))
	for _, item := range items {
		if item.FulfillmentVariantID == 0 {
			continue
		}
		batch = append(batch, VariantQuantity{
			VariantID: item.FulfillmentVariantID,
			Quantity:  item.Quantity,
		})
	}
	return batch
}
