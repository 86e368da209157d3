package checkout

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Loka-Media/store.loka.media-sub004/internal/address"
	"github.com/Loka-Media/store.loka.media-sub004/internal/cart"
	"github.com/Loka-Media/store.loka.media-sub004/internal/domain"
	"github.com/Loka-Media/store.loka.media-sub004/internal/inventory"
)

// PaymentClient is the external payment gateway contract. Capture itself is
// delegated; the orchestrator only consumes the outcome.
type PaymentClient interface {
	Charge(ctx context.Context, amount float64, currency string, customer *domain.CustomerInfo) (*ChargeResult, error)
}

type ChargeResult struct {
	PaymentID string
	Succeeded bool
	Reason    string
}

// Result is the display-only completion output.
type Result struct {
	OrderNumber string  `json:"order_number"`
	Total       float64 `json:"total"`
}

// Orchestrator owns one checkout Flow per browser session. Flows are
// session-lifetime state, dropped on completion.
type Orchestrator struct {
	carts    cart.Store
	checker  inventory.FulfillmentChecker
	resolver *address.Resolver
	payment  PaymentClient
	log      *logrus.Entry

	mu    sync.Mutex
	flows map[string]*Flow
}

func NewOrchestrator(carts cart.Store, checker inventory.FulfillmentChecker, resolver *address.Resolver, payment PaymentClient, log *logrus.Entry) *Orchestrator {
	return &Orchestrator{
		carts:    carts,
		checker:  checker,
		resolver: resolver,
		payment:  payment,
		log:      log,
		flows:    make(map[string]*Flow),
	}
}

// Flow returns the checkout flow for a session, creating it on first use.
func (o *Orchestrator) Flow(sessionID string) *Flow {
	o.mu.Lock()
	defer o.mu.Unlock()
	if flow, ok := o.flows[sessionID]; ok {
		return flow
	}

	flow := &Flow{
		sessionID:  sessionID,
		stage:      domain.StageStarted,
		carts:      o.carts,
		reconciler: cart.NewReconciler(o.carts, o.log.WithField("session_id", sessionID)),
		gate:       inventory.NewGate(o.checker, o.log.WithField("session_id", sessionID)),
		resolver:   o.resolver,
		payment:    o.payment,
		log:        o.log.WithField("session_id", sessionID),
	}
	o.flows[sessionID] = flow
	return flow
}

// Drop discards a finished or abandoned flow.
func (o *Orchestrator) Drop(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.flows, sessionID)
}
