package domain

// Stage is the checkout flow position. Stages advance strictly forward;
// a failed stage re-enters itself rather than advancing.
type Stage string

const (
	StageStarted            Stage = "STARTED"
	StageEmptyCart          Stage = "EMPTY_CART"
	StageIdentityResolved   Stage = "IDENTITY_RESOLVED"
	StageCartReconciled     Stage = "CART_RECONCILED"
	StageAddressReady       Stage = "ADDRESS_READY"
	StageInventoryConfirmed Stage = "INVENTORY_CONFIRMED"
	StagePaymentCaptured    Stage = "PAYMENT_CAPTURED"
	StageComplete           Stage = "COMPLETE"
)

var stageTransitions = map[Stage][]Stage{
	StageStarted:            {StageEmptyCart, StageIdentityResolved},
	StageIdentityResolved:   {StageCartReconciled},
	StageCartReconciled:     {StageAddressReady},
	StageAddressReady:       {StageInventoryConfirmed},
	StageInventoryConfirmed: {StagePaymentCaptured},
	StagePaymentCaptured:    {StageComplete},
}

func CanTransitionTo(from, to Stage) bool {
	for _, next := range stageTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Stage) IsTerminal() bool {
	return s == StageComplete || s == StageEmptyCart
}

// String representation (for logging)
func (s Stage) String() string {
	return string(s)
}
