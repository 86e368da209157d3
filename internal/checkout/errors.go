package checkout

import "errors"

var (
	ErrEmptyCart         = errors.New("cart is empty, nothing to checkout")
	ErrIllegalStage      = errors.New("illegal checkout stage transition")
	ErrMergePending      = errors.New("cart conflict must be resolved first")
	ErrNoMergeNeeded     = errors.New("no cart conflict is pending")
	ErrIncompleteAddress = errors.New("shipping address is incomplete")
)
