package checkout

import "errors"

var (
	ErrEmptyCart          = errors.New("cart is empty, nothing to checkout")
	ErrAuthRequired       = errors.New("checkout requires an authenticated user")
	ErrSessionNotFound    = errors.New("checkout session not found")
	ErrIllegalTransition  = errors.New("illegal transition of checkout status")
	ErrInvalidForm        = errors.New("shipping details are incomplete or invalid")
	ErrLookupInFlight     = errors.New("pincode lookup still in flight")
	ErrPaymentNotVerified = errors.New("payment could not be verified")
)
