package checkout

// Status is the stage a checkout session is in. The flow moves strictly
// forward except for the documented retry edges out of the failure and
// cancellation stages.
type Status string

const (
	StatusReviewingCart           Status = "REVIEWING_CART"
	StatusValidatingStock         Status = "VALIDATING_STOCK"
	StatusConfirmingRemovedItems  Status = "CONFIRMING_REMOVED_ITEMS"
	StatusEnteringShippingDetails Status = "ENTERING_SHIPPING_DETAILS"
	StatusSubmittingOrder         Status = "SUBMITTING_ORDER"
	StatusAwaitingPayment         Status = "AWAITING_PAYMENT"
	StatusPaymentSucceeded        Status = "PAYMENT_SUCCEEDED"
	StatusPaymentFailed           Status = "PAYMENT_FAILED"
	StatusPaymentCancelled        Status = "PAYMENT_CANCELLED"
)

var validTransitions = map[Status][]Status{
	StatusReviewingCart:           {StatusValidatingStock, StatusPaymentCancelled},
	StatusValidatingStock:         {StatusConfirmingRemovedItems, StatusEnteringShippingDetails, StatusPaymentCancelled},
	StatusConfirmingRemovedItems:  {StatusEnteringShippingDetails, StatusPaymentCancelled},
	StatusEnteringShippingDetails: {StatusSubmittingOrder, StatusPaymentCancelled},
	StatusSubmittingOrder:         {StatusAwaitingPayment, StatusEnteringShippingDetails, StatusPaymentCancelled},
	StatusAwaitingPayment:         {StatusPaymentSucceeded, StatusPaymentFailed, StatusPaymentCancelled},
	StatusPaymentSucceeded:        {},
	StatusPaymentFailed:           {StatusSubmittingOrder, StatusEnteringShippingDetails},
	StatusPaymentCancelled:        {StatusSubmittingOrder, StatusEnteringShippingDetails},
}

func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible. Failed
// and cancelled payments are not terminal: the buyer may retry.
func (s Status) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

func (s Status) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}
