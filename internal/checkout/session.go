package checkout

import (
	"time"

	"github.com/styl6559/storefront/internal/domain"
)

// SnapshotItem is one cart line with its price captured at checkout time.
type SnapshotItem struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	Size        string  `json:"size,omitempty"`
	UnitPrice   float64 `json:"unit_price"`
	Subtotal    float64 `json:"subtotal"`
}

// CartSnapshot is the full cart state frozen when the checkout began.
// Totals are filled in when the buyer submits shipping details.
type CartSnapshot struct {
	Items      []SnapshotItem `json:"items"`
	Subtotal   float64        `json:"subtotal"`
	Tax        float64        `json:"tax"`
	Total      float64        `json:"total"`
	Currency   string         `json:"currency"`
	CapturedAt time.Time      `json:"captured_at"`
}

// LineRefs lists the (product, size) pairs the snapshot covers, for
// removing exactly the checked-out lines after a successful payment.
func (s *CartSnapshot) LineRefs() []domain.LineRef {
	refs := make([]domain.LineRef, 0, len(s.Items))
	for _, item := range s.Items {
		refs = append(refs, domain.LineRef{ProductID: item.ProductID, Size: item.Size})
	}
	return refs
}

func snapshotFromItems(items []domain.CartItem, now time.Time) *CartSnapshot {
	snapshot := &CartSnapshot{
		Items:      make([]SnapshotItem, 0, len(items)),
		Currency:   defaultCurrency,
		CapturedAt: now,
	}
	for _, item := range items {
		unit := item.Product.EffectivePrice()
		snapshot.Items = append(snapshot.Items, SnapshotItem{
			ProductID:   item.Product.ID,
			ProductName: item.Product.Name,
			Quantity:    item.Quantity,
			Size:        item.Size,
			UnitPrice:   unit,
			Subtotal:    unit * float64(item.Quantity),
		})
	}
	return snapshot
}

// Session is one buyer's checkout attempt, persisted across the flow.
type Session struct {
	ID               string
	UserID           string
	IdempotencyKey   string
	Status           Status
	Snapshot         *CartSnapshot
	RemovedItemNames []string
	ShippingAddress  *domain.ShippingAddress
	OrderID          string
	PaymentID        string
	FailureReason    string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
