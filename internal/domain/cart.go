package domain

import "time"

// CartItem is one line in a cart. Lines are identified by product id plus
// the optional size variant, so the same product in two sizes occupies two
// distinct lines.
type CartItem struct {
	Product  Product   `bson:"product" json:"product"`
	Quantity int       `bson:"quantity" json:"quantity"`
	Size     string    `bson:"size,omitempty" json:"size,omitempty"`
	AddedAt  time.Time `bson:"added_at" json:"addedAt"`
}

// LineRef identifies a cart line without carrying the product snapshot.
type LineRef struct {
	ProductID string `json:"productId"`
	Size      string `json:"size,omitempty"`
}

func (i CartItem) Ref() LineRef {
	return LineRef{ProductID: i.Product.ID, Size: i.Size}
}

type Cart struct {
	ID          string     `bson:"_id,omitempty" json:"id,omitempty"`
	IdentityKey string     `bson:"identity_key" json:"identityKey"`
	Items       []CartItem `bson:"items" json:"items"`
	CreatedAt   time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `bson:"updated_at" json:"updatedAt"`
}

// TotalItems sums quantities across all lines, not the line count.
func (c *Cart) TotalItems() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// TotalPrice sums effective price times quantity over all lines. It is
// computed from the stored snapshots on every call, never cached.
func (c *Cart) TotalPrice() float64 {
	var total float64
	for _, item := range c.Items {
		total += item.Product.EffectivePrice() * float64(item.Quantity)
	}
	return total
}

// FindLine returns the index of the line matching (productID, size), or -1.
func (c *Cart) FindLine(productID, size string) int {
	for i, item := range c.Items {
		if item.Product.ID == productID && item.Size == size {
			return i
		}
	}
	return -1
}
