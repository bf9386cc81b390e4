package domain

import "time"

// WishlistItem is a saved product. Wishlist membership is keyed by product
// id only, sizes do not apply here.
type WishlistItem struct {
	Product Product   `bson:"product" json:"product"`
	AddedAt time.Time `bson:"added_at" json:"addedAt"`
}

type Wishlist struct {
	ID          string         `bson:"_id,omitempty" json:"id,omitempty"`
	IdentityKey string         `bson:"identity_key" json:"identityKey"`
	Items       []WishlistItem `bson:"items" json:"items"`
	CreatedAt   time.Time      `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time      `bson:"updated_at" json:"updatedAt"`
}

func (w *Wishlist) Contains(productID string) bool {
	for _, item := range w.Items {
		if item.Product.ID == productID {
			return true
		}
	}
	return false
}
