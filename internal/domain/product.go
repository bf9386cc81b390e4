package domain

import "time"

type Product struct {
	ID            string    `bson:"_id" json:"id"`
	Name          string    `bson:"name" json:"name"`
	Description   string    `bson:"description" json:"description"`
	Price         float64   `bson:"price" json:"price"`
	DiscountPrice float64   `bson:"discount_price" json:"discountPrice,omitempty"`
	InStock       bool      `bson:"in_stock" json:"inStock"`
	Category      string    `bson:"category" json:"category"`
	ImageURL      string    `bson:"image_url" json:"imageUrl"`
	CreatedAt     time.Time `bson:"created_at" json:"createdAt"`
}

// EffectivePrice returns the discount price when one is set and strictly
// lower than the list price, otherwise the list price.
func (p Product) EffectivePrice() float64 {
	if p.DiscountPrice > 0 && p.DiscountPrice < p.Price {
		return p.DiscountPrice
	}
	return p.Price
}
