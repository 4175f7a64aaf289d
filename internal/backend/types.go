package backend

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/cartsync/internal/domain"
)

// Product is a catalog record as served by /products/{id} and embedded in
// cart and favorite lines.
type Product struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Images   []string        `json:"images,omitempty"`
	ImageURL string          `json:"image_url,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category,omitempty"`
	Rating   float64         `json:"rating,omitempty"`
	Stock    int             `json:"stock"`
	Status   string          `json:"status,omitempty"`
}

// Summary converts a catalog record into display data. A nil product
// yields nil.
func (p *Product) Summary() *domain.ProductSummary {
	if p == nil {
		return nil
	}
	images := make([]string, 0, len(p.Images)+1)
	for _, img := range p.Images {
		if img != "" {
			images = append(images, img)
		}
	}
	if p.ImageURL != "" && len(images) == 0 {
		images = append(images, p.ImageURL)
	}
	return &domain.ProductSummary{
		ID:       p.ID,
		Name:     p.Name,
		Images:   images,
		Price:    p.Price,
		Category: p.Category,
		Rating:   p.Rating,
	}
}

// AuthCart is the authenticated cart shape.
type AuthCart struct {
	ID              string           `json:"id"`
	UserID          string           `json:"user_id"`
	Items           []AuthCartItem   `json:"items"`
	TotalItems      int              `json:"total_items"`
	TotalPrice      decimal.Decimal  `json:"total_price"`
	DiscountAmount  decimal.Decimal  `json:"discount_amount"`
	DiscountedTotal *decimal.Decimal `json:"discounted_total,omitempty"`
	CouponCode      string           `json:"coupon_code,omitempty"`
}

type AuthCartItem struct {
	ID         string          `json:"id"`
	ProductID  string          `json:"product_id"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Product    *Product        `json:"product,omitempty"`
}

// GuestCart is the session-scoped cart shape. It has no discount fields.
type GuestCart struct {
	SessionID   string          `json:"session_id"`
	Items       []GuestCartItem `json:"items"`
	TotalItems  int             `json:"total_items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

type GuestCartItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Product   *Product        `json:"product,omitempty"`
}

// CartSummary is returned by GET /cart/summary.
type CartSummary struct {
	TotalItems      int              `json:"total_items"`
	ItemCount       int              `json:"item_count"`
	TotalPrice      decimal.Decimal  `json:"total_price"`
	DiscountAmount  decimal.Decimal  `json:"discount_amount"`
	DiscountedTotal *decimal.Decimal `json:"discounted_total,omitempty"`
	CouponCode      string           `json:"coupon_code,omitempty"`
}

// CartCount is returned by GET /cart/count.
type CartCount struct {
	Count int `json:"count"`
}

// Validation is returned by GET /cart/validate.
type Validation struct {
	Valid  bool              `json:"valid"`
	Issues []ValidationIssue `json:"issues,omitempty"`
}

type ValidationIssue struct {
	ProductID string `json:"product_id"`
	Reason    string `json:"reason"`
	Available int    `json:"available,omitempty"`
}

type Favorite struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	CreatedAt time.Time `json:"created_at"`
	Product   *Product  `json:"product,omitempty"`
}

type FavoriteList struct {
	Items []Favorite `json:"items"`
	Count int        `json:"count"`
}

type FavoriteCheck struct {
	IsFavorite bool `json:"is_favorite"`
}

// Request bodies. Validation tags are enforced by the reference server.

type AddItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"min=1,max=99"`
}

type UpdateQuantityRequest struct {
	Quantity int `json:"quantity" validate:"min=1,max=99"`
}

type CouponRequest struct {
	CouponCode string `json:"coupon_code" validate:"required,max=64"`
}

type FavoriteRequest struct {
	ProductID string `json:"product_id" validate:"required"`
}
