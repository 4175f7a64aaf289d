package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Quantity bounds for a stored cart line.
const (
	MinQuantity = 1
	MaxQuantity = 99
)

// ValidateQuantity reports whether q can be stored on a cart line.
func ValidateQuantity(q int) bool {
	return q >= MinQuantity && q <= MaxQuantity
}

// CheckQuantity returns a ValidationError when q is outside [MinQuantity, MaxQuantity].
func CheckQuantity(op string, q int) error {
	if ValidateQuantity(q) {
		return nil
	}
	return NewValidationError(op, "quantity", fmt.Sprintf("must be between %d and %d, got %d", MinQuantity, MaxQuantity, q))
}

// IdentityKind tags which backend owns a cart.
type IdentityKind string

const (
	IdentityGuest         IdentityKind = "guest"
	IdentityAuthenticated IdentityKind = "authenticated"
)

// Identity is the shopper a cart belongs to. SessionID is set for guests,
// UserID for authenticated shoppers when the backend reports it.
type Identity struct {
	Kind      IdentityKind `json:"kind"`
	SessionID string       `json:"session_id,omitempty"`
	UserID    string       `json:"user_id,omitempty"`
}

// ProductSummary is denormalized display data for a product. It is never
// authoritative; ID always resolves back to the catalog.
type ProductSummary struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Images   []string        `json:"images,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category,omitempty"`
	Rating   float64         `json:"rating,omitempty"`
}

// HasDisplayData reports whether the summary can be rendered without a
// catalog lookup.
func (p *ProductSummary) HasDisplayData() bool {
	if p == nil {
		return false
	}
	for _, img := range p.Images {
		if img != "" {
			return true
		}
	}
	return false
}

// ProductRef points at a product from a cart or wishlist line.
type ProductRef struct {
	ProductID string
	Product   *ProductSummary
}

// CartLine is one product in a cart.
type CartLine struct {
	ID         string          `json:"id"`
	ProductID  string          `json:"product_id"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Product    *ProductSummary `json:"product,omitempty"`
}

// Cart is the identity-agnostic view of a shopping cart. Lines keep
// insertion order.
type Cart struct {
	ID              string           `json:"id,omitempty"`
	Identity        Identity         `json:"identity"`
	Lines           []CartLine       `json:"lines"`
	TotalItems      int              `json:"total_items"`
	TotalPrice      decimal.Decimal  `json:"total_price"`
	DiscountAmount  decimal.Decimal  `json:"discount_amount"`
	DiscountedTotal *decimal.Decimal `json:"discounted_total,omitempty"`
	CouponCode      string           `json:"coupon_code,omitempty"`
	FetchedAt       time.Time        `json:"fetched_at"`
}

// EmptyCart returns a cart with no lines for the given identity.
func EmptyCart(id Identity) *Cart {
	return &Cart{Identity: id, Lines: []CartLine{}}
}

// Line returns the line for productID, if present.
func (c *Cart) Line(productID string) (*CartLine, bool) {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			return &c.Lines[i], true
		}
	}
	return nil, false
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Lines) == 0
}

// Recalculate normalizes lines and derives TotalItems and TotalPrice from them.
func (c *Cart) Recalculate() {
	c.Lines = NormalizeLines(c.Lines)
	total := decimal.Zero
	items := 0
	for _, l := range c.Lines {
		items += l.Quantity
		total = total.Add(l.TotalPrice)
	}
	c.TotalItems = items
	c.TotalPrice = total
}

// EffectiveTotal is what the shopper would pay: the discounted total when a
// discount applies, otherwise the plain total.
func (c *Cart) EffectiveTotal() decimal.Decimal {
	if c.DiscountedTotal != nil {
		return *c.DiscountedTotal
	}
	return c.TotalPrice
}

// ProductRefs lists the products referenced by the cart's lines.
func (c *Cart) ProductRefs() []ProductRef {
	refs := make([]ProductRef, 0, len(c.Lines))
	for _, l := range c.Lines {
		refs = append(refs, ProductRef{ProductID: l.ProductID, Product: l.Product})
	}
	return refs
}

// Summary derives the read-only summary view.
func (c *Cart) Summary() Summary {
	return Summary{
		TotalItems:      c.TotalItems,
		LineCount:       len(c.Lines),
		TotalPrice:      c.TotalPrice,
		DiscountAmount:  c.DiscountAmount,
		DiscountedTotal: c.DiscountedTotal,
		CouponCode:      c.CouponCode,
	}
}

// NormalizeLines enforces line invariants: one line per product (duplicates
// are merged and clamped to MaxQuantity), no lines with quantity <= 0, and
// TotalPrice = UnitPrice × Quantity. Order of first appearance is kept.
func NormalizeLines(lines []CartLine) []CartLine {
	out := make([]CartLine, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		if i, ok := index[l.ProductID]; ok {
			out[i].Quantity = min(out[i].Quantity+l.Quantity, MaxQuantity)
			if out[i].Product == nil {
				out[i].Product = l.Product
			}
			continue
		}
		l.Quantity = min(l.Quantity, MaxQuantity)
		index[l.ProductID] = len(out)
		out = append(out, l)
	}
	for i := range out {
		out[i].TotalPrice = out[i].UnitPrice.Mul(decimal.NewFromInt(int64(out[i].Quantity)))
	}
	return out
}

// Summary is the derived totals view of a cart.
type Summary struct {
	TotalItems      int              `json:"total_items"`
	LineCount       int              `json:"line_count"`
	TotalPrice      decimal.Decimal  `json:"total_price"`
	DiscountAmount  decimal.Decimal  `json:"discount_amount"`
	DiscountedTotal *decimal.Decimal `json:"discounted_total,omitempty"`
	CouponCode      string           `json:"coupon_code,omitempty"`
}

// EffectiveTotal is the discounted total when a discount applies, otherwise
// the plain total.
func (s Summary) EffectiveTotal() decimal.Decimal {
	if s.DiscountedTotal != nil {
		return *s.DiscountedTotal
	}
	return s.TotalPrice
}

// ValidationIssue is a problem the backend found with a cart line at
// checkout-validation time.
type ValidationIssue struct {
	ProductID string `json:"product_id"`
	Reason    string `json:"reason"`
	Available int    `json:"available,omitempty"`
}

// CartValidation is the result of validating a cart against the catalog.
type CartValidation struct {
	Valid  bool              `json:"valid"`
	Issues []ValidationIssue `json:"issues,omitempty"`
}
