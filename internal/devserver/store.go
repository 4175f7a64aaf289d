package devserver

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dukerupert/cartsync/internal/backend"
	"github.com/dukerupert/cartsync/internal/domain"
)

// couponRates maps accepted coupon codes to their discount rate.
var couponRates = map[string]decimal.Decimal{
	"SAVE10": decimal.NewFromFloat(0.10),
}

type cartState struct {
	lines  []domain.CartLine
	coupon string
}

func (c *cartState) line(productID string) (int, bool) {
	for i := range c.lines {
		if c.lines[i].ProductID == productID {
			return i, true
		}
	}
	return -1, false
}

// Store is the devserver's in-memory state: the catalog, one cart per user,
// one cart per guest session and one favorites list per user.
type Store struct {
	mu        sync.Mutex
	now       func() time.Time
	products  map[string]backend.Product
	users     map[string]*cartState
	guests    map[string]*cartState
	favorites map[string][]backend.Favorite
}

func newStore(catalog []backend.Product, now func() time.Time) *Store {
	s := &Store{
		now:       now,
		products:  make(map[string]backend.Product, len(catalog)),
		users:     make(map[string]*cartState),
		guests:    make(map[string]*cartState),
		favorites: make(map[string][]backend.Favorite),
	}
	for _, p := range catalog {
		s.products[p.ID] = p
	}
	return s
}

// SetStock changes a product's stock level.
func (s *Store) SetStock(productID string, stock int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.products[productID]; ok {
		p.Stock = stock
		s.products[productID] = p
	}
}

// Product returns a catalog record.
func (s *Store) Product(id string) (backend.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return backend.Product{}, domain.NotFound("products.get", "product", id)
	}
	return p, nil
}

func (s *Store) cart(userID, sessionID string) *cartState {
	carts, key := s.users, userID
	if userID == "" {
		carts, key = s.guests, sessionID
	}
	c, ok := carts[key]
	if !ok {
		c = &cartState{}
		carts[key] = c
	}
	return c
}

// checkAvailable enforces catalog rules for holding quantity of productID.
func (s *Store) checkAvailable(op, productID string, quantity int) (backend.Product, error) {
	p, ok := s.products[productID]
	if !ok {
		return p, domain.NotFound(op, "product", productID)
	}
	if quantity > domain.MaxQuantity {
		return p, domain.NewValidationError(op, "quantity", fmt.Sprintf("cannot exceed %d", domain.MaxQuantity))
	}
	if p.Status == StatusComingSoon {
		return p, &domain.Error{Code: domain.ECOMINGSOON, Op: op, Message: fmt.Sprintf("Product %s is coming soon", p.Name)}
	}
	if p.Stock <= 0 || quantity > p.Stock {
		return p, &domain.Error{Code: domain.EOUTOFSTOCK, Op: op, Message: fmt.Sprintf("Product %s is out of stock (%d available)", p.Name, p.Stock)}
	}
	return p, nil
}

// Seed sets a line directly, bypassing stock checks. An empty userID seeds
// the guest cart of sessionID. Quantity is clamped to the valid range.
func (s *Store) Seed(userID, sessionID, productID string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	quantity = max(domain.MinQuantity, min(quantity, domain.MaxQuantity))
	c := s.cart(userID, sessionID)
	if i, ok := c.line(productID); ok {
		c.lines[i].Quantity = quantity
		return
	}
	c.lines = append(c.lines, domain.CartLine{
		ID:        uuid.NewString(),
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: s.products[productID].Price,
	})
}

// AddItem adds quantity of productID, merging into an existing line.
func (s *Store) AddItem(userID, sessionID, productID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.cart(userID, sessionID)
	total := quantity
	i, exists := c.line(productID)
	if exists {
		total += c.lines[i].Quantity
	}

	p, err := s.checkAvailable("cart.add_item", productID, total)
	if err != nil {
		return err
	}

	if exists {
		c.lines[i].Quantity = total
		return nil
	}
	c.lines = append(c.lines, domain.CartLine{
		ID:        uuid.NewString(),
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: p.Price,
	})
	return nil
}

// SetQuantity replaces a line's quantity.
func (s *Store) SetQuantity(userID, sessionID, productID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.cart(userID, sessionID)
	i, ok := c.line(productID)
	if !ok {
		return domain.NotFound("cart.update_item", "cart item", productID)
	}
	if _, err := s.checkAvailable("cart.update_item", productID, quantity); err != nil {
		return err
	}
	c.lines[i].Quantity = quantity
	return nil
}

// Step moves a line's quantity by delta atomically. Reaching zero removes
// the line.
func (s *Store) Step(userID, sessionID, productID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.cart(userID, sessionID)
	i, ok := c.line(productID)
	if !ok {
		return domain.NotFound("cart.step_item", "cart item", productID)
	}

	next := c.lines[i].Quantity + delta
	if next <= 0 {
		c.lines = slices.Delete(c.lines, i, i+1)
		return nil
	}
	if delta > 0 {
		if _, err := s.checkAvailable("cart.increment_item", productID, next); err != nil {
			return err
		}
	}
	c.lines[i].Quantity = next
	return nil
}

// RemoveItem deletes a line.
func (s *Store) RemoveItem(userID, sessionID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.cart(userID, sessionID)
	i, ok := c.line(productID)
	if !ok {
		return domain.NotFound("cart.remove_item", "cart item", productID)
	}
	c.lines = slices.Delete(c.lines, i, i+1)
	return nil
}

// ApplyCoupon sets the user's coupon.
func (s *Store) ApplyCoupon(userID, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	code = strings.ToUpper(strings.TrimSpace(code))
	if _, ok := couponRates[code]; !ok {
		return domain.Errorf(domain.EINVALID, "cart.apply_coupon", "Coupon %q is not valid", code)
	}
	s.cart(userID, "").coupon = code
	return nil
}

func (s *Store) RemoveCoupon(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cart(userID, "").coupon = ""
}

// Migrate merges the guest session's lines into the user's cart, summing
// quantities per product and clamping at the maximum, then deletes the
// guest cart.
func (s *Store) Migrate(userID, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	guest, ok := s.guests[sessionID]
	if !ok {
		return
	}
	user := s.cart(userID, "")
	for _, gl := range guest.lines {
		if i, ok := user.line(gl.ProductID); ok {
			user.lines[i].Quantity = min(user.lines[i].Quantity+gl.Quantity, domain.MaxQuantity)
			continue
		}
		gl.ID = uuid.NewString()
		user.lines = append(user.lines, gl)
	}
	delete(s.guests, sessionID)
}

// AuthCart renders the user's cart in the authenticated shape.
func (s *Store) AuthCart(userID string) backend.AuthCart {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.cart(userID, "")
	view := domain.Cart{ID: "cart-" + userID, Lines: slices.Clone(c.lines)}
	view.Recalculate()

	out := backend.AuthCart{
		ID:         view.ID,
		UserID:     userID,
		Items:      make([]backend.AuthCartItem, 0, len(view.Lines)),
		TotalItems: view.TotalItems,
		TotalPrice: view.TotalPrice,
		CouponCode: c.coupon,
	}
	for _, l := range view.Lines {
		item := backend.AuthCartItem{
			ID:         l.ID,
			ProductID:  l.ProductID,
			Quantity:   l.Quantity,
			UnitPrice:  l.UnitPrice,
			TotalPrice: l.TotalPrice,
		}
		if p, ok := s.products[l.ProductID]; ok {
			item.Product = &p
		}
		out.Items = append(out.Items, item)
	}
	if rate, ok := couponRates[c.coupon]; ok {
		out.DiscountAmount = view.TotalPrice.Mul(rate).Round(2)
		discounted := view.TotalPrice.Sub(out.DiscountAmount)
		out.DiscountedTotal = &discounted
	}
	return out
}

// GuestCart renders a session's cart in the guest shape. Guest lines do not
// embed product records.
func (s *Store) GuestCart(sessionID string) backend.GuestCart {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.cart("", sessionID)
	view := domain.Cart{Lines: slices.Clone(c.lines)}
	view.Recalculate()

	out := backend.GuestCart{
		SessionID:   sessionID,
		Items:       make([]backend.GuestCartItem, 0, len(view.Lines)),
		TotalItems:  view.TotalItems,
		TotalAmount: view.TotalPrice,
	}
	for _, l := range view.Lines {
		out.Items = append(out.Items, backend.GuestCartItem{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Price:     l.UnitPrice,
		})
	}
	return out
}

// Validate checks every line against the current catalog.
func (s *Store) Validate(userID, sessionID string) backend.Validation {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := backend.Validation{Valid: true}
	for _, l := range s.cart(userID, sessionID).lines {
		p, ok := s.products[l.ProductID]
		switch {
		case !ok:
			v.Issues = append(v.Issues, backend.ValidationIssue{ProductID: l.ProductID, Reason: "not_found"})
		case p.Status == StatusComingSoon:
			v.Issues = append(v.Issues, backend.ValidationIssue{ProductID: l.ProductID, Reason: backend.ReasonComingSoon})
		case l.Quantity > p.Stock:
			v.Issues = append(v.Issues, backend.ValidationIssue{ProductID: l.ProductID, Reason: backend.ReasonOutOfStock, Available: p.Stock})
		}
	}
	v.Valid = len(v.Issues) == 0
	return v
}

// Favorites returns a user's saved products, oldest first.
func (s *Store) Favorites(userID string) backend.FavoriteList {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := slices.Clone(s.favorites[userID])
	for i := range items {
		if p, ok := s.products[items[i].ProductID]; ok {
			items[i].Product = &p
		}
	}
	if items == nil {
		items = []backend.Favorite{}
	}
	return backend.FavoriteList{Items: items, Count: len(items)}
}

// AddFavorite saves productID. Saving twice is a no-op.
func (s *Store) AddFavorite(userID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[productID]; !ok {
		return domain.NotFound("favorites.add", "product", productID)
	}
	for _, f := range s.favorites[userID] {
		if f.ProductID == productID {
			return nil
		}
	}
	s.favorites[userID] = append(s.favorites[userID], backend.Favorite{
		ID:        uuid.NewString(),
		ProductID: productID,
		CreatedAt: s.now().UTC(),
	})
	return nil
}

func (s *Store) RemoveFavorite(userID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	favs := s.favorites[userID]
	for i, f := range favs {
		if f.ProductID == productID {
			s.favorites[userID] = slices.Delete(favs, i, i+1)
			return nil
		}
	}
	return domain.NotFound("favorites.remove", "favorite", productID)
}

func (s *Store) IsFavorite(userID, productID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.favorites[userID] {
		if f.ProductID == productID {
			return true
		}
	}
	return false
}
