package devserver

import (
	"github.com/shopspring/decimal"

	"github.com/dukerupert/cartsync/internal/backend"
)

// Product statuses.
const (
	StatusActive     = "active"
	StatusComingSoon = "coming_soon"
)

// DefaultCatalog is the product set served when no catalog is configured.
func DefaultCatalog() []backend.Product {
	return []backend.Product{
		{
			ID:       "espresso-blend",
			Name:     "Espresso Blend 1kg",
			Images:   []string{"/img/espresso-blend.jpg"},
			Price:    decimal.RequireFromString("24.50"),
			Category: "coffee",
			Rating:   4.7,
			Stock:    120,
			Status:   StatusActive,
		},
		{
			ID:       "hand-grinder",
			Name:     "Hand Grinder",
			Images:   []string{"/img/hand-grinder.jpg", "/img/hand-grinder-open.jpg"},
			Price:    decimal.RequireFromString("89.00"),
			Category: "equipment",
			Rating:   4.5,
			Stock:    5,
			Status:   StatusActive,
		},
		{
			ID:       "gooseneck-kettle",
			Name:     "Gooseneck Kettle",
			Images:   []string{"/img/kettle.jpg"},
			Price:    decimal.RequireFromString("54.99"),
			Category: "equipment",
			Rating:   4.2,
			Stock:    0,
			Status:   StatusActive,
		},
		{
			ID:       "ceramic-dripper",
			Name:     "Ceramic Dripper",
			Images:   []string{"/img/dripper.jpg"},
			Price:    decimal.RequireFromString("32.00"),
			Category: "equipment",
			Stock:    40,
			Status:   StatusComingSoon,
		},
		{
			ID:       "paper-filters",
			Name:     "Paper Filters (100)",
			ImageURL: "/img/filters.jpg",
			Price:    decimal.RequireFromString("6.25"),
			Category: "supplies",
			Rating:   4.9,
			Stock:    1000,
			Status:   StatusActive,
		},
		{
			ID:       "travel-mug",
			Name:     "Travel Mug",
			Images:   []string{"/img/travel-mug.jpg"},
			Price:    decimal.RequireFromString("18.00"),
			Category: "accessories",
			Rating:   4.1,
			Stock:    300,
			Status:   StatusActive,
		},
	}
}
