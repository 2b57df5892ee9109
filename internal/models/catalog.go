package models

import (
	"time"

	"github.com/uptrace/bun"
)

type ServiceCategory struct {
	bun.BaseModel `bun:"table:service_categories"`

	ID          string    `json:"id" bun:"id,pk"`
	Name        string    `json:"name" bun:"name"`
	Description string    `json:"description,omitempty" bun:"description,nullzero"`
	Icon        string    `json:"icon,omitempty" bun:"icon,nullzero"`
	IsActive    bool      `json:"is_active" bun:"is_active"`
	SortOrder   int       `json:"sort_order" bun:"sort_order"`
	CreatedAt   time.Time `json:"created_at" bun:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" bun:"updated_at"`
}

type Service struct {
	bun.BaseModel `bun:"table:services"`

	ID          string  `json:"id" bun:"id,pk"`
	CategoryID  string  `json:"category_id" bun:"category_id"`
	Name        string  `json:"name" bun:"name"`
	Description string  `json:"description,omitempty" bun:"description,nullzero"`
	BasePrice   float64 `json:"base_price" bun:"base_price"`
	// Unit is what the price applies to, e.g. "per piece" or "per kg".
	Unit                string    `json:"unit" bun:"unit"`
	EstimatedHours      int       `json:"estimated_hours" bun:"estimated_hours"`
	IsActive            bool      `json:"is_active" bun:"is_active"`
	CreatedAt           time.Time `json:"created_at" bun:"created_at"`
	UpdatedAt           time.Time `json:"updated_at" bun:"updated_at"`
}

// ServiceVariant is a priced variation of a service (e.g. "Silk" on top of
// "Shirt"). PriceModifier is a signed delta on the service base price.
type ServiceVariant struct {
	bun.BaseModel `bun:"table:service_variants"`

	ID            string    `json:"id" bun:"id,pk"`
	ServiceID     string    `json:"service_id" bun:"service_id"`
	Name          string    `json:"name" bun:"name"`
	Description   string    `json:"description,omitempty" bun:"description,nullzero"`
	PriceModifier float64   `json:"price_modifier" bun:"price_modifier"`
	IsActive      bool      `json:"is_active" bun:"is_active"`
	CreatedAt     time.Time `json:"created_at" bun:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" bun:"updated_at"`
}

// FinalPrice is the variant unit price: service base plus the modifier.
func (v *ServiceVariant) FinalPrice(svc *Service) float64 {
	return svc.BasePrice + v.PriceModifier
}

// PricingRule is a bulk-pricing band for a service (optionally narrowed to
// one variant). A nil VariantID means the rule applies to the bare service;
// a nil MaxQuantity means the band is unbounded above.
type PricingRule struct {
	bun.BaseModel `bun:"table:pricing_rules"`

	ID           string  `json:"id" bun:"id,pk"`
	ServiceID    string  `json:"service_id" bun:"service_id"`
	VariantID    *string `json:"variant_id,omitempty" bun:"variant_id,nullzero"`
	Name         string  `json:"name" bun:"name"`
	MinQuantity  int     `json:"min_quantity" bun:"min_quantity"`
	MaxQuantity  *int    `json:"max_quantity,omitempty" bun:"max_quantity,nullzero"`
	PricePerUnit float64 `json:"price_per_unit" bun:"price_per_unit"`

	IsActive  bool      `json:"is_active" bun:"is_active"`
	CreatedAt time.Time `json:"created_at" bun:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bun:"updated_at"`
}

// Matches reports whether qty falls inside the rule's quantity band.
func (r *PricingRule) Matches(qty int) bool {
	if qty < r.MinQuantity {
		return false
	}
	if r.MaxQuantity != nil && qty > *r.MaxQuantity {
		return false
	}
	return true
}

// Overlaps reports whether two quantity bands intersect. Used to keep
// active rules for the same (service, variant) disjoint.
func (r *PricingRule) Overlaps(other *PricingRule) bool {
	if other.MaxQuantity != nil && r.MinQuantity > *other.MaxQuantity {
		return false
	}
	if r.MaxQuantity != nil && other.MinQuantity > *r.MaxQuantity {
		return false
	}
	return true
}

// ---------------- CATALOG DTOs ----------------

type ServiceFilter struct {
	CategoryID string
	Search     string
	Limit      int
	Offset     int
}

type CategoryWithServices struct {
	Category ServiceCategory `json:"category"`
	Services []Service       `json:"services"`
}

type EstimateItem struct {
	ServiceID           string  `json:"service_id"`
	VariantID           *string `json:"variant_id,omitempty"`
	Quantity            int     `json:"quantity"`
	SpecialInstructions string  `json:"special_instructions,omitempty"`
}

type EstimateLine struct {
	ServiceID   string  `json:"service_id"`
	VariantID   *string `json:"variant_id,omitempty"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	TotalPrice  float64 `json:"total_price"`
	ServiceName string  `json:"service_name"`
	VariantName string  `json:"variant_name,omitempty"`
	RuleID      string  `json:"rule_id,omitempty"`
}

type BulkEstimate struct {
	Items       []EstimateLine `json:"items"`
	Subtotal    float64        `json:"subtotal"`
	Tax         float64        `json:"tax"`
	DeliveryFee float64        `json:"delivery_fee"`
	TotalAmount float64        `json:"total_amount"`
}
