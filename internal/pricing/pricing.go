package pricing

import (
	"context"
	"fmt"
	"math"

	"dryclean/internal/errs"
	"dryclean/internal/models"
)

const (
	// TaxRate is the flat 5% GST applied to the order subtotal.
	TaxRate = 0.05
	// Orders at or above FreeDeliveryThreshold ship free; below it the
	// flat DeliveryFee applies.
	FreeDeliveryThreshold = 500.00
	DeliveryFee           = 50.00
)

// CatalogReader is the read-only catalog lookup surface the engine prices
// against. Implementations return errs.ErrNotFound for missing or
// inactive records; FindRule returns (nil, nil) when no rule matches.
type CatalogReader interface {
	ServiceByID(ctx context.Context, id string) (*models.Service, error)
	VariantByID(ctx context.Context, id string) (*models.ServiceVariant, error)
	FindRule(ctx context.Context, serviceID string, variantID *string, quantity int) (*models.PricingRule, error)
}

// Quote is the result of pricing one (service, variant, quantity) line.
// UnitPrice is always the pre-rule unit price; when a bulk rule matches,
// only TotalPrice reflects it. Callers that want an effective per-unit
// figure for display can divide TotalPrice by Quantity themselves.
type Quote struct {
	UnitPrice   float64
	TotalPrice  float64
	RuleID      string
	ServiceName string
	VariantName string
}

type Engine struct {
	catalog CatalogReader
}

func NewEngine(catalog CatalogReader) *Engine {
	return &Engine{catalog: catalog}
}

// RoundMoney rounds to two decimal places. Every computed amount passes
// through here before being stored or compared.
func RoundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

// Totals applies the order-level tax and delivery-fee rules to a subtotal.
func Totals(subtotal float64) (tax, deliveryFee, total float64) {
	subtotal = RoundMoney(subtotal)
	tax = RoundMoney(subtotal * TaxRate)
	if subtotal >= FreeDeliveryThreshold {
		deliveryFee = 0
	} else {
		deliveryFee = DeliveryFee
	}
	total = RoundMoney(subtotal + tax + deliveryFee)
	return tax, deliveryFee, total
}

// Quote prices a single line. The unit price starts from the service base
// price (or the variant's final price), and an active pricing rule whose
// quantity band contains the quantity overrides the line total only.
func (e *Engine) Quote(ctx context.Context, serviceID string, variantID *string, quantity int) (*Quote, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive, got %d", errs.ErrValidation, quantity)
	}

	svc, err := e.catalog.ServiceByID(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("service %s: %w", serviceID, err)
	}

	q := &Quote{
		UnitPrice:   svc.BasePrice,
		ServiceName: svc.Name,
	}

	if variantID != nil && *variantID != "" {
		variant, err := e.catalog.VariantByID(ctx, *variantID)
		if err != nil {
			return nil, fmt.Errorf("variant %s: %w", *variantID, err)
		}
		if variant.ServiceID != svc.ID {
			return nil, fmt.Errorf("%w: variant %s does not belong to service %s", errs.ErrNotFound, *variantID, serviceID)
		}
		q.UnitPrice = variant.FinalPrice(svc)
		q.VariantName = variant.Name
		if q.UnitPrice < 0 {
			return nil, fmt.Errorf("%w: variant %s final price is negative", errs.ErrValidation, *variantID)
		}
	}

	q.UnitPrice = RoundMoney(q.UnitPrice)
	q.TotalPrice = RoundMoney(q.UnitPrice * float64(quantity))

	rule, err := e.catalog.FindRule(ctx, serviceID, variantID, quantity)
	if err != nil {
		return nil, fmt.Errorf("pricing rule lookup for service %s: %w", serviceID, err)
	}
	if rule != nil {
		q.TotalPrice = RoundMoney(rule.PricePerUnit * float64(quantity))
		q.RuleID = rule.ID
	}

	return q, nil
}

// EstimateBulk prices a set of lines and applies the order-level tax and
// delivery-fee rules to the summed subtotal.
func (e *Engine) EstimateBulk(ctx context.Context, items []models.EstimateItem) (*models.BulkEstimate, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", errs.ErrValidation)
	}

	estimate := &models.BulkEstimate{Items: make([]models.EstimateLine, 0, len(items))}
	for _, item := range items {
		q, err := e.Quote(ctx, item.ServiceID, item.VariantID, item.Quantity)
		if err != nil {
			return nil, err
		}
		estimate.Items = append(estimate.Items, models.EstimateLine{
			ServiceID:   item.ServiceID,
			VariantID:   item.VariantID,
			Quantity:    item.Quantity,
			UnitPrice:   q.UnitPrice,
			TotalPrice:  q.TotalPrice,
			ServiceName: q.ServiceName,
			VariantName: q.VariantName,
			RuleID:      q.RuleID,
		})
		estimate.Subtotal = RoundMoney(estimate.Subtotal + q.TotalPrice)
	}

	estimate.Tax, estimate.DeliveryFee, estimate.TotalAmount = Totals(estimate.Subtotal)
	return estimate, nil
}
