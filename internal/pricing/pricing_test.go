package pricing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dryclean/internal/errs"
	"dryclean/internal/models"
	"dryclean/internal/pricing"
)

type MockCatalogReader struct {
	mock.Mock
}

func (m *MockCatalogReader) ServiceByID(ctx context.Context, id string) (*models.Service, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Service), args.Error(1)
}

func (m *MockCatalogReader) VariantByID(ctx context.Context, id string) (*models.ServiceVariant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ServiceVariant), args.Error(1)
}

func (m *MockCatalogReader) FindRule(ctx context.Context, serviceID string, variantID *string, quantity int) (*models.PricingRule, error) {
	args := m.Called(ctx, serviceID, variantID, quantity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PricingRule), args.Error(1)
}

func strPtr(s string) *string { return &s }

func TestQuote_BasePlusModifier(t *testing.T) {
	catalog := new(MockCatalogReader)
	engine := pricing.NewEngine(catalog)
	ctx := context.Background()

	svc := &models.Service{ID: "svc-1", Name: "Shirt Wash", BasePrice: 15.00}
	variant := &models.ServiceVariant{ID: "var-1", ServiceID: "svc-1", Name: "Express", PriceModifier: 5.00}

	catalog.On("ServiceByID", ctx, "svc-1").Return(svc, nil)
	catalog.On("VariantByID", ctx, "var-1").Return(variant, nil)
	catalog.On("FindRule", ctx, "svc-1", strPtr("var-1"), 2).Return(nil, nil)

	q, err := engine.Quote(ctx, "svc-1", strPtr("var-1"), 2)
	require.NoError(t, err)

	assert.Equal(t, 20.00, q.UnitPrice)
	assert.Equal(t, 40.00, q.TotalPrice)
	assert.Equal(t, "Shirt Wash", q.ServiceName)
	assert.Equal(t, "Express", q.VariantName)
	assert.Empty(t, q.RuleID)

	catalog.AssertExpectations(t)
}

func TestQuote_BulkRuleOverridesTotalOnly(t *testing.T) {
	catalog := new(MockCatalogReader)
	engine := pricing.NewEngine(catalog)
	ctx := context.Background()

	svc := &models.Service{ID: "svc-1", Name: "Shirt Wash", BasePrice: 15.00}
	variant := &models.ServiceVariant{ID: "var-1", ServiceID: "svc-1", Name: "Express", PriceModifier: 5.00}
	rule := &models.PricingRule{ID: "rule-1", ServiceID: "svc-1", MinQuantity: 2, PricePerUnit: 18.00, IsActive: true}

	catalog.On("ServiceByID", ctx, "svc-1").Return(svc, nil)
	catalog.On("VariantByID", ctx, "var-1").Return(variant, nil)
	catalog.On("FindRule", ctx, "svc-1", strPtr("var-1"), 2).Return(rule, nil)

	q, err := engine.Quote(ctx, "svc-1", strPtr("var-1"), 2)
	require.NoError(t, err)

	// The rule rewrites the line total but the unit price snapshot stays.
	assert.Equal(t, 20.00, q.UnitPrice)
	assert.Equal(t, 36.00, q.TotalPrice)
	assert.Equal(t, "rule-1", q.RuleID)
}

func TestQuote_InvalidQuantity(t *testing.T) {
	catalog := new(MockCatalogReader)
	engine := pricing.NewEngine(catalog)

	for _, qty := range []int{0, -1} {
		_, err := engine.Quote(context.Background(), "svc-1", nil, qty)
		assert.ErrorIs(t, err, errs.ErrValidation)
	}
	catalog.AssertNotCalled(t, "ServiceByID")
}

func TestQuote_ServiceNotFound(t *testing.T) {
	catalog := new(MockCatalogReader)
	engine := pricing.NewEngine(catalog)
	ctx := context.Background()

	catalog.On("ServiceByID", ctx, "missing").Return(nil, errs.ErrNotFound)

	_, err := engine.Quote(ctx, "missing", nil, 1)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestQuote_VariantFromAnotherService(t *testing.T) {
	catalog := new(MockCatalogReader)
	engine := pricing.NewEngine(catalog)
	ctx := context.Background()

	svc := &models.Service{ID: "svc-1", Name: "Shirt Wash", BasePrice: 15.00}
	foreign := &models.ServiceVariant{ID: "var-9", ServiceID: "svc-other", Name: "Express", PriceModifier: 5.00}

	catalog.On("ServiceByID", ctx, "svc-1").Return(svc, nil)
	catalog.On("VariantByID", ctx, "var-9").Return(foreign, nil)

	_, err := engine.Quote(ctx, "svc-1", strPtr("var-9"), 1)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestQuote_NegativeFinalPrice(t *testing.T) {
	catalog := new(MockCatalogReader)
	engine := pricing.NewEngine(catalog)
	ctx := context.Background()

	svc := &models.Service{ID: "svc-1", Name: "Shirt Wash", BasePrice: 10.00}
	variant := &models.ServiceVariant{ID: "var-1", ServiceID: "svc-1", Name: "Discounted", PriceModifier: -15.00}

	catalog.On("ServiceByID", ctx, "svc-1").Return(svc, nil)
	catalog.On("VariantByID", ctx, "var-1").Return(variant, nil)

	_, err := engine.Quote(ctx, "svc-1", strPtr("var-1"), 1)
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestTotals_DeliveryFeeThreshold(t *testing.T) {
	// Just below the free-delivery threshold the flat fee applies.
	tax, fee, total := pricing.Totals(499.99)
	assert.Equal(t, 25.00, tax)
	assert.Equal(t, 50.00, fee)
	assert.Equal(t, 574.99, total)

	// At the threshold delivery is free.
	tax, fee, total = pricing.Totals(500.00)
	assert.Equal(t, 25.00, tax)
	assert.Equal(t, 0.00, fee)
	assert.Equal(t, 525.00, total)
}

func TestRoundMoney(t *testing.T) {
	assert.Equal(t, 10.56, pricing.RoundMoney(10.555))
	assert.Equal(t, 10.55, pricing.RoundMoney(10.554))
	assert.Equal(t, 0.00, pricing.RoundMoney(0.004))
}

func TestEstimateBulk(t *testing.T) {
	catalog := new(MockCatalogReader)
	engine := pricing.NewEngine(catalog)
	ctx := context.Background()

	shirt := &models.Service{ID: "svc-shirt", Name: "Shirt Wash", BasePrice: 15.00}
	suit := &models.Service{ID: "svc-suit", Name: "Suit Dry Clean", BasePrice: 200.00}

	catalog.On("ServiceByID", ctx, "svc-shirt").Return(shirt, nil)
	catalog.On("ServiceByID", ctx, "svc-suit").Return(suit, nil)
	catalog.On("FindRule", ctx, "svc-shirt", (*string)(nil), 4).Return(nil, nil)
	catalog.On("FindRule", ctx, "svc-suit", (*string)(nil), 1).Return(nil, nil)

	est, err := engine.EstimateBulk(ctx, []models.EstimateItem{
		{ServiceID: "svc-shirt", Quantity: 4},
		{ServiceID: "svc-suit", Quantity: 1},
	})
	require.NoError(t, err)

	assert.Len(t, est.Items, 2)
	assert.Equal(t, 260.00, est.Subtotal)
	assert.Equal(t, 13.00, est.Tax)
	assert.Equal(t, 50.00, est.DeliveryFee)
	assert.Equal(t, 323.00, est.TotalAmount)
}

func TestEstimateBulk_Empty(t *testing.T) {
	engine := pricing.NewEngine(new(MockCatalogReader))

	_, err := engine.EstimateBulk(context.Background(), nil)
	assert.ErrorIs(t, err, errs.ErrValidation)
}
