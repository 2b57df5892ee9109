package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dryclean/internal/errs"
	"dryclean/internal/logger"
	"dryclean/internal/models"
)

// DBLayer is the catalog storage surface. It is a superset of
// pricing.CatalogReader so one bun-backed implementation serves both.
type DBLayer interface {
	ListCategories(ctx context.Context) ([]models.ServiceCategory, error)
	CategoryByID(ctx context.Context, id string) (*models.ServiceCategory, error)
	CreateCategory(ctx context.Context, category *models.ServiceCategory) error
	UpdateCategory(ctx context.Context, category *models.ServiceCategory) error

	ServiceByID(ctx context.Context, id string) (*models.Service, error)
	ListServices(ctx context.Context, filter models.ServiceFilter) ([]models.Service, error)
	CategoriesWithServices(ctx context.Context) ([]models.CategoryWithServices, error)
	CreateService(ctx context.Context, svc *models.Service) error
	UpdateService(ctx context.Context, svc *models.Service) error

	VariantByID(ctx context.Context, id string) (*models.ServiceVariant, error)
	VariantsByService(ctx context.Context, serviceID string) ([]models.ServiceVariant, error)
	CreateVariant(ctx context.Context, variant *models.ServiceVariant) error
	UpdateVariant(ctx context.Context, variant *models.ServiceVariant) error

	FindRule(ctx context.Context, serviceID string, variantID *string, quantity int) (*models.PricingRule, error)
	RuleByID(ctx context.Context, id string) (*models.PricingRule, error)
	RulesByService(ctx context.Context, serviceID string) ([]models.PricingRule, error)
	OverlappingRuleExists(ctx context.Context, rule *models.PricingRule) (bool, error)
	CreateRule(ctx context.Context, rule *models.PricingRule) error
	UpdateRule(ctx context.Context, rule *models.PricingRule) error
}

type CatalogService struct {
	DB     DBLayer
	Logger *logger.Logger
}

func NewCatalogService(db DBLayer, log *logger.Logger) *CatalogService {
	return &CatalogService{DB: db, Logger: log}
}

// ---------------- BROWSE ----------------

func (s *CatalogService) ListCategories(ctx context.Context) ([]models.ServiceCategory, error) {
	return s.DB.ListCategories(ctx)
}

func (s *CatalogService) CategoriesWithServices(ctx context.Context) ([]models.CategoryWithServices, error) {
	return s.DB.CategoriesWithServices(ctx)
}

func (s *CatalogService) ListServices(ctx context.Context, filter models.ServiceFilter) ([]models.Service, error) {
	return s.DB.ListServices(ctx, filter)
}

func (s *CatalogService) GetService(ctx context.Context, id string) (*models.Service, error) {
	return s.DB.ServiceByID(ctx, id)
}

func (s *CatalogService) ServiceVariants(ctx context.Context, serviceID string) ([]models.ServiceVariant, error) {
	if _, err := s.DB.ServiceByID(ctx, serviceID); err != nil {
		return nil, err
	}
	return s.DB.VariantsByService(ctx, serviceID)
}

func (s *CatalogService) ServiceRules(ctx context.Context, serviceID string) ([]models.PricingRule, error) {
	if _, err := s.DB.ServiceByID(ctx, serviceID); err != nil {
		return nil, err
	}
	return s.DB.RulesByService(ctx, serviceID)
}

// ---------------- ADMIN ----------------

func (s *CatalogService) CreateCategory(ctx context.Context, category *models.ServiceCategory) error {
	if category.Name == "" {
		return fmt.Errorf("%w: category name is required", errs.ErrValidation)
	}
	category.ID = uuid.NewString()
	category.IsActive = true
	category.CreatedAt = time.Now()
	category.UpdatedAt = category.CreatedAt
	if err := s.DB.CreateCategory(ctx, category); err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}
	s.Logger.LogDatabase("INSERT", "service_categories", category.Name)
	return nil
}

func (s *CatalogService) UpdateCategory(ctx context.Context, category *models.ServiceCategory) error {
	if category.Name == "" {
		return fmt.Errorf("%w: category name is required", errs.ErrValidation)
	}
	category.UpdatedAt = time.Now()
	return s.DB.UpdateCategory(ctx, category)
}

func (s *CatalogService) CreateService(ctx context.Context, svc *models.Service) error {
	if svc.Name == "" {
		return fmt.Errorf("%w: service name is required", errs.ErrValidation)
	}
	if svc.BasePrice < 0 {
		return fmt.Errorf("%w: base price cannot be negative", errs.ErrValidation)
	}
	if _, err := s.DB.CategoryByID(ctx, svc.CategoryID); err != nil {
		return err
	}
	svc.ID = uuid.NewString()
	svc.IsActive = true
	svc.CreatedAt = time.Now()
	svc.UpdatedAt = svc.CreatedAt
	if err := s.DB.CreateService(ctx, svc); err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	s.Logger.LogDatabase("INSERT", "services", svc.Name)
	return nil
}

func (s *CatalogService) UpdateService(ctx context.Context, svc *models.Service) error {
	if svc.BasePrice < 0 {
		return fmt.Errorf("%w: base price cannot be negative", errs.ErrValidation)
	}
	svc.UpdatedAt = time.Now()
	return s.DB.UpdateService(ctx, svc)
}

func (s *CatalogService) CreateVariant(ctx context.Context, variant *models.ServiceVariant) error {
	if variant.Name == "" {
		return fmt.Errorf("%w: variant name is required", errs.ErrValidation)
	}
	svc, err := s.DB.ServiceByID(ctx, variant.ServiceID)
	if err != nil {
		return err
	}
	if svc.BasePrice+variant.PriceModifier < 0 {
		return fmt.Errorf("%w: variant final price would be negative", errs.ErrValidation)
	}
	variant.ID = uuid.NewString()
	variant.IsActive = true
	variant.CreatedAt = time.Now()
	variant.UpdatedAt = variant.CreatedAt
	if err := s.DB.CreateVariant(ctx, variant); err != nil {
		return fmt.Errorf("failed to create variant: %w", err)
	}
	s.Logger.LogDatabase("INSERT", "service_variants", variant.Name)
	return nil
}

func (s *CatalogService) UpdateVariant(ctx context.Context, variant *models.ServiceVariant) error {
	variant.UpdatedAt = time.Now()
	return s.DB.UpdateVariant(ctx, variant)
}

// CreatePricingRule validates the quantity band and rejects any rule whose
// band intersects an existing active rule for the same (service, variant)
// pair. Disjoint bands keep rule selection unambiguous.
func (s *CatalogService) CreatePricingRule(ctx context.Context, rule *models.PricingRule) error {
	if rule.MinQuantity < 1 {
		return fmt.Errorf("%w: min_quantity must be at least 1", errs.ErrValidation)
	}
	if rule.MaxQuantity != nil && *rule.MaxQuantity < rule.MinQuantity {
		return fmt.Errorf("%w: max_quantity is below min_quantity", errs.ErrValidation)
	}
	if rule.PricePerUnit < 0 {
		return fmt.Errorf("%w: price_per_unit cannot be negative", errs.ErrValidation)
	}
	if _, err := s.DB.ServiceByID(ctx, rule.ServiceID); err != nil {
		return err
	}
	if rule.VariantID != nil {
		variant, err := s.DB.VariantByID(ctx, *rule.VariantID)
		if err != nil {
			return err
		}
		if variant.ServiceID != rule.ServiceID {
			return fmt.Errorf("%w: variant %s does not belong to service %s",
				errs.ErrValidation, *rule.VariantID, rule.ServiceID)
		}
	}

	overlaps, err := s.DB.OverlappingRuleExists(ctx, rule)
	if err != nil {
		return fmt.Errorf("failed to check rule overlap: %w", err)
	}
	if overlaps {
		return fmt.Errorf("%w: quantity range overlaps an existing active rule", errs.ErrConflict)
	}

	rule.ID = uuid.NewString()
	rule.IsActive = true
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = rule.CreatedAt
	if err := s.DB.CreateRule(ctx, rule); err != nil {
		return fmt.Errorf("failed to create pricing rule: %w", err)
	}
	s.Logger.LogDatabase("INSERT", "pricing_rules", rule.Name)
	return nil
}

func (s *CatalogService) UpdatePricingRule(ctx context.Context, rule *models.PricingRule) error {
	if rule.MaxQuantity != nil && *rule.MaxQuantity < rule.MinQuantity {
		return fmt.Errorf("%w: max_quantity is below min_quantity", errs.ErrValidation)
	}
	existing, err := s.DB.RuleByID(ctx, rule.ID)
	if err != nil {
		return err
	}
	// Service and variant bindings are immutable on update.
	rule.ServiceID = existing.ServiceID
	rule.VariantID = existing.VariantID
	if rule.IsActive {
		overlaps, err := s.DB.OverlappingRuleExists(ctx, rule)
		if err != nil {
			return fmt.Errorf("failed to check rule overlap: %w", err)
		}
		if overlaps {
			return fmt.Errorf("%w: quantity range overlaps an existing active rule", errs.ErrConflict)
		}
	}
	rule.UpdatedAt = time.Now()
	return s.DB.UpdateRule(ctx, rule)
}
