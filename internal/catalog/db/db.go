package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"dryclean/internal/errs"
	"dryclean/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// ---------------- CATEGORIES ----------------

func (d *DB) ListCategories(ctx context.Context) ([]models.ServiceCategory, error) {
	var categories []models.ServiceCategory
	err := d.Bun.NewSelect().
		Model(&categories).
		Where("is_active = ?", true).
		Order("sort_order ASC", "name ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return categories, nil
}

func (d *DB) CategoryByID(ctx context.Context, id string) (*models.ServiceCategory, error) {
	var category models.ServiceCategory
	err := d.Bun.NewSelect().
		Model(&category).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("category %s: %w", id, errs.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &category, nil
}

func (d *DB) CreateCategory(ctx context.Context, category *models.ServiceCategory) error {
	_, err := d.Bun.NewInsert().Model(category).Exec(ctx)
	return err
}

func (d *DB) UpdateCategory(ctx context.Context, category *models.ServiceCategory) error {
	res, err := d.Bun.NewUpdate().
		Model(category).
		Column("name", "description", "icon", "is_active", "sort_order", "updated_at").
		Where("id = ?", category.ID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("category %s: %w", category.ID, errs.ErrNotFound)
	}
	return nil
}

// ---------------- SERVICES ----------------

// ServiceByID returns an active service. Inactive and missing services are
// both a typed absence: pricing must never see a retired service.
func (d *DB) ServiceByID(ctx context.Context, id string) (*models.Service, error) {
	var svc models.Service
	err := d.Bun.NewSelect().
		Model(&svc).
		Where("id = ?", id).
		Where("is_active = ?", true).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("service %s: %w", id, errs.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &svc, nil
}

func (d *DB) ListServices(ctx context.Context, filter models.ServiceFilter) ([]models.Service, error) {
	var services []models.Service
	q := d.Bun.NewSelect().
		Model(&services).
		Where("is_active = ?", true)
	if filter.CategoryID != "" {
		q = q.Where("category_id = ?", filter.CategoryID)
	}
	if filter.Search != "" {
		q = q.Where("LOWER(name) LIKE ?", "%"+filter.Search+"%")
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	err := q.Order("name ASC").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return services, nil
}

// CategoriesWithServices returns every active category together with its
// active services, for the browse screen.
func (d *DB) CategoriesWithServices(ctx context.Context) ([]models.CategoryWithServices, error) {
	categories, err := d.ListCategories(ctx)
	if err != nil {
		return nil, err
	}

	var services []models.Service
	err = d.Bun.NewSelect().
		Model(&services).
		Where("is_active = ?", true).
		Order("category_id", "name").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	byCategory := make(map[string][]models.Service)
	for _, svc := range services {
		byCategory[svc.CategoryID] = append(byCategory[svc.CategoryID], svc)
	}

	result := make([]models.CategoryWithServices, len(categories))
	for i, category := range categories {
		result[i] = models.CategoryWithServices{
			Category: category,
			Services: byCategory[category.ID],
		}
		if result[i].Services == nil {
			result[i].Services = []models.Service{}
		}
	}
	return result, nil
}

func (d *DB) CreateService(ctx context.Context, svc *models.Service) error {
	_, err := d.Bun.NewInsert().Model(svc).Exec(ctx)
	return err
}

func (d *DB) UpdateService(ctx context.Context, svc *models.Service) error {
	res, err := d.Bun.NewUpdate().
		Model(svc).
		Column("category_id", "name", "description", "base_price", "unit",
			"estimated_hours", "is_active", "updated_at").
		Where("id = ?", svc.ID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("service %s: %w", svc.ID, errs.ErrNotFound)
	}
	return nil
}

// ---------------- VARIANTS ----------------

func (d *DB) VariantByID(ctx context.Context, id string) (*models.ServiceVariant, error) {
	var variant models.ServiceVariant
	err := d.Bun.NewSelect().
		Model(&variant).
		Where("id = ?", id).
		Where("is_active = ?", true).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("variant %s: %w", id, errs.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &variant, nil
}

func (d *DB) VariantsByService(ctx context.Context, serviceID string) ([]models.ServiceVariant, error) {
	var variants []models.ServiceVariant
	err := d.Bun.NewSelect().
		Model(&variants).
		Where("service_id = ?", serviceID).
		Where("is_active = ?", true).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return variants, nil
}

func (d *DB) CreateVariant(ctx context.Context, variant *models.ServiceVariant) error {
	_, err := d.Bun.NewInsert().Model(variant).Exec(ctx)
	return err
}

func (d *DB) UpdateVariant(ctx context.Context, variant *models.ServiceVariant) error {
	res, err := d.Bun.NewUpdate().
		Model(variant).
		Column("name", "description", "price_modifier", "is_active", "updated_at").
		Where("id = ?", variant.ID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("variant %s: %w", variant.ID, errs.ErrNotFound)
	}
	return nil
}

// ---------------- PRICING RULES ----------------

// FindRule returns the first active rule for the (service, variant) pair
// whose quantity band contains quantity, lowest id first so selection is
// deterministic. A rule with a NULL variant applies only to quotes without
// a variant. No match is (nil, nil), not an error.
func (d *DB) FindRule(ctx context.Context, serviceID string, variantID *string, quantity int) (*models.PricingRule, error) {
	var rules []models.PricingRule
	q := d.Bun.NewSelect().
		Model(&rules).
		Where("service_id = ?", serviceID).
		Where("is_active = ?", true)
	if variantID != nil && *variantID != "" {
		q = q.Where("variant_id = ?", *variantID)
	} else {
		q = q.Where("variant_id IS NULL")
	}
	err := q.Order("id ASC").Scan(ctx)
	if err != nil {
		return nil, err
	}
	for i := range rules {
		if rules[i].Matches(quantity) {
			return &rules[i], nil
		}
	}
	return nil, nil
}

func (d *DB) RuleByID(ctx context.Context, id string) (*models.PricingRule, error) {
	var rule models.PricingRule
	err := d.Bun.NewSelect().
		Model(&rule).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pricing rule %s: %w", id, errs.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (d *DB) RulesByService(ctx context.Context, serviceID string) ([]models.PricingRule, error) {
	var rules []models.PricingRule
	err := d.Bun.NewSelect().
		Model(&rules).
		Where("service_id = ?", serviceID).
		Where("is_active = ?", true).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rules, nil
}

// OverlappingRuleExists reports whether an active rule for the same
// (service, variant) pair has a quantity band intersecting rule's band.
func (d *DB) OverlappingRuleExists(ctx context.Context, rule *models.PricingRule) (bool, error) {
	var existing []models.PricingRule
	q := d.Bun.NewSelect().
		Model(&existing).
		Where("service_id = ?", rule.ServiceID).
		Where("is_active = ?", true).
		Where("id != ?", rule.ID)
	if rule.VariantID != nil {
		q = q.Where("variant_id = ?", *rule.VariantID)
	} else {
		q = q.Where("variant_id IS NULL")
	}
	if err := q.Scan(ctx); err != nil {
		return false, err
	}
	for i := range existing {
		if rule.Overlaps(&existing[i]) {
			return true, nil
		}
	}
	return false, nil
}

func (d *DB) CreateRule(ctx context.Context, rule *models.PricingRule) error {
	_, err := d.Bun.NewInsert().Model(rule).Exec(ctx)
	return err
}

func (d *DB) UpdateRule(ctx context.Context, rule *models.PricingRule) error {
	res, err := d.Bun.NewUpdate().
		Model(rule).
		Column("name", "min_quantity", "max_quantity", "price_per_unit",
			"is_active", "updated_at").
		Where("id = ?", rule.ID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("pricing rule %s: %w", rule.ID, errs.ErrNotFound)
	}
	return nil
}
