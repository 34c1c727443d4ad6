package repo

import (
	"context"
	"errors"

	"github.com/clara-care/server/internal/agent/model"
	errx "github.com/clara-care/server/internal/core/error"
	logx "github.com/clara-care/server/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GormCatalogRepository struct {
	db *gorm.DB
}

func NewGormCatalogRepository(db *gorm.DB) *GormCatalogRepository {
	return &GormCatalogRepository{db: db}
}

func (r *GormCatalogRepository) ActivePlans(ctx context.Context) ([]model.PricingPlan, error) {
	plans := []model.PricingPlan{}
	err := r.db.WithContext(ctx).
		Preload("Translations").
		Where("is_active = ?", true).
		Order("sort_order ASC").
		Order("name ASC").
		Find(&plans).Error
	if err != nil {
		logx.Error().Err(err).Msg("failed to query pricing plans")
		return nil, errx.WrapDB(err)
	}
	return plans, nil
}

func (r *GormCatalogRepository) ActiveDevices(ctx context.Context) ([]model.Product, error) {
	products := []model.Product{}
	err := r.db.WithContext(ctx).
		Preload("Translations").
		Where("category = ? AND is_active = ?", model.DeviceCategory, true).
		Order("sort_order ASC").
		Order("name ASC").
		Find(&products).Error
	if err != nil {
		logx.Error().Err(err).Msg("failed to query device products")
		return nil, errx.WrapDB(err)
	}
	return products, nil
}

func (r *GormCatalogRepository) FindPlan(ctx context.Context, id string) (*model.PricingPlan, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.ErrNotFound
	}
	var p model.PricingPlan
	err := r.db.WithContext(ctx).Where("id = ? AND is_active = ?", id, true).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		logx.Error().Err(err).Str("plan_id", id).Msg("failed to query pricing plan")
		return nil, errx.WrapDB(err)
	}
	return &p, nil
}

// FindDevices keeps the caller's id order. Malformed ids are treated as unknown.
func (r *GormCatalogRepository) FindDevices(ctx context.Context, ids []string) ([]model.Product, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return []model.Product{}, nil
	}

	var found []model.Product
	err := r.db.WithContext(ctx).
		Where("id IN ? AND category = ? AND is_active = ?", valid, model.DeviceCategory, true).
		Find(&found).Error
	if err != nil {
		logx.Error().Err(err).Strs("device_ids", valid).Msg("failed to query devices")
		return nil, errx.WrapDB(err)
	}

	byID := make(map[string]model.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	out := make([]model.Product, 0, len(valid))
	for _, id := range valid {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

var _ model.CatalogRepository = (*GormCatalogRepository)(nil)
