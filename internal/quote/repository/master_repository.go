package repository

import (
	"context"

	"github.com/bitfantasy/nimo-quote/internal/quote/entity"
	"gorm.io/gorm"
)

// MasterRepository 主数据只读访问
type MasterRepository struct {
	db *gorm.DB
}

func NewMasterRepository(db *gorm.DB) *MasterRepository {
	return &MasterRepository{db: db}
}

func first[T any](ctx context.Context, db *gorm.DB, id string) (*T, error) {
	var v T
	if err := db.WithContext(ctx).First(&v, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &v, nil
}

func (r *MasterRepository) FindClient(ctx context.Context, id string) (*entity.Client, error) {
	return first[entity.Client](ctx, r.db, id)
}

func (r *MasterRepository) FindUser(ctx context.Context, id string) (*entity.User, error) {
	return first[entity.User](ctx, r.db, id)
}

func (r *MasterRepository) FindPlant(ctx context.Context, id string) (*entity.Plant, error) {
	return first[entity.Plant](ctx, r.db, id)
}

func (r *MasterRepository) FindCurrency(ctx context.Context, id string) (*entity.Currency, error) {
	return first[entity.Currency](ctx, r.db, id)
}

func (r *MasterRepository) FindRawMaterial(ctx context.Context, id string) (*entity.RawMaterial, error) {
	return first[entity.RawMaterial](ctx, r.db, id)
}

func (r *MasterRepository) FindJobType(ctx context.Context, id string) (*entity.JobType, error) {
	return first[entity.JobType](ctx, r.db, id)
}

func (r *MasterRepository) FindOtherCostType(ctx context.Context, id string) (*entity.OtherCostType, error) {
	return first[entity.OtherCostType](ctx, r.db, id)
}

// FindRawMaterials 批量读取，返回 id -> 原材料
func (r *MasterRepository) FindRawMaterials(ctx context.Context, ids []string) (map[string]entity.RawMaterial, error) {
	out := make(map[string]entity.RawMaterial, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var items []entity.RawMaterial
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, err
	}
	for _, m := range items {
		out[m.ID] = m
	}
	return out, nil
}

func (r *MasterRepository) ListCurrencies(ctx context.Context) ([]entity.Currency, error) {
	var items []entity.Currency
	err := r.db.WithContext(ctx).Where("status = ?", true).Order("code ASC").Find(&items).Error
	return items, err
}
