package repository

import (
	"context"

	"github.com/bitfantasy/nimo-quote/internal/quote/entity"
	"gorm.io/gorm"
)

type SKURepository struct {
	db *gorm.DB
}

func NewSKURepository(db *gorm.DB) *SKURepository {
	return &SKURepository{db: db}
}

// ========== SKU ==========

func (r *SKURepository) CreateBatch(ctx context.Context, skus []entity.SKU) error {
	if len(skus) == 0 {
		return nil
	}
	return translate(r.db.WithContext(ctx).Omit("Products", "Ledger").Create(&skus).Error)
}

func (r *SKURepository) FindByID(ctx context.Context, id string) (*entity.SKU, error) {
	var sku entity.SKU
	if err := r.db.WithContext(ctx).First(&sku, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &sku, nil
}

// FindDetail 带物料和台账
func (r *SKURepository) FindDetail(ctx context.Context, id string) (*entity.SKU, error) {
	var sku entity.SKU
	err := r.db.WithContext(ctx).
		Preload("Products", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Preload("Ledger").
		First(&sku, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &sku, nil
}

func (r *SKURepository) ListByRFQ(ctx context.Context, rfqID string) ([]entity.SKU, error) {
	var skus []entity.SKU
	err := r.db.WithContext(ctx).
		Preload("Ledger").
		Where("rfq_id = ?", rfqID).
		Order("created_at ASC, id ASC").
		Find(&skus).Error
	return skus, err
}

// FindInRFQByLineage 同一谱系SKU在指定RFQ版本中的对应行
func (r *SKURepository) FindInRFQByLineage(ctx context.Context, rfqID, lineageID string) (*entity.SKU, error) {
	var sku entity.SKU
	err := r.db.WithContext(ctx).
		Where("rfq_id = ? AND lineage_id = ?", rfqID, lineageID).
		First(&sku).Error
	if err != nil {
		return nil, translate(err)
	}
	return &sku, nil
}

// ========== Product ==========

func (r *SKURepository) CreateProducts(ctx context.Context, products []entity.Product) error {
	if len(products) == 0 {
		return nil
	}
	return translate(r.db.WithContext(ctx).Create(&products).Error)
}

func (r *SKURepository) FindProduct(ctx context.Context, id string) (*entity.Product, error) {
	var p entity.Product
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// FindProductInSKUByLineage 同一谱系物料在指定SKU中的对应行
func (r *SKURepository) FindProductInSKUByLineage(ctx context.Context, skuID, lineageID string) (*entity.Product, error) {
	var p entity.Product
	err := r.db.WithContext(ctx).
		Where("sku_id = ? AND lineage_id = ?", skuID, lineageID).
		First(&p).Error
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *SKURepository) ListProducts(ctx context.Context, skuID string) ([]entity.Product, error) {
	var products []entity.Product
	err := r.db.WithContext(ctx).
		Where("sku_id = ?", skuID).
		Order("created_at ASC, id ASC").
		Find(&products).Error
	return products, err
}

func (r *SKURepository) ListProductsBySKUs(ctx context.Context, skuIDs []string) ([]entity.Product, error) {
	var products []entity.Product
	if len(skuIDs) == 0 {
		return products, nil
	}
	err := r.db.WithContext(ctx).
		Where("sku_id IN ?", skuIDs).
		Order("created_at ASC, id ASC").
		Find(&products).Error
	return products, err
}

// UpdateProductFields 更新物料的指定列
func (r *SKURepository) UpdateProductFields(ctx context.Context, id string, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&entity.Product{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SKURepository) DeleteProduct(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&entity.Product{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
