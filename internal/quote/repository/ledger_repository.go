package repository

import (
	"context"

	"github.com/bitfantasy/nimo-quote/internal/quote/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerRepository 成本台账存储，只负责原子读写，不校验字段间依赖
type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) CreateBatch(ctx context.Context, ledgers []entity.CostLedger) error {
	if len(ledgers) == 0 {
		return nil
	}
	return translate(r.db.WithContext(ctx).Create(&ledgers).Error)
}

func (r *LedgerRepository) Get(ctx context.Context, skuID string) (*entity.CostLedger, error) {
	var l entity.CostLedger
	if err := r.db.WithContext(ctx).First(&l, "sku_id = ?", skuID).Error; err != nil {
		return nil, translate(err)
	}
	return &l, nil
}

// GetForUpdate 加行锁读取，仅在事务内使用
func (r *LedgerRepository) GetForUpdate(ctx context.Context, skuID string) (*entity.CostLedger, error) {
	var l entity.CostLedger
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&l, "sku_id = ?", skuID).Error
	if err != nil {
		return nil, translate(err)
	}
	return &l, nil
}

// ListByRFQ 按SKU顺序读取RFQ下全部台账，lock 为 true 时加行锁
func (r *LedgerRepository) ListByRFQ(ctx context.Context, rfqID string, lock bool) ([]entity.CostLedger, error) {
	var ledgers []entity.CostLedger
	query := r.db.WithContext(ctx).Where("rfq_id = ?", rfqID).Order("sku_id ASC")
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := query.Find(&ledgers).Error
	return ledgers, err
}

// Save 整行写回（NULL 字段一并写入）
func (r *LedgerRepository) Save(ctx context.Context, l *entity.CostLedger) error {
	return translate(r.db.WithContext(ctx).Save(l).Error)
}

// ========== JobCost ==========

func (r *LedgerRepository) ListJobCosts(ctx context.Context, rfqID, skuID string) ([]entity.JobCost, error) {
	var items []entity.JobCost
	query := r.db.WithContext(ctx).Where("rfq_id = ?", rfqID)
	if skuID != "" {
		query = query.Where("sku_id = ?", skuID)
	}
	err := query.Order("job_type_id ASC, created_at ASC").Find(&items).Error
	return items, err
}

func (r *LedgerRepository) ListJobCostsBySKU(ctx context.Context, skuID string) ([]entity.JobCost, error) {
	var items []entity.JobCost
	err := r.db.WithContext(ctx).Where("sku_id = ?", skuID).Order("created_at ASC").Find(&items).Error
	return items, err
}

// ReplaceJobCosts 覆盖 (rfq, sku, jobType) 下的全部条目，保证同一工序只有一种级别
func (r *LedgerRepository) ReplaceJobCosts(ctx context.Context, rfqID, skuID, jobTypeID string, entries []entity.JobCost) error {
	db := r.db.WithContext(ctx)
	err := db.Where("rfq_id = ? AND sku_id = ? AND job_type_id = ?", rfqID, skuID, jobTypeID).
		Delete(&entity.JobCost{}).Error
	if err != nil {
		return translate(err)
	}
	if len(entries) == 0 {
		return nil
	}
	return translate(db.Create(&entries).Error)
}

func (r *LedgerRepository) DeleteJobCosts(ctx context.Context, skuID, jobTypeID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("sku_id = ? AND job_type_id = ?", skuID, jobTypeID).
		Delete(&entity.JobCost{})
	return res.RowsAffected, translate(res.Error)
}

func (r *LedgerRepository) DeleteJobCostsByProduct(ctx context.Context, productID string) error {
	return translate(r.db.WithContext(ctx).Where("product_id = ?", productID).Delete(&entity.JobCost{}).Error)
}

// ========== OtherCost ==========

// UpsertOtherCost 同一SKU同一费用类型只保留一条
func (r *LedgerRepository) UpsertOtherCost(ctx context.Context, oc *entity.OtherCost) error {
	return translate(r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sku_id"}, {Name: "other_cost_type_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"cost_per_kg", "cost", "status", "updated_at"}),
	}).Create(oc).Error)
}

func (r *LedgerRepository) ListOtherCosts(ctx context.Context, skuID string) ([]entity.OtherCost, error) {
	var items []entity.OtherCost
	err := r.db.WithContext(ctx).Where("sku_id = ?", skuID).Order("created_at ASC").Find(&items).Error
	return items, err
}

func (r *LedgerRepository) ListOtherCostsByRFQ(ctx context.Context, rfqID string) ([]entity.OtherCost, error) {
	var items []entity.OtherCost
	err := r.db.WithContext(ctx).Where("rfq_id = ?", rfqID).Order("created_at ASC").Find(&items).Error
	return items, err
}
