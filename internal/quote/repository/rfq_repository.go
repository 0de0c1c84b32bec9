package repository

import (
	"context"

	"github.com/bitfantasy/nimo-quote/internal/quote/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RFQRepository struct {
	db *gorm.DB
}

func NewRFQRepository(db *gorm.DB) *RFQRepository {
	return &RFQRepository{db: db}
}

// RFQFilter 列表筛选
type RFQFilter struct {
	ClientID   string
	CreatedBy  string
	State      string
	LatestOnly bool
	Page       int
	PageSize   int
}

func (r *RFQRepository) Create(ctx context.Context, rfq *entity.RFQ) error {
	return translate(r.db.WithContext(ctx).Create(rfq).Error)
}

func (r *RFQRepository) FindByID(ctx context.Context, id string) (*entity.RFQ, error) {
	var rfq entity.RFQ
	if err := r.db.WithContext(ctx).First(&rfq, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &rfq, nil
}

// FindByIDForUpdate 加行锁读取，仅在事务内使用
func (r *RFQRepository) FindByIDForUpdate(ctx context.Context, id string) (*entity.RFQ, error) {
	var rfq entity.RFQ
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&rfq, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &rfq, nil
}

// FindDetail 带SKU、物料、台账
func (r *RFQRepository) FindDetail(ctx context.Context, id string) (*entity.RFQ, error) {
	var rfq entity.RFQ
	err := r.db.WithContext(ctx).
		Preload("SKUs", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Preload("SKUs.Products", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Preload("SKUs.Ledger").
		First(&rfq, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &rfq, nil
}

func (r *RFQRepository) List(ctx context.Context, f RFQFilter) ([]entity.RFQ, int64, error) {
	var items []entity.RFQ
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.RFQ{})
	if f.ClientID != "" {
		query = query.Where("client_id = ?", f.ClientID)
	}
	if f.CreatedBy != "" {
		query = query.Where("created_by = ?", f.CreatedBy)
	}
	if f.State != "" {
		query = query.Where("state = ?", f.State)
	}
	if f.LatestOnly {
		query = query.Where("is_latest = ?", true)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 200 {
		f.PageSize = 20
	}
	err := query.Order("created_at DESC").
		Offset((f.Page - 1) * f.PageSize).
		Limit(f.PageSize).
		Find(&items).Error
	return items, total, err
}

// UpdateState 只改状态
func (r *RFQRepository) UpdateState(ctx context.Context, id, state string) error {
	res := r.db.WithContext(ctx).Model(&entity.RFQ{}).Where("id = ?", id).Update("state", state)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveAggregates 写回汇总成本
func (r *RFQRepository) SaveAggregates(ctx context.Context, rfq *entity.RFQ) error {
	return r.db.WithContext(ctx).Model(rfq).Select(
		"freight_cost", "factory_overhead_cost", "insurance_cost", "margin_cost",
		"cif_cost", "fob_cost", "total_cost_to_customer",
	).Updates(rfq).Error
}

// FindLatest 谱系中当前最新版本
func (r *RFQRepository) FindLatest(ctx context.Context, rootID string) (*entity.RFQ, error) {
	var rfq entity.RFQ
	err := r.db.WithContext(ctx).
		Where("root_id = ? AND is_latest = ?", rootID, true).
		First(&rfq).Error
	if err != nil {
		return nil, translate(err)
	}
	return &rfq, nil
}

// LockLineage 锁住谱系内全部版本并返回最大版本号
func (r *RFQRepository) LockLineage(ctx context.Context, rootID string) ([]entity.RFQ, int, error) {
	var rows []entity.RFQ
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("root_id = ?", rootID).
		Order("version ASC").
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	if len(rows) == 0 {
		return nil, 0, ErrNotFound
	}
	return rows, rows[len(rows)-1].Version, nil
}

// RetireLatest 关闭谱系当前最新版本，并标记为已修订
func (r *RFQRepository) RetireLatest(ctx context.Context, rootID string) error {
	return r.db.WithContext(ctx).Model(&entity.RFQ{}).
		Where("root_id = ? AND is_latest = ?", rootID, true).
		Updates(map[string]interface{}{"is_latest": false, "state": entity.StateRevised}).Error
}

func (r *RFQRepository) CountLatest(ctx context.Context, rootID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&entity.RFQ{}).
		Where("root_id = ? AND is_latest = ?", rootID, true).
		Count(&n).Error
	return n, err
}

// ========== RFQRevision ==========

func (r *RFQRepository) CreateRevision(ctx context.Context, rev *entity.RFQRevision) error {
	return translate(r.db.WithContext(ctx).Create(rev).Error)
}

func (r *RFQRepository) FindRevision(ctx context.Context, id string) (*entity.RFQRevision, error) {
	var rev entity.RFQRevision
	if err := r.db.WithContext(ctx).First(&rev, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &rev, nil
}

func (r *RFQRepository) ListRevisions(ctx context.Context, rootID string) ([]entity.RFQRevision, error) {
	var revs []entity.RFQRevision
	err := r.db.WithContext(ctx).
		Where("root_id = ?", rootID).
		Order("version ASC").
		Find(&revs).Error
	return revs, err
}
