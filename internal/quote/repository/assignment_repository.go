package repository

import (
	"context"

	"github.com/bitfantasy/nimo-quote/internal/quote/entity"
	"gorm.io/gorm"
)

// AssignmentRepository 审计轨迹只追加，没有更新和删除方法
type AssignmentRepository struct {
	db *gorm.DB
}

func NewAssignmentRepository(db *gorm.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

func (r *AssignmentRepository) Append(ctx context.Context, a *entity.Assignment) error {
	return translate(r.db.WithContext(ctx).Create(a).Error)
}

func (r *AssignmentRepository) ListByRFQ(ctx context.Context, rfqID string) ([]entity.Assignment, error) {
	var items []entity.Assignment
	err := r.db.WithContext(ctx).
		Where("rfq_id = ?", rfqID).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	return items, err
}

// CreatePlantAssignment 重复的 (rfq, plant) 返回 ErrDuplicate
func (r *AssignmentRepository) CreatePlantAssignment(ctx context.Context, pa *entity.PlantAssignment) error {
	return translate(r.db.WithContext(ctx).Create(pa).Error)
}

func (r *AssignmentRepository) ListPlantAssignments(ctx context.Context, rfqID string) ([]entity.PlantAssignment, error) {
	var items []entity.PlantAssignment
	err := r.db.WithContext(ctx).
		Where("rfq_id = ?", rfqID).
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}

func (r *AssignmentRepository) CountPlantAssignments(ctx context.Context, rfqID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&entity.PlantAssignment{}).Where("rfq_id = ?", rfqID).Count(&n).Error
	return n, err
}
