package repository

import (
	"context"

	"github.com/bitfantasy/nimo-quote/internal/quote/entity"
	"gorm.io/gorm"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *entity.RFQDocument) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *DocumentRepository) FindByID(ctx context.Context, id string) (*entity.RFQDocument, error) {
	var doc entity.RFQDocument
	if err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &doc, nil
}

// ListByRFQ 不含已删除
func (r *DocumentRepository) ListByRFQ(ctx context.Context, rfqID string) ([]entity.RFQDocument, error) {
	var docs []entity.RFQDocument
	err := r.db.WithContext(ctx).
		Where("rfq_id = ? AND deleted = ?", rfqID, false).
		Order("created_at DESC").
		Find(&docs).Error
	return docs, err
}

func (r *DocumentRepository) MarkDeleted(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&entity.RFQDocument{}).Where("id = ?", id).Update("deleted", true).Error
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&entity.RFQDocument{}, "id = ?", id).Error
}
