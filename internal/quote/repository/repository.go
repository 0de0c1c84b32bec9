package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/nimo-quote/internal/quote/entity"
	"gorm.io/gorm"
)

// 错误定义
var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// translate 把 gorm 错误映射为仓库错误
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}
	return err
}

// Repositories 仓库集合
type Repositories struct {
	db         *gorm.DB
	RFQ        *RFQRepository
	SKU        *SKURepository
	Ledger     *LedgerRepository
	Master     *MasterRepository
	Assignment *AssignmentRepository
	Document   *DocumentRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:         db,
		RFQ:        NewRFQRepository(db),
		SKU:        NewSKURepository(db),
		Ledger:     NewLedgerRepository(db),
		Master:     NewMasterRepository(db),
		Assignment: NewAssignmentRepository(db),
		Document:   NewDocumentRepository(db),
	}
}

// Transaction 在同一事务内执行 fn，fn 返回错误时整体回滚
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}

// AutoMigrate 建表及 gorm 标签无法表达的约束
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(entity.Models()...); err != nil {
		return err
	}
	// 每条版本谱系只有一行 is_latest
	return db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS uq_rfqs_root_latest ON rfqs(root_id) WHERE is_latest").Error
}
