package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// RFQ 询价单（每个版本一行）
type RFQ struct {
	ID        string  `json:"id" gorm:"primaryKey;size:32"`
	Name      string  `json:"name" gorm:"size:200;not null"`
	ClientID  string  `json:"client_id" gorm:"size:32;not null;index"`
	CreatedBy string  `json:"created_by" gorm:"size:32;not null;index"`
	State     string  `json:"state" gorm:"size:20;not null"`
	RootID    string  `json:"root_id" gorm:"size:32;not null;index;uniqueIndex:uq_rfqs_root_version"`
	ParentID  *string `json:"parent_id" gorm:"size:32"`
	Version   int     `json:"version" gorm:"not null;uniqueIndex:uq_rfqs_root_version"`
	IsLatest  bool    `json:"is_latest" gorm:"not null"`

	// 汇总成本
	FreightCost         decimal.NullDecimal `json:"freight_cost" gorm:"type:numeric(20,6)"`
	FactoryOverheadCost decimal.NullDecimal `json:"factory_overhead_cost" gorm:"type:numeric(20,6)"`
	InsuranceCost       decimal.NullDecimal `json:"insurance_cost" gorm:"type:numeric(20,6)"`
	MarginCost          decimal.NullDecimal `json:"margin_cost" gorm:"type:numeric(20,6)"`
	CIFCost             decimal.NullDecimal `json:"cif_cost" gorm:"column:cif_cost;type:numeric(20,6)"`
	FOBCost             decimal.NullDecimal `json:"fob_cost" gorm:"column:fob_cost;type:numeric(20,6)"`
	TotalCostToCustomer decimal.NullDecimal `json:"total_cost_to_customer" gorm:"type:numeric(20,6)"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	SKUs []SKU `json:"skus,omitempty" gorm:"foreignKey:RFQID"`
}

func (RFQ) TableName() string {
	return "rfqs"
}

// RFQRevision 版本谱系，只追加
type RFQRevision struct {
	ID          string         `json:"id" gorm:"primaryKey;size:32"`
	RootID      string         `json:"root_id" gorm:"size:32;not null;index"`
	RFQID       string         `json:"rfq_id" gorm:"size:32;not null;uniqueIndex"`
	ParentRFQID *string        `json:"parent_rfq_id" gorm:"size:32"`
	Version     int            `json:"version" gorm:"not null"`
	CreatedBy   string         `json:"created_by" gorm:"size:32"`
	SKUMap      datatypes.JSON `json:"sku_map,omitempty" gorm:"type:jsonb"` // 旧SKU ID -> 新SKU ID
	CreatedAt   time.Time      `json:"created_at"`
}

func (RFQRevision) TableName() string {
	return "rfq_revisions"
}

// RFQDocument 询价单附件
type RFQDocument struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	RFQID       string    `json:"rfq_id" gorm:"size:32;not null;index"`
	FileName    string    `json:"file_name" gorm:"size:256;not null"`
	ObjectName  string    `json:"-" gorm:"size:512;not null"`
	ContentType string    `json:"content_type" gorm:"size:128"`
	Size        int64     `json:"size"`
	UploadedBy  string    `json:"uploaded_by" gorm:"size:32"`
	Deleted     bool      `json:"deleted" gorm:"not null"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (RFQDocument) TableName() string {
	return "rfq_documents"
}
