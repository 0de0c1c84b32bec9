package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// SKU 询价单下的SKU，归属于唯一一个RFQ版本
type SKU struct {
	ID          string              `json:"id" gorm:"primaryKey;size:32"`
	RFQID       string              `json:"rfq_id" gorm:"size:32;not null;index"`
	LineageID   string              `json:"lineage_id" gorm:"size:32;not null;index"` // 版本0中的SKU ID
	Name        string              `json:"name" gorm:"size:100;not null"`
	Repeat      *int                `json:"repeat"`
	ToolingCost decimal.NullDecimal `json:"tooling_cost" gorm:"type:numeric(20,6)"`
	AnnualUsage decimal.NullDecimal `json:"annual_usage" gorm:"type:numeric(20,6)"`
	PackingCost decimal.NullDecimal `json:"packing_cost" gorm:"type:numeric(20,6)"`
	DrawingNo   string              `json:"drawing_no" gorm:"size:64"`
	Size        decimal.NullDecimal `json:"size" gorm:"type:numeric(20,6)"`
	Description string              `json:"description" gorm:"size:255"`
	Status      string              `json:"status" gorm:"size:16;not null"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`

	Products []Product   `json:"products,omitempty" gorm:"foreignKey:SKUID"`
	Ledger   *CostLedger `json:"ledger,omitempty" gorm:"foreignKey:SKUID"`
}

func (SKU) TableName() string {
	return "skus"
}

const SKUStatusActive = "active"

// Product BOM行项
type Product struct {
	ID                  string              `json:"id" gorm:"primaryKey;size:32"`
	SKUID               string              `json:"sku_id" gorm:"column:sku_id;size:32;not null;index"`
	LineageID           string              `json:"lineage_id" gorm:"size:32;not null;index"`
	Name                string              `json:"name" gorm:"size:128;not null"`
	RawMaterialID       *string             `json:"raw_material_id" gorm:"size:32"`
	RawMaterialType     string              `json:"raw_material_type" gorm:"size:64"`
	QuantityPerAssembly decimal.NullDecimal `json:"quantity_per_assembly" gorm:"type:numeric(20,6)"`
	YieldPercentage     decimal.NullDecimal `json:"yield_percentage" gorm:"type:numeric(9,4)"`
	NetWeight           decimal.NullDecimal `json:"net_weight" gorm:"type:numeric(20,6)"`
	BOMCostPerKg        decimal.NullDecimal `json:"bom_cost_per_kg" gorm:"column:bom_cost_per_kg;type:numeric(20,6)"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

func (Product) TableName() string {
	return "products"
}
