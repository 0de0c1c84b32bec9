package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// CostLedger SKU成本台账，字段在对应计算环节运行前均为NULL
type CostLedger struct {
	SKUID string `json:"sku_id" gorm:"column:sku_id;primaryKey;size:32"`
	RFQID string `json:"rfq_id" gorm:"size:32;not null;index"`

	AssemblyWeight     decimal.NullDecimal `json:"assembly_weight" gorm:"type:numeric(20,6)"`
	AssemblyCost       decimal.NullDecimal `json:"assembly_cost" gorm:"type:numeric(20,6)"`
	SubtotalCost       decimal.NullDecimal `json:"subtotal_cost" gorm:"type:numeric(20,6)"`
	OverheadPercentage decimal.NullDecimal `json:"overhead_percentage" gorm:"type:numeric(9,4)"`
	OverheadCost       decimal.NullDecimal `json:"overhead_cost" gorm:"type:numeric(20,6)"`
	FreightCostPerKg   decimal.NullDecimal `json:"freight_cost_per_kg" gorm:"type:numeric(20,6)"`
	InsuranceCostPerKg decimal.NullDecimal `json:"insurance_cost_per_kg" gorm:"type:numeric(20,6)"`
	FreightCost        decimal.NullDecimal `json:"freight_cost" gorm:"type:numeric(20,6)"`
	InsuranceCost      decimal.NullDecimal `json:"insurance_cost" gorm:"type:numeric(20,6)"`
	CIFCost            decimal.NullDecimal `json:"cif_cost" gorm:"column:cif_cost;type:numeric(20,6)"`
	MarginPercentage   decimal.NullDecimal `json:"margin_percentage" gorm:"type:numeric(9,4)"`
	TotalCost          decimal.NullDecimal `json:"total_cost" gorm:"type:numeric(20,6)"`
	ClientCurrencyID   *string             `json:"client_currency_id" gorm:"size:32"`
	ClientCurrencyCost decimal.NullDecimal `json:"client_currency_cost" gorm:"type:numeric(24,6)"`

	UpdatedAt time.Time `json:"updated_at"`
}

func (CostLedger) TableName() string {
	return "sku_cost_ledgers"
}

// JobCost 工序成本，SKU级与物料级互斥
type JobCost struct {
	ID        string          `json:"id" gorm:"primaryKey;size:32"`
	RFQID     string          `json:"rfq_id" gorm:"size:32;not null;index"`
	SKUID     string          `json:"sku_id" gorm:"column:sku_id;size:32;not null;index"`
	ProductID *string         `json:"product_id" gorm:"size:32;index"`
	JobTypeID string          `json:"job_type_id" gorm:"size:32;not null"`
	Level     string          `json:"level" gorm:"size:16;not null"`
	Cost      decimal.Decimal `json:"cost" gorm:"type:numeric(20,6);not null"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (JobCost) TableName() string {
	return "job_costs"
}

// JobCost 级别
const (
	JobCostLevelSKU     = "sku"
	JobCostLevelProduct = "product"
)

// OtherCost 其他费用
type OtherCost struct {
	ID              string          `json:"id" gorm:"primaryKey;size:32"`
	RFQID           string          `json:"rfq_id" gorm:"size:32;not null;index"`
	SKUID           string          `json:"sku_id" gorm:"column:sku_id;size:32;not null;uniqueIndex:uq_other_costs_sku_type"`
	OtherCostTypeID string          `json:"other_cost_type_id" gorm:"size:32;not null;uniqueIndex:uq_other_costs_sku_type"`
	CostPerKg       decimal.Decimal `json:"cost_per_kg" gorm:"type:numeric(20,6);not null"`
	Cost            decimal.Decimal `json:"cost" gorm:"type:numeric(20,6);not null"`
	Status          bool            `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (OtherCost) TableName() string {
	return "other_costs"
}
