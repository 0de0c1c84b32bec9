package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// 主数据由外部维护，这里只读取

// Client 客户
type Client struct {
	ID         string    `json:"id" gorm:"primaryKey;size:32"`
	Name       string    `json:"name" gorm:"size:200;not null"`
	CurrencyID *string   `json:"currency_id" gorm:"size:32"`
	Status     bool      `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (Client) TableName() string {
	return "clients"
}

// Plant 工厂
type Plant struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	Name        string    `json:"name" gorm:"size:100;not null;uniqueIndex"`
	PlantHeadID *string   `json:"plant_head_id" gorm:"size:32"`
	City        string    `json:"city" gorm:"size:100"`
	Status      bool      `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Plant) TableName() string {
	return "plants"
}

// Currency 币种，Value 为本币到该币种的换算系数
type Currency struct {
	ID        string          `json:"id" gorm:"primaryKey;size:32"`
	Name      string          `json:"name" gorm:"size:30;not null"`
	Code      string          `json:"code" gorm:"size:10;not null"`
	Value     decimal.Decimal `json:"value" gorm:"type:numeric(16,6);not null"`
	Status    bool            `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (Currency) TableName() string {
	return "currencies"
}

// RawMaterial 原材料
type RawMaterial struct {
	ID        string          `json:"id" gorm:"primaryKey;size:32"`
	Name      string          `json:"name" gorm:"size:64;not null"`
	Rate      decimal.Decimal `json:"rate" gorm:"type:numeric(16,4);not null"`
	ScrapRate decimal.Decimal `json:"scrap_rate" gorm:"type:numeric(8,4);not null"`
	Status    bool            `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (RawMaterial) TableName() string {
	return "raw_materials"
}

// JobType 工序类型
type JobType struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	Name      string    `json:"name" gorm:"size:100;not null;uniqueIndex"`
	Status    bool      `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (JobType) TableName() string {
	return "job_types"
}

// OtherCostType 其他费用类型
type OtherCostType struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	Name      string    `json:"name" gorm:"size:100;not null;uniqueIndex"`
	Status    bool      `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (OtherCostType) TableName() string {
	return "other_cost_types"
}

// User 用户（身份由认证服务签发，这里仅用于校验存在性和角色）
type User struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	Name      string    `json:"name" gorm:"size:100;not null"`
	Email     string    `json:"email" gorm:"size:200"`
	RoleID    string    `json:"role_id" gorm:"size:32;not null"`
	Status    bool      `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// 角色
const (
	RoleAdmin     = "admin"
	RoleSales     = "sales"
	RoleManager   = "manager"
	RolePlantHead = "plant_head"
	RoleEngineer  = "engineer"
)
