// Package costing 成本计算公式，纯函数，不访问数据库
package costing

import (
	"github.com/bitfantasy/nimo-quote/internal/shared/errs"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ProductFigures 参与组件计算的物料字段
type ProductFigures struct {
	ID                  string
	QuantityPerAssembly decimal.NullDecimal
	YieldPercentage     decimal.NullDecimal
	NetWeight           decimal.NullDecimal
	BOMCostPerKg        decimal.NullDecimal
}

// ValidateYield 良率必须在 (0,100]
func ValidateYield(v decimal.Decimal) error {
	if !v.IsPositive() || v.GreaterThan(hundred) {
		return errs.Validation("yield percentage must be in (0, 100], got %s", v.String())
	}
	return nil
}

// ValidatePositive 校验正数
func ValidatePositive(field string, v decimal.Decimal) error {
	if !v.IsPositive() {
		return errs.Validation("%s must be greater than 0, got %s", field, v.String())
	}
	return nil
}

// EffectiveWeight 考虑良率后的单件毛重 = 净重 × 用量 × 100 / 良率
func EffectiveWeight(p ProductFigures) (decimal.Decimal, error) {
	switch {
	case !p.NetWeight.Valid:
		return decimal.Zero, errs.Incomplete("product %s has no net weight", p.ID)
	case !p.YieldPercentage.Valid:
		return decimal.Zero, errs.Incomplete("product %s has no yield percentage", p.ID)
	case !p.QuantityPerAssembly.Valid:
		return decimal.Zero, errs.Incomplete("product %s has no quantity per assembly", p.ID)
	}
	if !p.YieldPercentage.Decimal.IsPositive() {
		return decimal.Zero, errs.Validation("product %s has non-positive yield percentage", p.ID)
	}
	return p.NetWeight.Decimal.
		Mul(p.QuantityPerAssembly.Decimal).
		Mul(hundred).
		Div(p.YieldPercentage.Decimal), nil
}

// Assembly 组件重量与组件成本。没有物料视为未就绪。
func Assembly(products []ProductFigures) (weight, cost decimal.Decimal, err error) {
	if len(products) == 0 {
		return decimal.Zero, decimal.Zero, errs.Incomplete("sku has no products to sum")
	}
	weight, cost = decimal.Zero, decimal.Zero
	for _, p := range products {
		w, err := EffectiveWeight(p)
		if err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		if !p.BOMCostPerKg.Valid {
			return decimal.Zero, decimal.Zero, errs.Incomplete("product %s has no BOM cost per kg", p.ID)
		}
		weight = weight.Add(w)
		cost = cost.Add(p.BOMCostPerKg.Decimal.Mul(w))
	}
	return weight, cost, nil
}

// Subtotal 小计 = 组件成本 + 工序成本 + 其他费用
func Subtotal(assemblyCost decimal.NullDecimal, jobCosts, otherCosts []decimal.Decimal) (decimal.Decimal, error) {
	if !assemblyCost.Valid {
		return decimal.Zero, errs.Incomplete("assembly cost has not been computed")
	}
	total := assemblyCost.Decimal
	for _, c := range jobCosts {
		total = total.Add(c)
	}
	for _, c := range otherCosts {
		total = total.Add(c)
	}
	return total, nil
}

// OverheadCost 管理费 = 小计 × 比例 / 100
func OverheadCost(subtotal, pct decimal.Decimal) (decimal.Decimal, error) {
	if err := ValidatePositive("overhead percentage", pct); err != nil {
		return decimal.Zero, err
	}
	return subtotal.Mul(pct).Div(hundred), nil
}

// FreightInsurance 运费与保险费按组件重量计算，未设置的一方按0计
func FreightInsurance(assemblyWeight decimal.NullDecimal, freightPerKg, insurancePerKg decimal.NullDecimal) (freight, insurance decimal.Decimal, err error) {
	if !freightPerKg.Valid && !insurancePerKg.Valid {
		return decimal.Zero, decimal.Zero, errs.Incomplete("neither freight nor insurance cost per kg is set")
	}
	if !assemblyWeight.Valid {
		return decimal.Zero, decimal.Zero, errs.Incomplete("assembly weight has not been computed")
	}
	freight, insurance = decimal.Zero, decimal.Zero
	if freightPerKg.Valid {
		freight = freightPerKg.Decimal.Mul(assemblyWeight.Decimal)
	}
	if insurancePerKg.Valid {
		insurance = insurancePerKg.Decimal.Mul(assemblyWeight.Decimal)
	}
	return freight, insurance, nil
}

// CIF 到岸成本 = 出厂成本(小计+管理费) + 运费 + 保险费
func CIF(subtotal, overhead decimal.NullDecimal, freight, insurance decimal.Decimal) (decimal.Decimal, error) {
	if !subtotal.Valid || !overhead.Valid {
		return decimal.Zero, errs.Incomplete("factory cost requires subtotal and overhead cost")
	}
	return subtotal.Decimal.Add(overhead.Decimal).Add(freight).Add(insurance), nil
}

// TotalCost 总成本 = CIF × (1 + 利润率/100)
func TotalCost(cif decimal.NullDecimal, margin decimal.Decimal) (decimal.Decimal, error) {
	if err := ValidatePositive("margin percentage", margin); err != nil {
		return decimal.Zero, err
	}
	if !cif.Valid {
		return decimal.Zero, errs.Incomplete("CIF cost has not been computed")
	}
	return cif.Decimal.Mul(hundred.Add(margin)).Div(hundred), nil
}

// ConvertCurrency 按客户币种换算
func ConvertCurrency(total decimal.NullDecimal, factor decimal.Decimal) (decimal.Decimal, error) {
	if !total.Valid {
		return decimal.Zero, errs.Incomplete("total cost has not been computed")
	}
	if !factor.IsPositive() {
		return decimal.Zero, errs.Validation("currency conversion factor must be greater than 0")
	}
	return total.Decimal.Mul(factor), nil
}

// Null 构造有效的 NullDecimal
func Null(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
