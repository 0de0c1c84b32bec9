package costing

import (
	"github.com/bitfantasy/nimo-quote/internal/quote/entity"
	"github.com/bitfantasy/nimo-quote/internal/shared/errs"
	"github.com/shopspring/decimal"
)

// Aggregates RFQ 汇总成本
type Aggregates struct {
	FreightCost         decimal.NullDecimal
	FactoryOverheadCost decimal.NullDecimal
	InsuranceCost       decimal.NullDecimal
	MarginCost          decimal.NullDecimal
	CIFCost             decimal.NullDecimal
	FOBCost             decimal.NullDecimal
	TotalCostToCustomer decimal.NullDecimal
}

// RollUp 汇总全部SKU台账。管理费必须每个SKU都已计算，
// 其余字段只有在所有SKU都有值时才汇总，否则为NULL。
func RollUp(ledgers []entity.CostLedger) (Aggregates, error) {
	var agg Aggregates
	if len(ledgers) == 0 {
		return agg, errs.Incomplete("rfq has no skus")
	}

	sum := func(get func(l *entity.CostLedger) decimal.NullDecimal) decimal.NullDecimal {
		total := decimal.Zero
		for i := range ledgers {
			v := get(&ledgers[i])
			if !v.Valid {
				return decimal.NullDecimal{}
			}
			total = total.Add(v.Decimal)
		}
		return Null(total)
	}

	agg.FactoryOverheadCost = sum(func(l *entity.CostLedger) decimal.NullDecimal { return l.OverheadCost })
	if !agg.FactoryOverheadCost.Valid {
		for i := range ledgers {
			if !ledgers[i].OverheadCost.Valid {
				return Aggregates{}, errs.Incomplete("sku %s has no overhead cost", ledgers[i].SKUID)
			}
		}
	}
	agg.FOBCost = sum(func(l *entity.CostLedger) decimal.NullDecimal {
		if v, ok := FactoryCost(l); ok {
			return Null(v)
		}
		return decimal.NullDecimal{}
	})
	agg.FreightCost = sum(func(l *entity.CostLedger) decimal.NullDecimal { return l.FreightCost })
	agg.InsuranceCost = sum(func(l *entity.CostLedger) decimal.NullDecimal { return l.InsuranceCost })
	agg.CIFCost = sum(func(l *entity.CostLedger) decimal.NullDecimal { return l.CIFCost })
	agg.TotalCostToCustomer = sum(func(l *entity.CostLedger) decimal.NullDecimal { return l.TotalCost })
	if agg.TotalCostToCustomer.Valid && agg.CIFCost.Valid {
		agg.MarginCost = Null(agg.TotalCostToCustomer.Decimal.Sub(agg.CIFCost.Decimal))
	}
	return agg, nil
}

// Apply 把汇总结果写回 RFQ
func (a Aggregates) Apply(r *entity.RFQ) {
	r.FreightCost = a.FreightCost
	r.FactoryOverheadCost = a.FactoryOverheadCost
	r.InsuranceCost = a.InsuranceCost
	r.MarginCost = a.MarginCost
	r.CIFCost = a.CIFCost
	r.FOBCost = a.FOBCost
	r.TotalCostToCustomer = a.TotalCostToCustomer
}
