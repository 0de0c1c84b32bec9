package costing

import (
	"github.com/bitfantasy/nimo-quote/internal/quote/entity"
	"github.com/bitfantasy/nimo-quote/internal/shared/errs"
	"github.com/shopspring/decimal"
)

// Step 台账推导步骤，按依赖顺序排列
type Step int

const (
	StepAssembly Step = iota
	StepSubtotal
	StepOverhead
	StepCIF
	StepTotal
	StepCurrency
)

var stepNames = map[Step]string{
	StepAssembly: "assembly",
	StepSubtotal: "subtotal",
	StepOverhead: "overhead",
	StepCIF:      "cif",
	StepTotal:    "total",
	StepCurrency: "currency",
}

func (s Step) String() string {
	return stepNames[s]
}

// Inputs 推导所需的非台账数据
type Inputs struct {
	Products       []ProductFigures
	JobCosts       []decimal.Decimal
	OtherCosts     []decimal.Decimal
	CurrencyFactor decimal.NullDecimal // ledger.ClientCurrencyID 对应的换算系数
}

// Derive 从 from 开始依次重算台账字段。
// target 之前(含)的步骤缺少用户输入时返回 IncompletePrerequisite，
// target 之后的步骤缺少用户输入时静默停止。出错时台账可能已部分修改，调用方负责回滚。
func Derive(l *entity.CostLedger, in Inputs, from, target Step) error {
	for step := from; step <= StepCurrency; step++ {
		done, err := deriveStep(l, in, step, step <= target)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return nil
}

// deriveStep 返回 done=true 表示链路在此停止
func deriveStep(l *entity.CostLedger, in Inputs, step Step, required bool) (bool, error) {
	switch step {
	case StepAssembly:
		weight, cost, err := Assembly(in.Products)
		if err != nil {
			return true, err
		}
		l.AssemblyWeight = Null(weight)
		l.AssemblyCost = Null(cost)

	case StepSubtotal:
		subtotal, err := Subtotal(l.AssemblyCost, in.JobCosts, in.OtherCosts)
		if err != nil {
			return true, err
		}
		l.SubtotalCost = Null(subtotal)

	case StepOverhead:
		if !l.OverheadPercentage.Valid {
			return stop(required, "overhead percentage is not set")
		}
		if !l.SubtotalCost.Valid {
			return true, errs.Incomplete("subtotal cost has not been computed")
		}
		cost, err := OverheadCost(l.SubtotalCost.Decimal, l.OverheadPercentage.Decimal)
		if err != nil {
			return true, err
		}
		l.OverheadCost = Null(cost)

	case StepCIF:
		if !l.FreightCostPerKg.Valid && !l.InsuranceCostPerKg.Valid {
			return stop(required, "freight or insurance cost per kg is not set")
		}
		freight, insurance, err := FreightInsurance(l.AssemblyWeight, l.FreightCostPerKg, l.InsuranceCostPerKg)
		if err != nil {
			return true, err
		}
		cif, err := CIF(l.SubtotalCost, l.OverheadCost, freight, insurance)
		if err != nil {
			return true, err
		}
		l.FreightCost = Null(freight)
		l.InsuranceCost = Null(insurance)
		l.CIFCost = Null(cif)

	case StepTotal:
		if !l.MarginPercentage.Valid {
			return stop(required, "margin percentage is not set")
		}
		total, err := TotalCost(l.CIFCost, l.MarginPercentage.Decimal)
		if err != nil {
			return true, err
		}
		l.TotalCost = Null(total)

	case StepCurrency:
		if l.ClientCurrencyID == nil {
			return stop(required, "client currency is not set")
		}
		if !in.CurrencyFactor.Valid {
			return true, errs.Incomplete("conversion factor for currency %s is unknown", *l.ClientCurrencyID)
		}
		converted, err := ConvertCurrency(l.TotalCost, in.CurrencyFactor.Decimal)
		if err != nil {
			return true, err
		}
		l.ClientCurrencyCost = Null(converted)
	}
	return false, nil
}

func stop(required bool, msg string) (bool, error) {
	if required {
		return true, errs.Incomplete("%s", msg)
	}
	return true, nil
}

// FactoryCost 出厂成本 = 小计 + 管理费
func FactoryCost(l *entity.CostLedger) (decimal.Decimal, bool) {
	if !l.SubtotalCost.Valid || !l.OverheadCost.Valid {
		return decimal.Zero, false
	}
	return l.SubtotalCost.Decimal.Add(l.OverheadCost.Decimal), true
}
