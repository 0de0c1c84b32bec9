package service

import (
	"context"
	"errors"
	"time"

	"github.com/bitfantasy/nimo-quote/internal/metrics"
	"github.com/bitfantasy/nimo-quote/internal/quote/costing"
	"github.com/bitfantasy/nimo-quote/internal/quote/entity"
	"github.com/bitfantasy/nimo-quote/internal/quote/repository"
	"github.com/bitfantasy/nimo-quote/internal/shared/errs"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// 计算环节
const (
	StageYield            = "yield"
	StageBOMCost          = "bom_cost"
	StageAssembly         = "assembly"
	StageJobCost          = "job_cost"
	StageOtherCost        = "other_cost"
	StageSubtotal         = "subtotal"
	StageOverhead         = "overhead"
	StageFactoryTotal     = "factory_total"
	StageFreightInsurance = "freight_insurance"
	StageCIF              = "cif"
	StageMargin           = "margin"
	StageCurrency         = "currency"
	StageAutoCalculate    = "auto_calculate"
)

var stageMessages = map[string]string{
	StageYield:            "yield and net weight updated",
	StageBOMCost:          "BOM cost per kg updated",
	StageAssembly:         "assembly weight and cost computed",
	StageJobCost:          "job costs saved",
	StageOtherCost:        "other cost saved",
	StageSubtotal:         "subtotal computed",
	StageOverhead:         "overhead updated",
	StageFactoryTotal:     "factory total computed",
	StageFreightInsurance: "freight and insurance updated",
	StageCIF:              "CIF computed",
	StageMargin:           "margin and total cost updated",
	StageCurrency:         "client currency cost updated",
	StageAutoCalculate:    "rfq costs recalculated",
}

// PipelineService 成本计算流水线，每个环节通过 Selector 选择操作的台账
type PipelineService struct {
	repos      *repository.Repositories
	currencies *CurrencyCache
	logger     *zap.Logger
}

func NewPipelineService(repos *repository.Repositories, currencies *CurrencyCache, logger *zap.Logger) *PipelineService {
	return &PipelineService{repos: repos, currencies: currencies, logger: logger}
}

// run 统一处理结果、日志和指标
func (s *PipelineService) run(ctx context.Context, stage string, fn func() (interface{}, error)) (*StageResult, error) {
	start := time.Now()
	data, err := fn()
	if err == nil {
		metrics.ObserveStage(stage, metrics.ResultSuccess, start)
		return &StageResult{Success: true, Message: stageMessages[stage], Stage: stage, Data: data}, nil
	}
	if errs.IsBusiness(err) {
		metrics.ObserveStage(stage, metrics.ResultRejected, start)
		var e *errs.Error
		errors.As(err, &e)
		return &StageResult{Success: false, Message: e.Message, Stage: stage, Kind: e.Kind}, nil
	}

	metrics.ObserveStage(stage, metrics.ResultError, start)
	s.logger.Error("costing stage failed", zap.String("stage", stage), zap.Error(err))
	if errs.Is(err, errs.KindDatabase) {
		return nil, err
	}
	return nil, errs.Internal(stage, err)
}

// ========== 输入 ==========

type YieldInput struct {
	ProductID       string           `json:"product_id" validate:"required"`
	YieldPercentage *decimal.Decimal `json:"yield_percentage"`
	NetWeight       *decimal.Decimal `json:"net_weight"`
}

type BOMCostInput struct {
	ProductID string           `json:"product_id" validate:"required"`
	CostPerKg *decimal.Decimal `json:"cost_per_kg" validate:"required"`
}

type JobCostEntry struct {
	ProductID string           `json:"product_id"`
	Cost      *decimal.Decimal `json:"cost"`
}

type JobCostInput struct {
	RFQID     string         `json:"rfq_id" validate:"required"`
	SKUID     string         `json:"sku_id" validate:"required"`
	JobTypeID string         `json:"job_type_id" validate:"required"`
	Level     string         `json:"level" validate:"required,oneof=sku product"`
	Entries   []JobCostEntry `json:"entries" validate:"min=1"`
}

type OtherCostInput struct {
	OtherCostTypeID string           `json:"other_cost_type_id" validate:"required"`
	SKUID           string           `json:"sku_id" validate:"required"`
	RFQID           string           `json:"rfq_id" validate:"required"`
	CostPerKg       *decimal.Decimal `json:"cost_per_kg" validate:"required"`
	Cost            *decimal.Decimal `json:"cost" validate:"required"`
	Status          *bool            `json:"status" validate:"required"`
}

type FreightInsuranceInput struct {
	SKUID              string           `json:"sku_id" validate:"required"`
	FreightCostPerKg   *decimal.Decimal `json:"freight_cost_per_kg"`
	InsuranceCostPerKg *decimal.Decimal `json:"insurance_cost_per_kg"`
}

// SubtotalBreakdown 小计明细
type SubtotalBreakdown struct {
	SKUID        string          `json:"sku_id"`
	AssemblyCost decimal.Decimal `json:"assembly_cost"`
	JobCosts     decimal.Decimal `json:"job_costs"`
	OtherCosts   decimal.Decimal `json:"other_costs"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

// ========== 环节 1-2：物料输入 ==========

// UpdateYield 环节1：良率/净重
func (s *PipelineService) UpdateYield(ctx context.Context, sel Selector, in YieldInput) (*StageResult, error) {
	return s.run(ctx, StageYield, func() (interface{}, error) {
		if err := validateInput(in); err != nil {
			return nil, err
		}
		if in.YieldPercentage == nil && in.NetWeight == nil {
			return nil, errs.Validation("yield_percentage or net_weight is required")
		}
		fields := map[string]interface{}{}
		if in.YieldPercentage != nil {
			if err := costing.ValidateYield(*in.YieldPercentage); err != nil {
				return nil, err
			}
			fields["yield_percentage"] = *in.YieldPercentage
		}
		if in.NetWeight != nil {
			if err := costing.ValidatePositive("net weight", *in.NetWeight); err != nil {
				return nil, err
			}
			fields["net_weight"] = *in.NetWeight
		}

		var product *entity.Product
		err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
			p, err := resolveProduct(ctx, tx, in.ProductID, sel)
			if err != nil {
				return asValidation(err)
			}
			if err := tx.SKU.UpdateProductFields(ctx, p.ID, fields); err != nil {
				return err
			}
			product, err = tx.SKU.FindProduct(ctx, p.ID)
			return err
		})
		return product, err
	})
}

// UpdateBOMCost 环节2：BOM单价
func (s *PipelineService) UpdateBOMCost(ctx context.Context, sel Selector, in BOMCostInput) (*StageResult, error) {
	return s.run(ctx, StageBOMCost, func() (interface{}, error) {
		if err := validateInput(in); err != nil {
			return nil, err
		}
		if err := costing.ValidatePositive("BOM cost per kg", *in.CostPerKg); err != nil {
			return nil, err
		}

		var product *entity.Product
		err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
			p, err := resolveProduct(ctx, tx, in.ProductID, sel)
			if err != nil {
				return asValidation(err)
			}
			if err := tx.SKU.UpdateProductFields(ctx, p.ID, map[string]interface{}{"bom_cost_per_kg": *in.CostPerKg}); err != nil {
				return err
			}
			product, err = tx.SKU.FindProduct(ctx, p.ID)
			return err
		})
		return product, err
	})
}

// ========== 环节 3：组件重量/成本 ==========

// ComputeAssembly 环节3，并级联重算已具备输入的下游字段
func (s *PipelineService) ComputeAssembly(ctx context.Context, sel Selector, skuID string) (*StageResult, error) {
	return s.run(ctx, StageAssembly, func() (interface{}, error) {
		return s.deriveSKU(ctx, sel, skuID, costing.StepAssembly, costing.StepAssembly, nil)
	})
}

// ========== 环节 4-5：工序成本、其他费用 ==========

// SaveJobCosts 环节4。SKU级只保留第一条；物料级每条都必须带物料ID和成本，否则整体失败。
func (s *PipelineService) SaveJobCosts(ctx context.Context, sel Selector, in JobCostInput) (*StageResult, error) {
	return s.run(ctx, StageJobCost, func() (interface{}, error) {
		if err := validateInput(in); err != nil {
			return nil, err
		}
		for i, e := range in.Entries {
			if e.Cost == nil {
				return nil, errs.Validation("entries[%d].cost is required", i)
			}
			if e.Cost.IsNegative() {
				return nil, errs.Validation("entries[%d].cost must not be negative", i)
			}
			if in.Level == entity.JobCostLevelProduct && e.ProductID == "" {
				return nil, errs.Validation("entries[%d].product_id is required for product level job costs", i)
			}
			if in.Level == entity.JobCostLevelSKU {
				break
			}
		}

		var saved []entity.JobCost
		err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
			if _, err := tx.Master.FindJobType(ctx, in.JobTypeID); err != nil {
				return notFound(err, "job type %s does not exist", in.JobTypeID)
			}
			sku, err := s.skuInRFQ(ctx, tx, in.RFQID, in.SKUID, sel)
			if err != nil {
				return err
			}

			now := time.Now()
			if in.Level == entity.JobCostLevelSKU {
				saved = []entity.JobCost{{
					ID: newID(), RFQID: sku.RFQID, SKUID: sku.ID, JobTypeID: in.JobTypeID,
					Level: entity.JobCostLevelSKU, Cost: *in.Entries[0].Cost, CreatedAt: now, UpdatedAt: now,
				}}
			} else {
				saved = make([]entity.JobCost, 0, len(in.Entries))
				for _, e := range in.Entries {
					p, err := resolveProduct(ctx, tx, e.ProductID, sel)
					if err != nil {
						return asValidation(err)
					}
					if p.SKUID != sku.ID {
						return errs.Validation("product %s does not belong to sku %s", e.ProductID, in.SKUID)
					}
					productID := p.ID
					saved = append(saved, entity.JobCost{
						ID: newID(), RFQID: sku.RFQID, SKUID: sku.ID, ProductID: &productID, JobTypeID: in.JobTypeID,
						Level: entity.JobCostLevelProduct, Cost: *e.Cost, CreatedAt: now, UpdatedAt: now,
					})
				}
			}
			return tx.Ledger.ReplaceJobCosts(ctx, sku.RFQID, sku.ID, in.JobTypeID, saved)
		})
		return saved, err
	})
}

// SaveOtherCost 环节5
func (s *PipelineService) SaveOtherCost(ctx context.Context, sel Selector, in OtherCostInput) (*StageResult, error) {
	return s.run(ctx, StageOtherCost, func() (interface{}, error) {
		if err := validateInput(in); err != nil {
			return nil, err
		}
		if in.CostPerKg.IsNegative() || in.Cost.IsNegative() {
			return nil, errs.Validation("other costs must not be negative")
		}

		var oc *entity.OtherCost
		err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
			if _, err := tx.Master.FindOtherCostType(ctx, in.OtherCostTypeID); err != nil {
				return notFound(err, "other cost type %s does not exist", in.OtherCostTypeID)
			}
			sku, err := s.skuInRFQ(ctx, tx, in.RFQID, in.SKUID, sel)
			if err != nil {
				return err
			}
			now := time.Now()
			oc = &entity.OtherCost{
				ID: newID(), RFQID: sku.RFQID, SKUID: sku.ID, OtherCostTypeID: in.OtherCostTypeID,
				CostPerKg: *in.CostPerKg, Cost: *in.Cost, Status: *in.Status, CreatedAt: now, UpdatedAt: now,
			}
			return tx.Ledger.UpsertOtherCost(ctx, oc)
		})
		return oc, err
	})
}

// ========== 环节 6：小计（实时计算，不落库） ==========

func (s *PipelineService) Subtotal(ctx context.Context, sel Selector, skuID string) (*StageResult, error) {
	return s.run(ctx, StageSubtotal, func() (interface{}, error) {
		sku, err := resolveSKU(ctx, s.repos, skuID, sel)
		if err != nil {
			return nil, err
		}
		ledger, err := s.repos.Ledger.Get(ctx, sku.ID)
		if err != nil {
			return nil, notFound(err, "cost ledger for sku %s does not exist", sku.ID)
		}
		in, err := s.loadInputs(ctx, s.repos, ledger, false)
		if err != nil {
			return nil, err
		}
		subtotal, err := costing.Subtotal(ledger.AssemblyCost, in.JobCosts, in.OtherCosts)
		if err != nil {
			return nil, err
		}
		return &SubtotalBreakdown{
			SKUID:        sku.ID,
			AssemblyCost: ledger.AssemblyCost.Decimal,
			JobCosts:     sum(in.JobCosts),
			OtherCosts:   sum(in.OtherCosts),
			Subtotal:     subtotal,
		}, nil
	})
}

// ========== 环节 7-12：台账输入并级联 ==========

// SetOverhead 环节7
func (s *PipelineService) SetOverhead(ctx context.Context, sel Selector, skuID string, pct decimal.Decimal) (*StageResult, error) {
	return s.run(ctx, StageOverhead, func() (interface{}, error) {
		if err := costing.ValidatePositive("overhead percentage", pct); err != nil {
			return nil, err
		}
		return s.deriveSKU(ctx, sel, skuID, costing.StepSubtotal, costing.StepOverhead, func(l *entity.CostLedger) {
			l.OverheadPercentage = costing.Null(pct)
		})
	})
}

// SetFreightInsurance 环节9：写入后在同一事务内重算CIF
func (s *PipelineService) SetFreightInsurance(ctx context.Context, sel Selector, in FreightInsuranceInput) (*StageResult, error) {
	return s.run(ctx, StageFreightInsurance, func() (interface{}, error) {
		if err := validateInput(in); err != nil {
			return nil, err
		}
		if in.FreightCostPerKg == nil && in.InsuranceCostPerKg == nil {
			return nil, errs.Validation("freight_cost_per_kg or insurance_cost_per_kg is required")
		}
		if in.FreightCostPerKg != nil {
			if err := costing.ValidatePositive("freight cost per kg", *in.FreightCostPerKg); err != nil {
				return nil, err
			}
		}
		if in.InsuranceCostPerKg != nil {
			if err := costing.ValidatePositive("insurance cost per kg", *in.InsuranceCostPerKg); err != nil {
				return nil, err
			}
		}
		return s.deriveSKU(ctx, sel, in.SKUID, costing.StepSubtotal, costing.StepCIF, func(l *entity.CostLedger) {
			if in.FreightCostPerKg != nil {
				l.FreightCostPerKg = costing.Null(*in.FreightCostPerKg)
			}
			if in.InsuranceCostPerKg != nil {
				l.InsuranceCostPerKg = costing.Null(*in.InsuranceCostPerKg)
			}
		})
	})
}

// ComputeCIF 环节10：单独重算
func (s *PipelineService) ComputeCIF(ctx context.Context, sel Selector, skuID string) (*StageResult, error) {
	return s.run(ctx, StageCIF, func() (interface{}, error) {
		return s.deriveSKU(ctx, sel, skuID, costing.StepSubtotal, costing.StepCIF, nil)
	})
}

// SetMargin 环节11：利润率与总成本同一事务，总成本失败则利润率不落库
func (s *PipelineService) SetMargin(ctx context.Context, sel Selector, skuID string, pct decimal.Decimal) (*StageResult, error) {
	return s.run(ctx, StageMargin, func() (interface{}, error) {
		if err := costing.ValidatePositive("margin percentage", pct); err != nil {
			return nil, err
		}
		return s.deriveSKU(ctx, sel, skuID, costing.StepSubtotal, costing.StepTotal, func(l *entity.CostLedger) {
			l.MarginPercentage = costing.Null(pct)
		})
	})
}

// SetClientCurrency 环节12
func (s *PipelineService) SetClientCurrency(ctx context.Context, sel Selector, skuID, currencyID string) (*StageResult, error) {
	return s.run(ctx, StageCurrency, func() (interface{}, error) {
		if currencyID == "" {
			return nil, errs.Validation("currency_id is required")
		}
		// 选择币种时以主数据为准，停用的币种不再从缓存返回
		if _, err := s.currencies.Verify(ctx, currencyID); err != nil {
			return nil, err
		}
		return s.deriveSKU(ctx, sel, skuID, costing.StepCurrency, costing.StepCurrency, func(l *entity.CostLedger) {
			id := currencyID
			l.ClientCurrencyID = &id
		})
	})
}

// ========== 环节 8、13：RFQ 级 ==========

// FactoryTotal 环节8：汇总到RFQ，要求每个SKU都已有管理费
func (s *PipelineService) FactoryTotal(ctx context.Context, sel Selector, rfqID string) (*StageResult, error) {
	return s.run(ctx, StageFactoryTotal, func() (interface{}, error) {
		var rfq *entity.RFQ
		err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
			var err error
			rfq, err = s.lockRFQ(ctx, tx, rfqID, sel)
			if err != nil {
				return err
			}
			ledgers, err := tx.Ledger.ListByRFQ(ctx, rfq.ID, true)
			if err != nil {
				return err
			}
			agg, err := costing.RollUp(ledgers)
			if err != nil {
				return err
			}
			agg.Apply(rfq)
			return tx.RFQ.SaveAggregates(ctx, rfq)
		})
		return rfq, err
	})
}

// AutoCalculate 环节13：对RFQ下每个SKU重跑3-11并汇总，任一SKU失败整体回滚
func (s *PipelineService) AutoCalculate(ctx context.Context, sel Selector, rfqID string) (*StageResult, error) {
	return s.run(ctx, StageAutoCalculate, func() (interface{}, error) {
		var rfq *entity.RFQ
		err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
			var err error
			rfq, err = s.lockRFQ(ctx, tx, rfqID, sel)
			if err != nil {
				return err
			}
			ledgers, err := tx.Ledger.ListByRFQ(ctx, rfq.ID, true)
			if err != nil {
				return err
			}
			if len(ledgers) == 0 {
				return errs.Incomplete("rfq %s has no skus", rfq.ID)
			}
			for i := range ledgers {
				l := &ledgers[i]
				in, err := s.loadInputs(ctx, tx, l, true)
				if err != nil {
					return err
				}
				if err := costing.Derive(l, in, costing.StepAssembly, costing.StepAssembly); err != nil {
					return err
				}
				if err := tx.Ledger.Save(ctx, l); err != nil {
					return err
				}
			}

			agg, err := costing.RollUp(ledgers)
			if err != nil {
				if !errs.Is(err, errs.KindIncomplete) {
					return err
				}
				// 有SKU尚未设置管理费，汇总置空
				agg = costing.Aggregates{}
			}
			agg.Apply(rfq)
			return tx.RFQ.SaveAggregates(ctx, rfq)
		})
		return rfq, err
	})
}

// ========== 内部 ==========

// deriveSKU 锁定台账，应用输入并推导，成功后整行写回。任一步失败整个事务回滚。
func (s *PipelineService) deriveSKU(ctx context.Context, sel Selector, skuID string, from, target costing.Step, apply func(l *entity.CostLedger)) (*entity.CostLedger, error) {
	var ledger *entity.CostLedger
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		sku, err := resolveSKU(ctx, tx, skuID, sel)
		if err != nil {
			return err
		}
		l, err := tx.Ledger.GetForUpdate(ctx, sku.ID)
		if err != nil {
			return notFound(err, "cost ledger for sku %s does not exist", sku.ID)
		}
		if apply != nil {
			apply(l)
		}
		in, err := s.loadInputs(ctx, tx, l, from == costing.StepAssembly)
		if err != nil {
			return err
		}
		if err := costing.Derive(l, in, from, target); err != nil {
			return err
		}
		if err := tx.Ledger.Save(ctx, l); err != nil {
			return err
		}
		ledger = l
		return nil
	})
	return ledger, err
}

// loadInputs 读取推导所需的物料、工序、其他费用和币种系数
func (s *PipelineService) loadInputs(ctx context.Context, repos *repository.Repositories, l *entity.CostLedger, withProducts bool) (costing.Inputs, error) {
	var in costing.Inputs
	if withProducts {
		products, err := repos.SKU.ListProducts(ctx, l.SKUID)
		if err != nil {
			return in, err
		}
		for _, p := range products {
			in.Products = append(in.Products, costing.ProductFigures{
				ID:                  p.ID,
				QuantityPerAssembly: p.QuantityPerAssembly,
				YieldPercentage:     p.YieldPercentage,
				NetWeight:           p.NetWeight,
				BOMCostPerKg:        p.BOMCostPerKg,
			})
		}
	}

	jobs, err := repos.Ledger.ListJobCostsBySKU(ctx, l.SKUID)
	if err != nil {
		return in, err
	}
	for _, j := range jobs {
		in.JobCosts = append(in.JobCosts, j.Cost)
	}
	others, err := repos.Ledger.ListOtherCosts(ctx, l.SKUID)
	if err != nil {
		return in, err
	}
	for _, o := range others {
		if o.Status {
			in.OtherCosts = append(in.OtherCosts, o.Cost)
		}
	}

	if l.ClientCurrencyID != nil {
		factor, err := s.currencies.Factor(ctx, *l.ClientCurrencyID)
		if err != nil {
			return in, err
		}
		in.CurrencyFactor = costing.Null(factor)
	}
	return in, nil
}

// skuInRFQ 按选择器定位SKU，并校验其属于给定RFQ谱系
func (s *PipelineService) skuInRFQ(ctx context.Context, tx *repository.Repositories, rfqID, skuID string, sel Selector) (*entity.SKU, error) {
	rfq, err := resolveRFQ(ctx, tx, rfqID, sel)
	if err != nil {
		return nil, err
	}
	sku, err := resolveSKU(ctx, tx, skuID, sel)
	if err != nil {
		return nil, err
	}
	if sku.RFQID != rfq.ID {
		return nil, errs.Validation("sku %s does not belong to rfq %s", skuID, rfqID)
	}
	return sku, nil
}

func (s *PipelineService) lockRFQ(ctx context.Context, tx *repository.Repositories, rfqID string, sel Selector) (*entity.RFQ, error) {
	target, err := resolveRFQ(ctx, tx, rfqID, sel)
	if err != nil {
		return nil, err
	}
	rfq, err := tx.RFQ.FindByIDForUpdate(ctx, target.ID)
	if err != nil {
		return nil, notFound(err, "rfq %s does not exist", rfqID)
	}
	return rfq, nil
}

func sum(values []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
