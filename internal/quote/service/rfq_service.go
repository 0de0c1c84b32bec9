package service

import (
	"context"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-quote/internal/quote/costing"
	"github.com/bitfantasy/nimo-quote/internal/quote/entity"
	"github.com/bitfantasy/nimo-quote/internal/quote/lifecycle"
	"github.com/bitfantasy/nimo-quote/internal/quote/repository"
	"github.com/bitfantasy/nimo-quote/internal/shared/errs"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RFQService 询价单录入与查询
type RFQService struct {
	repos  *repository.Repositories
	logger *zap.Logger
}

func NewRFQService(repos *repository.Repositories, logger *zap.Logger) *RFQService {
	return &RFQService{repos: repos, logger: logger}
}

type ProductInput struct {
	Name                string           `json:"name" validate:"required"`
	RawMaterialID       *string          `json:"raw_material_id"`
	RawMaterialType     string           `json:"raw_material_type"`
	QuantityPerAssembly *decimal.Decimal `json:"quantity_per_assembly" validate:"required"`
	YieldPercentage     *decimal.Decimal `json:"yield_percentage"`
	NetWeight           *decimal.Decimal `json:"net_weight"`
	BOMCostPerKg        *decimal.Decimal `json:"bom_cost_per_kg"`
}

type SKUInput struct {
	Name        string           `json:"name" validate:"required"`
	Repeat      *int             `json:"repeat"`
	ToolingCost *decimal.Decimal `json:"tooling_cost"`
	AnnualUsage *decimal.Decimal `json:"annual_usage"`
	PackingCost *decimal.Decimal `json:"packing_cost"`
	DrawingNo   string           `json:"drawing_no"`
	Size        *decimal.Decimal `json:"size"`
	Description string           `json:"description"`
	Products    []ProductInput   `json:"products" validate:"dive"`
}

type CreateRFQInput struct {
	Name      string     `json:"name" validate:"required"`
	ClientID  string     `json:"client_id" validate:"required"`
	CreatedBy string     `json:"created_by" validate:"required"`
	SKUs      []SKUInput `json:"skus" validate:"min=1,dive"`
}

// CreateRFQ 新建询价单（版本0），SKU、空台账、物料和版本记录同一事务写入
func (s *RFQService) CreateRFQ(ctx context.Context, in CreateRFQInput) (*entity.RFQ, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validateInput(in); err != nil {
		return nil, err
	}

	var created *entity.RFQ
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if _, err := tx.Master.FindClient(ctx, in.ClientID); err != nil {
			return notFound(err, "client %s does not exist", in.ClientID)
		}
		if _, err := tx.Master.FindUser(ctx, in.CreatedBy); err != nil {
			return notFound(err, "user %s does not exist", in.CreatedBy)
		}

		now := time.Now()
		id := newID()
		rfq := &entity.RFQ{
			ID:        id,
			Name:      in.Name,
			ClientID:  in.ClientID,
			CreatedBy: in.CreatedBy,
			State:     entity.StateDraft,
			RootID:    id,
			Version:   0,
			IsLatest:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.RFQ.Create(ctx, rfq); err != nil {
			return err
		}

		skus := make([]entity.SKU, 0, len(in.SKUs))
		ledgers := make([]entity.CostLedger, 0, len(in.SKUs))
		var products []entity.Product
		for _, si := range in.SKUs {
			skuID := newID()
			skus = append(skus, entity.SKU{
				ID:          skuID,
				RFQID:       id,
				LineageID:   skuID,
				Name:        si.Name,
				Repeat:      si.Repeat,
				ToolingCost: nullable(si.ToolingCost),
				AnnualUsage: nullable(si.AnnualUsage),
				PackingCost: nullable(si.PackingCost),
				DrawingNo:   si.DrawingNo,
				Size:        nullable(si.Size),
				Description: si.Description,
				Status:      entity.SKUStatusActive,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
			ledgers = append(ledgers, entity.CostLedger{SKUID: skuID, RFQID: id, UpdatedAt: now})
			built, err := s.buildProducts(ctx, tx, skuID, si.Products, now)
			if err != nil {
				return err
			}
			products = append(products, built...)
		}
		if err := tx.SKU.CreateBatch(ctx, skus); err != nil {
			return err
		}
		if err := tx.Ledger.CreateBatch(ctx, ledgers); err != nil {
			return err
		}
		if err := tx.SKU.CreateProducts(ctx, products); err != nil {
			return err
		}
		if err := tx.RFQ.CreateRevision(ctx, &entity.RFQRevision{
			ID:        newID(),
			RootID:    id,
			RFQID:     id,
			Version:   0,
			CreatedBy: in.CreatedBy,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		if err := tx.Assignment.Append(ctx, &entity.Assignment{
			ID:         newID(),
			RFQID:      id,
			Action:     entity.ActionCreate,
			FromUserID: in.CreatedBy,
			ToState:    entity.StateDraft,
			CreatedAt:  now,
		}); err != nil {
			return err
		}
		created = rfq
		return nil
	})
	if err != nil {
		if !errs.IsBusiness(err) {
			s.logger.Error("create rfq failed", zap.String("client_id", in.ClientID), zap.Error(err))
			return nil, errs.Database("create rfq", err)
		}
		return nil, err
	}
	return s.GetRFQ(ctx, created.ID)
}

// buildProducts 校验并构造物料，引用原材料且未给出BOM单价时取原材料单价
func (s *RFQService) buildProducts(ctx context.Context, tx *repository.Repositories, skuID string, inputs []ProductInput, now time.Time) ([]entity.Product, error) {
	var materialIDs []string
	for _, pi := range inputs {
		if err := costing.ValidatePositive("quantity per assembly", *pi.QuantityPerAssembly); err != nil {
			return nil, err
		}
		if pi.YieldPercentage != nil {
			if err := costing.ValidateYield(*pi.YieldPercentage); err != nil {
				return nil, err
			}
		}
		if pi.NetWeight != nil {
			if err := costing.ValidatePositive("net weight", *pi.NetWeight); err != nil {
				return nil, err
			}
		}
		if pi.BOMCostPerKg != nil {
			if err := costing.ValidatePositive("BOM cost per kg", *pi.BOMCostPerKg); err != nil {
				return nil, err
			}
		}
		if pi.RawMaterialID != nil && *pi.RawMaterialID != "" {
			materialIDs = append(materialIDs, *pi.RawMaterialID)
		}
	}
	materials, err := tx.Master.FindRawMaterials(ctx, materialIDs)
	if err != nil {
		return nil, err
	}

	products := make([]entity.Product, 0, len(inputs))
	for _, pi := range inputs {
		id := newID()
		p := entity.Product{
			ID:                  id,
			SKUID:               skuID,
			LineageID:           id,
			Name:                pi.Name,
			RawMaterialType:     pi.RawMaterialType,
			QuantityPerAssembly: nullable(pi.QuantityPerAssembly),
			YieldPercentage:     nullable(pi.YieldPercentage),
			NetWeight:           nullable(pi.NetWeight),
			BOMCostPerKg:        nullable(pi.BOMCostPerKg),
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if pi.RawMaterialID != nil && *pi.RawMaterialID != "" {
			m, ok := materials[*pi.RawMaterialID]
			if !ok || !m.Status {
				return nil, errs.NotFound("raw material %s does not exist or is inactive", *pi.RawMaterialID)
			}
			mid := m.ID
			p.RawMaterialID = &mid
			if p.RawMaterialType == "" {
				p.RawMaterialType = m.Name
			}
			if !p.BOMCostPerKg.Valid && m.Rate.IsPositive() {
				p.BOMCostPerKg = costing.Null(m.Rate)
			}
		}
		products = append(products, p)
	}
	return products, nil
}

func (s *RFQService) GetRFQ(ctx context.Context, id string) (*entity.RFQ, error) {
	rfq, err := s.repos.RFQ.FindDetail(ctx, id)
	if err != nil {
		return nil, notFound(err, "rfq %s does not exist", id)
	}
	return rfq, nil
}

// RFQListResult 分页结果
type RFQListResult struct {
	Items    []entity.RFQ `json:"items"`
	Total    int64        `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
}

func (s *RFQService) ListRFQs(ctx context.Context, f repository.RFQFilter) (*RFQListResult, error) {
	if f.State != "" && !lifecycle.Known(f.State) {
		return nil, errs.Validation("unknown state %q", f.State)
	}
	items, total, err := s.repos.RFQ.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 200 {
		f.PageSize = 20
	}
	return &RFQListResult{Items: items, Total: total, Page: f.Page, PageSize: f.PageSize}, nil
}

// ListSKUs 按选择器列出RFQ版本下的SKU（含台账）
func (s *RFQService) ListSKUs(ctx context.Context, rfqID string, sel Selector) ([]entity.SKU, error) {
	rfq, err := resolveRFQ(ctx, s.repos, rfqID, sel)
	if err != nil {
		return nil, err
	}
	return s.repos.SKU.ListByRFQ(ctx, rfq.ID)
}

func (s *RFQService) GetSKU(ctx context.Context, skuID string, sel Selector) (*entity.SKU, error) {
	sku, err := resolveSKU(ctx, s.repos, skuID, sel)
	if err != nil {
		return nil, err
	}
	return s.repos.SKU.FindDetail(ctx, sku.ID)
}

func (s *RFQService) ListStates() []lifecycle.StateInfo {
	return lifecycle.States()
}

// ========== 物料 ==========

// AddProducts 为SKU追加物料
func (s *RFQService) AddProducts(ctx context.Context, skuID string, sel Selector, inputs []ProductInput) ([]entity.Product, error) {
	if len(inputs) == 0 {
		return nil, errs.Validation("products must contain at least one item")
	}
	for _, pi := range inputs {
		if err := validateInput(pi); err != nil {
			return nil, err
		}
	}
	var products []entity.Product
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		sku, err := resolveSKU(ctx, tx, skuID, sel)
		if err != nil {
			return err
		}
		products, err = s.buildProducts(ctx, tx, sku.ID, inputs, time.Now())
		if err != nil {
			return err
		}
		return tx.SKU.CreateProducts(ctx, products)
	})
	return products, err
}

func (s *RFQService) ListProducts(ctx context.Context, skuID string, sel Selector) ([]entity.Product, error) {
	sku, err := resolveSKU(ctx, s.repos, skuID, sel)
	if err != nil {
		return nil, err
	}
	return s.repos.SKU.ListProducts(ctx, sku.ID)
}

// DeleteProduct 删除物料及其物料级工序成本
func (s *RFQService) DeleteProduct(ctx context.Context, productID string) error {
	return s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if _, err := tx.SKU.FindProduct(ctx, productID); err != nil {
			return notFound(err, "product %s does not exist", productID)
		}
		if err := tx.Ledger.DeleteJobCostsByProduct(ctx, productID); err != nil {
			return err
		}
		return tx.SKU.DeleteProduct(ctx, productID)
	})
}

// ========== 工序成本查询 ==========

func (s *RFQService) ListJobCosts(ctx context.Context, rfqID, skuID string, sel Selector) ([]entity.JobCost, error) {
	rfq, err := resolveRFQ(ctx, s.repos, rfqID, sel)
	if err != nil {
		return nil, err
	}
	if skuID != "" {
		sku, err := resolveSKU(ctx, s.repos, skuID, sel)
		if err != nil {
			return nil, err
		}
		skuID = sku.ID
	}
	return s.repos.Ledger.ListJobCosts(ctx, rfq.ID, skuID)
}

func (s *RFQService) DeleteJobCost(ctx context.Context, skuID, jobTypeID string) error {
	n, err := s.repos.Ledger.DeleteJobCosts(ctx, skuID, jobTypeID)
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.NotFound("no job costs for job type %s on sku %s", jobTypeID, skuID)
	}
	return nil
}

func (s *RFQService) ListOtherCosts(ctx context.Context, skuID string, sel Selector) ([]entity.OtherCost, error) {
	sku, err := resolveSKU(ctx, s.repos, skuID, sel)
	if err != nil {
		return nil, err
	}
	return s.repos.Ledger.ListOtherCosts(ctx, sku.ID)
}

func nullable(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return costing.Null(*d)
}
