package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bitfantasy/nimo-quote/internal/metrics"
	"github.com/bitfantasy/nimo-quote/internal/quote/entity"
	"github.com/bitfantasy/nimo-quote/internal/quote/repository"
	"github.com/bitfantasy/nimo-quote/internal/shared/errs"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// VersioningService 版本管理：复制RFQ及其SKU、物料、台账、费用生成新版本
type VersioningService struct {
	repos  *repository.Repositories
	logger *zap.Logger
}

func NewVersioningService(repos *repository.Repositories, logger *zap.Logger) *VersioningService {
	return &VersioningService{repos: repos, logger: logger}
}

// RevisionResult 新版本的标识
type RevisionResult struct {
	RevisionID string            `json:"revision_id"`
	RFQID      string            `json:"rfq_id"`
	RootID     string            `json:"root_id"`
	ParentID   string            `json:"parent_id"`
	Version    int               `json:"version"`
	SKUMap     map[string]string `json:"sku_map"`
}

// CreateRevision 以 rfqID 为源创建新版本，新版本成为谱系唯一的最新版本
func (s *VersioningService) CreateRevision(ctx context.Context, rfqID, createdBy string) (*RevisionResult, error) {
	var result *RevisionResult
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		src, err := tx.RFQ.FindByID(ctx, rfqID)
		if err != nil {
			return notFound(err, "rfq %s does not exist", rfqID)
		}
		lineage, maxVersion, err := tx.RFQ.LockLineage(ctx, src.RootID)
		if err != nil {
			return err
		}
		var retired *entity.RFQ
		for i := range lineage {
			if lineage[i].IsLatest {
				retired = &lineage[i]
			}
		}
		result, err = s.copyRFQ(ctx, tx, src, retired, maxVersion+1, createdBy)
		return err
	})
	if err != nil {
		if errs.IsBusiness(err) {
			metrics.RevisionsTotal.WithLabelValues(metrics.ResultRejected).Inc()
			return nil, err
		}
		metrics.RevisionsTotal.WithLabelValues(metrics.ResultError).Inc()
		s.logger.Error("create revision failed", zap.String("rfq_id", rfqID), zap.Error(err))
		if errs.Is(err, errs.KindDatabase) {
			return nil, err
		}
		return nil, errs.Database("create revision", err)
	}
	metrics.RevisionsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	s.logger.Info("rfq revision created",
		zap.String("source_rfq_id", rfqID),
		zap.String("rfq_id", result.RFQID),
		zap.Int("version", result.Version))
	return result, nil
}

func (s *VersioningService) copyRFQ(ctx context.Context, tx *repository.Repositories, src, retired *entity.RFQ, version int, createdBy string) (*RevisionResult, error) {
	now := time.Now()
	if createdBy == "" {
		createdBy = src.CreatedBy
	}

	// 先关闭旧的最新版本，再插入新行，保证部分唯一索引不冲突
	if err := tx.RFQ.RetireLatest(ctx, src.RootID); err != nil {
		return nil, err
	}

	parentID := src.ID
	dst := &entity.RFQ{
		ID:        newID(),
		Name:      src.Name,
		ClientID:  src.ClientID,
		CreatedBy: createdBy,
		State:     entity.StateDraft,
		RootID:    src.RootID,
		ParentID:  &parentID,
		Version:   version,
		IsLatest:  true,

		FreightCost:         src.FreightCost,
		FactoryOverheadCost: src.FactoryOverheadCost,
		InsuranceCost:       src.InsuranceCost,
		MarginCost:          src.MarginCost,
		CIFCost:             src.CIFCost,
		FOBCost:             src.FOBCost,
		TotalCostToCustomer: src.TotalCostToCustomer,

		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.RFQ.Create(ctx, dst); err != nil {
		return nil, err
	}

	skus, err := tx.SKU.ListByRFQ(ctx, src.ID)
	if err != nil {
		return nil, err
	}
	skuMap := make(map[string]string, len(skus))
	skuIDs := make([]string, 0, len(skus))
	newSKUs := make([]entity.SKU, 0, len(skus))
	newLedgers := make([]entity.CostLedger, 0, len(skus))
	for _, sku := range skus {
		id := newID()
		skuMap[sku.ID] = id
		skuIDs = append(skuIDs, sku.ID)

		copied := sku
		copied.ID = id
		copied.RFQID = dst.ID
		copied.CreatedAt, copied.UpdatedAt = now, now
		copied.Products = nil
		copied.Ledger = nil
		newSKUs = append(newSKUs, copied)

		if sku.Ledger != nil {
			l := *sku.Ledger
			l.SKUID = id
			l.RFQID = dst.ID
			l.UpdatedAt = now
			newLedgers = append(newLedgers, l)
		} else {
			newLedgers = append(newLedgers, entity.CostLedger{SKUID: id, RFQID: dst.ID, UpdatedAt: now})
		}
	}
	if err := tx.SKU.CreateBatch(ctx, newSKUs); err != nil {
		return nil, err
	}
	if err := tx.Ledger.CreateBatch(ctx, newLedgers); err != nil {
		return nil, err
	}

	products, err := tx.SKU.ListProductsBySKUs(ctx, skuIDs)
	if err != nil {
		return nil, err
	}
	productMap := make(map[string]string, len(products))
	newProducts := make([]entity.Product, 0, len(products))
	for _, p := range products {
		id := newID()
		productMap[p.ID] = id
		copied := p
		copied.ID = id
		copied.SKUID = skuMap[p.SKUID]
		copied.CreatedAt, copied.UpdatedAt = now, now
		newProducts = append(newProducts, copied)
	}
	if err := tx.SKU.CreateProducts(ctx, newProducts); err != nil {
		return nil, err
	}

	if err := copyCosts(ctx, tx, src.ID, dst.ID, skuMap, productMap, now); err != nil {
		return nil, err
	}

	mapJSON, _ := json.Marshal(skuMap)
	rev := &entity.RFQRevision{
		ID:          newID(),
		RootID:      src.RootID,
		RFQID:       dst.ID,
		ParentRFQID: &parentID,
		Version:     version,
		CreatedBy:   createdBy,
		SKUMap:      datatypes.JSON(mapJSON),
		CreatedAt:   now,
	}
	if err := tx.RFQ.CreateRevision(ctx, rev); err != nil {
		return nil, err
	}

	if retired != nil {
		if err := tx.Assignment.Append(ctx, &entity.Assignment{
			ID:         newID(),
			RFQID:      retired.ID,
			Action:     entity.ActionRevise,
			FromUserID: createdBy,
			FromState:  retired.State,
			ToState:    entity.StateRevised,
			Metadata:   revisionMetadata(dst.ID, version),
			CreatedAt:  now,
		}); err != nil {
			return nil, err
		}
	}

	return &RevisionResult{
		RevisionID: rev.ID,
		RFQID:      dst.ID,
		RootID:     src.RootID,
		ParentID:   src.ID,
		Version:    version,
		SKUMap:     skuMap,
	}, nil
}

// copyCosts 复制工序成本与其他费用，ID按映射替换
func copyCosts(ctx context.Context, tx *repository.Repositories, srcRFQ, dstRFQ string, skuMap, productMap map[string]string, now time.Time) error {
	jobs, err := tx.Ledger.ListJobCosts(ctx, srcRFQ, "")
	if err != nil {
		return err
	}
	grouped := map[[2]string][]entity.JobCost{}
	for _, j := range jobs {
		newSKU, ok := skuMap[j.SKUID]
		if !ok {
			continue
		}
		copied := j
		copied.ID = newID()
		copied.RFQID = dstRFQ
		copied.SKUID = newSKU
		if j.ProductID != nil {
			newProduct, ok := productMap[*j.ProductID]
			if !ok {
				continue
			}
			copied.ProductID = &newProduct
		}
		copied.CreatedAt, copied.UpdatedAt = now, now
		key := [2]string{newSKU, j.JobTypeID}
		grouped[key] = append(grouped[key], copied)
	}
	for key, entries := range grouped {
		if err := tx.Ledger.ReplaceJobCosts(ctx, dstRFQ, key[0], key[1], entries); err != nil {
			return err
		}
	}

	others, err := tx.Ledger.ListOtherCostsByRFQ(ctx, srcRFQ)
	if err != nil {
		return err
	}
	for _, o := range others {
		newSKU, ok := skuMap[o.SKUID]
		if !ok {
			continue
		}
		copied := o
		copied.ID = newID()
		copied.RFQID = dstRFQ
		copied.SKUID = newSKU
		copied.CreatedAt, copied.UpdatedAt = now, now
		if err := tx.Ledger.UpsertOtherCost(ctx, &copied); err != nil {
			return err
		}
	}
	return nil
}

func revisionMetadata(newRFQID string, version int) datatypes.JSON {
	b, _ := json.Marshal(map[string]interface{}{"new_rfq_id": newRFQID, "version": version})
	return datatypes.JSON(b)
}

// GetParentVersion 返回修订记录所属谱系的根RFQ ID
func (s *VersioningService) GetParentVersion(ctx context.Context, revisionID string) (string, error) {
	rev, err := s.repos.RFQ.FindRevision(ctx, revisionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", errs.NotFound("revision %s does not exist", revisionID)
		}
		return "", errs.Database("find revision", err)
	}
	return rev.RootID, nil
}

// ListRevisions 谱系的全部版本记录
func (s *VersioningService) ListRevisions(ctx context.Context, rfqID string) ([]entity.RFQRevision, error) {
	rfq, err := s.repos.RFQ.FindByID(ctx, rfqID)
	if err != nil {
		return nil, notFound(err, "rfq %s does not exist", rfqID)
	}
	return s.repos.RFQ.ListRevisions(ctx, rfq.RootID)
}
