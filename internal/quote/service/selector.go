package service

import (
	"context"
	"errors"

	"github.com/bitfantasy/nimo-quote/internal/quote/entity"
	"github.com/bitfantasy/nimo-quote/internal/quote/repository"
	"github.com/bitfantasy/nimo-quote/internal/shared/errs"
)

// Selector 台账选择器：直接操作传入的版本，或操作同一谱系的最新版本
type Selector string

const (
	SelectorCurrent Selector = "current"
	SelectorLatest  Selector = "latest"
)

// ParseSelector 空字符串视为 current
func ParseSelector(s string) (Selector, error) {
	switch Selector(s) {
	case "", SelectorCurrent:
		return SelectorCurrent, nil
	case SelectorLatest:
		return SelectorLatest, nil
	}
	return "", errs.Validation("unknown ledger selector %q", s)
}

// resolveRFQ 按选择器定位RFQ版本
func resolveRFQ(ctx context.Context, repos *repository.Repositories, rfqID string, sel Selector) (*entity.RFQ, error) {
	rfq, err := repos.RFQ.FindByID(ctx, rfqID)
	if err != nil {
		return nil, notFound(err, "rfq %s does not exist", rfqID)
	}
	if sel != SelectorLatest || rfq.IsLatest {
		return rfq, nil
	}
	latest, err := repos.RFQ.FindLatest(ctx, rfq.RootID)
	if err != nil {
		return nil, notFound(err, "rfq %s has no latest version", rfqID)
	}
	return latest, nil
}

// resolveSKU 按选择器定位SKU：latest 时按谱系找到最新版本中的对应SKU
func resolveSKU(ctx context.Context, repos *repository.Repositories, skuID string, sel Selector) (*entity.SKU, error) {
	sku, err := repos.SKU.FindByID(ctx, skuID)
	if err != nil {
		return nil, notFound(err, "sku %s does not exist", skuID)
	}
	if sel != SelectorLatest {
		return sku, nil
	}
	rfq, err := resolveRFQ(ctx, repos, sku.RFQID, SelectorLatest)
	if err != nil {
		return nil, err
	}
	if rfq.ID == sku.RFQID {
		return sku, nil
	}
	counterpart, err := repos.SKU.FindInRFQByLineage(ctx, rfq.ID, sku.LineageID)
	if err != nil {
		return nil, notFound(err, "sku %s has no counterpart in the latest version", skuID)
	}
	return counterpart, nil
}

// resolveProduct 按选择器定位物料
func resolveProduct(ctx context.Context, repos *repository.Repositories, productID string, sel Selector) (*entity.Product, error) {
	p, err := repos.SKU.FindProduct(ctx, productID)
	if err != nil {
		return nil, notFound(err, "product %s does not exist", productID)
	}
	if sel != SelectorLatest {
		return p, nil
	}
	sku, err := resolveSKU(ctx, repos, p.SKUID, SelectorLatest)
	if err != nil {
		return nil, err
	}
	if sku.ID == p.SKUID {
		return p, nil
	}
	counterpart, err := repos.SKU.FindProductInSKUByLineage(ctx, sku.ID, p.LineageID)
	if err != nil {
		return nil, notFound(err, "product %s has no counterpart in the latest version", productID)
	}
	return counterpart, nil
}

// asValidation 环节1/2中无法解析的物料ID按输入错误处理
func asValidation(err error) error {
	var e *errs.Error
	if errors.As(err, &e) && e.Kind == errs.KindNotFound {
		return errs.Validation("%s", e.Message)
	}
	return err
}
