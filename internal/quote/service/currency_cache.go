package service

import (
	"context"
	"errors"
	"time"

	"github.com/bitfantasy/nimo-quote/internal/quote/repository"
	"github.com/bitfantasy/nimo-quote/internal/shared/errs"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const currencyKeyPrefix = "quote:currency:"

// CurrencyCache 币种换算系数读穿缓存，rdb 为 nil 时直接查库
type CurrencyCache struct {
	rdb    *redis.Client
	master *repository.MasterRepository
	ttl    time.Duration
}

func NewCurrencyCache(rdb *redis.Client, master *repository.MasterRepository, ttl time.Duration) *CurrencyCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CurrencyCache{rdb: rdb, master: master, ttl: ttl}
}

// Factor 返回换算系数，未知或停用币种返回 NotFound
func (c *CurrencyCache) Factor(ctx context.Context, currencyID string) (decimal.Decimal, error) {
	if c.rdb != nil {
		if val, err := c.rdb.Get(ctx, currencyKeyPrefix+currencyID).Result(); err == nil {
			if d, perr := decimal.NewFromString(val); perr == nil {
				return d, nil
			}
		}
	}
	return c.load(ctx, currencyID)
}

// Verify 绕过缓存按主数据校验币种，停用或删除的币种同时清除缓存
func (c *CurrencyCache) Verify(ctx context.Context, currencyID string) (decimal.Decimal, error) {
	factor, err := c.load(ctx, currencyID)
	if errs.Is(err, errs.KindNotFound) {
		if ierr := c.Invalidate(ctx, currencyID); ierr != nil {
			return decimal.Zero, ierr
		}
	}
	return factor, err
}

func (c *CurrencyCache) load(ctx context.Context, currencyID string) (decimal.Decimal, error) {
	cur, err := c.master.FindCurrency(ctx, currencyID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return decimal.Zero, errs.NotFound("currency %s does not exist or is inactive", currencyID)
		}
		return decimal.Zero, err
	}
	if !cur.Status {
		return decimal.Zero, errs.NotFound("currency %s does not exist or is inactive", currencyID)
	}

	if c.rdb != nil {
		c.rdb.Set(ctx, currencyKeyPrefix+currencyID, cur.Value.String(), c.ttl)
	}
	return cur.Value, nil
}

// Invalidate 主数据变更后清除缓存
func (c *CurrencyCache) Invalidate(ctx context.Context, currencyID string) error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, currencyKeyPrefix+currencyID).Err()
}
