// Package fragment rebuilds catalog records from multi-path partial reads.
package fragment

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"catalog/internal/docstore"
	"catalog/internal/model"
	"catalog/internal/schema"
)

var (
	// ErrFragmentReadFailed wraps every failure of the lookup as a whole.
	ErrFragmentReadFailed = errors.New("fragment read failed")
	// ErrInvalidLookup is returned for an empty key or path list.
	ErrInvalidLookup = errors.New("invalid lookup")
)

// DefaultMarket is the market whose info is mapped back onto the product.
const DefaultMarket = "fr"

// Paths consumed by the assembler.
const (
	PathID         = "id"
	PathType       = "type"
	PathProductID  = "productId"
	marketInfoRoot = "marketInfo."
)

// MarketPath returns the marketInfo path for a market.
func MarketPath(market string) string { return marketInfoRoot + market }

type Assembler struct {
	store  docstore.Store
	schema schema.Schema
	market string
	log    *zap.Logger
}

type Option func(*Assembler)

// WithMarket changes the market mapped into Product.MarketInfo.
func WithMarket(market string) Option {
	return func(a *Assembler) { a.market = market }
}

func WithSchema(s schema.Schema) Option {
	return func(a *Assembler) { a.schema = s }
}

func WithLogger(l *zap.Logger) Option {
	return func(a *Assembler) {
		if l != nil {
			a.log = l
		}
	}
}

func NewAssembler(store docstore.Store, opts ...Option) *Assembler {
	a := &Assembler{store: store, schema: schema.Product, market: DefaultMarket, log: zap.NewNop()}
	for _, o := range opts {
		o(a)
	}
	return a
}

// FetchProduct reads paths of the document under key with the default market.
func FetchProduct(ctx context.Context, store docstore.Store, key string, paths []string) (model.Product, error) {
	return NewAssembler(store).FetchProduct(ctx, key, paths)
}

// FetchProduct issues one lookup for all paths and maps the known ones onto a
// new Product. Absent paths leave their field at the zero value; a lookup or
// decode failure returns ErrFragmentReadFailed and no product.
func (a *Assembler) FetchProduct(ctx context.Context, key string, paths []string) (model.Product, error) {
	if key == "" || len(paths) == 0 {
		return model.Product{}, fmt.Errorf("%w: key=%q paths=%d", ErrInvalidLookup, key, len(paths))
	}
	res, err := a.store.LookupIn(ctx, key, paths)
	if err != nil {
		return model.Product{}, fmt.Errorf("%w: key %q: %w", ErrFragmentReadFailed, key, err)
	}
	if missing := res.Missing(); len(missing) > 0 {
		a.log.Debug("lookup paths absent", zap.String("key", key), zap.Strings("paths", missing))
	}

	p := model.Product{MarketInfo: map[string]model.MarketInfo{}}
	decode := func(path string, v any) (bool, error) {
		found, err := res.Decode(path, v)
		if err != nil {
			return false, fmt.Errorf("%w: key %q: %w", ErrFragmentReadFailed, key, err)
		}
		return found, nil
	}
	if _, err := decode(PathID, &p.ID); err != nil {
		return model.Product{}, err
	}
	if _, err := decode(PathType, &p.Type); err != nil {
		return model.Product{}, err
	}
	if _, err := decode(PathProductID, &p.ProductID); err != nil {
		return model.Product{}, err
	}
	var mi model.MarketInfo
	found, err := decode(MarketPath(a.market), &mi)
	if err != nil {
		return model.Product{}, err
	}
	if found {
		p.MarketInfo[a.market] = mi
	}
	a.log.Debug("fragment product assembled",
		zap.String("key", key),
		zap.Int("paths", len(paths)),
		zap.Bool("market_found", found))
	return p, nil
}

// Fetch derives the paths of the assembler's schema for locale and reads them.
func (a *Assembler) Fetch(ctx context.Context, key, locale string) (model.Product, []string, error) {
	paths, err := schema.DerivePaths(a.schema, locale)
	if err != nil {
		return model.Product{}, nil, err
	}
	p, err := a.FetchProduct(ctx, key, paths)
	return p, paths, err
}

// FetchAll fetches keys concurrently, at most parallel lookups at a time, and
// returns the products in key order. The first failure cancels the rest.
func (a *Assembler) FetchAll(ctx context.Context, keys []string, locale string, parallel int) ([]model.Product, error) {
	paths, err := schema.DerivePaths(a.schema, locale)
	if err != nil {
		return nil, err
	}
	out := make([]model.Product, len(keys))
	eg, egCtx := errgroup.WithContext(ctx)
	if parallel > 0 {
		eg.SetLimit(parallel)
	}
	for i, key := range keys {
		eg.Go(func() error {
			p, err := a.FetchProduct(egCtx, key, paths)
			if err != nil {
				return err
			}
			out[i] = p
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
