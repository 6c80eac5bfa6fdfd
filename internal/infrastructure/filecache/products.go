package filecache

import (
	"context"
	"fmt"

	apperrors "catalog-backend/internal/errors"
	"catalog-backend/internal/infrastructure/cache"
	"catalog-backend/internal/infrastructure/storage"

	"go.uber.org/zap"
)

// Product is one catalog record as stored in the products file.
type Product = map[string]any

// Product record fields the views rely on.
const (
	FieldID       = "id"
	FieldCategory = "categoryId"
	FieldFeatured = "featured"
)

const (
	keyAll      = "products:all"
	keyFeatured = "products:featured"
	keyByID     = "products:id:"
	keyCategory = "products:category:"
	keyPrefix   = "products:"
)

// ProductSource is the products repository as seen by the product cache.
type ProductSource interface {
	Read(ctx context.Context, useCache bool) ([]Product, error)
	Write(ctx context.Context, data []Product, backup bool) error
	FilePath() string
}

// ProductCache serves product views derived from the products file. Every
// view is cached with the products file as its source, so any change to the
// file invalidates all views on their next read.
type ProductCache struct {
	name     string
	disabled bool
	source   ProductSource
	fs       storage.FileSystem
	cache    Cache
	guard    *guard
	sweeper  *cache.Sweeper
	logger   *zap.Logger
}

// NewProductCache creates the product cache over source.
func NewProductCache(source ProductSource, opts Options) *ProductCache {
	opts.setDefaults("products")
	metrics := opts.Metrics.ForCache(opts.Name)
	logger := opts.Logger.Named("productcache")

	p := &ProductCache{
		name:     opts.Name,
		disabled: opts.Disabled,
		source:   source,
		fs:       opts.FileSystem,
		cache:    opts.newCache(metrics),
		guard:    newGuard(opts.Breaker, logger, metrics),
		logger:   logger,
	}
	p.sweeper = cache.NewSweeper(opts.SweepInterval, logger, p.cache)
	return p
}

// All returns every product. A missing products file yields an empty list.
func (p *ProductCache) All(ctx context.Context) ([]Product, error) {
	return view(ctx, p, keyAll, func(products []Product) ([]Product, error) {
		return products, nil
	})
}

// ByID returns the product with the given id or a not-found error.
func (p *ProductCache) ByID(ctx context.Context, id string) (Product, error) {
	return view(ctx, p, keyByID+id, func(products []Product) (Product, error) {
		for _, product := range products {
			if matches(product, FieldID, id) {
				return product, nil
			}
		}
		return nil, apperrors.NewNotFound(fmt.Sprintf("product %s not found", id))
	})
}

// ByCategory returns the products of a category, possibly none.
func (p *ProductCache) ByCategory(ctx context.Context, categoryID string) ([]Product, error) {
	return view(ctx, p, keyCategory+categoryID, func(products []Product) ([]Product, error) {
		return filter(products, func(product Product) bool {
			return matches(product, FieldCategory, categoryID)
		}), nil
	})
}

// Featured returns the products flagged as featured.
func (p *ProductCache) Featured(ctx context.Context) ([]Product, error) {
	return view(ctx, p, keyFeatured, func(products []Product) ([]Product, error) {
		return filter(products, func(product Product) bool {
			featured, _ := product[FieldFeatured].(bool)
			return featured
		}), nil
	})
}

// Save replaces the products file and drops every cached view.
func (p *ProductCache) Save(ctx context.Context, products []Product) error {
	if err := p.source.Write(ctx, products, true); err != nil {
		return err
	}
	p.Invalidate()
	return nil
}

// Invalidate drops every product view.
func (p *ProductCache) Invalidate() int {
	n := p.cache.DeletePrefix(keyPrefix)
	p.logger.Debug("Product views invalidated", zap.Int("count", n))
	return n
}

// Clear drops every entry.
func (p *ProductCache) Clear() {
	p.cache.Clear()
}

// Sweep removes expired views now.
func (p *ProductCache) Sweep() int {
	return p.sweeper.SweepNow()
}

// Stats returns the counters of the underlying store.
func (p *ProductCache) Stats() ManagerStats {
	return ManagerStats{
		Name:    p.name,
		Breaker: p.guard.State().String(),
		Cache:   p.cache.Stats(),
	}
}

// Start launches the background sweep.
func (p *ProductCache) Start(ctx context.Context) {
	p.sweeper.Start(ctx)
}

// Close stops the background sweep.
func (p *ProductCache) Close() error {
	p.sweeper.Stop()
	return nil
}

// view serves key from the cache, computing it from the products file on a
// miss. On a cache fault the view is computed from an uncached read.
func view[V any](ctx context.Context, p *ProductCache, key string, compute func([]Product) (V, error)) (V, error) {
	var zero V

	cached := func() (any, error) {
		if value, ok := p.cache.Get(key); ok {
			typed, ok := value.(V)
			if !ok {
				p.cache.Delete(key)
				return nil, apperrors.NewCacheFault(fmt.Sprintf("unexpected cached type %T for %q", value, key), nil)
			}
			return typed, nil
		}

		path := p.source.FilePath()
		info, statErr := p.fs.Stat(path)

		products, err := p.source.Read(ctx, true)
		if err != nil {
			return nil, err
		}
		value, err := compute(products)
		if err != nil {
			return nil, err
		}

		// Nothing to key staleness on when the file is absent.
		if statErr == nil {
			if err := p.cache.SetObserved(key, value, path, info.ModTime); err != nil {
				p.logger.Warn("Failed to cache product view", zap.String("key", key), zap.Error(err))
			}
		}
		return value, nil
	}

	direct := func() (any, error) {
		products, err := p.source.Read(ctx, false)
		if err != nil {
			return nil, err
		}
		return compute(products)
	}

	run := p.guard.do
	if p.disabled {
		run = func(_, direct func() (any, error)) (any, error) { return direct() }
	}
	result, err := run(cached, direct)
	if err != nil {
		return zero, err
	}
	value, ok := result.(V)
	if !ok {
		return zero, apperrors.NewInternal(fmt.Sprintf("unexpected view type %T for %q", result, key), nil)
	}
	return value, nil
}

func matches(product Product, field, want string) bool {
	v, ok := product[field]
	if !ok || v == nil {
		return false
	}
	return fmt.Sprint(v) == want
}

func filter(products []Product, keep func(Product) bool) []Product {
	out := make([]Product, 0, len(products))
	for _, product := range products {
		if keep(product) {
			out = append(out, product)
		}
	}
	return out
}
