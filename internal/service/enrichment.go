package service

import (
	"context"
	"log/slog"
	"maps"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/cartsync/internal/backend"
	"github.com/dukerupert/cartsync/internal/cache"
	"github.com/dukerupert/cartsync/internal/domain"
	"github.com/dukerupert/cartsync/internal/telemetry"
)

// ProductAPI reads catalog records.
type ProductAPI interface {
	Get(ctx context.Context, id string) (*backend.Product, error)
}

const defaultEnrichConcurrency = 8

// ProductEnricher fills in display data for lines that reference a product
// by id only.
type ProductEnricher struct {
	products    ProductAPI
	records     *cache.TTLCache[domain.ProductSummary]
	maps        *cache.TTLCache[map[string]domain.ProductSummary]
	concurrency int
	metrics     *telemetry.CartMetrics
	logger      *slog.Logger
}

// NewProductEnricher creates an enricher. records caches one entry per
// product; productMaps caches one aggregate map per caller context.
func NewProductEnricher(
	products ProductAPI,
	records *cache.TTLCache[domain.ProductSummary],
	productMaps *cache.TTLCache[map[string]domain.ProductSummary],
	concurrency int,
	metrics *telemetry.CartMetrics,
	logger *slog.Logger,
) *ProductEnricher {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency < 1 {
		concurrency = defaultEnrichConcurrency
	}
	return &ProductEnricher{
		products:    products,
		records:     records,
		maps:        productMaps,
		concurrency: concurrency,
		metrics:     metrics,
		logger:      logger.With("service", "enrichment"),
	}
}

// Enrich returns display data for every referenced product it can resolve.
// References that already carry an image are returned as they are; the rest
// are looked up in the caller's aggregate map, then the per-product cache,
// then the catalog. A product whose fetch fails is simply absent.
func (e *ProductEnricher) Enrich(ctx context.Context, refs []domain.ProductRef, callerKey string) map[string]*domain.ProductSummary {
	result := make(map[string]*domain.ProductSummary, len(refs))
	for _, ref := range refs {
		if ref.Product.HasDisplayData() {
			result[ref.ProductID] = ref.Product
		}
	}

	var missing []string
	queued := make(map[string]bool)
	for _, ref := range refs {
		if _, ok := result[ref.ProductID]; ok || queued[ref.ProductID] {
			continue
		}
		queued[ref.ProductID] = true
		missing = append(missing, ref.ProductID)
	}
	if len(missing) == 0 {
		return result
	}

	mapKey := cache.ProductMapKey(callerKey)
	aggregate, _ := e.maps.Get(ctx, mapKey)

	changed := false
	var toFetch []string
	for _, id := range missing {
		if p, ok := aggregate[id]; ok && p.HasDisplayData() {
			result[id] = &p
			continue
		}
		if p, ok := e.records.Get(ctx, cache.ProductKey(id)); ok {
			result[id] = &p
			changed = true
			continue
		}
		toFetch = append(toFetch, id)
	}

	for id, p := range e.fetch(ctx, toFetch) {
		result[id] = p
		e.records.Set(ctx, cache.ProductKey(id), *p)
		changed = true
	}

	if changed {
		merged := make(map[string]domain.ProductSummary, len(aggregate)+len(result))
		maps.Copy(merged, aggregate)
		for id, p := range result {
			merged[id] = *p
		}
		e.maps.Set(ctx, mapKey, merged)
	}

	return result
}

// fetch loads products from the catalog in parallel. Failures are logged
// and dropped.
func (e *ProductEnricher) fetch(ctx context.Context, ids []string) map[string]*domain.ProductSummary {
	out := make(map[string]*domain.ProductSummary, len(ids))
	if len(ids) == 0 {
		return out
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(e.concurrency)

	for _, id := range ids {
		g.Go(func() error {
			p, err := e.products.Get(ctx, id)
			if err != nil {
				e.metrics.RecordProductFetch(false)
				e.logger.Debug("product fetch failed", "product_id", id, "error", err)
				return nil
			}
			e.metrics.RecordProductFetch(true)

			s := p.Summary()
			s.ID = id
			mu.Lock()
			out[id] = s
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return out
}

// applyProducts attaches resolved display data to the cart's lines.
func applyProducts(cart *domain.Cart, products map[string]*domain.ProductSummary) {
	for i := range cart.Lines {
		if p, ok := products[cart.Lines[i].ProductID]; ok {
			cart.Lines[i].Product = p
		}
	}
}
