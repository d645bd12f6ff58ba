package pipeline

import (
	"sync"

	"github.com/horiens/restock/internal/config"
)

// CatalogRef is the shared, hot-swappable view of the SKU catalog. The
// watcher swaps in reloaded documents while forecasts read MOQs and SKU
// lists from whatever version is current.
type CatalogRef struct {
	mu      sync.RWMutex
	catalog config.Catalog
}

// NewCatalogRef seeds the reference with the initially loaded catalog.
func NewCatalogRef(catalog config.Catalog) *CatalogRef {
	return &CatalogRef{catalog: catalog}
}

// Swap replaces the current catalog atomically.
func (r *CatalogRef) Swap(catalog config.Catalog) {
	r.mu.Lock()
	r.catalog = catalog
	r.mu.Unlock()
}

// MOQ returns the current minimum order quantity for a SKU.
func (r *CatalogRef) MOQ(sku string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.catalog.MOQ(sku)
}

// SKUs returns the current catalog's SKU list, empty when the catalog does
// not pin one.
func (r *CatalogRef) SKUs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.catalog.SKUList()
}
