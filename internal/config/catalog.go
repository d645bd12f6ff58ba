package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Catalog enumerates the SKUs the agent forecasts plus their purchasing
// constraints. It is sourced from a standalone document so merchandisers can
// edit it without touching the agent configuration.
type Catalog struct {
	SKUs []CatalogSKU `koanf:"skus"`
}

// CatalogSKU pairs a SKU with its minimum order quantity. A zero MOQ means
// the supplier imposes no floor and recommendations pass through unchanged.
type CatalogSKU struct {
	SKU string `koanf:"sku"`
	MOQ int    `koanf:"moq"`
}

// LoadCatalog reads and validates a catalog document. The parser is chosen by
// file extension, matching the main configuration loader.
func LoadCatalog(path string) (Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Catalog{}, fmt.Errorf("config: catalog path required")
	}
	parser, err := parserForFile(path)
	if err != nil {
		return Catalog{}, err
	}
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return Catalog{}, fmt.Errorf("config: load catalog %s: %w", path, err)
	}
	var catalog Catalog
	if err := k.Unmarshal("", &catalog); err != nil {
		return Catalog{}, fmt.Errorf("config: unmarshal catalog %s: %w", path, err)
	}
	if err := catalog.Validate(); err != nil {
		return Catalog{}, err
	}
	return catalog, nil
}

// Validate rejects duplicate SKUs and negative order floors.
func (c Catalog) Validate() error {
	seen := make(map[string]struct{}, len(c.SKUs))
	for i, entry := range c.SKUs {
		sku := strings.TrimSpace(entry.SKU)
		if sku == "" {
			return fmt.Errorf("config: catalog skus[%d].sku empty", i)
		}
		if _, dup := seen[sku]; dup {
			return fmt.Errorf("config: catalog sku %q duplicated", sku)
		}
		seen[sku] = struct{}{}
		if entry.MOQ < 0 {
			return fmt.Errorf("config: catalog sku %q moq invalid: %d", sku, entry.MOQ)
		}
	}
	return nil
}

// SKUList returns the SKUs in document order.
func (c Catalog) SKUList() []string {
	out := make([]string, 0, len(c.SKUs))
	for _, entry := range c.SKUs {
		out = append(out, strings.TrimSpace(entry.SKU))
	}
	return out
}

// MOQ returns the minimum order quantity for a SKU, zero when the catalog
// does not constrain it.
func (c Catalog) MOQ(sku string) int {
	for _, entry := range c.SKUs {
		if strings.TrimSpace(entry.SKU) == sku {
			return entry.MOQ
		}
	}
	return 0
}
