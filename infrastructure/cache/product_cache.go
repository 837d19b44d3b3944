package cache

import (
	"strings"

	"github.com/puzpuzpuz/xsync/v3"

	"baletrack/models"
)

// ProductCache caches catalog entries by product name and by SKU.
type ProductCache struct {
	byName *xsync.MapOf[string, models.Product]
	bySKU  *xsync.MapOf[string, models.Product]
}

func NewProductCache() *ProductCache {
	return &ProductCache{
		byName: xsync.NewMapOf[string, models.Product](),
		bySKU:  xsync.NewMapOf[string, models.Product](),
	}
}

// Add stores p. A renamed product drops its old name entry.
func (c *ProductCache) Add(p models.Product) {
	if prev, ok := c.bySKU.Load(p.SKU); ok && nameKey(prev.Name) != nameKey(p.Name) {
		c.byName.Delete(nameKey(prev.Name))
	}
	c.byName.Store(nameKey(p.Name), p)
	c.bySKU.Store(p.SKU, p)
}

func (c *ProductCache) ByName(name string) (models.Product, bool) {
	return c.byName.Load(nameKey(name))
}

// Reset drops every entry; used after catalog imports.
func (c *ProductCache) Reset() {
	c.byName.Clear()
	c.bySKU.Clear()
}

func (c *ProductCache) Len() int {
	return c.bySKU.Size()
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
