package services

import "strings"

// ProductCatalog is the set of product ids sold as subscriptions.
type ProductCatalog struct {
	subscriptions map[string]struct{}
}

// NewProductCatalog builds a catalog; blank ids are ignored.
func NewProductCatalog(productIDs ...string) *ProductCatalog {
	c := &ProductCatalog{subscriptions: make(map[string]struct{}, len(productIDs))}
	for _, id := range productIDs {
		id = strings.TrimSpace(id)
		if id != "" {
			c.subscriptions[id] = struct{}{}
		}
	}
	return c
}

// IsSubscription reports whether productID is a recognized subscription product.
func (c *ProductCatalog) IsSubscription(productID string) bool {
	_, ok := c.subscriptions[productID]
	return ok
}

// Len returns the number of recognized products.
func (c *ProductCatalog) Len() int {
	return len(c.subscriptions)
}
