// Package cartview derives render-ready cart contents from a cart snapshot
// and a set of fetched products. Pure functions only: no I/O, no logging,
// inputs are never modified.
package cartview

import (
	"github.com/shopspring/decimal"

	"github.com/WhiteRabbitVintageMarket/storefront/internal/cartstore"
	"github.com/WhiteRabbitVintageMarket/storefront/internal/catalog"
)

// Line pairs a resolved product with its cart quantity.
type Line struct {
	Product  catalog.Product `json:"product"`
	Quantity int             `json:"quantity"`
}

// Projection is the renderable cart.
type Projection struct {
	Lines    []Line          `json:"lines"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// Project intersects the cart with products, keyed by SKU. Lines follow the
// cart's insertion order. A cart SKU with no matching product is omitted;
// that is the normal state right after reconciliation pruning, not an error.
//
// The subtotal is rounded to two decimal places once, after summing, so
// per-line rounding error cannot compound.
func Project(cart cartstore.Cart, products []catalog.Product) Projection {
	bySKU := make(map[string]catalog.Product, len(products))
	for _, p := range products {
		bySKU[p.SKU] = p
	}

	lines := make([]Line, 0, len(cart.Items))
	subtotal := decimal.Zero
	for _, item := range cart.Items {
		product, ok := bySKU[item.SKU]
		if !ok {
			continue
		}
		lines = append(lines, Line{Product: product, Quantity: item.Quantity})
		subtotal = subtotal.Add(product.UnitAmount.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	return Projection{
		Lines:    lines,
		Subtotal: subtotal.Round(2),
	}
}
