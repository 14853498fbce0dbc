package catalog

import "github.com/shopspring/decimal"

// Product is a read-only catalog record as served by the remote catalog
// service. UnitAmount arrives as a JSON string ("19.99").
type Product struct {
	SKU               string          `json:"sku"`
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	UnitAmount        decimal.Decimal `json:"amount"`
	ImageURL          string          `json:"image_url"`
	AvailableQuantity int             `json:"quantity"`
}

// Purchasable reports whether the product can still be bought.
func (p Product) Purchasable() bool {
	return p.AvailableQuantity > 0
}
