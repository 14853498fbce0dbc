package cartstore

// LineItem is one product entry in the cart. A SKU appears at most once per
// cart. The JSON tags match the stored document, which keeps carts written
// by earlier releases readable.
type LineItem struct {
	SKU      string `json:"id"`
	Quantity int    `json:"quantity"`
}

// Cart is the persisted shopping cart. Items keep insertion order.
type Cart struct {
	Items []LineItem `json:"products"`
}

func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

func (c Cart) Contains(sku string) bool {
	for _, item := range c.Items {
		if item.SKU == sku {
			return true
		}
	}
	return false
}

// SKUs lists the cart's SKUs in insertion order.
func (c Cart) SKUs() []string {
	skus := make([]string, 0, len(c.Items))
	for _, item := range c.Items {
		skus = append(skus, item.SKU)
	}
	return skus
}

// clone returns a copy that shares no memory with the receiver.
func (c Cart) clone() Cart {
	if c.Items == nil {
		return Cart{}
	}
	items := make([]LineItem, len(c.Items))
	copy(items, c.Items)
	return Cart{Items: items}
}
