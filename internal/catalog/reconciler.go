package catalog

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/WhiteRabbitVintageMarket/storefront/internal/cartstore"
)

// ErrSuperseded reports that a newer reconciliation started before this
// one's fetch finished. The stale result was discarded and the cart was not
// touched; the caller should simply drop the render pass.
var ErrSuperseded = errors.New("catalog: reconciliation superseded by a newer request")

// ProductFetcher is the slice of Client the reconciler needs.
type ProductFetcher interface {
	FetchProducts(ctx context.Context, skus []string) ([]Product, error)
}

// CartStore is the slice of the cart store the reconciler needs.
type CartStore interface {
	Get(ctx context.Context) cartstore.Cart
	Remove(ctx context.Context, sku string)
}

// Reconciler refreshes cart contents against catalog truth. Reconciliation
// is not read-only: a SKU that is missing from the response or sold out
// (quantity 0) is removed from the cart. This is how sold-out items silently
// disappear from a returning visitor's cart. Only a successful fetch prunes;
// failures leave the cart exactly as it was.
type Reconciler struct {
	fetcher ProductFetcher
	cart    CartStore
	log     logrus.FieldLogger

	gen uint64
}

func NewReconciler(fetcher ProductFetcher, cart CartStore, log logrus.FieldLogger) *Reconciler {
	return &Reconciler{
		fetcher: fetcher,
		cart:    cart,
		log:     log,
	}
}

// Reconcile fetches products for skus, prunes unpurchasable cart entries and
// returns the fetched products in catalog response order. In-flight fetches
// are not aborted when a newer Reconcile starts, but their results are
// ignored (ErrSuperseded); last request wins.
func (r *Reconciler) Reconcile(ctx context.Context, skus []string) ([]Product, error) {
	gen := atomic.AddUint64(&r.gen, 1)

	products, err := r.fetcher.FetchProducts(ctx, skus)
	if err != nil {
		return nil, err
	}
	if atomic.LoadUint64(&r.gen) != gen {
		return nil, ErrSuperseded
	}

	requested := make(map[string]bool, len(skus))
	for _, sku := range skus {
		requested[sku] = true
	}
	purchasable := make(map[string]bool, len(products))
	for _, p := range products {
		if p.Purchasable() {
			purchasable[p.SKU] = true
		}
	}

	// Prune from the live cart, not from the requested set: a SKU added
	// after this reconcile started was never checked and is left alone.
	for _, item := range r.cart.Get(ctx).Items {
		if requested[item.SKU] && !purchasable[item.SKU] {
			r.log.WithField("sku", item.SKU).Debug("removing unpurchasable product from cart")
			r.cart.Remove(ctx, item.SKU)
		}
	}
	return products, nil
}
