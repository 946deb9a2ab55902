package service

import (
	"context"

	stripego "github.com/stripe/stripe-go/v82"

	"github.com/flexprice/subscription-ops/internal/integration/stripe"
	"github.com/flexprice/subscription-ops/internal/logger"
)

// productNameCache resolves product display names for line items, looking
// up a product id at most once per run. Scoped to a single bulk run and
// never persisted. Single writer, no concurrent access.
type productNameCache struct {
	client stripe.Client
	logger *logger.Logger
	names  map[string]string
}

func newProductNameCache(client stripe.Client, log *logger.Logger) *productNameCache {
	return &productNameCache{
		client: client,
		logger: log,
		names:  make(map[string]string),
	}
}

// resolveItems collects the price ids and product display names of every
// line item. An expanded product supplies its name directly; a bare product
// reference goes through one remote lookup per distinct id. Lookup failures
// leave the name empty and never fail the record.
func (c *productNameCache) resolveItems(ctx context.Context, sub *stripego.Subscription) (priceIDs, productNames []string) {
	if sub.Items == nil {
		return nil, nil
	}

	for _, item := range sub.Items.Data {
		price := item.Price
		if price == nil {
			continue
		}
		priceIDs = append(priceIDs, price.ID)

		var name string
		switch {
		case price.Product != nil && price.Product.Name != "":
			name = price.Product.Name
		case price.Product != nil && price.Product.ID != "":
			name = c.lookup(ctx, price.Product.ID)
		default:
			name = price.Nickname
		}
		if name != "" {
			productNames = append(productNames, name)
		}
	}
	return priceIDs, productNames
}

// lookup fetches a product name through the per-run cache. Only successful
// lookups are cached so a transient failure can succeed on a later record.
func (c *productNameCache) lookup(ctx context.Context, productID string) string {
	if name, ok := c.names[productID]; ok {
		return name
	}

	product, err := c.client.GetProduct(ctx, productID)
	if err != nil {
		c.logger.Debugw("could not retrieve product, leaving name empty",
			"product_id", productID,
			"error", err,
		)
		return ""
	}

	c.names[productID] = product.Name
	return product.Name
}
