package testutil

import (
	"context"

	stripego "github.com/stripe/stripe-go/v82"

	ierr "github.com/flexprice/subscription-ops/internal/errors"
	"github.com/flexprice/subscription-ops/internal/integration/stripe"
	"github.com/flexprice/subscription-ops/internal/types"
)

// UpdateCall records one UpdateSubscription invocation.
type UpdateCall struct {
	ID     string
	Params *stripego.SubscriptionParams
}

// InMemoryStripeClient is a test double for the Stripe client. It serves
// records from in-memory maps, records every mutating call, and supports
// per-record error injection.
type InMemoryStripeClient struct {
	Subscriptions  map[stripego.SubscriptionStatus][]*stripego.Subscription
	Products       map[string]*stripego.Product
	Prices         map[string]*stripego.Price
	Customers      map[string]*stripego.Customer
	PaymentMethods map[string]*stripego.PaymentMethod

	// CustomerSubscriptions backs ListActiveSubscriptionsForCustomer,
	// keyed by customer id.
	CustomerSubscriptions map[string][]*stripego.Subscription

	// Recorded mutating calls.
	UpdateCalls      []UpdateCall
	CancelCalls      []string
	CreatedSubs      []*stripego.SubscriptionParams
	CreatedSchedules []*stripego.SubscriptionScheduleParams
	CreatedPrices    []*stripego.PriceParams
	CreatedCustomers []string

	// Idempotency keys seen on create calls, in order.
	IdempotencyKeys []string

	// Error injection by record id.
	UpdateErrors map[string]error
	CancelErrors map[string]error

	// ListErr, when set, is returned by the subscription iterator after the
	// records are exhausted.
	ListErr error
}

func NewInMemoryStripeClient() *InMemoryStripeClient {
	return &InMemoryStripeClient{
		Subscriptions:         make(map[stripego.SubscriptionStatus][]*stripego.Subscription),
		Products:              make(map[string]*stripego.Product),
		Prices:                make(map[string]*stripego.Price),
		Customers:             make(map[string]*stripego.Customer),
		PaymentMethods:        make(map[string]*stripego.PaymentMethod),
		CustomerSubscriptions: make(map[string][]*stripego.Subscription),
		UpdateErrors:          make(map[string]error),
		CancelErrors:          make(map[string]error),
	}
}

// MutatingCalls counts every mutation the client has seen; dry-run tests
// assert it stays zero.
func (c *InMemoryStripeClient) MutatingCalls() int {
	return len(c.UpdateCalls) + len(c.CancelCalls) + len(c.CreatedSubs) +
		len(c.CreatedSchedules) + len(c.CreatedPrices) + len(c.CreatedCustomers)
}

type sliceSubscriptionIter struct {
	subs []*stripego.Subscription
	pos  int
	err  error
}

func (it *sliceSubscriptionIter) Next() bool {
	if it.pos < len(it.subs) {
		it.pos++
		return true
	}
	return false
}

func (it *sliceSubscriptionIter) Subscription() *stripego.Subscription {
	return it.subs[it.pos-1]
}

func (it *sliceSubscriptionIter) Err() error {
	if it.pos >= len(it.subs) {
		return it.err
	}
	return nil
}

func (c *InMemoryStripeClient) ListSubscriptions(_ context.Context, status stripego.SubscriptionStatus, created *types.CreatedRange) stripe.SubscriptionIter {
	var subs []*stripego.Subscription
	for _, sub := range c.Subscriptions[status] {
		// Emulate the provider-side created filter.
		if created != nil {
			if created.GTE != 0 && sub.Created < created.GTE {
				continue
			}
			if created.LT != 0 && sub.Created >= created.LT {
				continue
			}
		}
		subs = append(subs, sub)
	}
	return &sliceSubscriptionIter{subs: subs, err: c.ListErr}
}

func (c *InMemoryStripeClient) ListActiveSubscriptionsForCustomer(_ context.Context, customerID string) ([]*stripego.Subscription, error) {
	return c.CustomerSubscriptions[customerID], nil
}

func (c *InMemoryStripeClient) UpdateSubscription(_ context.Context, id string, params *stripego.SubscriptionParams) (*stripego.Subscription, error) {
	if err := c.UpdateErrors[id]; err != nil {
		return nil, err
	}
	c.UpdateCalls = append(c.UpdateCalls, UpdateCall{ID: id, Params: params})
	return &stripego.Subscription{ID: id}, nil
}

func (c *InMemoryStripeClient) CancelSubscription(_ context.Context, id string) (*stripego.Subscription, error) {
	if err := c.CancelErrors[id]; err != nil {
		return nil, err
	}
	c.CancelCalls = append(c.CancelCalls, id)
	return &stripego.Subscription{ID: id, Status: stripego.SubscriptionStatusCanceled}, nil
}

func (c *InMemoryStripeClient) CreateSubscription(_ context.Context, params *stripego.SubscriptionParams, idempotencyKey string) (*stripego.Subscription, error) {
	c.CreatedSubs = append(c.CreatedSubs, params)
	c.IdempotencyKeys = append(c.IdempotencyKeys, idempotencyKey)
	return &stripego.Subscription{
		ID:     "sub_created",
		Status: stripego.SubscriptionStatusActive,
	}, nil
}

func (c *InMemoryStripeClient) CreateSubscriptionSchedule(_ context.Context, params *stripego.SubscriptionScheduleParams, idempotencyKey string) (*stripego.SubscriptionSchedule, error) {
	c.CreatedSchedules = append(c.CreatedSchedules, params)
	c.IdempotencyKeys = append(c.IdempotencyKeys, idempotencyKey)
	return &stripego.SubscriptionSchedule{
		ID:     "sub_sched_created",
		Status: stripego.SubscriptionScheduleStatusActive,
	}, nil
}

func (c *InMemoryStripeClient) GetProduct(_ context.Context, id string) (*stripego.Product, error) {
	product, ok := c.Products[id]
	if !ok {
		return nil, ierr.NewErrorf("product %s not found", id).Mark(ierr.ErrNotFound)
	}
	return product, nil
}

func (c *InMemoryStripeClient) GetPrice(_ context.Context, id string) (*stripego.Price, error) {
	price, ok := c.Prices[id]
	if !ok {
		return nil, ierr.NewErrorf("price %s not found", id).Mark(ierr.ErrNotFound)
	}
	return price, nil
}

func (c *InMemoryStripeClient) CreatePrice(_ context.Context, params *stripego.PriceParams) (*stripego.Price, error) {
	c.CreatedPrices = append(c.CreatedPrices, params)
	price := &stripego.Price{ID: "price_bootstrap", Active: true}
	if params.UnitAmount != nil {
		price.UnitAmount = *params.UnitAmount
	}
	if params.Currency != nil {
		price.Currency = stripego.Currency(*params.Currency)
	}
	return price, nil
}

func (c *InMemoryStripeClient) GetCustomer(_ context.Context, id string) (*stripego.Customer, error) {
	customer, ok := c.Customers[id]
	if !ok {
		return nil, ierr.NewErrorf("customer %s not found", id).Mark(ierr.ErrNotFound)
	}
	return customer, nil
}

func (c *InMemoryStripeClient) SearchCustomersByEmail(_ context.Context, email string) ([]*stripego.Customer, error) {
	var matches []*stripego.Customer
	for _, customer := range c.Customers {
		if customer.Email == email {
			matches = append(matches, customer)
		}
	}
	return matches, nil
}

func (c *InMemoryStripeClient) CreateCustomer(_ context.Context, email string) (*stripego.Customer, error) {
	c.CreatedCustomers = append(c.CreatedCustomers, email)
	customer := &stripego.Customer{ID: "cus_created", Email: email}
	c.Customers[customer.ID] = customer
	return customer, nil
}

func (c *InMemoryStripeClient) GetPaymentMethod(_ context.Context, id string) (*stripego.PaymentMethod, error) {
	pm, ok := c.PaymentMethods[id]
	if !ok {
		return nil, ierr.NewErrorf("payment method %s not found", id).Mark(ierr.ErrNotFound)
	}
	return pm, nil
}
