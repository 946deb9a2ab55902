package stripe

import (
	"context"
	"errors"
	"fmt"

	stripego "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	ierr "github.com/flexprice/subscription-ops/internal/errors"
	"github.com/flexprice/subscription-ops/internal/logger"
	"github.com/flexprice/subscription-ops/internal/types"
)

// pageLimit is the page size requested from the subscriptions list endpoint.
const pageLimit = 100

// SubscriptionIter is a lazy sequence of subscription records, one provider
// request per page, consumed strictly in order. It is satisfied by the
// stripe-go list iterator and by the in-memory test client.
type SubscriptionIter interface {
	Next() bool
	Subscription() *stripego.Subscription
	Err() error
}

// Client is the surface of the Stripe API the tools consume. All business
// rules (proration, invoicing, dunning) stay on the Stripe side of this
// boundary.
type Client interface {
	ListSubscriptions(ctx context.Context, status stripego.SubscriptionStatus, created *types.CreatedRange) SubscriptionIter
	ListActiveSubscriptionsForCustomer(ctx context.Context, customerID string) ([]*stripego.Subscription, error)
	UpdateSubscription(ctx context.Context, id string, params *stripego.SubscriptionParams) (*stripego.Subscription, error)
	CancelSubscription(ctx context.Context, id string) (*stripego.Subscription, error)
	CreateSubscription(ctx context.Context, params *stripego.SubscriptionParams, idempotencyKey string) (*stripego.Subscription, error)
	CreateSubscriptionSchedule(ctx context.Context, params *stripego.SubscriptionScheduleParams, idempotencyKey string) (*stripego.SubscriptionSchedule, error)

	GetProduct(ctx context.Context, id string) (*stripego.Product, error)
	GetPrice(ctx context.Context, id string) (*stripego.Price, error)
	CreatePrice(ctx context.Context, params *stripego.PriceParams) (*stripego.Price, error)

	GetCustomer(ctx context.Context, id string) (*stripego.Customer, error)
	SearchCustomersByEmail(ctx context.Context, email string) ([]*stripego.Customer, error)
	CreateCustomer(ctx context.Context, email string) (*stripego.Customer, error)

	GetPaymentMethod(ctx context.Context, id string) (*stripego.PaymentMethod, error)
}

type apiClient struct {
	api    *client.API
	logger *logger.Logger
}

// NewClient creates a Stripe client from the account's secret key.
func NewClient(secretKey string, log *logger.Logger) Client {
	return &apiClient{
		api:    client.New(secretKey, nil),
		logger: log,
	}
}

// ListSubscriptions returns a lazy iterator over subscriptions in the given
// status, with the price of every line item expanded and the optional
// created range pushed down to the provider query.
func (c *apiClient) ListSubscriptions(ctx context.Context, status stripego.SubscriptionStatus, created *types.CreatedRange) SubscriptionIter {
	params := &stripego.SubscriptionListParams{
		Status: stripego.String(string(status)),
	}
	params.Context = ctx
	params.Limit = stripego.Int64(pageLimit)
	// Expansion needed to read price details off each line item.
	params.AddExpand("data.items.data.price")

	if created != nil {
		rq := &stripego.RangeQueryParams{}
		if created.GTE != 0 {
			rq.GreaterThanOrEqual = created.GTE
		}
		if created.LT != 0 {
			rq.LesserThan = created.LT
		}
		params.CreatedRange = rq
	}

	return c.api.Subscriptions.List(params)
}

// ListActiveSubscriptionsForCustomer fetches all of a customer's active
// subscriptions eagerly. Used by the duplicate-subscription guard.
func (c *apiClient) ListActiveSubscriptionsForCustomer(ctx context.Context, customerID string) ([]*stripego.Subscription, error) {
	params := &stripego.SubscriptionListParams{
		Customer: stripego.String(customerID),
		Status:   stripego.String(string(stripego.SubscriptionStatusActive)),
	}
	params.Context = ctx
	params.Limit = stripego.Int64(pageLimit)

	var subs []*stripego.Subscription
	iter := c.api.Subscriptions.List(params)
	for iter.Next() {
		subs = append(subs, iter.Subscription())
	}
	if err := iter.Err(); err != nil {
		return nil, c.wrapError(err, "failed to list customer subscriptions", "Unable to list the customer's subscriptions in Stripe")
	}
	return subs, nil
}

func (c *apiClient) UpdateSubscription(ctx context.Context, id string, params *stripego.SubscriptionParams) (*stripego.Subscription, error) {
	params.Context = ctx
	sub, err := c.api.Subscriptions.Update(id, params)
	if err != nil {
		return nil, c.wrapError(err, "failed to update subscription", fmt.Sprintf("Stripe rejected the update for subscription %s", id))
	}
	c.logger.Infow("updated subscription in Stripe", "subscription_id", sub.ID, "status", sub.Status)
	return sub, nil
}

func (c *apiClient) CancelSubscription(ctx context.Context, id string) (*stripego.Subscription, error) {
	params := &stripego.SubscriptionCancelParams{}
	params.Context = ctx
	sub, err := c.api.Subscriptions.Cancel(id, params)
	if err != nil {
		return nil, c.wrapError(err, "failed to cancel subscription", fmt.Sprintf("Stripe rejected the cancellation of subscription %s", id))
	}
	c.logger.Infow("cancelled subscription in Stripe", "subscription_id", sub.ID, "status", sub.Status)
	return sub, nil
}

func (c *apiClient) CreateSubscription(ctx context.Context, params *stripego.SubscriptionParams, idempotencyKey string) (*stripego.Subscription, error) {
	params.Context = ctx
	params.IdempotencyKey = stripego.String(idempotencyKey)
	// Needed to surface the payment intent status when the subscription
	// lands in an incomplete state.
	params.AddExpand("latest_invoice.payments.data.payment.payment_intent")

	sub, err := c.api.Subscriptions.New(params)
	if err != nil {
		return nil, c.wrapError(err, "failed to create subscription", "Stripe rejected the subscription creation")
	}
	c.logger.Infow("created subscription in Stripe", "subscription_id", sub.ID, "status", sub.Status)
	return sub, nil
}

func (c *apiClient) CreateSubscriptionSchedule(ctx context.Context, params *stripego.SubscriptionScheduleParams, idempotencyKey string) (*stripego.SubscriptionSchedule, error) {
	params.Context = ctx
	params.IdempotencyKey = stripego.String(idempotencyKey)

	schedule, err := c.api.SubscriptionSchedules.New(params)
	if err != nil {
		return nil, c.wrapError(err, "failed to create subscription schedule", "Stripe rejected the schedule creation")
	}
	c.logger.Infow("created subscription schedule in Stripe", "schedule_id", schedule.ID, "status", schedule.Status)
	return schedule, nil
}

func (c *apiClient) GetProduct(ctx context.Context, id string) (*stripego.Product, error) {
	params := &stripego.ProductParams{}
	params.Context = ctx
	product, err := c.api.Products.Get(id, params)
	if err != nil {
		return nil, c.wrapError(err, "failed to retrieve product", fmt.Sprintf("Product %s not retrievable from Stripe", id))
	}
	return product, nil
}

func (c *apiClient) GetPrice(ctx context.Context, id string) (*stripego.Price, error) {
	params := &stripego.PriceParams{}
	params.Context = ctx
	price, err := c.api.Prices.Get(id, params)
	if err != nil {
		return nil, c.wrapError(err, "failed to retrieve price", fmt.Sprintf("Price %s not retrievable from Stripe", id))
	}
	return price, nil
}

func (c *apiClient) CreatePrice(ctx context.Context, params *stripego.PriceParams) (*stripego.Price, error) {
	params.Context = ctx
	price, err := c.api.Prices.New(params)
	if err != nil {
		return nil, c.wrapError(err, "failed to create price", "Stripe rejected the price creation")
	}
	c.logger.Infow("created price in Stripe", "price_id", price.ID)
	return price, nil
}

func (c *apiClient) GetCustomer(ctx context.Context, id string) (*stripego.Customer, error) {
	params := &stripego.CustomerParams{}
	params.Context = ctx
	customer, err := c.api.Customers.Get(id, params)
	if err != nil {
		return nil, c.wrapError(err, "failed to retrieve customer", fmt.Sprintf("Customer %s not retrievable from Stripe", id))
	}
	return customer, nil
}

// SearchCustomersByEmail returns all customers whose email matches exactly.
// Search is eventually consistent on the Stripe side; a just-created
// customer may not appear yet.
func (c *apiClient) SearchCustomersByEmail(ctx context.Context, email string) ([]*stripego.Customer, error) {
	params := &stripego.CustomerSearchParams{
		SearchParams: stripego.SearchParams{
			Query:   fmt.Sprintf("email:'%s'", email),
			Context: ctx,
		},
	}

	var customers []*stripego.Customer
	iter := c.api.Customers.Search(params)
	for iter.Next() {
		customers = append(customers, iter.Customer())
	}
	if err := iter.Err(); err != nil {
		return nil, c.wrapError(err, "failed to search customers", "Unable to search customers by email in Stripe")
	}
	return customers, nil
}

func (c *apiClient) CreateCustomer(ctx context.Context, email string) (*stripego.Customer, error) {
	params := &stripego.CustomerParams{
		Email: stripego.String(email),
	}
	params.Context = ctx
	customer, err := c.api.Customers.New(params)
	if err != nil {
		return nil, c.wrapError(err, "failed to create customer", "Stripe rejected the customer creation")
	}
	c.logger.Infow("created customer in Stripe", "customer_id", customer.ID, "email", email)
	return customer, nil
}

func (c *apiClient) GetPaymentMethod(ctx context.Context, id string) (*stripego.PaymentMethod, error) {
	params := &stripego.PaymentMethodParams{}
	params.Context = ctx
	pm, err := c.api.PaymentMethods.Get(id, params)
	if err != nil {
		return nil, c.wrapError(err, "failed to retrieve payment method", fmt.Sprintf("Payment method %s not retrievable from Stripe", id))
	}
	return pm, nil
}

// wrapError converts a stripe-go error into the internal error shape,
// classifying 404s as not-found and keeping the provider message reportable.
func (c *apiClient) wrapError(err error, msg, hint string) error {
	wrapped := fmt.Errorf("%s: %w", msg, err)
	var sErr *stripego.Error
	if errors.As(err, &sErr) {
		mark := ierr.ErrIntegration
		if sErr.HTTPStatusCode == 404 {
			mark = ierr.ErrNotFound
		}
		return ierr.WithError(wrapped).
			WithHint(hint).
			WithReportableDetails(map[string]any{
				"stripe_code": string(sErr.Code),
				"stripe_type": string(sErr.Type),
				"message":     sErr.Msg,
			}).
			Mark(mark)
	}
	return ierr.WithError(wrapped).
		WithHint(hint).
		Mark(ierr.ErrIntegration)
}
