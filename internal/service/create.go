package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	stripego "github.com/stripe/stripe-go/v82"

	ierr "github.com/flexprice/subscription-ops/internal/errors"
	"github.com/flexprice/subscription-ops/internal/idempotency"
	"github.com/flexprice/subscription-ops/internal/integration/stripe"
	"github.com/flexprice/subscription-ops/internal/logger"
	"github.com/flexprice/subscription-ops/internal/types"
	"github.com/flexprice/subscription-ops/internal/validator"
)

// Bootstrap price used as the first phase of a subscription schedule:
// EUR 5.00 per day.
const (
	bootstrapPriceUnitAmount = 500
	bootstrapPriceCurrency   = "eur"
	bootstrapPhaseIterations = 3
)

// CreateSubscriptionRequest is the full input of a creation run. Validate
// runs entirely client-side, before any remote call.
type CreateSubscriptionRequest struct {
	CustomerID      string `validate:"omitempty"`
	CustomerEmail   string `validate:"omitempty,email"`
	PriceID         string `validate:"required"`
	PaymentMethodID string `validate:"required"`

	// TrialDays and TrialEnd are mutually exclusive.
	TrialDays *int64 `validate:"omitempty,gte=0,lte=730"`
	// TrialEnd is an epoch-second timestamp; must be in the future.
	TrialEnd *int64

	TaxMode types.TaxMode `validate:"omitempty,oneof=off exclusive inclusive auto"`

	Schedule         bool
	ScheduleBehavior types.ScheduleEndBehavior `validate:"omitempty,oneof=release cancel"`

	Confirm bool
}

// Validate applies the client-side gates: identifier presence, trial
// consistency, and enum membership. Defaults are filled in first.
func (r *CreateSubscriptionRequest) Validate() error {
	if r.TaxMode == "" {
		r.TaxMode = types.TaxModeOff
	}
	if r.ScheduleBehavior == "" {
		r.ScheduleBehavior = types.ScheduleEndBehaviorCancel
	}

	if err := validator.ValidateRequest(r); err != nil {
		return err
	}

	if r.CustomerID == "" && r.CustomerEmail == "" {
		return ierr.NewError("a customer id or email is required").
			WithHint("Provide --customer or --customer-email").
			Mark(ierr.ErrValidation)
	}
	if r.CustomerID != "" && r.CustomerEmail != "" {
		return ierr.NewError("customer id and email cannot be used together").
			WithHint("Provide exactly one of --customer and --customer-email").
			Mark(ierr.ErrValidation)
	}

	if r.TrialDays != nil && r.TrialEnd != nil {
		return ierr.NewError("trial days and trial end cannot be used together").
			WithHint("Provide at most one of --trial-days and --trial-end").
			Mark(ierr.ErrValidation)
	}
	if r.TrialEnd != nil && *r.TrialEnd <= time.Now().Unix() {
		return ierr.NewError("trial end cannot be in the past").
			WithHint("Provide a future epoch-second timestamp for --trial-end").
			WithReportableDetails(map[string]any{"trial_end": *r.TrialEnd}).
			Mark(ierr.ErrValidation)
	}

	return nil
}

func (r *CreateSubscriptionRequest) strategy() string {
	if r.Schedule {
		return types.StrategySubscriptionSchedule
	}
	return types.StrategySubscription
}

// CreateResult is what a creation run produced. Exactly one of Subscription
// and Schedule is set on a confirmed run; neither on a dry run.
type CreateResult struct {
	DryRun         bool
	IdempotencyKey string
	Customer       *stripego.Customer
	Subscription   *stripego.Subscription
	Schedule       *stripego.SubscriptionSchedule
	// BootstrapPrice is the daily price created for the schedule's first
	// phase; set only alongside Schedule.
	BootstrapPrice *stripego.Price
}

// CreateService runs the backoffice creation pipeline: validate, resolve
// collaborating records, guard against duplicates, then create (or print,
// on a dry run) the subscription or schedule.
type CreateService interface {
	Run(ctx context.Context, req *CreateSubscriptionRequest) (*CreateResult, error)
}

type createService struct {
	client  stripe.Client
	logger  *logger.Logger
	idemGen *idempotency.Generator
}

func NewCreateService(client stripe.Client, log *logger.Logger) CreateService {
	return &createService{
		client:  client,
		logger:  log,
		idemGen: idempotency.NewGenerator(),
	}
}

func (s *createService) Run(ctx context.Context, req *CreateSubscriptionRequest) (*CreateResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	customer, err := s.resolveCustomer(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := s.validatePrice(ctx, req.PriceID); err != nil {
		return nil, err
	}

	if err := s.verifyPaymentMethod(ctx, req.PaymentMethodID, customer.ID); err != nil {
		return nil, err
	}

	if err := s.guardDuplicate(ctx, customer.ID, req.PriceID); err != nil {
		return nil, err
	}

	scope := idempotency.ScopeSubscription
	if req.Schedule {
		scope = idempotency.ScopeSubscriptionSchedule
	}
	idempotencyKey := s.idemGen.GenerateKey(scope, map[string]interface{}{
		"customer_id":       customer.ID,
		"price_id":          req.PriceID,
		"payment_method_id": req.PaymentMethodID,
	})

	result := &CreateResult{
		IdempotencyKey: idempotencyKey,
		Customer:       customer,
	}

	if !req.Confirm {
		result.DryRun = true
		s.logDryRun(req, customer.ID, idempotencyKey)
		return result, nil
	}

	if req.Schedule {
		schedule, bootstrap, err := s.createSchedule(ctx, req, customer.ID, idempotencyKey)
		if err != nil {
			return nil, err
		}
		result.Schedule = schedule
		result.BootstrapPrice = bootstrap
		return result, nil
	}

	sub, err := s.client.CreateSubscription(ctx, s.subscriptionParams(req, customer.ID), idempotencyKey)
	if err != nil {
		return nil, err
	}
	result.Subscription = sub
	return result, nil
}

// resolveCustomer normalizes the three ways of identifying a customer into
// a single record: direct id fetch, first email-search hit, or a customer
// newly created from the email when the search comes up empty.
func (s *createService) resolveCustomer(ctx context.Context, req *CreateSubscriptionRequest) (*stripego.Customer, error) {
	if req.CustomerID != "" {
		return s.client.GetCustomer(ctx, req.CustomerID)
	}

	customers, err := s.client.SearchCustomersByEmail(ctx, req.CustomerEmail)
	if err != nil {
		return nil, err
	}
	if len(customers) > 0 {
		if len(customers) > 1 {
			s.logger.Warnw("multiple customers share this email, using the first match",
				"email", req.CustomerEmail,
				"count", len(customers),
				"customer_id", customers[0].ID,
			)
		}
		return customers[0], nil
	}

	s.logger.Infow("no customer found for email, creating one", "email", req.CustomerEmail)
	return s.client.CreateCustomer(ctx, req.CustomerEmail)
}

func (s *createService) validatePrice(ctx context.Context, priceID string) error {
	price, err := s.client.GetPrice(ctx, priceID)
	if err != nil {
		return err
	}
	if !price.Active {
		return ierr.NewError("price is not active").
			WithHintf("Price %s is archived in Stripe", priceID).
			Mark(ierr.ErrValidation)
	}
	if price.Type != stripego.PriceTypeRecurring {
		return ierr.NewError("price is not a recurring price").
			WithHintf("Price %s is a one-time price; subscriptions need a recurring one", priceID).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// verifyPaymentMethod requires the payment method to already be attached to
// the resolved customer: this tool only supports pre-attached backoffice
// payment flows, not hosted checkout.
func (s *createService) verifyPaymentMethod(ctx context.Context, paymentMethodID, customerID string) error {
	pm, err := s.client.GetPaymentMethod(ctx, paymentMethodID)
	if err != nil {
		return err
	}
	if pm.Customer == nil || pm.Customer.ID != customerID {
		return ierr.NewError("payment method is not attached to the customer").
			WithHintf("Attach payment method %s to customer %s before creating the subscription", paymentMethodID, customerID).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// guardDuplicate rejects the run when the customer already holds an active
// subscription to the target price.
func (s *createService) guardDuplicate(ctx context.Context, customerID, priceID string) error {
	subs, err := s.client.ListActiveSubscriptionsForCustomer(ctx, customerID)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if sub.Items == nil {
			continue
		}
		for _, item := range sub.Items.Data {
			if item.Price != nil && item.Price.ID == priceID {
				return ierr.NewError("customer is already subscribed to this price").
					WithHintf("Subscription %s already carries price %s", sub.ID, priceID).
					WithReportableDetails(map[string]any{
						"subscription_id": sub.ID,
						"price_id":        priceID,
					}).
					Mark(ierr.ErrAlreadyExists)
			}
		}
	}
	return nil
}

func (s *createService) subscriptionParams(req *CreateSubscriptionRequest, customerID string) *stripego.SubscriptionParams {
	params := &stripego.SubscriptionParams{
		Customer: stripego.String(customerID),
		Items: []*stripego.SubscriptionItemsParams{
			{
				Price:    stripego.String(req.PriceID),
				Quantity: stripego.Int64(1),
			},
		},
		CollectionMethod:     stripego.String(string(stripego.SubscriptionCollectionMethodChargeAutomatically)),
		DefaultPaymentMethod: stripego.String(req.PaymentMethodID),
		TrialPeriodDays:      req.TrialDays,
		TrialEnd:             req.TrialEnd,
	}
	if req.TaxMode == types.TaxModeAuto {
		params.AutomaticTax = &stripego.SubscriptionAutomaticTaxParams{
			Enabled: stripego.Bool(true),
		}
	}
	params.AddMetadata("mode", types.CreationModeBackoffice)
	params.AddMetadata("strategy", req.strategy())
	return params
}

// createSchedule creates the daily bootstrap price and the two-phase
// schedule: the bootstrap price for three daily iterations, then the target
// price, with the configured end behavior after the last phase.
func (s *createService) createSchedule(ctx context.Context, req *CreateSubscriptionRequest, customerID, idempotencyKey string) (*stripego.SubscriptionSchedule, *stripego.Price, error) {
	bootstrap, err := s.createBootstrapPrice(ctx)
	if err != nil {
		return nil, nil, err
	}

	params := &stripego.SubscriptionScheduleParams{
		Customer:     stripego.String(customerID),
		StartDateNow: stripego.Bool(true),
		EndBehavior:  stripego.String(string(req.ScheduleBehavior)),
		DefaultSettings: &stripego.SubscriptionScheduleDefaultSettingsParams{
			CollectionMethod:     stripego.String(string(stripego.SubscriptionCollectionMethodChargeAutomatically)),
			DefaultPaymentMethod: stripego.String(req.PaymentMethodID),
		},
		Phases: []*stripego.SubscriptionSchedulePhaseParams{
			{
				Items: []*stripego.SubscriptionSchedulePhaseItemParams{
					{
						Price:    stripego.String(bootstrap.ID),
						Quantity: stripego.Int64(1),
					},
				},
				Iterations: stripego.Int64(bootstrapPhaseIterations),
			},
			{
				Items: []*stripego.SubscriptionSchedulePhaseItemParams{
					{
						Price:    stripego.String(req.PriceID),
						Quantity: stripego.Int64(1),
					},
				},
				Iterations: stripego.Int64(1),
			},
		},
	}
	params.AddMetadata("mode", types.CreationModeBackoffice)
	params.AddMetadata("strategy", req.strategy())

	schedule, err := s.client.CreateSubscriptionSchedule(ctx, params, idempotencyKey)
	if err != nil {
		return nil, nil, err
	}
	return schedule, bootstrap, nil
}

func (s *createService) createBootstrapPrice(ctx context.Context) (*stripego.Price, error) {
	s.logger.Infow("creating bootstrap daily price",
		"amount", FormatAmount(bootstrapPriceUnitAmount, bootstrapPriceCurrency),
	)

	return s.client.CreatePrice(ctx, &stripego.PriceParams{
		UnitAmount: stripego.Int64(bootstrapPriceUnitAmount),
		Currency:   stripego.String(bootstrapPriceCurrency),
		Recurring: &stripego.PriceRecurringParams{
			Interval:      stripego.String(string(stripego.PriceRecurringIntervalDay)),
			IntervalCount: stripego.Int64(1),
		},
		ProductData: &stripego.PriceProductDataParams{
			Name: stripego.String(fmt.Sprintf("daily-bootstrap-%d", time.Now().Unix())),
		},
	})
}

func (s *createService) logDryRun(req *CreateSubscriptionRequest, customerID, idempotencyKey string) {
	fields := []interface{}{
		"customer_id", customerID,
		"price_id", req.PriceID,
		"payment_method_id", req.PaymentMethodID,
		"strategy", req.strategy(),
		"tax_mode", req.TaxMode,
		"idempotency_key", idempotencyKey,
	}
	if req.TrialDays != nil {
		fields = append(fields, "trial_days", *req.TrialDays)
	}
	if req.TrialEnd != nil {
		fields = append(fields, "trial_end", *req.TrialEnd)
	}
	if req.Schedule {
		fields = append(fields,
			"schedule_end_behavior", req.ScheduleBehavior,
			"phase_1", fmt.Sprintf("bootstrap daily price x%d iterations", bootstrapPhaseIterations),
			"phase_2", fmt.Sprintf("price %s x1 iteration", req.PriceID),
		)
	}
	s.logger.Infow("DRY-RUN: would create "+req.strategy(), fields...)
}

// FormatAmount renders a minor-unit amount as a decimal string with the
// currency, e.g. 500/"eur" -> "5.00 eur". Assumes two-decimal currencies,
// which holds for everything these tools create.
func FormatAmount(unitAmount int64, currency string) string {
	amount := decimal.NewFromInt(unitAmount).Div(decimal.NewFromInt(100))
	return fmt.Sprintf("%s %s", amount.StringFixed(2), currency)
}

// PaymentIntentStatus digs the payment intent status out of the
// subscription's latest invoice payments, for surfacing incomplete
// creations to the operator.
func PaymentIntentStatus(sub *stripego.Subscription) (stripego.PaymentIntentStatus, bool) {
	if sub.LatestInvoice == nil || sub.LatestInvoice.Payments == nil {
		return "", false
	}
	for _, p := range sub.LatestInvoice.Payments.Data {
		if p.Payment != nil && p.Payment.PaymentIntent != nil {
			return p.Payment.PaymentIntent.Status, true
		}
	}
	return "", false
}
