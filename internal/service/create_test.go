package service

import (
	"context"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripego "github.com/stripe/stripe-go/v82"

	ierr "github.com/flexprice/subscription-ops/internal/errors"
	"github.com/flexprice/subscription-ops/internal/logger"
	"github.com/flexprice/subscription-ops/internal/testutil"
	"github.com/flexprice/subscription-ops/internal/types"
)

func newCreateFixture() (*testutil.InMemoryStripeClient, CreateService) {
	client := testutil.NewInMemoryStripeClient()
	client.Customers["cus_1"] = &stripego.Customer{ID: "cus_1", Email: "ops@example.com"}
	client.Prices["price_1"] = &stripego.Price{
		ID:     "price_1",
		Active: true,
		Type:   stripego.PriceTypeRecurring,
	}
	client.PaymentMethods["pm_1"] = &stripego.PaymentMethod{
		ID:       "pm_1",
		Customer: &stripego.Customer{ID: "cus_1"},
	}
	return client, NewCreateService(client, logger.GetLogger())
}

func validRequest() *CreateSubscriptionRequest {
	return &CreateSubscriptionRequest{
		CustomerID:      "cus_1",
		PriceID:         "price_1",
		PaymentMethodID: "pm_1",
		Confirm:         true,
	}
}

func TestCreateRequestValidate(t *testing.T) {
	future := time.Now().Add(48 * time.Hour).Unix()

	tests := []struct {
		name    string
		mutate  func(r *CreateSubscriptionRequest)
		wantErr bool
	}{
		{name: "valid minimal", mutate: func(r *CreateSubscriptionRequest) {}},
		{
			name:   "email instead of id",
			mutate: func(r *CreateSubscriptionRequest) { r.CustomerID = ""; r.CustomerEmail = "ops@example.com" },
		},
		{
			name:    "no customer identifier",
			mutate:  func(r *CreateSubscriptionRequest) { r.CustomerID = "" },
			wantErr: true,
		},
		{
			name:    "both customer identifiers",
			mutate:  func(r *CreateSubscriptionRequest) { r.CustomerEmail = "ops@example.com" },
			wantErr: true,
		},
		{
			name:    "malformed email",
			mutate:  func(r *CreateSubscriptionRequest) { r.CustomerID = ""; r.CustomerEmail = "not-an-email" },
			wantErr: true,
		},
		{
			name:    "missing price",
			mutate:  func(r *CreateSubscriptionRequest) { r.PriceID = "" },
			wantErr: true,
		},
		{
			name:    "missing payment method",
			mutate:  func(r *CreateSubscriptionRequest) { r.PaymentMethodID = "" },
			wantErr: true,
		},
		{
			name:   "trial days alone",
			mutate: func(r *CreateSubscriptionRequest) { r.TrialDays = lo.ToPtr(int64(14)) },
		},
		{
			name:    "trial days out of range",
			mutate:  func(r *CreateSubscriptionRequest) { r.TrialDays = lo.ToPtr(int64(731)) },
			wantErr: true,
		},
		{
			name:    "negative trial days",
			mutate:  func(r *CreateSubscriptionRequest) { r.TrialDays = lo.ToPtr(int64(-1)) },
			wantErr: true,
		},
		{
			name:   "trial end alone",
			mutate: func(r *CreateSubscriptionRequest) { r.TrialEnd = lo.ToPtr(future) },
		},
		{
			name: "trial days and trial end together",
			mutate: func(r *CreateSubscriptionRequest) {
				r.TrialDays = lo.ToPtr(int64(14))
				r.TrialEnd = lo.ToPtr(future)
			},
			wantErr: true,
		},
		{
			name:    "trial end in the past",
			mutate:  func(r *CreateSubscriptionRequest) { r.TrialEnd = lo.ToPtr(int64(1704844800)) },
			wantErr: true,
		},
		{
			name:    "unknown tax mode",
			mutate:  func(r *CreateSubscriptionRequest) { r.TaxMode = "reverse-charge" },
			wantErr: true,
		},
		{
			name:    "unknown schedule behavior",
			mutate:  func(r *CreateSubscriptionRequest) { r.Schedule = true; r.ScheduleBehavior = "pause" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)
			err := req.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, ierr.IsValidation(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestCreateRequestValidate_FillsDefaults(t *testing.T) {
	req := validRequest()
	require.NoError(t, req.Validate())
	assert.Equal(t, types.TaxModeOff, req.TaxMode)
	assert.Equal(t, types.ScheduleEndBehaviorCancel, req.ScheduleBehavior)
}

func TestCreateRun_ValidationFailsBeforeAnyRemoteCall(t *testing.T) {
	client, svc := newCreateFixture()

	req := validRequest()
	req.CustomerEmail = "ops@example.com" // both identifiers set

	_, err := svc.Run(context.Background(), req)
	require.Error(t, err)
	assert.True(t, ierr.IsValidation(err))
	assert.Zero(t, client.MutatingCalls())
}

func TestCreateRun_UnknownCustomer(t *testing.T) {
	_, svc := newCreateFixture()

	req := validRequest()
	req.CustomerID = "cus_missing"

	_, err := svc.Run(context.Background(), req)
	require.Error(t, err)
	assert.True(t, ierr.IsNotFound(err))
}

func TestCreateRun_ResolvesCustomerByEmail(t *testing.T) {
	client, svc := newCreateFixture()
	client.PaymentMethods["pm_1"].Customer = &stripego.Customer{ID: "cus_1"}

	req := validRequest()
	req.CustomerID = ""
	req.CustomerEmail = "ops@example.com"

	result, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "cus_1", result.Customer.ID)
	assert.Empty(t, client.CreatedCustomers)
}

func TestCreateRun_CreatesCustomerWhenEmailUnknown(t *testing.T) {
	client, svc := newCreateFixture()
	client.PaymentMethods["pm_1"].Customer = &stripego.Customer{ID: "cus_created"}

	req := validRequest()
	req.CustomerID = ""
	req.CustomerEmail = "new@example.com"

	result, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "cus_created", result.Customer.ID)
	assert.Equal(t, []string{"new@example.com"}, client.CreatedCustomers)
}

func TestCreateRun_RejectsArchivedPrice(t *testing.T) {
	client, svc := newCreateFixture()
	client.Prices["price_1"].Active = false

	_, err := svc.Run(context.Background(), validRequest())
	require.Error(t, err)
	assert.True(t, ierr.IsValidation(err))
	assert.Zero(t, client.MutatingCalls())
}

func TestCreateRun_RejectsOneTimePrice(t *testing.T) {
	client, svc := newCreateFixture()
	client.Prices["price_1"].Type = stripego.PriceTypeOneTime

	_, err := svc.Run(context.Background(), validRequest())
	require.Error(t, err)
	assert.True(t, ierr.IsValidation(err))
}

func TestCreateRun_RejectsUnattachedPaymentMethod(t *testing.T) {
	client, svc := newCreateFixture()
	client.PaymentMethods["pm_1"].Customer = &stripego.Customer{ID: "cus_other"}

	_, err := svc.Run(context.Background(), validRequest())
	require.Error(t, err)
	assert.True(t, ierr.IsValidation(err))
	assert.Zero(t, client.MutatingCalls())
}

func TestCreateRun_DuplicateSubscriptionGuard(t *testing.T) {
	client, svc := newCreateFixture()
	client.CustomerSubscriptions["cus_1"] = []*stripego.Subscription{
		{
			ID: "sub_existing",
			Items: &stripego.SubscriptionItemList{
				Data: []*stripego.SubscriptionItem{
					{Price: &stripego.Price{ID: "price_1"}},
				},
			},
		},
	}

	_, err := svc.Run(context.Background(), validRequest())
	require.Error(t, err)
	assert.True(t, ierr.IsAlreadyExists(err))
	assert.Zero(t, client.MutatingCalls())
}

func TestCreateRun_DryRunPerformsNoMutations(t *testing.T) {
	client, svc := newCreateFixture()

	req := validRequest()
	req.Confirm = false

	result, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.NotEmpty(t, result.IdempotencyKey)
	assert.Nil(t, result.Subscription)
	assert.Nil(t, result.Schedule)
	assert.Zero(t, client.MutatingCalls())
}

func TestCreateRun_DryRunScheduleCreatesNoBootstrapPrice(t *testing.T) {
	client, svc := newCreateFixture()

	req := validRequest()
	req.Confirm = false
	req.Schedule = true

	result, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Nil(t, result.BootstrapPrice)
	assert.Empty(t, client.CreatedPrices)
	assert.Zero(t, client.MutatingCalls())
}

func TestCreateRun_IdempotencyKeyStableAcrossRuns(t *testing.T) {
	_, svc := newCreateFixture()

	req1 := validRequest()
	req1.Confirm = false
	first, err := svc.Run(context.Background(), req1)
	require.NoError(t, err)

	req2 := validRequest()
	req2.Confirm = false
	second, err := svc.Run(context.Background(), req2)
	require.NoError(t, err)

	assert.Equal(t, first.IdempotencyKey, second.IdempotencyKey)
}

func TestCreateRun_ConfirmedSubscription(t *testing.T) {
	client, svc := newCreateFixture()

	req := validRequest()
	req.TrialDays = lo.ToPtr(int64(14))
	req.TaxMode = types.TaxModeAuto

	result, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result.Subscription)
	assert.Nil(t, result.Schedule)

	require.Len(t, client.CreatedSubs, 1)
	params := client.CreatedSubs[0]
	assert.Equal(t, "cus_1", *params.Customer)
	require.Len(t, params.Items, 1)
	assert.Equal(t, "price_1", *params.Items[0].Price)
	assert.Equal(t, int64(1), *params.Items[0].Quantity)
	assert.Equal(t, "pm_1", *params.DefaultPaymentMethod)
	assert.Equal(t, string(stripego.SubscriptionCollectionMethodChargeAutomatically), *params.CollectionMethod)
	require.NotNil(t, params.TrialPeriodDays)
	assert.Equal(t, int64(14), *params.TrialPeriodDays)
	require.NotNil(t, params.AutomaticTax)
	assert.True(t, *params.AutomaticTax.Enabled)
	assert.Equal(t, types.CreationModeBackoffice, params.Metadata["mode"])
	assert.Equal(t, types.StrategySubscription, params.Metadata["strategy"])

	require.Len(t, client.IdempotencyKeys, 1)
	assert.Equal(t, result.IdempotencyKey, client.IdempotencyKeys[0])
}

func TestCreateRun_NoAutomaticTaxUnlessAuto(t *testing.T) {
	client, svc := newCreateFixture()

	req := validRequest()
	req.TaxMode = types.TaxModeExclusive

	_, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, client.CreatedSubs, 1)
	assert.Nil(t, client.CreatedSubs[0].AutomaticTax)
}

func TestCreateRun_ConfirmedSchedule(t *testing.T) {
	client, svc := newCreateFixture()

	req := validRequest()
	req.Schedule = true
	req.ScheduleBehavior = types.ScheduleEndBehaviorRelease

	result, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result.Schedule)
	assert.Nil(t, result.Subscription)

	// The daily bootstrap price backs the first phase.
	require.Len(t, client.CreatedPrices, 1)
	bootstrap := client.CreatedPrices[0]
	assert.Equal(t, int64(500), *bootstrap.UnitAmount)
	assert.Equal(t, "eur", *bootstrap.Currency)
	require.NotNil(t, bootstrap.Recurring)
	assert.Equal(t, "day", *bootstrap.Recurring.Interval)

	require.NotNil(t, result.BootstrapPrice)
	assert.Equal(t, "price_bootstrap", result.BootstrapPrice.ID)
	assert.Equal(t, int64(500), result.BootstrapPrice.UnitAmount)
	assert.Equal(t, stripego.Currency("eur"), result.BootstrapPrice.Currency)

	require.Len(t, client.CreatedSchedules, 1)
	params := client.CreatedSchedules[0]
	assert.Equal(t, "cus_1", *params.Customer)
	assert.True(t, *params.StartDateNow)
	assert.Equal(t, "release", *params.EndBehavior)
	require.NotNil(t, params.DefaultSettings)
	assert.Equal(t, "pm_1", *params.DefaultSettings.DefaultPaymentMethod)
	assert.Equal(t, string(stripego.SubscriptionCollectionMethodChargeAutomatically), *params.DefaultSettings.CollectionMethod)

	require.Len(t, params.Phases, 2)
	first, second := params.Phases[0], params.Phases[1]
	require.Len(t, first.Items, 1)
	assert.Equal(t, "price_bootstrap", *first.Items[0].Price)
	assert.Equal(t, int64(3), *first.Iterations)
	require.Len(t, second.Items, 1)
	assert.Equal(t, "price_1", *second.Items[0].Price)
	assert.Equal(t, int64(1), *second.Iterations)

	assert.Equal(t, types.StrategySubscriptionSchedule, params.Metadata["strategy"])
	assert.Empty(t, client.CreatedSubs)
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		unitAmount int64
		currency   string
		want       string
	}{
		{500, "eur", "5.00 eur"},
		{1999, "usd", "19.99 usd"},
		{0, "eur", "0.00 eur"},
		{50, "gbp", "0.50 gbp"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatAmount(tt.unitAmount, tt.currency))
	}
}

func TestPaymentIntentStatus(t *testing.T) {
	sub := &stripego.Subscription{}
	_, ok := PaymentIntentStatus(sub)
	assert.False(t, ok)

	sub.LatestInvoice = &stripego.Invoice{
		Payments: &stripego.InvoicePaymentList{
			Data: []*stripego.InvoicePayment{
				{
					Payment: &stripego.InvoicePaymentPayment{
						PaymentIntent: &stripego.PaymentIntent{
							Status: stripego.PaymentIntentStatusRequiresAction,
						},
					},
				},
			},
		},
	}
	status, ok := PaymentIntentStatus(sub)
	require.True(t, ok)
	assert.Equal(t, stripego.PaymentIntentStatusRequiresAction, status)
}
