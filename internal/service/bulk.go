package service

import (
	"context"
	"strings"

	"github.com/samber/lo"
	stripego "github.com/stripe/stripe-go/v82"

	ierr "github.com/flexprice/subscription-ops/internal/errors"
	"github.com/flexprice/subscription-ops/internal/integration/stripe"
	"github.com/flexprice/subscription-ops/internal/logger"
	"github.com/flexprice/subscription-ops/internal/types"
)

// SubscriptionFilter selects which remote subscriptions are in scope for a
// bulk run. The created range is pushed down to the provider query; product
// and price filters are applied client-side per record.
type SubscriptionFilter struct {
	// ProductName matches any line item's product display name,
	// case-insensitively.
	ProductName string
	// PriceID matches any line item's price id exactly (case-sensitive).
	PriceID string
	Created  *types.CreatedRange
}

// BulkRunParams is the explicit run configuration for a bulk mutation run.
// There is no ambient state: the action, filters and confirm switch all
// travel through here.
type BulkRunParams struct {
	Action  types.BulkAction
	Filter  SubscriptionFilter
	Confirm bool
}

// BulkSummary accumulates in memory over a single run and is printed once
// at process exit.
type BulkSummary struct {
	// Matched counts matching, non-skipped records.
	Matched int
	// Mutated counts confirmed successful mutations; never exceeds Matched.
	Mutated int
	// Skipped counts matching records the action had nothing to do for.
	Skipped int
	// Failed counts per-record mutation failures; they never abort the run.
	Failed int
}

// BulkService applies one lifecycle action to every matching subscription.
type BulkService interface {
	Run(ctx context.Context, params BulkRunParams) (*BulkSummary, error)
}

type bulkService struct {
	client stripe.Client
	logger *logger.Logger
}

func NewBulkService(client stripe.Client, log *logger.Logger) BulkService {
	return &bulkService{
		client: client,
		logger: log,
	}
}

// trackedStatuses are the subscription statuses a bulk run walks, each
// consumed fully before the next. A record holds exactly one status so the
// two passes cannot target the same subscription twice.
func trackedStatuses() []stripego.SubscriptionStatus {
	return []stripego.SubscriptionStatus{
		stripego.SubscriptionStatusActive,
		stripego.SubscriptionStatusTrialing,
	}
}

func (s *bulkService) Run(ctx context.Context, params BulkRunParams) (*BulkSummary, error) {
	if err := params.Action.Validate(); err != nil {
		return nil, err
	}

	// The handler is selected once for the whole run, not re-checked per
	// record.
	handler := newActionHandler(params.Action)
	summary := &BulkSummary{}
	cache := newProductNameCache(s.client, s.logger)

	s.logger.Debugw("starting bulk run",
		"action", params.Action,
		"confirm", params.Confirm,
		"product_filter", params.Filter.ProductName,
		"price_filter", params.Filter.PriceID,
		"created_range", params.Filter.Created,
	)

	for _, status := range trackedStatuses() {
		iter := s.client.ListSubscriptions(ctx, status, params.Filter.Created)
		for iter.Next() {
			s.processRecord(ctx, iter.Subscription(), handler, params, cache, summary)
		}
		if err := iter.Err(); err != nil {
			// A page fetch failure is not a per-record error: the run
			// cannot continue without the rest of the sequence.
			return nil, ierr.WithError(err).
				WithHintf("Failed while listing %s subscriptions", status).
				Mark(ierr.ErrIntegration)
		}
	}

	return summary, nil
}

// processRecord runs one subscription through resolve, match, intent and
// execute. A mutation failure is logged and counted, never propagated.
func (s *bulkService) processRecord(
	ctx context.Context,
	sub *stripego.Subscription,
	handler actionHandler,
	params BulkRunParams,
	cache *productNameCache,
	summary *BulkSummary,
) {
	priceIDs, productNames := cache.resolveItems(ctx, sub)

	if !params.Filter.matches(priceIDs, productNames) {
		return
	}

	s.logger.Debugw("subscription in scope",
		"subscription_id", sub.ID,
		"status", sub.Status,
		"created", sub.Created,
		"price_ids", priceIDs,
		"product_names", productNames,
	)

	if handler.skip(sub) {
		summary.Skipped++
		s.logger.Debugw("nothing to do for subscription",
			"subscription_id", sub.ID,
			"action", params.Action,
		)
		return
	}

	summary.Matched++

	if !params.Confirm {
		s.logger.Infow("DRY-RUN: would "+handler.description,
			"subscription_id", sub.ID,
			"payload", handler.payload,
		)
		return
	}

	if err := handler.execute(ctx, s.client, sub.ID); err != nil {
		summary.Failed++
		s.logger.Errorw("failed to "+handler.description,
			"subscription_id", sub.ID,
			"error", err,
		)
		return
	}

	summary.Mutated++
	s.logger.Infow(handler.description+" applied", "subscription_id", sub.ID)
}

func (f SubscriptionFilter) matches(priceIDs, productNames []string) bool {
	if f.ProductName != "" {
		ok := lo.ContainsBy(productNames, func(name string) bool {
			return strings.EqualFold(name, f.ProductName)
		})
		if !ok {
			return false
		}
	}
	if f.PriceID != "" && !lo.Contains(priceIDs, f.PriceID) {
		return false
	}
	return true
}
