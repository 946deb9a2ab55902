package service

import (
	"context"

	stripego "github.com/stripe/stripe-go/v82"

	"github.com/flexprice/subscription-ops/internal/integration/stripe"
	"github.com/flexprice/subscription-ops/internal/types"
)

// actionHandler is the per-action behavior of a bulk run: a skip condition
// on the record's current state, and the mutation to perform when confirmed.
type actionHandler struct {
	description string
	// payload is the human-readable intent shown in dry-run output.
	payload string
	skip    func(sub *stripego.Subscription) bool
	execute func(ctx context.Context, client stripe.Client, id string) error
}

// newActionHandler maps an action to its handler. The zero default never
// triggers: BulkAction.Validate runs before any handler is selected.
func newActionHandler(action types.BulkAction) actionHandler {
	switch action {
	case types.BulkActionCancelNow:
		// Immediate termination bypasses the generic update path and has no
		// skip condition: a listed active/trialing record is always in scope.
		return actionHandler{
			description: "cancel subscription immediately",
			payload:     "cancel()",
			skip:        func(*stripego.Subscription) bool { return false },
			execute: func(ctx context.Context, client stripe.Client, id string) error {
				_, err := client.CancelSubscription(ctx, id)
				return err
			},
		}

	case types.BulkActionPause:
		return actionHandler{
			description: "pause collection",
			payload:     "pause_collection.behavior=keep_as_draft",
			skip: func(sub *stripego.Subscription) bool {
				return sub.PauseCollection != nil
			},
			execute: func(ctx context.Context, client stripe.Client, id string) error {
				params := &stripego.SubscriptionParams{
					// keep_as_draft leaves invoices generated during the
					// pause unissued: not voided, not collected.
					PauseCollection: &stripego.SubscriptionPauseCollectionParams{
						Behavior: stripego.String(string(stripego.SubscriptionPauseCollectionBehaviorKeepAsDraft)),
					},
				}
				_, err := client.UpdateSubscription(ctx, id, params)
				return err
			},
		}

	case types.BulkActionResume:
		return actionHandler{
			description: "resume subscription",
			payload:     "pause_collection=<cleared> cancel_at_period_end=false",
			skip: func(sub *stripego.Subscription) bool {
				return sub.PauseCollection == nil && !sub.CancelAtPeriodEnd
			},
			execute: func(ctx context.Context, client stripe.Client, id string) error {
				params := &stripego.SubscriptionParams{
					CancelAtPeriodEnd: stripego.Bool(false),
				}
				// An empty value clears pause_collection on the API.
				params.AddExtra("pause_collection", "")
				_, err := client.UpdateSubscription(ctx, id, params)
				return err
			},
		}

	default: // types.BulkActionCancelPeriodEnd
		return actionHandler{
			description: "cancel at period end",
			payload:     "cancel_at_period_end=true",
			skip: func(sub *stripego.Subscription) bool {
				return sub.CancelAtPeriodEnd
			},
			execute: func(ctx context.Context, client stripe.Client, id string) error {
				params := &stripego.SubscriptionParams{
					CancelAtPeriodEnd: stripego.Bool(true),
				}
				_, err := client.UpdateSubscription(ctx, id, params)
				return err
			},
		}
	}
}
