package types

import (
	"strings"

	ierr "github.com/flexprice/subscription-ops/internal/errors"
)

// BulkAction is the lifecycle operation a bulk run applies to every
// matching subscription. Exactly one action is active for a whole run.
type BulkAction string

const (
	BulkActionCancelPeriodEnd BulkAction = "cancel-period-end"
	BulkActionCancelNow       BulkAction = "cancel-now"
	BulkActionPause           BulkAction = "pause"
	BulkActionResume          BulkAction = "resume"
)

func allowedBulkActions() []BulkAction {
	return []BulkAction{
		BulkActionCancelPeriodEnd,
		BulkActionCancelNow,
		BulkActionPause,
		BulkActionResume,
	}
}

// Validate checks that the action is one of the supported modes.
func (a BulkAction) Validate() error {
	for _, allowed := range allowedBulkActions() {
		if a == allowed {
			return nil
		}
	}

	names := make([]string, 0, len(allowedBulkActions()))
	for _, allowed := range allowedBulkActions() {
		names = append(names, string(allowed))
	}
	return ierr.NewError("invalid action").
		WithHintf("Action must be one of: %s", strings.Join(names, " | ")).
		WithReportableDetails(map[string]any{"action": string(a)}).
		Mark(ierr.ErrValidation)
}

// TaxMode controls how tax is applied on created subscriptions.
type TaxMode string

const (
	TaxModeOff       TaxMode = "off"
	TaxModeExclusive TaxMode = "exclusive"
	TaxModeInclusive TaxMode = "inclusive"
	TaxModeAuto      TaxMode = "auto"
)

// ScheduleEndBehavior is what happens when a subscription schedule finishes
// its last phase.
type ScheduleEndBehavior string

const (
	ScheduleEndBehaviorRelease ScheduleEndBehavior = "release"
	ScheduleEndBehaviorCancel  ScheduleEndBehavior = "cancel"
)

// Metadata values stamped on created subscriptions and schedules.
const (
	CreationModeBackoffice       = "backoffice"
	StrategySubscription         = "subscription"
	StrategySubscriptionSchedule = "subscription_schedule"
)
