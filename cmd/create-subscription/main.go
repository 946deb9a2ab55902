package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	stripego "github.com/stripe/stripe-go/v82"

	"github.com/flexprice/subscription-ops/internal/config"
	ierr "github.com/flexprice/subscription-ops/internal/errors"
	stripeint "github.com/flexprice/subscription-ops/internal/integration/stripe"
	"github.com/flexprice/subscription-ops/internal/logger"
	"github.com/flexprice/subscription-ops/internal/service"
	"github.com/flexprice/subscription-ops/internal/types"
)

var opts struct {
	confirm          bool
	debug            bool
	price            string
	customer         string
	customerEmail    string
	paymentMethod    string
	trialDays        string
	trialEnd         string
	taxMode          string
	schedule         bool
	scheduleBehavior string
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-subscription",
		Short: "Create one Stripe subscription (or schedule) for a customer",
		Long: `Resolves or creates the customer, validates the price, trial and
payment-method constraints, then creates a subscription -- or, with
--schedule, a multi-phase subscription schedule -- under a deterministic
idempotency key.

Dry-run by default: without --confirm the payload and idempotency key are
printed and nothing is created.`,
		Example: `  create-subscription --customer=cus_123 --price=price_ABC --payment-method=pm_XYZ --confirm
  create-subscription --customer-email=ops@example.com --price=price_ABC --payment-method=pm_XYZ --trial-days=14
  create-subscription --customer=cus_123 --price=price_ABC --payment-method=pm_XYZ --schedule --schedule-behavior=release`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	cmd.Flags().BoolVar(&opts.confirm, "confirm", false, "Execute the creation (default is dry-run)")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Verbose output including full error detail")
	cmd.Flags().StringVar(&opts.price, "price", "", "Recurring price id to subscribe to")
	cmd.Flags().StringVar(&opts.customer, "customer", "", "Existing customer id")
	cmd.Flags().StringVar(&opts.customerEmail, "customer-email", "", "Customer email (looked up, created when absent)")
	cmd.Flags().StringVar(&opts.paymentMethod, "payment-method", "", "Payment method id already attached to the customer")
	cmd.Flags().StringVar(&opts.trialDays, "trial-days", "", "Free trial length in days (0-730)")
	cmd.Flags().StringVar(&opts.trialEnd, "trial-end", "", "Trial end as a future epoch-second timestamp")
	cmd.Flags().StringVar(&opts.taxMode, "tax-mode", "", "Tax mode: off | exclusive | inclusive | auto (default off)")
	cmd.Flags().BoolVar(&opts.schedule, "schedule", false, "Create a multi-phase subscription schedule instead of a plain subscription")
	cmd.Flags().StringVar(&opts.scheduleBehavior, "schedule-behavior", "", "Schedule end behavior: release | cancel (default cancel)")

	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	req, err := buildRequest()
	if err != nil {
		return err
	}

	cfg, err := config.NewConfig()
	if err != nil {
		return err
	}
	if opts.debug {
		cfg.Logging.Level = types.LogLevelDebug
	}

	log, err := logger.NewLogger(cfg)
	if err != nil {
		return err
	}

	client := stripeint.NewClient(cfg.Stripe.SecretKey, log)
	svc := service.NewCreateService(client, log)

	result, err := svc.Run(cmd.Context(), req)
	if err != nil {
		return err
	}

	printResult(result)
	return nil
}

// buildRequest converts raw flag strings into the typed request. Numeric
// flag parsing failures are validation errors, reported before any remote
// call.
func buildRequest() (*service.CreateSubscriptionRequest, error) {
	req := &service.CreateSubscriptionRequest{
		CustomerID:       opts.customer,
		CustomerEmail:    opts.customerEmail,
		PriceID:          opts.price,
		PaymentMethodID:  opts.paymentMethod,
		TaxMode:          types.TaxMode(opts.taxMode),
		Schedule:         opts.schedule,
		ScheduleBehavior: types.ScheduleEndBehavior(opts.scheduleBehavior),
		Confirm:          opts.confirm,
	}

	if opts.trialDays != "" {
		days, err := strconv.ParseInt(opts.trialDays, 10, 64)
		if err != nil {
			return nil, ierr.NewError("invalid --trial-days value").
				WithHint("Provide a whole number of days").
				WithReportableDetails(map[string]any{"trial_days": opts.trialDays}).
				Mark(ierr.ErrValidation)
		}
		req.TrialDays = lo.ToPtr(days)
	}

	if opts.trialEnd != "" {
		end, err := strconv.ParseInt(opts.trialEnd, 10, 64)
		if err != nil {
			return nil, ierr.NewError("invalid --trial-end value").
				WithHint("Provide an epoch-second timestamp").
				WithReportableDetails(map[string]any{"trial_end": opts.trialEnd}).
				Mark(ierr.ErrValidation)
		}
		req.TrialEnd = lo.ToPtr(end)
	}

	return req, nil
}

func printResult(result *service.CreateResult) {
	fmt.Println("Idempotency key:", result.IdempotencyKey)

	if result.DryRun {
		fmt.Println("\n=== DRY-RUN MODE ===")
		fmt.Println("Nothing was created. Re-run with --confirm to apply.")
		return
	}

	if result.Schedule != nil {
		schedule := result.Schedule
		fmt.Println("Subscription schedule created:")
		fmt.Println("  id:", schedule.ID)
		fmt.Println("  status:", schedule.Status)
		fmt.Println("  created:", formatUnix(schedule.Created))
		fmt.Println("  end behavior:", schedule.EndBehavior)
		if schedule.Subscription != nil {
			fmt.Println("  subscription:", schedule.Subscription.ID)
		}
		if bp := result.BootstrapPrice; bp != nil {
			fmt.Printf("  bootstrap price: %s (%s/day)\n", bp.ID, service.FormatAmount(bp.UnitAmount, string(bp.Currency)))
		}
		return
	}

	sub := result.Subscription
	fmt.Println("Subscription created:")
	fmt.Println("  id:", sub.ID)
	fmt.Println("  status:", sub.Status)
	fmt.Println("  created:", formatUnix(sub.Created))
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		fmt.Println("  current period start:", formatUnix(item.CurrentPeriodStart))
		fmt.Println("  current period end:", formatUnix(item.CurrentPeriodEnd))
	}
	if sub.TrialStart != 0 {
		fmt.Println("  trial start:", formatUnix(sub.TrialStart))
	}
	if sub.TrialEnd != 0 {
		fmt.Println("  trial end:", formatUnix(sub.TrialEnd))
	}

	if sub.Status == stripego.SubscriptionStatusIncomplete {
		if status, ok := service.PaymentIntentStatus(sub); ok {
			fmt.Printf("Subscription is incomplete, waiting for payment (payment intent status: %s)\n", status)
		} else {
			fmt.Println("Subscription is incomplete, waiting for payment")
		}
	}
}

func formatUnix(ts int64) string {
	if ts == 0 {
		return "-"
	}
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, formatError(err, opts.debug))
		os.Exit(1)
	}
}

// formatError keeps operator output short unless --debug is set, in which
// case the full error chain is printed.
func formatError(err error, debug bool) string {
	if debug {
		return fmt.Sprintf("error: %+v", err)
	}
	if hint := ierr.Hint(err); hint != "" {
		return fmt.Sprintf("error: %v (%s)", err, hint)
	}
	return fmt.Sprintf("error: %v", err)
}
