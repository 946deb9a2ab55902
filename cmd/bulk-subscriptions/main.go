package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flexprice/subscription-ops/internal/config"
	ierr "github.com/flexprice/subscription-ops/internal/errors"
	stripeint "github.com/flexprice/subscription-ops/internal/integration/stripe"
	"github.com/flexprice/subscription-ops/internal/logger"
	"github.com/flexprice/subscription-ops/internal/service"
	"github.com/flexprice/subscription-ops/internal/types"
)

var opts struct {
	confirm   bool
	debug     bool
	product   string
	price     string
	createdOn string
	until     string
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bulk-subscriptions <cancel-period-end|cancel-now|pause|resume>",
		Short: "Apply one lifecycle action to every matching Stripe subscription",
		Long: `Walks all active and trialing subscriptions of the Stripe account,
applies the optional product/price/created-date filters, and performs the
given action on every match.

Dry-run by default: without --confirm the intended mutations are printed
and nothing is changed. Individual record failures are reported and the
run continues.`,
		Example: `  bulk-subscriptions cancel-period-end --confirm
  bulk-subscriptions cancel-now --product=prod_123 --confirm
  bulk-subscriptions pause --price=price_ABC
  bulk-subscriptions resume --created-on=2024-01-10 --until=2024-01-20`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	cmd.Flags().BoolVar(&opts.confirm, "confirm", false, "Execute the mutations (default is dry-run)")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Verbose output including per-record resolution details")
	cmd.Flags().StringVar(&opts.product, "product", "", "Only target subscriptions whose product name matches (case-insensitive)")
	cmd.Flags().StringVar(&opts.price, "price", "", "Only target subscriptions carrying this price id (exact match)")
	cmd.Flags().StringVar(&opts.createdOn, "created-on", "", "Only target subscriptions created on this UTC day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.until, "until", "", "Only target subscriptions created up to and including this UTC day (YYYY-MM-DD)")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	action := types.BulkAction(args[0])
	if err := action.Validate(); err != nil {
		return err
	}

	created, err := types.NewCreatedRange(opts.createdOn, opts.until)
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
	svc := service.NewBulkService(client, log)

	summary, err := svc.Run(cmd.Context(), service.BulkRunParams{
		Action:  action,
		Confirm: opts.confirm,
		Filter: service.SubscriptionFilter{
			ProductName: opts.product,
			PriceID:     opts.price,
			Created:     created,
		},
	})
	if err != nil {
		return err
	}

	fmt.Printf("\nSummary: %d subscription(s) targeted, %d mutated, %d skipped, %d failed.\n",
		summary.Matched, summary.Mutated, summary.Skipped, summary.Failed)
	if !opts.confirm {
		fmt.Println("\n=== DRY-RUN MODE ===")
		fmt.Println("No changes were made. Re-run with --confirm to apply.")
	}
	return nil
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
