package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/imrishuroy/go-loyalty-ledger/internal/ledger"
	"github.com/imrishuroy/go-loyalty-ledger/internal/summary"
)

type summaryResult struct {
	Summaries []summary.CustomerSummary `json:"summaries"`
	Rewards   []ledger.Reward           `json:"rewards,omitempty"`
}

// NewSummaryCommand creates the summary command.
func NewSummaryCommand(opts *RootOptions) *cobra.Command {
	var (
		merchantID  string
		withRewards bool
	)

	cmd := &cobra.Command{
		Use:   "summary <customer-id>",
		Short: "Show a customer's progress on every offer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			res := summaryResult{}
			if res.Summaries, err = a.Reader.ListForCustomer(ctx, merchantID, args[0]); err != nil {
				return err
			}
			if withRewards {
				if res.Rewards, err = ledger.ListRewards(ctx, a.Store, merchantID, args[0], ""); err != nil {
					return err
				}
			}

			return output(cmd.OutOrStdout(), opts, res, func(w io.Writer) {
				if len(res.Summaries) == 0 {
					printf(w, "no progress recorded for %s\n", args[0])
				}
				for _, s := range res.Summaries {
					printf(w, "%s\t%d/%d\tremaining=%d\tearned=%t\tredeemed=%d\trevoked=%d\n",
						s.OfferID, s.CurrentQuantity, s.RequiredQuantity, s.Remaining(),
						s.HasEarnedReward, s.RewardsRedeemed, s.RewardsRevoked)
				}
				for _, r := range res.Rewards {
					printf(w, "reward %s\t%s\t%d/%d\n", r.ID, r.Status, r.CurrentQuantity, r.RequiredQuantity)
				}
			})
		},
	}
	cmd.Flags().StringVar(&merchantID, "merchant", "", "merchant id (required)")
	cmd.Flags().BoolVar(&withRewards, "rewards", false, "also list reward rows")
	_ = cmd.MarkFlagRequired("merchant")
	return cmd
}
