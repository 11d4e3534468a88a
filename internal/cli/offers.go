package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/imrishuroy/go-loyalty-ledger/internal/catalog"
)

// NewOffersCommand creates the offers command group.
func NewOffersCommand(opts *RootOptions) *cobra.Command {
	var merchantID string

	cmd := &cobra.Command{
		Use:   "offers",
		Short: "Administer reward offers and their qualifying variations",
	}
	cmd.PersistentFlags().StringVar(&merchantID, "merchant", "", "merchant id (required)")
	_ = cmd.MarkPersistentFlagRequired("merchant")

	cmd.AddCommand(newOffersListCommand(opts, &merchantID))
	cmd.AddCommand(newOffersCreateCommand(opts, &merchantID))
	cmd.AddCommand(newOffersLinkCommand(opts, &merchantID))
	cmd.AddCommand(newOffersSetActiveCommand(opts, &merchantID, "activate", true))
	cmd.AddCommand(newOffersSetActiveCommand(opts, &merchantID, "deactivate", false))
	return cmd
}

func printOffers(w io.Writer, offers ...catalog.Offer) {
	for _, o := range offers {
		state := "active"
		if !o.Active {
			state = "inactive"
		}
		printf(w, "%s\t%s\t%s\t%d in %d months\t%s\n", o.ID, o.BrandName, o.SizeGroup, o.RequiredQuantity, o.WindowMonths, state)
	}
}

func newOffersListCommand(opts *RootOptions, merchantID *string) *cobra.Command {
	var activeOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List offers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			offers, err := a.Catalog.ListOffers(cmd.Context(), *merchantID, activeOnly)
			if err != nil {
				return err
			}
			return output(cmd.OutOrStdout(), opts, offers, func(w io.Writer) { printOffers(w, offers...) })
		},
	}
	cmd.Flags().BoolVar(&activeOnly, "active", false, "only active offers")
	return cmd
}

func newOffersCreateCommand(opts *RootOptions, merchantID *string) *cobra.Command {
	in := catalog.OfferInput{}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an offer",
		Long: `Create an offer.

Example:
  ledgerctl offers create --merchant m1 --brand Acme --size 16oz --required 12 --window-months 12`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			in.MerchantID = *merchantID
			offer, err := a.Catalog.CreateOffer(cmd.Context(), in)
			if err != nil {
				return err
			}
			return output(cmd.OutOrStdout(), opts, offer, func(w io.Writer) { printOffers(w, offer) })
		},
	}
	cmd.Flags().StringVar(&in.BrandName, "brand", "", "brand name (required)")
	cmd.Flags().StringVar(&in.SizeGroup, "size", "", "size group (required)")
	cmd.Flags().StringVar(&in.Name, "name", "", "display name")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	cmd.Flags().IntVar(&in.RequiredQuantity, "required", 0, "units required to earn a reward (required)")
	cmd.Flags().IntVar(&in.WindowMonths, "window-months", 12, "rolling window length in months")
	_ = cmd.MarkFlagRequired("brand")
	_ = cmd.MarkFlagRequired("size")
	_ = cmd.MarkFlagRequired("required")
	return cmd
}

func newOffersLinkCommand(opts *RootOptions, merchantID *string) *cobra.Command {
	var (
		offerID string
		in      catalog.VariationInput
	)

	cmd := &cobra.Command{
		Use:   "link <variation-id>",
		Short: "Link a variation to an offer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			in.VariationID = args[0]
			v, err := a.Catalog.LinkVariation(cmd.Context(), *merchantID, offerID, in)
			if err != nil {
				return err
			}
			return output(cmd.OutOrStdout(), opts, v, func(w io.Writer) {
				printf(w, "linked %s to %s\n", v.VariationID, v.OfferID)
			})
		},
	}
	cmd.Flags().StringVar(&offerID, "offer", "", "offer id (required)")
	cmd.Flags().StringVar(&in.ItemName, "item-name", "", "item name")
	cmd.Flags().StringVar(&in.VariationName, "variation-name", "", "variation name")
	cmd.Flags().StringVar(&in.SKU, "sku", "", "sku")
	_ = cmd.MarkFlagRequired("offer")
	return cmd
}

func newOffersSetActiveCommand(opts *RootOptions, merchantID *string, use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <offer-id>",
		Short: use + " an offer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			offer, err := a.Catalog.SetActive(cmd.Context(), *merchantID, args[0], active)
			if err != nil {
				return err
			}
			return output(cmd.OutOrStdout(), opts, offer, func(w io.Writer) { printOffers(w, offer) })
		},
	}
}
