package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/imrishuroy/go-loyalty-ledger/internal/identity"
	"github.com/imrishuroy/go-loyalty-ledger/internal/intake"
	"github.com/imrishuroy/go-loyalty-ledger/internal/orders"
)

type backfillLine struct {
	File         string `json:"file"`
	OrderID      string `json:"order_id,omitempty"`
	Status       string `json:"status,omitempty"`
	Class        string `json:"classification,omitempty"`
	CustomerID   string `json:"customer_id,omitempty"`
	IdentifiedBy string `json:"identified_by,omitempty"`
	Recorded     int    `json:"recorded"`
	Error        string `json:"error,omitempty"`
}

// NewBackfillCommand creates the backfill command.
func NewBackfillCommand(opts *RootOptions) *cobra.Command {
	var (
		merchantID string
		source     string
	)

	cmd := &cobra.Command{
		Use:   "backfill <order.json>...",
		Short: "Feed exported orders through order intake",
		Long: `Feed exported orders through order intake.

Each file holds one upstream order object. Orders already seen by any
source are reported as already_processed, so a backfill can be rerun.

Example:
  ledgerctl backfill --merchant m1 exports/*.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := orders.Source(source)
			if !src.Valid() {
				return fmt.Errorf("invalid source %q", source)
			}

			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			var (
				lines  []backfillLine
				failed int
			)
			for _, path := range args {
				line := backfillLine{File: path}
				res, method, err := backfillFile(cmd, a.Gateway, a.Identity, merchantID, path, src)
				if err != nil {
					line.Error = err.Error()
					failed++
				} else {
					line.OrderID = res.OrderID
					line.Status = string(res.Status)
					line.Class = string(res.Classification)
					line.CustomerID = res.CustomerID
					line.IdentifiedBy = method
					line.Recorded = res.Recorded
				}
				lines = append(lines, line)
			}

			if err := output(cmd.OutOrStdout(), opts, lines, func(w io.Writer) {
				for _, l := range lines {
					if l.Error != "" {
						printf(w, "%s\terror: %s\n", l.File, l.Error)
						continue
					}
					printf(w, "%s\t%s\t%s\t%s\trecorded=%d\n", l.File, l.OrderID, l.Status, l.Class, l.Recorded)
				}
			}); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d orders failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&merchantID, "merchant", "", "merchant id (required)")
	cmd.Flags().StringVar(&source, "source", string(orders.SourceBackfill), "source tag recorded on each order")
	_ = cmd.MarkFlagRequired("merchant")
	return cmd
}

func backfillFile(cmd *cobra.Command, gw *intake.Gateway, id *identity.Resolver, merchantID, path string, src orders.Source) (intake.Result, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return intake.Result{}, "", err
	}
	order, err := orders.ParseOrder(data)
	if err != nil {
		return intake.Result{}, "", err
	}

	ident := id.Resolve(cmd.Context(), merchantID, order)
	res, err := gw.ProcessOrder(cmd.Context(), order, merchantID, ident.CustomerID, src)
	return res, string(ident.Method), err
}
