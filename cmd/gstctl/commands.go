package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/finpilot/finpilot/internal/auth"
	"github.com/finpilot/finpilot/internal/gst"
	"github.com/finpilot/finpilot/internal/invoices"
	"github.com/finpilot/finpilot/internal/plstatements"
)

type totalsDraft struct {
	SupplierState gst.StateCode       `json:"supplierState"`
	PlaceOfSupply gst.StateCode       `json:"placeOfSupply"`
	Items         []gst.LineItemDraft `json:"items"`
}

func newTotalsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "totals FILE",
		Short: "Compute line and invoice totals for a YAML or JSON draft",
		Example: `  gstctl totals draft.yaml
  cat draft.json | gstctl totals -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var draft totalsDraft
			if err := readDocument(cmd, args[0], &draft); err != nil {
				return err
			}
			for i := range draft.Items {
				if draft.Items[i].Unit == "" {
					draft.Items[i].Unit = gst.UnitNos
				}
			}
			totals, err := gst.Calculate(draft.Items, draft.SupplierState, draft.PlaceOfSupply)
			if err != nil {
				return err
			}
			return printJSON(cmd, totals)
		},
	}
}

func newWordsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "words AMOUNT",
		Short: "Spell an amount in Indian English words",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q", args[0])
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), gst.AmountInWords(amount))
			return err
		},
	}
}

type gstinReport struct {
	GSTIN     string        `json:"gstin"`
	Valid     bool          `json:"valid"`
	StateCode gst.StateCode `json:"stateCode,omitempty"`
	StateName string        `json:"stateName,omitempty"`
	PAN       string        `json:"pan,omitempty"`
}

func newGSTINCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gstin GSTIN",
		Short: "Check a GSTIN and show its state and PAN",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := gstinReport{GSTIN: args[0], Valid: gst.ValidGSTIN(args[0])}
			if out.Valid {
				out.StateCode, _ = gst.GSTINState(args[0])
				out.StateName = gst.StateName(out.StateCode)
				out.PAN, _ = gst.GSTINPAN(args[0])
			}
			if err := printJSON(cmd, out); err != nil {
				return err
			}
			if !out.Valid {
				return errors.New("invalid GSTIN")
			}
			return nil
		},
	}
}

func newFYCmd() *cobra.Command {
	var seq int
	cmd := &cobra.Command{
		Use:   "fy [DATE]",
		Short: "Show the Indian financial year of a date (default today)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date := time.Now()
			if len(args) == 1 {
				parsed, err := time.Parse("2006-01-02", args[0])
				if err != nil {
					return fmt.Errorf("invalid date %q, want YYYY-MM-DD", args[0])
				}
				date = parsed
			}
			fy := invoices.FinancialYear(date)
			if seq > 0 {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", fy, invoices.FormatNumber(fy, seq))
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), fy)
			return err
		},
	}
	cmd.Flags().IntVar(&seq, "seq", 0, "also print the invoice number for this sequence")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		userID string
		email  string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an API bearer token with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			issuer, err := auth.NewIssuer(os.Getenv("JWT_SECRET"), ttl)
			if err != nil {
				return err
			}
			token, err := issuer.Sign(userID, email)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user ID placed in the token")
	cmd.Flags().StringVar(&email, "email", "", "optional e-mail claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

type plReport struct {
	Valid        bool    `json:"valid"`
	NetProfit    float64 `json:"netProfit"`
	ProfitMargin float64 `json:"profitMargin"`
	Error        string  `json:"error,omitempty"`
}

func newPLCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plcheck FILE",
		Short: "Validate a P&L statement and show the derived profit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in plstatements.Input
			if err := readDocument(cmd, args[0], &in); err != nil {
				return err
			}
			out := plReport{Valid: true}
			out.NetProfit, out.ProfitMargin = plstatements.Derive(in.Revenue.Total, in.Expenses.Total)
			verr := plstatements.Validate(in)
			if verr != nil {
				out.Valid = false
				out.Error = verr.Error()
			}
			if err := printJSON(cmd, out); err != nil {
				return err
			}
			return verr
		},
	}
}
