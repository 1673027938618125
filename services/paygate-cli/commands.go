package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ashendes/paygate/internal/apierr"
	"github.com/ashendes/paygate/internal/cancel"
	"github.com/ashendes/paygate/internal/config"
	"github.com/ashendes/paygate/internal/gateway"
	"github.com/ashendes/paygate/internal/models"
	"github.com/ashendes/paygate/internal/patterns"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// connect loads config and builds a gateway client for one command run
func connect(cmd *cobra.Command) (*gateway.Client, context.Context, context.CancelFunc, error) {
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		if err := os.Setenv(config.EnvPrefix+"_CONFIG", path); err != nil {
			return nil, nil, nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	cfg.ConfigureLogging()
	log.SetOutput(os.Stderr)

	client, err := gateway.New(cfg, "paygate-cli", log.StandardLogger())
	if err != nil {
		return nil, nil, nil, err
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout <= 0 {
		timeout = patterns.SlowServiceTimeout
	}
	ctx, cancelFn := patterns.WithTimeout(cmd.Context(), timeout)
	return client, ctx, cancelFn, nil
}

func parseAmount(cmd *cobra.Command) (decimal.NullDecimal, error) {
	raw, _ := cmd.Flags().GetString("amount")
	if raw == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("invalid --amount %q: %w", raw, err)
	}
	return models.NullAmount(d), nil
}

// describe renders gateway errors with their code for the terminal
func describe(err error) error {
	if apiErr, ok := apierr.AsAPIError(err); ok {
		if apiErr.Symbol != "" {
			return fmt.Errorf("gateway rejected the request: %s (%s, %s)", apiErr.MerchantMessage, apiErr.Code, apiErr.Symbol)
		}
		return fmt.Errorf("gateway rejected the request: %s (%s)", apiErr.MerchantMessage, apiErr.Code)
	}
	return err
}

func keypairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keypair",
		Short: "Show the public key and enabled payment types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ctx, cancelFn, err := connect(cmd)
			if err != nil {
				return err
			}
			defer cancelFn()

			kp, err := client.FetchKeypair(ctx)
			if err != nil {
				return describe(err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Public key:    %s\n", kp.PublicKey)
			fmt.Fprintf(out, "Payment types: %s\n", strings.Join(kp.AvailablePaymentTypes, ", "))
			return nil
		},
	}
}

func paymentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payment",
		Short: "Inspect and settle payments",
	}
	cmd.AddCommand(paymentGetCmd())
	cmd.AddCommand(paymentChargeCmd())
	cmd.AddCommand(paymentCancelCmd())
	cmd.AddCommand(paymentShipCmd())
	return cmd
}

func paymentGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get [payment-id]",
		Short: "Show a payment with its transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ctx, cancelFn, err := connect(cmd)
			if err != nil {
				return err
			}
			defer cancelFn()

			byOrder, _ := cmd.Flags().GetBool("order")
			var p *models.Payment
			if byOrder {
				p, err = client.FetchPaymentByOrderID(ctx, args[0])
			} else {
				p, err = client.FetchPayment(ctx, args[0])
			}
			if err != nil {
				return describe(err)
			}
			printPayment(cmd.OutOrStdout(), p)
			return nil
		},
	}
	cmd.Flags().Bool("order", false, "Treat the argument as the merchant order id")
	return cmd
}

func paymentChargeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "charge [payment-id]",
		Short: "Capture the authorization, all of what it holds unless --amount is set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(cmd)
			if err != nil {
				return err
			}
			client, ctx, cancelFn, err := connect(cmd)
			if err != nil {
				return err
			}
			defer cancelFn()

			p, err := client.FetchPayment(ctx, args[0])
			if err != nil {
				return describe(err)
			}
			charge, err := client.ChargePayment(ctx, p, amount)
			if err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Charged %s %s (%s)\n", charge.TotalAmount().StringFixed(2), charge.Currency, charge.ID())
			return nil
		},
	}
	cmd.Flags().String("amount", "", "Amount to capture")
	return cmd
}

func paymentCancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel [payment-id]",
		Short: "Cancel a payment, all of it unless --amount is set",
		Long: `Cancel reverses what the authorization still holds first and then
refunds charges in the order they were made. Targets the gateway reports
as already settled are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(cmd)
			if err != nil {
				return err
			}
			reason, _ := cmd.Flags().GetString("reason")
			reference, _ := cmd.Flags().GetString("reference")

			client, ctx, cancelFn, err := connect(cmd)
			if err != nil {
				return err
			}
			defer cancelFn()

			cancellations, err := client.CancelPaymentByID(ctx, args[0], amount, cancel.Options{
				ReasonCode:       strings.ToUpper(reason),
				PaymentReference: reference,
			})
			out := cmd.OutOrStdout()
			for _, c := range cancellations {
				target, targetID := c.Target()
				fmt.Fprintf(out, "Cancelled %s on %s %s (%s)\n", c.Amount().Decimal.StringFixed(2), target, targetID, c.ID())
			}
			if err != nil {
				return describe(err)
			}
			if len(cancellations) == 0 {
				fmt.Fprintln(out, "Nothing left to cancel")
			}
			return nil
		},
	}
	cmd.Flags().String("amount", "", "Amount to cancel")
	cmd.Flags().String("reason", models.ReasonCodeCancel, "Reason code for refunds (CANCEL, RETURN, CREDIT)")
	cmd.Flags().String("reference", "", "Payment reference shown on the statement")
	return cmd
}

func paymentShipCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ship [payment-id]",
		Short: "Report the shipment of a payment's goods",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			invoiceID, _ := cmd.Flags().GetString("invoice")
			client, ctx, cancelFn, err := connect(cmd)
			if err != nil {
				return err
			}
			defer cancelFn()

			p, err := client.FetchPayment(ctx, args[0])
			if err != nil {
				return describe(err)
			}
			shipment, err := client.Ship(ctx, p, invoiceID, p.OrderID)
			if err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Shipment %s recorded\n", shipment.ID())
			return nil
		},
	}
	cmd.Flags().String("invoice", "", "Invoice id, required by invoice payment types")
	return cmd
}

func printPayment(out io.Writer, p *models.Payment) {
	fmt.Fprintf(out, "Payment   %s (%s)\n", p.ID(), p.State())
	if p.OrderID != "" {
		fmt.Fprintf(out, "Order     %s\n", p.OrderID)
	}
	fmt.Fprintf(out, "Type      %s\n", p.TypeID)
	if auth := p.Authorization(); auth != nil {
		fmt.Fprintf(out, "Authorized %s %s, remaining %s\n",
			auth.Amount().Total().StringFixed(2), p.Currency, auth.Remaining().StringFixed(2))
	}
	for _, ch := range p.Charges() {
		fmt.Fprintf(out, "  charge  %s  %s, refundable %s\n", ch.ID(), ch.TotalAmount().StringFixed(2), ch.Remaining().StringFixed(2))
	}
	for _, c := range p.Cancellations() {
		target, targetID := c.Target()
		fmt.Fprintf(out, "  cancel  %s  %s on %s %s\n", c.ID(), c.Amount().Decimal.StringFixed(2), target, targetID)
	}
	for _, s := range p.Shipments() {
		fmt.Fprintf(out, "  ship    %s\n", s.ID())
	}
}
