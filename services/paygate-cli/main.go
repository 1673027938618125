package main

import (
	"fmt"
	"os"

	"github.com/ashendes/paygate/internal/transport"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "paygate",
		Short:        "paygate - inspect and settle payments on the gateway",
		Version:      transport.SDKVersion,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "", "YAML config file (defaults to $PAYGATE_CONFIG)")
	rootCmd.PersistentFlags().Duration("timeout", 0, "Deadline for the whole command (default 10s)")

	rootCmd.AddCommand(keypairCmd())
	rootCmd.AddCommand(paymentCmd())
	return rootCmd
}
