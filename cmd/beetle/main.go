package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "beetle",
		Short:         "Deduplicating message consumer",
		Long:          "beetle consumes redundantly published messages from several AMQP brokers and handles each message once.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the YAML configuration file")

	rootCmd.AddCommand(newConsumeCmd(), newPublishCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "beetle:", err)
		os.Exit(1)
	}
}
