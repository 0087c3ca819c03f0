// pulseboard is the customer-feedback alerting service.
//
// Usage:
//
//	pulseboard serve --config config.yaml
//	pulseboard seed --tenant acme
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "pulseboard",
		Short:   "Customer feedback alerting service",
		Version: version,
	}

	var configFile string
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(serveCmd(&configFile))
	rootCmd.AddCommand(seedCmd(&configFile))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
