package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ocppgate",
	Short: "OCPP central system gateway",
	Long: `ocppgate accepts OCPP traffic from charge boxes. SOAP envelopes posted to the
router path are dispatched to the service for their OCPP version; JSON frames
from transport channels are decoded, answered and correlated.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen once.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
