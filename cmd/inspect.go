package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"ocppgate/pkg/config"
	"ocppgate/pkg/ocpp"
	"ocppgate/pkg/soap"
	"ocppgate/pkg/ui/report"

	"github.com/spf13/cobra"
)

var (
	inspectCharset    string
	inspectConfigPath string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <envelope.xml|->",
	Short: "Show how a SOAP envelope would be routed",
	Long:  "Scans a SOAP envelope the way the router does and prints its SOAP version, payload element, routing namespace and the endpoint that would receive it.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Default()
		if path := strings.TrimSpace(inspectConfigPath); path != "" {
			loaded, err := config.LoadFile(path)
			if err != nil {
				return err
			}
			cfg = loaded
		}

		in, closeInput, err := openInput(cmd, args[0])
		if err != nil {
			return err
		}
		defer closeInput()

		fields, err := inspectEnvelope(in, inspectCharset, cfg)
		if err != nil {
			fmt.Fprintln(cmd.OutOrStdout(), report.Error("UNROUTABLE", err.Error()))
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), report.Card("ENVELOPE", fields))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVar(&inspectCharset, "charset", "", "transport charset of the envelope, e.g. ISO-8859-1")
	inspectCmd.Flags().StringVarP(&inspectConfigPath, "config", "c", "", "config file with the SOAP endpoints (defaults serve every OCPP version)")
}

func openInput(cmd *cobra.Command, name string) (io.Reader, func(), error) {
	if name == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	file, err := os.Open(name)
	if err != nil {
		return nil, nil, fmt.Errorf("open envelope: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}

// inspectEnvelope describes the routing decision for one envelope.
func inspectEnvelope(r io.Reader, encoding string, cfg *config.Config) ([]report.Field, error) {
	scan, err := soap.ScanEnvelope(r, encoding)
	if err != nil {
		return nil, err
	}

	ns := scan.Payload.Space
	version := ""
	if v, ok := ocpp.VersionForNamespace(ns); ok {
		version = v.String()
	}

	endpoint := ""
	for _, ep := range cfg.SOAP.Endpoints {
		resolved, err := ep.ResolvedNamespace()
		if err == nil && resolved == ns {
			endpoint = ep.Path
			break
		}
	}

	return []report.Field{
		{Label: "soap", Value: scan.Envelope.Name},
		{Label: "payload", Value: scan.Payload.Local},
		{Label: "namespace", Value: ns},
		{Label: "ocpp", Value: version},
		{Label: "endpoint", Value: endpoint},
	}, nil
}
