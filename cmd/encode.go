package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-json-experiment/json"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"ocppgate/pkg/ocpp"
	"ocppgate/pkg/wire"
)

var (
	encodeCallID  string
	encodeDetails string
)

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Print the OCPP-J wire text of a message",
}

var encodeCallCmd = &cobra.Command{
	Use:   "call <action> [payload-json]",
	Short: "Encode a CALL",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := parsePayload(args[1:])
		if err != nil {
			return err
		}
		id := strings.TrimSpace(encodeCallID)
		if id == "" {
			id = uuid.NewString()
		}
		return printWire(cmd, wire.Call{ID: id, Action: args[0], Payload: payload})
	},
}

var encodeResultCmd = &cobra.Command{
	Use:   "result <id> [payload-json]",
	Short: "Encode a CALLRESULT",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := parsePayload(args[1:])
		if err != nil {
			return err
		}
		return printWire(cmd, wire.CallResult{ID: args[0], Payload: payload})
	},
}

var encodeErrorCmd = &cobra.Command{
	Use:   "error <id> <code> [description]",
	Short: "Encode a CALLERROR",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := ocpp.ParseErrorCode(args[1])
		if err != nil {
			return err
		}
		msg := wire.CallError{ID: args[0], Code: code}
		if len(args) == 3 {
			msg.Description = args[2]
		}
		if encodeDetails != "" {
			msg.Details = encodeDetails
		}
		return printWire(cmd, msg)
	},
}

func init() {
	rootCmd.AddCommand(encodeCmd)
	encodeCmd.AddCommand(encodeCallCmd, encodeResultCmd, encodeErrorCmd)
	encodeCallCmd.Flags().StringVar(&encodeCallID, "id", "", "message id (default: a new UUID)")
	encodeErrorCmd.Flags().StringVar(&encodeDetails, "details", "", "error details sent as errorMsg")
}

// parsePayload reads an optional JSON object argument.
func parsePayload(args []string) (any, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return nil, nil
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(args[0]), &payload); err != nil {
		return nil, fmt.Errorf("payload must be a JSON object: %w", err)
	}
	return payload, nil
}

func printWire(cmd *cobra.Command, msg wire.Message) error {
	text, err := wire.NewSerializer(slog.Default()).Serialize(msg)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}
