package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/polyscribe/internal/extract"
	"github.com/rewired-gh/polyscribe/internal/preprocess"
)

var cleanCmd = &cobra.Command{
	Use:   "clean FILE",
	Short: "Print FILE with URLs stripped",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), preprocess.StripURLs(string(data)))
		return err
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract FILE",
	Short: "Extract the JSON document from a saved model response",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		m, err := extract.New().Extract(string(data))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "strategy: %s\n", m.Strategy)
		if markets, err := extract.Markets(m.Value); err == nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "markets: %d\n", len(markets))
		}

		out, err := json.MarshalIndent(m.Value, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return err
	},
}
