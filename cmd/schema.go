package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

var (
	schemaSource string
	schemaPath   string
)

func init() {
	schemaCmd.Flags().StringVar(&schemaSource, "source", "", "Data source id")
	schemaCmd.Flags().StringVar(&schemaPath, "path", "", "Schema location below the source root")
	_ = schemaCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(schemaCmd)
}

var schemaCmd = &cobra.Command{
	Use:   "schema [document] --source id",
	Short: "Load a data source and print its generated schema as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(cmd, args[0])
		if err != nil {
			return err
		}
		defer func() { _ = e.Close() }()

		s, err := e.Schema(cmd.Context(), schemaSource, schemaPath)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	},
}
