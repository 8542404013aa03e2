package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentic-research/loom/internal/graph"
)

var bindOut string

func init() {
	bindCmd.Flags().StringVarP(&bindOut, "out", "o", "", "Write the bound tree to a file instead of stdout")
	rootCmd.AddCommand(bindCmd)
}

var bindCmd = &cobra.Command{
	Use:   "bind [document]",
	Short: "Bind a document and print the materialized component tree as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(cmd, args[0])
		if err != nil {
			return err
		}
		defer func() { _ = e.Close() }()

		if _, err := e.Bind(cmd.Context()); err != nil {
			return err
		}
		tree, err := graph.Tree(e.Output(), "")
		if err != nil {
			return err
		}

		var w io.Writer = cmd.OutOrStdout()
		if bindOut != "" {
			f, err := os.Create(bindOut)
			if err != nil {
				return fmt.Errorf("create %s: %w", bindOut, err)
			}
			defer func() { _ = f.Close() }()
			w = f
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(tree)
	},
}
