package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/chazu/rewrite/index"
	"github.com/chazu/rewrite/unit"
)

var disasmCmd = &cobra.Command{
	Use:   "disasm [flags] file...",
	Short: "print the tree form of unit files.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			u, err := unit.Decode(data)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			fmt.Fprint(cmd.OutOrStdout(), unit.Disassemble(u))
		}
		return nil
	},
}

var indexCmd = &cobra.Command{
	Use:   "index [flags] file...",
	Short: "print the constant-pool index facts of unit files.",
	Long: `Print the facts the pipeline screens units with. Routine code is never
decoded.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := index.Options{Literals: GetFlag(cmd, "literals")}
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			idx, err := index.Build(data, opts)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			printIndex(cmd, idx)
		}
		return nil
	},
}

func printIndex(cmd *cobra.Command, idx *index.Index) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "unit %s (%d constants)\n", idx.Name(), idx.Len())

	classes := idx.Classes()
	sort.Strings(classes)
	for _, c := range classes {
		fmt.Fprintf(w, "  class  %s\n", c)
	}

	var methods []string
	for _, m := range idx.Methods() {
		methods = append(methods, m.String())
	}
	sort.Strings(methods)
	for _, m := range methods {
		fmt.Fprintf(w, "  method %s\n", m)
	}
}

func init() {
	indexCmd.Flags().Bool("literals", false, "collect integer and float literal facts")
	rootCmd.AddCommand(disasmCmd)
	rootCmd.AddCommand(indexCmd)
}
