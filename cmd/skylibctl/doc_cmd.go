// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ManuGH/skylib/internal/fsutil"
	"github.com/ManuGH/skylib/pkg/document"
)

func newDocCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doc",
		Short: "Work with YAML and JSON documents",
	}
	cmd.AddCommand(newDocConvertCmd(), newDocMergeCmd(), newDocGetCmd(), newDocValidateCmd())
	return cmd
}

func readDocument(path string) (document.Node, error) {
	format, err := document.FormatFromPath(path)
	if err != nil {
		return document.Node{}, err
	}
	raw, err := os.ReadFile(path) // #nosec G304 -- operator supplied path
	if err != nil {
		return document.Node{}, err
	}
	n, err := document.Parse(raw, format)
	if err != nil {
		return document.Node{}, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}

// writeDocument serializes n to path, or to stdout in the named format when
// path is empty.
func writeDocument(cmd *cobra.Command, n document.Node, path, format string) error {
	var f document.Format
	var err error
	if path != "" {
		f, err = document.FormatFromPath(path)
	} else {
		f, err = document.ParseFormat(format)
	}
	if err != nil {
		return err
	}
	out, err := document.Serialize(n, f)
	if err != nil {
		return err
	}
	if path == "" {
		_, err = cmd.OutOrStdout().Write(out)
		return err
	}
	return fsutil.WriteFileAtomic(context.Background(), path, out, 0o644)
}

func newDocConvertCmd() *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "convert <input> [output]",
		Short: "Convert a document between YAML and JSON",
		Long: `Converts a document, choosing formats by file extension. Without an
output file the result is written to stdout in the format given by --to.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := readDocument(args[0])
			if err != nil {
				return err
			}
			out := ""
			if len(args) == 2 {
				out = args[1]
			}
			return writeDocument(cmd, n, out, to)
		},
	}
	cmd.Flags().StringVar(&to, "to", "json", "stdout format: yaml or json")
	return cmd
}

func newDocMergeCmd() *cobra.Command {
	var (
		output string
		format string
	)
	cmd := &cobra.Command{
		Use:   "merge <base> <override>...",
		Short: "Deep-merge documents, later files win",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			layers := make([]document.Node, 0, len(args))
			for _, path := range args {
				n, err := readDocument(path)
				if err != nil {
					return err
				}
				layers = append(layers, n)
			}
			merged, err := document.MergeAll(layers...)
			if err != nil {
				return err
			}
			return writeDocument(cmd, merged, output, format)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&format, "format", "yaml", "stdout format: yaml or json")
	return cmd
}

func newDocGetCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "get <file> <path>",
		Short: "Print the value at a path such as $.audio.volume or servers[0].name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := readDocument(args[0])
			if err != nil {
				return err
			}
			p, err := document.ParsePath(args[1])
			if err != nil {
				return err
			}
			v, ok := n.Lookup(p)
			if !ok {
				return fmt.Errorf("%s: no value at %s", args[0], p.Display())
			}
			if v.IsScalar() {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), scalarText(v))
				return err
			}
			return writeDocument(cmd, v, "", format)
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "output format for mappings and sequences")
	return cmd
}

func scalarText(n document.Node) string {
	if s, ok := n.AsString(); ok {
		return s
	}
	return n.String()
}

func newDocValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>...",
		Short: "Check that documents parse",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var errs []error
			for _, path := range args {
				if _, err := readDocument(path); err != nil {
					errs = append(errs, err)
					continue
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
			}
			return errors.Join(errs...)
		},
	}
}
