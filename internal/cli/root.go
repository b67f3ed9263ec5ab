// Package cli wires the command line onto the generation pipeline.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"gobindgen/bindgen"
)

const (
	appName    = "gobindgen"
	appVersion = "0.1.0"
)

// stderrLogger forwards generation diagnostics to standard error.
type stderrLogger struct{}

func (stderrLogger) Error(msg string) { fmt.Fprintln(os.Stderr, "error: "+msg) }
func (stderrLogger) Warn(msg string)  { fmt.Fprintln(os.Stderr, "warning: "+msg) }

func NewRootCmd() *cobra.Command {
	opts := bindgen.DefaultOptions()
	outputPath := ""
	showVersion := false
	overrideEnumTy := ""
	var links, staticLinks, frameworkLinks []string

	cmd := &cobra.Command{
		Use:           appName + " [flags] <header.h>... [-I dir]...",
		Short:         "Generate Go FFI bindings from C headers",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appName, appVersion)
				return err
			}
			if len(args) == 0 {
				return fmt.Errorf("no input headers")
			}

			if overrideEnumTy != "" {
				k, ok := bindgen.ParseIKind(overrideEnumTy)
				if !ok {
					return fmt.Errorf("invalid enum type override %q", overrideEnumTy)
				}
				opts.OverrideEnumTy = &k
			}
			for _, n := range links {
				opts.Links = append(opts.Links, bindgen.Link{Name: n, Kind: bindgen.LinkDefault})
			}
			for _, n := range staticLinks {
				opts.Links = append(opts.Links, bindgen.Link{Name: n, Kind: bindgen.LinkStatic})
			}
			for _, n := range frameworkLinks {
				opts.Links = append(opts.Links, bindgen.Link{Name: n, Kind: bindgen.LinkFramework})
			}
			opts.ClangArgs = args

			bindings, err := bindgen.Generate(opts, stderrLogger{})
			if err != nil {
				return err
			}

			if outputPath == "" {
				return bindings.Write(cmd.OutOrStdout())
			}
			f, err := os.Create(outputPath)
			if err != nil {
				return fmt.Errorf("creating %s: %w", outputPath, err)
			}
			defer f.Close()
			return bindings.Write(f)
		},
	}

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	// Flags come first; everything from the first header on is forwarded
	// to the parser untouched, -I and friends included.
	cmd.Flags().SetInterspersed(false)

	cmd.Flags().BoolVarP(&showVersion, "version", "v", false, "print version")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write bindings to file instead of stdout")
	cmd.Flags().StringArrayVar(&opts.MatchPat, "match", nil, "only emit declarations from files whose path contains the pattern")
	cmd.Flags().BoolVar(&opts.Builtins, "builtins", false, "emit compiler-internal declarations")
	cmd.Flags().StringArrayVarP(&links, "link", "l", nil, "link the given library dynamically")
	cmd.Flags().StringArrayVar(&staticLinks, "static-link", nil, "link the given library statically")
	cmd.Flags().StringArrayVar(&frameworkLinks, "framework-link", nil, "link the given framework (macOS)")
	cmd.Flags().BoolVar(&opts.EmitAST, "emit-ast", false, "dump the parsed declaration stream to stderr")
	cmd.Flags().BoolVar(&opts.FailOnUnknownType, "fail-on-unknown-type", false, "treat unclassifiable types as fatal")
	cmd.Flags().StringVar(&overrideEnumTy, "override-enum-ty", "", "force the underlying integer type of every enum (uchar, schar, ushort, sshort, uint, sint, ulong, slong, ulonglong, slonglong)")

	_ = cmd.MarkFlagFilename("output", "go")

	return cmd
}
