// Command minicfg inspects layered configuration files.
//
// Usage:
//
//	minicfg merge <file>... - Print the merged dictionary of a cascade
//	minicfg check <file>... - Decode every file and report the ones that fail
//	minicfg version         - Show version information
//
// Examples:
//
//	minicfg merge base.toml prod.toml
//	minicfg merge base.yaml --set database.port=5433 --format json
//	minicfg merge base.yaml --env APP --env-delimiter __
//	minicfg check configs/*.toml
//
// File formats are picked from the extension (.toml, .yaml, .yml, .json).
// Set LOG_LEVEL=debug to see each layer as it is read.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	minicfg "github.com/CSU-CIRA/mini-cfg"
	"github.com/CSU-CIRA/mini-cfg/internal/buildinfo"
	"github.com/CSU-CIRA/mini-cfg/internal/log"
)

func main() {
	defer log.Sync()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "minicfg",
		Short: "Inspect layered configuration files",
		Long: `minicfg reads cascades of TOML, YAML and JSON configuration files, where
later files override earlier ones key by key, and shows the result.`,
		SilenceUsage: true,
	}

	// ---- version command ----
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "version: %s\n", buildinfo.Version)
			fmt.Fprintf(cmd.OutOrStdout(), "commit: %s\n", buildinfo.Commit)
		},
	}

	root.AddCommand(newMergeCmd(), newCheckCmd(), versionCmd)
	return root
}

type mergeFlags struct {
	format       string
	overrides    []string
	envPrefix    string
	envDelimiter string
}

// ---- merge command ----
func newMergeCmd() *cobra.Command {
	var flags mergeFlags

	cmd := &cobra.Command{
		Use:   "merge <file>...",
		Short: "Print the merged dictionary of a cascade",
		Long: `Merge reads the files in order, merges them into one dictionary and prints it.
Environment variables (--env) and --set assignments are applied on top, in
that order. Sub-config file pointers are printed as they are, since no config
type is known to tell them apart from plain strings.`,
		Example: "minicfg merge base.toml prod.toml --set server.port=8080",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dict, err := mergeCascade(args, flags)
			if err != nil {
				return err
			}
			return writeDict(cmd.OutOrStdout(), dict, flags.format)
		},
	}

	cmd.Flags().StringVarP(&flags.format, "format", "f", "yaml", "output format: yaml, json or toml")
	cmd.Flags().StringArrayVar(&flags.overrides, "set", nil, "override a value, key.path=value (repeatable)")
	cmd.Flags().StringVar(&flags.envPrefix, "env", "", "apply environment variables with this prefix")
	cmd.Flags().StringVar(&flags.envDelimiter, "env-delimiter", "_", "separator between prefix and key path segments of environment variables")

	return cmd
}

func mergeCascade(paths []string, flags mergeFlags) (map[string]any, error) {
	dict, history, err := minicfg.ResolveLogged(paths, minicfg.ReadAuto, nil, log.Base())
	if err != nil {
		return nil, err
	}
	log.Debug("resolved cascade", "files", []string(history), "keys", len(dict))

	if flags.envPrefix != "" {
		env := minicfg.EnvLayer(flags.envPrefix, flags.envDelimiter, os.Environ())
		log.Debug("applying environment layer", "prefix", flags.envPrefix, "keys", len(env))
		minicfg.Merge(env, dict)
	}

	if len(flags.overrides) > 0 {
		overrides, err := minicfg.ParseOverrides(flags.overrides...)
		if err != nil {
			return nil, err
		}
		minicfg.Merge(overrides, dict)
	}

	return dict, nil
}

func writeDict(w io.Writer, dict map[string]any, format string) error {
	switch minicfg.Format(format) {
	case minicfg.Yaml:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(dict); err != nil {
			return err
		}
		return enc.Close()
	case minicfg.Json:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(dict)
	case minicfg.Toml:
		return toml.NewEncoder(w).Encode(dict)
	}
	return fmt.Errorf("%w: %q", minicfg.ErrUnsupportedFormat, format)
}

type checkResult struct {
	path   string
	format minicfg.Format
	keys   int
	err    error
}

// ---- check command ----
func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>...",
		Short: "Decode every file and report the ones that fail",
		Long: `Check decodes each file on its own, in parallel, and prints a table with
the outcome for every file. It fails if any file could not be decoded.`,
		Example: "minicfg check base.toml prod.toml",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results := checkFiles(args)
			renderResults(cmd.OutOrStdout(), results)

			var err error
			for _, r := range results {
				if r.err != nil {
					err = multierr.Append(err, fmt.Errorf("%s: %w", r.path, r.err))
				}
			}
			return err
		},
	}
}

func checkFiles(paths []string) []checkResult {
	results := make([]checkResult, len(paths))

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())

	for i, p := range paths {
		g.Go(func() error {
			r := checkResult{path: p}
			r.format, r.err = minicfg.FormatOf(p)
			if r.err == nil {
				var dict map[string]any
				dict, r.err = minicfg.ReadAuto(p)
				r.keys = len(dict)
			}
			if r.err != nil {
				log.Warn("config file failed to decode", "path", p, "err", r.err)
			}
			results[i] = r
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func renderResults(w io.Writer, results []checkResult) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"File", "Format", "Keys", "Status"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)

	failed := 0
	for _, r := range results {
		status := color.New(color.FgGreen).Sprint("ok")
		keys := strconv.Itoa(r.keys)
		if r.err != nil {
			failed++
			status = color.New(color.FgRed).Sprint(r.err.Error())
			keys = "-"
		}
		table.Append([]string{r.path, string(r.format), keys, status})
	}
	table.Render()

	if failed == 0 {
		color.New(color.FgGreen, color.Bold).Fprintf(w, "✓ %d file(s) decoded\n", len(results))
		return
	}
	color.New(color.FgHiRed, color.Bold).Fprintf(w, "%d of %d file(s) failed\n", failed, len(results))
}
