package main

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/rewrite/config"
	"github.com/chazu/rewrite/dump"
	"github.com/chazu/rewrite/passes/constfold"
	"github.com/chazu/rewrite/passes/deadcode"
	"github.com/chazu/rewrite/pipeline"
	"github.com/chazu/rewrite/unit"
)

// UnitExt is the file extension of serialized units.
const UnitExt = ".unit"

var transformCmd = &cobra.Command{
	Use:   "transform [flags] path...",
	Short: "rewrite unit files with the built-in passes.",
	Long: `Rewrite every unit file named on the command line, or found under a
named directory, with the built-in passes. Files are rewritten in place
unless --out is given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if GetFlag(cmd, "check-metadata") {
			cfg.Pipeline.CheckMetadata = true
		}
		if n := GetInt(cmd, "workers"); n > 0 {
			cfg.Pipeline.Workers = n
		}
		d, err := newDispatcher(cfg)
		if err != nil {
			return err
		}
		files, err := collectUnits(args)
		if err != nil {
			return err
		}
		if err := transformFiles(cmd.Context(), d, files, GetString(cmd, "out"), cfg.Pipeline.Workers); err != nil {
			return err
		}
		s := d.Stats()
		fmt.Fprintf(cmd.OutOrStdout(), "%d units: %d skipped, %d decoded, %d rewritten (%d recomputed)\n",
			s.Transforms, s.Skipped, s.Decodes, s.Changed, s.Recomputed)
		return nil
	},
}

// newDispatcher builds a dispatcher with every built-in pass the
// configuration leaves enabled, in pipeline order.
func newDispatcher(cfg *config.Config) (*pipeline.Dispatcher, error) {
	d := pipeline.New(cfg.PipelineOptions())

	var funcs []constfold.Func
	for _, set := range cfg.Constfold.Funcs {
		switch set {
		case "math":
			funcs = append(funcs, constfold.MathFuncs()...)
		case "strings":
			funcs = append(funcs, constfold.StringFuncs()...)
		default:
			return nil, fmt.Errorf("config: unknown constfold function set %q", set)
		}
	}
	all := []pipeline.Pass{
		deadcode.New(),
		constfold.New(constfold.Options{Funcs: funcs, Arithmetic: cfg.Constfold.Arithmetic}),
	}
	for _, p := range all {
		if !cfg.PassEnabled(p.Name()) {
			log.Infof("pass %s disabled", p.Name())
			continue
		}
		if err := d.Register(p); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// collectUnits expands directories into the unit files beneath them.
func collectUnits(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, e fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !e.IsDir() && filepath.Ext(path) == UnitExt {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(files)
	return files, nil
}

// transformFiles runs the dispatcher over files with at most workers in
// flight. The first failure cancels files not yet started.
func transformFiles(ctx context.Context, d *pipeline.Dispatcher, files []string, out string, workers int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for _, path := range files {
		path := path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return transformFile(d, path, out)
		})
	}
	return g.Wait()
}

func transformFile(d *pipeline.Dispatcher, path, out string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	name := path
	if h, err := unit.ReadHeader(data); err == nil {
		name = h.Name
	}
	result, err := d.Transform(name, data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	dest := path
	if out != "" {
		rel, err := dump.RelPath(name)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		dest = filepath.Join(out, rel+UnitExt)
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return err
		}
	} else if bytes.Equal(result, data) {
		return nil
	}
	return os.WriteFile(dest, result, 0644)
}

func init() {
	transformCmd.Flags().StringP("out", "o", "", "write rewritten units under this directory")
	transformCmd.Flags().Int("workers", 0, "number of units transformed concurrently")
	transformCmd.Flags().Bool("check-metadata", false, "verify metadata of units classified changed")
	rootCmd.AddCommand(transformCmd)
}
