package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"formatconv/contracts"
	"formatconv/converter"
	"formatconv/feedback"
	"formatconv/files_manager"
	"formatconv/publisher"
	"formatconv/session"

	"github.com/spf13/cobra"
)

var convertCmd = &cobra.Command{
	Use:   "convert [files or directories...]",
	Short: "Convert files and directories from the command line",
	Long: `Convert runs one conversion per input directory, plus one for all files
named directly on the command line. Directories are converted in parallel.

Results are written to the output directory. When several directories are
given, each gets its own sub-directory of the output.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConvert,
}

func init() {
	f := convertCmd.Flags()
	f.String("kind", string(contracts.KindPNGJPG), "converter: svg, pdf, png-jpg, heic or webp")
	f.String("from", "", "source format (default: detected)")
	f.String("to", "", "target format")
	f.String("quality", "", "JPEG/WebP quality 0-100")
	f.String("scale", "", "SVG scale factor")
	f.String("page-size", "", "PDF page size: a4, letter or fit")
	f.String("background", "", "background colour for flattening, #rrggbb")
	f.String("transparent", "", "keep SVG transparency for PNG/WebP")
	f.StringP("output", "o", ".", "output directory")
	rootCmd.AddCommand(convertCmd)
}

// batch is one conversion: the files of one directory, or the loose
// files from the command line.
type batch struct {
	name  string
	paths []string
	out   string
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer shutdownNative()

	f := cmd.Flags()
	kindFlag, _ := f.GetString("kind")
	kind, err := contracts.ParseKind(kindFlag)
	if err != nil {
		return err
	}
	flags := contracts.InputFlags{}
	flags.From, _ = f.GetString("from")
	flags.To, _ = f.GetString("to")
	flags.Quality, _ = f.GetString("quality")
	flags.Scale, _ = f.GetString("scale")
	flags.PageSize, _ = f.GetString("page-size")
	flags.Background, _ = f.GetString("background")
	flags.Transparent, _ = f.GetString("transparent")
	outputDir, _ := f.GetString("output")

	policy, err := files_manager.PolicyFor(kind, cfg.Upload.MaxFileSize)
	if err != nil {
		return err
	}
	batches, err := collectBatches(args, policy, outputDir)
	if err != nil {
		return err
	}
	if len(batches) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "No convertible files found.")
		return nil
	}

	startTime := time.Now()
	defer func() {
		fmt.Fprintf(cmd.ErrOrStderr(), "Total time taken: %s\n", time.Since(startTime))
	}()

	registry := newRegistry(cfg)
	console := feedback.NewConsole(cmd.ErrOrStderr())

	maxConversions := max(runtime.NumCPU()-1, 1)
	sem := make(chan struct{}, maxConversions)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, b := range batches {
		wg.Add(1)
		go func(b batch) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			if err := convertBatch(cmd.Context(), registry, kind, cfg.Upload.MaxFileSize, b, flags, console); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", b.name, err))
				mu.Unlock()
			}
		}(b)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return err
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "Conversion completed successfully.")
	return nil
}

func collectBatches(args []string, policy files_manager.Policy, outputDir string) ([]batch, error) {
	var loose []string
	var dirs []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			dirs = append(dirs, arg)
		} else {
			loose = append(loose, arg)
		}
	}

	var batches []batch
	if len(loose) > 0 {
		batches = append(batches, batch{name: "command line", paths: loose, out: outputDir})
	}
	for _, dir := range dirs {
		paths, _, err := files_manager.GetInputPaths(dir, policy)
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", dir, err)
		}
		if len(paths) == 0 {
			continue
		}
		out := outputDir
		if len(dirs) > 1 || len(loose) > 0 {
			out = filepath.Join(outputDir, filepath.Base(filepath.Clean(dir)))
		}
		batches = append(batches, batch{name: dir, paths: paths, out: out})
	}
	return batches, nil
}

func convertBatch(ctx context.Context, registry *converter.Registry, kind contracts.Kind, maxSize int64, b batch, flags contracts.InputFlags, reporter feedback.Reporter) error {
	if err := os.MkdirAll(b.out, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	files := make([]contracts.File, 0, len(b.paths))
	for _, p := range b.paths {
		file, err := files_manager.ReadFile(p)
		if err != nil {
			return err
		}
		files = append(files, file)
	}

	sess, err := session.New(b.name, kind, session.Deps{
		Dispatcher:  registry,
		Publisher:   publisher.New(publisher.NewMemoryStore(""), publisher.DirDeliverer{Dir: b.out}),
		Reporter:    reporter,
		MaxFileSize: maxSize,
	})
	if err != nil {
		return err
	}
	if _, err := sess.Select(ctx, files); err != nil {
		return err
	}
	_, err = sess.Submit(ctx, flags)
	return err
}
