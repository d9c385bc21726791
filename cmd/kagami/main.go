// Package main is the kagami CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hyperjump/kagami/internal/cli"
	"github.com/hyperjump/kagami/internal/config"
	"github.com/hyperjump/kagami/internal/embedding"
	"github.com/hyperjump/kagami/internal/indexer"
	"github.com/hyperjump/kagami/internal/search"
	"github.com/hyperjump/kagami/internal/storage"
	"github.com/hyperjump/kagami/internal/vector"
	"github.com/hyperjump/kagami/internal/watcher"
	"github.com/hyperjump/kagami/pkg/utils"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kagami/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// A missing file at the default path is not an error: defaults are returned.
// Returns the config and the path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 2
	}
	command, rest := args[0], args[1:]
	switch command {
	case "index", "build":
		return runIndex(rest, stdout, stderr)
	case "query", "search":
		return runQuery(rest, stdout, stderr)
	case "status":
		return runStatus(rest, stdout, stderr)
	case "watch":
		return runWatch(rest, stdout, stderr)
	case "init":
		return runInit(rest, stdout, stderr)
	case "version", "--version", "-v":
		fmt.Fprintf(stdout, "kagami version %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		printUsage(stderr)
		return 2
	}
}

// commonFlags registers the flags every command accepts.
type commonFlags struct {
	configPath *string
	debug      *bool
}

func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, commonFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs, commonFlags{
		configPath: fs.String("config", defaultConfigPath, "config file path"),
		debug:      fs.Bool("debug", false, "enable debug logging"),
	}
}

// parseFlags parses args and reports the exit code to use when parsing stops the command.
func parseFlags(fs *flag.FlagSet, args []string) (int, bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0, false
		}
		return 2, false
	}
	return 0, true
}

// queryArgsReorder moves any flags (and their values) that appear among the query
// words to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument, so "kagami query red car -k 3" would
// otherwise leave -k unparsed. Query words keep their relative order, and
// everything after "--" is kept as query text.
func queryArgsReorder(fs *flag.FlagSet, args []string) []string {
	flags := make([]string, 0, len(args))
	words := make([]string, 0, len(args))
	terminated := false
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			terminated = true
			words = append(words, args[i+1:]...)
			break
		}
		if len(a) < 2 || a[0] != '-' {
			words = append(words, a)
			continue
		}
		flags = append(flags, a)
		name := strings.TrimLeft(a, "-")
		if strings.Contains(name, "=") {
			continue
		}
		if f := fs.Lookup(name); f != nil && !isBoolFlag(f) && i+1 < len(args) {
			i++
			flags = append(flags, args[i])
		}
	}
	if terminated {
		flags = append(flags, "--")
	}
	return append(flags, words...)
}

func isBoolFlag(f *flag.Flag) bool {
	b, ok := f.Value.(interface{ IsBoolFlag() bool })
	return ok && b.IsBoolFlag()
}

// buildQueryText joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildQueryText(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// setup loads config and creates the logger and components for a command.
func setup(flags commonFlags, withCatalog bool, stderr io.Writer) (*Components, bool) {
	cfg, _, err := loadConfig(*flags.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return nil, false
	}
	if *flags.debug {
		cfg.Debug = true
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to create logger: %v\n", err)
		return nil, false
	}
	components, err := initializeComponents(cfg, logger, withCatalog)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to initialize: %v\n", err)
		_ = logger.Sync()
		return nil, false
	}
	return components, true
}

func runIndex(args []string, stdout, stderr io.Writer) int {
	fs, flags := newFlagSet("index", stderr)
	workers := fs.Int("workers", 0, "number of images embedded concurrently (default from config)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: kagami index [flags] <file-or-directory>...\n\n")
		fs.PrintDefaults()
	}
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return 2
	}

	components, ok := setup(flags, true, stderr)
	if !ok {
		return 1
	}
	defer components.Close()
	if *workers > 0 {
		indexer.WithWorkers(*workers)(components.Builder)
	}

	res, err := components.Builder.Build(context.Background(), fs.Args())
	if res != nil {
		for _, d := range res.Diagnostics {
			fmt.Fprintf(stderr, "warning: %v\n", d)
		}
	}
	if err != nil {
		if errors.Is(err, indexer.ErrNoInput) {
			fmt.Fprintln(stderr, "No images were indexed.")
			return 1
		}
		fmt.Fprintf(stderr, "Indexing failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Indexed %d images.\n", res.Indexed)
	return 0
}

func runQuery(args []string, stdout, stderr io.Writer) int {
	fs, flags := newFlagSet("query", stderr)
	k := fs.Int("k", 0, "number of results (default from config)")
	outputFormat := fs.String("output", "text", "output format: text, compact (score and path per line), or json")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: kagami query [flags] <text>\n\n")
		fmt.Fprintf(fs.Output(), "Text is all remaining arguments joined by spaces.\n\n")
		fs.PrintDefaults()
	}
	if code, ok := parseFlags(fs, queryArgsReorder(fs, args)); !ok {
		return code
	}
	text := buildQueryText(fs.Args())
	if text == "" {
		fs.Usage()
		return 2
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	components, ok := setup(flags, false, stderr)
	if !ok {
		return 1
	}
	defer components.Close()

	response, err := components.Engine.Respond(context.Background(), text, *k)
	if err != nil {
		fmt.Fprintf(stderr, "Query failed: %v\n", err)
		return 1
	}
	if err := cli.WriteQueryResults(stdout, response, format); err != nil {
		fmt.Fprintf(stderr, "Output failed: %v\n", err)
		return 1
	}
	return 0
}

// runInit writes the default configuration to the -config path.
func runInit(args []string, stdout, stderr io.Writer) int {
	fs, flags := newFlagSet("init", stderr)
	force := fs.Bool("force", false, "overwrite an existing config file")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	path := *flags.configPath
	if _, err := os.Stat(path); err == nil && !*force {
		fmt.Fprintf(stderr, "Config already exists at %s (use -force to overwrite)\n", path)
		return 1
	}
	cfg := config.Default()
	if *flags.debug {
		cfg.Debug = true
	}
	if err := config.Save(path, cfg); err != nil {
		fmt.Fprintf(stderr, "Failed to write config: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Wrote config to %s\n", path)
	return 0
}

func runStatus(args []string, stdout, stderr io.Writer) int {
	fs, flags := newFlagSet("status", stderr)
	outputFormat := fs.String("output", "text", "output format: text or json")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	cfg, _, err := loadConfig(*flags.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}
	status, err := collectStatus(context.Background(), cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Status failed: %v\n", err)
		return 1
	}
	if err := cli.WriteStatus(stdout, status, format); err != nil {
		fmt.Fprintf(stderr, "Output failed: %v\n", err)
		return 1
	}
	return 0
}

// collectStatus reads the index header and, when a catalog exists, the latest build.
// It never creates the catalog.
func collectStatus(ctx context.Context, cfg *config.Config) (*cli.Status, error) {
	status := &cli.Status{IndexPath: cfg.Storage.IndexPath, CatalogPath: cfg.Storage.CatalogPath}
	header, err := vector.ReadHeader(cfg.Storage.IndexPath)
	switch {
	case err == nil:
		status.IndexExists = true
		status.Dimensions = header.Dimensions
		status.Images = header.VectorCount
	case errors.Is(err, vector.ErrNotFound):
	default:
		status.IndexExists = true
		status.IndexError = err.Error()
	}
	if status.IndexBytes, err = storage.DiskUsageBytes(cfg.Storage.IndexPath); err != nil {
		return nil, err
	}
	if status.CatalogBytes, err = storage.DiskUsageBytes(storage.CatalogFiles(cfg.Storage.CatalogPath)...); err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(cfg.Storage.CatalogPath); statErr != nil {
		return status, nil
	}
	catalog, err := storage.NewSQLiteCatalog(cfg.Storage.CatalogPath)
	if err != nil {
		return nil, err
	}
	defer catalog.Close()
	if status.Builds, err = catalog.CountBuilds(ctx); err != nil {
		return nil, err
	}
	latest, err := catalog.LatestBuild(ctx)
	if err != nil && !errors.Is(err, storage.ErrNoBuilds) {
		return nil, err
	}
	status.LatestBuild = latest
	return status, nil
}

func runWatch(args []string, stdout, stderr io.Writer) int {
	fs, flags := newFlagSet("watch", stderr)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: kagami watch [flags] <file-or-directory>...\n\n")
		fmt.Fprintf(fs.Output(), "Builds the index, then rebuilds it whenever a watched image changes. Stop with Ctrl-C.\n\n")
		fs.PrintDefaults()
	}
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return 2
	}
	paths := fs.Args()

	components, ok := setup(flags, true, stderr)
	if !ok {
		return 1
	}
	defer components.Close()
	logger := components.Logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var buildMu sync.Mutex
	rebuild := func() {
		buildMu.Lock()
		defer buildMu.Unlock()
		res, err := components.Builder.Build(ctx, paths)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.Warn("rebuild failed", zap.Error(err))
			return
		}
		fmt.Fprintf(stdout, "Indexed %d images.\n", res.Indexed)
	}
	rebuild()

	cfg := components.Config
	w := watcher.NewWatcher(paths, cfg.Index.Extensions, rebuild,
		watcher.WithLogger(logger),
		watcher.WithDebounce(time.Duration(cfg.Watch.DebounceMS)*time.Millisecond),
		watcher.WithIgnore(append([]string{cfg.Storage.IndexPath}, storage.CatalogFiles(cfg.Storage.CatalogPath)...)...),
	)
	if err := w.Start(ctx); err != nil {
		fmt.Fprintf(stderr, "Watch failed: %v\n", err)
		return 1
	}
	defer w.Stop()
	logger.Info("watching for changes", zap.Strings("paths", paths))
	<-ctx.Done()
	return 0
}

// Components holds initialized services.
type Components struct {
	Config   *config.Config
	Logger   *zap.Logger
	Embedder embedding.Embedder
	Catalog  storage.Catalog
	Builder  *indexer.Builder
	Engine   *search.Engine
}

// Close releases the embedder and catalog and flushes the logger.
func (c *Components) Close() error {
	var err error
	if c.Embedder != nil {
		err = multierr.Append(err, c.Embedder.Close())
	}
	if c.Catalog != nil {
		err = multierr.Append(err, c.Catalog.Close())
	}
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
	return err
}

// initializeComponents wires the lazy embedder, catalog, builder and engine.
// The model is loaded on first embed; a catalog that cannot be opened is
// logged and builds proceed without it.
func initializeComponents(cfg *config.Config, logger *zap.Logger, withCatalog bool) (*Components, error) {
	if _, err := vector.NewVectorIndex(cfg.Index.Type, 0); err != nil {
		return nil, fmt.Errorf("invalid index type: %w", err)
	}

	embeddingCfg := cfg.Embedding
	embedder := embedding.NewLazy(func() (embedding.Embedder, error) {
		logger.Debug("loading embedding model",
			zap.String("provider", embeddingCfg.Provider),
			zap.String("image_model", embeddingCfg.ImageModelPath),
			zap.String("text_model", embeddingCfg.TextModelPath))
		return embedding.New(&embeddingCfg)
	}, embeddingCfg.Dimensions)

	c := &Components{Config: cfg, Logger: logger, Embedder: embedder}

	builderOpts := []indexer.BuilderOption{
		indexer.WithLogger(logger),
		indexer.WithIndexType(cfg.Index.Type),
		indexer.WithWorkers(cfg.Index.Workers),
		indexer.WithExtensions(cfg.Index.Extensions),
		indexer.WithKeepBuilds(cfg.Index.KeepBuilds),
	}
	if withCatalog && cfg.Storage.CatalogPath != "" {
		catalog, err := storage.NewSQLiteCatalog(cfg.Storage.CatalogPath)
		if err != nil {
			logger.Warn("build catalog unavailable", zap.String("path", cfg.Storage.CatalogPath), zap.Error(err))
		} else {
			c.Catalog = catalog
			builderOpts = append(builderOpts, indexer.WithCatalog(catalog))
		}
	}

	c.Builder = indexer.NewBuilder(embedder, cfg.Storage.IndexPath, builderOpts...)
	c.Engine = search.NewEngine(embedder, cfg.Storage.IndexPath,
		search.WithLogger(logger),
		search.WithDefaultK(cfg.Query.DefaultK),
	)
	return c, nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `kagami - Local text-to-image similarity search

Usage:
  kagami index [flags] <path>...   Build the image index (alias: build)
  kagami query [flags] <text>      Find images matching a description
  kagami status [flags]            Show index and last build status
  kagami watch [flags] <path>...   Build, then rebuild when images change
  kagami init [flags]              Write the default config to --config
  kagami version                   Show version
  kagami help                      Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/kagami/config.yaml, or ./config.yaml)
  --debug            Enable debug logging

Index Flags:
  --workers int      Images embedded concurrently (default from config)

Query Flags:
  --k int            Number of results (default from config, 5)
  --output string    Output format: text, compact, or json (default: text)

Status Flags:
  --output string    Output format: text or json (default: text)

Init Flags:
  --force            Overwrite an existing config file

Text queries with the onnx provider need embedding.tokenizer_vocab_path and
embedding.tokenizer_merges_path (the CLIP vocab.json and merges.txt). Without
them a hash tokenizer is used and text scores are not meaningful.

Examples:
  kagami index ~/Pictures/holiday
  kagami index photo1.jpg photo2.png
  kagami query "a dog on a beach"
  kagami query -k 10 --output json sunset over mountains
  kagami status
  kagami watch ~/Pictures/holiday`)
}
