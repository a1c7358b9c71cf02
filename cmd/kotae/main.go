// Package main is the kotae CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/ingest"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/postprocess"
	"github.com/hyperjump/kotae/internal/prompt"
	"github.com/hyperjump/kotae/internal/qa"
	"github.com/hyperjump/kotae/internal/retrieval"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "kotae.yaml"
	dotEnvPath        = ".env"
)

// loadConfig loads .env, then the config file at path, then validates. The
// default path is optional so a pure environment setup works; an explicit path
// must exist.
func loadConfig(path string) (*config.Config, error) {
	if err := config.LoadDotEnv(dotEnvPath); err != nil {
		return nil, err
	}
	if path == defaultConfigPath {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "ingest":
		runIngest(os.Args[2:])
	case "ask":
		runAsk(os.Args[2:])
	case "serve":
		runServe(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// fatal prints a startup diagnostic and exits 1.
func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// setup loads config and builds the logger shared by every subcommand.
func setup(configPath string, debugFlag bool) (*config.Config, *zap.Logger) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		if errors.Is(err, models.ErrUnsupportedBackend) {
			fatal("Unsupported LLM backend: %v", err)
		}
		fatal("Failed to load config: %v", err)
	}
	logger, err := utils.NewLogger(cfg.Debug || debugFlag)
	if err != nil {
		fatal("Failed to create logger: %v", err)
	}
	return cfg, logger
}

func runIngest(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	watch := fs.Bool("watch", false, "keep running and ingest files as they change")
	_ = fs.Parse(reorderArgs(fs, args))

	cfg, logger := setup(*configPath, *debug)
	defer logger.Sync()
	if fs.NArg() > 0 {
		cfg.Ingest.SourceDirectory = fs.Arg(0)
	}

	components, err := initializeComponents(cfg, logger, false)
	if err != nil {
		fatal("Failed to initialize: %v", err)
	}
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Ingesting %s into %s\n", cfg.Ingest.SourceDirectory, cfg.Store.Directory)
	sum, err := components.Pipeline.IngestDirectory(ctx, cfg.Ingest.SourceDirectory)
	if err != nil {
		components.Close()
		fatal("Ingestion failed: %v", err)
	}
	printSummary(os.Stdout, sum)

	if !*watch {
		return
	}
	w := watcher.New(cfg.Ingest.SourceDirectory, components.Pipeline.Accepts, func(path string) {
		s, err := components.Pipeline.IngestFile(ctx, path)
		if err != nil {
			logger.Warn("ingest changed file failed", zap.String("path", path), zap.Error(err))
			return
		}
		printSummary(os.Stdout, s)
	}, watcher.WithLogger(logger), watcher.WithDebounce(time.Duration(cfg.Ingest.WatchDebounceMs)*time.Millisecond))
	if err := w.Start(ctx); err != nil {
		components.Close()
		fatal("Failed to start watcher: %v", err)
	}
	fmt.Println("Watching for changes, press Ctrl-C to stop.")
	<-ctx.Done()
	w.Stop()
}

func printSummary(w io.Writer, sum ingest.Summary) {
	fmt.Fprintf(w, "Documents processed: %d\n", sum.Documents)
	fmt.Fprintf(w, "Skipped (unchanged): %d\n", sum.Skipped)
	fmt.Fprintf(w, "Chunks added: %d\n", sum.Chunks)
	fmt.Fprintf(w, "Failures: %d\n", len(sum.Failures))
	for _, f := range sum.Failures {
		fmt.Fprintf(w, "  %s: %v\n", f.Path, f.Err)
	}
}

func runAsk(args []string) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	var hideSource, muteStream bool
	fs.BoolVar(&hideSource, "hide-source", false, "do not print the source chunks after each answer")
	fs.BoolVar(&hideSource, "S", false, "shorthand for --hide-source")
	fs.BoolVar(&muteStream, "mute-stream", false, "print answers only once complete")
	fs.BoolVar(&muteStream, "M", false, "shorthand for --mute-stream")
	financial := fs.Bool("financial-notice", false, "print a notice after answers to financial questions")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(reorderArgs(fs, args))

	format, err := cli.ParseOutputFormat(*output)
	if err != nil {
		fatal("%v", err)
	}
	cfg, logger := setup(*configPath, *debug)
	defer logger.Sync()
	if *financial {
		cfg.Hooks.FinancialNotice = true
	}

	components, err := initializeComponents(cfg, logger, true)
	if err != nil {
		if errors.Is(err, models.ErrUnsupportedBackend) {
			fatal("Unsupported LLM backend: %v", err)
		}
		fatal("Failed to initialize: %v", err)
	}
	defer components.Close()

	orch := qa.New(components.Retriever, prompt.NewAssembler(cfg.LLM.MaxAnswerTokens, prompt.WithCounter(components.Backend)), components.Backend,
		cfg.Retrieval.K, cfg.LLM.ContextTokens, askOptions(cfg, logger, muteStream)...)
	presenter := cli.NewPresenter(os.Stdout, cli.WithFormat(format), cli.WithHiddenSources(hideSource))

	// Ctrl-C aborts the answer being generated; with nothing in flight it ends the session.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		for range sigs {
			logger.Debug("interrupt", zap.Stringer("state", orch.State()))
			if orch.Cancel() {
				continue
			}
			fmt.Fprintln(os.Stderr)
			components.Close()
			os.Exit(130)
		}
	}()

	ctx := context.Background()
	if fs.NArg() > 0 {
		in := strings.NewReader(strings.Join(fs.Args(), " ") + "\n" + qa.ExitCommand + "\n")
		_ = orch.Run(ctx, in, presenter)
		return
	}
	if err := orch.Run(ctx, os.Stdin, presenter); err != nil {
		fatal("Read input: %v", err)
	}
}

func askOptions(cfg *config.Config, logger *zap.Logger, muteStream bool) []qa.Option {
	opts := []qa.Option{qa.WithLogger(logger), qa.WithMuteStream(muteStream)}
	if cfg.Hooks.FinancialNotice {
		opts = append(opts, qa.WithHooks(postprocess.FinancialNotice{}))
	}
	return opts
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	cfg, logger := setup(*configPath, *debug)
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, true)
	if err != nil {
		fatal("Failed to initialize: %v", err)
	}
	defer components.Close()

	orch := qa.New(components.Retriever, prompt.NewAssembler(cfg.LLM.MaxAnswerTokens, prompt.WithCounter(components.Backend)), components.Backend,
		cfg.Retrieval.K, cfg.LLM.ContextTokens, askOptions(cfg, logger, true)...)
	srv := server.NewServer(orch, components.Pipeline, components.Store, cfg, logger)
	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
	case err := <-errc:
		logger.Error("server failed", zap.Error(err))
	}

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

type statusOutput struct {
	Directory      string `json:"directory"`
	Exists         bool   `json:"exists"`
	Chunks         int    `json:"chunks"`
	Sources        int    `json:"sources"`
	Dimensions     int    `json:"dimensions"`
	Metric         string `json:"metric"`
	Encoder        string `json:"encoder"`
	DiskUsageBytes int64  `json:"disk_usage_bytes"`
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal("Failed to load config: %v", err)
	}
	st, err := storeStatus(context.Background(), cfg.Store.Directory)
	if err != nil {
		fatal("Status failed: %v", err)
	}
	if err := writeStatus(os.Stdout, st, *output); err != nil {
		fatal("%v", err)
	}
}

// storeStatus reads the store's recorded layout without loading an encoder.
func storeStatus(ctx context.Context, dir string) (statusOutput, error) {
	st := statusOutput{Directory: dir}
	info, err := storage.Inspect(ctx, dir)
	if errors.Is(err, os.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, err
	}
	st.Exists = true
	st.Chunks = info.Count
	st.Sources = info.Sources
	st.Dimensions = info.Dimensions
	st.Metric = info.Metric
	st.Encoder = info.Encoder
	if n, err := storage.DiskUsageBytes(dir); err == nil {
		st.DiskUsageBytes = n
	}
	return st, nil
}

func writeStatus(w io.Writer, st statusOutput, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	case "text", "":
	default:
		return fmt.Errorf("unknown output format %q; use text or json", format)
	}
	if !st.Exists {
		fmt.Fprintf(w, "No vector store at %s. Run \"kotae ingest\" first.\n", st.Directory)
		return nil
	}
	fmt.Fprintf(w, "Store:       %s\n", st.Directory)
	fmt.Fprintf(w, "Sources:     %d\n", st.Sources)
	fmt.Fprintf(w, "Chunks:      %d\n", st.Chunks)
	fmt.Fprintf(w, "Encoder:     %s (%d dimensions, %s)\n", st.Encoder, st.Dimensions, st.Metric)
	fmt.Fprintf(w, "Disk usage:  %d bytes\n", st.DiskUsageBytes)
	return nil
}

// reorderArgs moves flags (with their values) ahead of positional arguments so
// "kotae ask what is -S this" parses -S. Positional words keep their order. The
// flag package stops at the first positional argument otherwise.
func reorderArgs(fs *flag.FlagSet, args []string) []string {
	var flags, positional []string
	terminated := false
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			terminated = true
			positional = append(positional, args[i+1:]...)
			break
		}
		if len(a) < 2 || a[0] != '-' {
			positional = append(positional, a)
			continue
		}
		flags = append(flags, a)
		if strings.Contains(a, "=") {
			continue
		}
		if f := fs.Lookup(strings.TrimLeft(a, "-")); f != nil && !isBoolFlag(f) && i+1 < len(args) {
			i++
			flags = append(flags, args[i])
		}
	}
	out := make([]string, 0, len(args))
	out = append(out, flags...)
	if terminated {
		out = append(out, "--")
	}
	return append(out, positional...)
}

func isBoolFlag(f *flag.Flag) bool {
	b, ok := f.Value.(interface{ IsBoolFlag() bool })
	return ok && b.IsBoolFlag()
}

// Components holds initialized services.
type Components struct {
	Embedder  embedding.Embedder
	Store     *storage.VectorStore
	Keyword   *keyword.BleveIndex
	Pipeline  *ingest.Pipeline
	Retriever *retrieval.Retriever
	Backend   llm.Backend
}

func (c *Components) Close() {
	if c.Keyword != nil {
		_ = c.Keyword.Close()
		c.Keyword = nil
	}
	if c.Store != nil {
		_ = c.Store.Close()
		c.Store = nil
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
		c.Embedder = nil
	}
}

// initializeComponents opens the store and builds the pipeline stages. The LLM
// backend is only built when withLLM is set, so ingestion never needs a model server.
func initializeComponents(cfg *config.Config, logger *zap.Logger, withLLM bool) (*Components, error) {
	c := &Components{}
	if withLLM {
		backend, err := llm.New(&cfg.LLM, logger)
		if err != nil {
			return nil, err
		}
		c.Backend = backend
	}

	embedder, err := embedding.New(&cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.Embedder = embedder

	metric, err := vector.ParseMetric(cfg.Store.Metric)
	if err != nil {
		c.Close()
		return nil, err
	}
	store, err := storage.Open(cfg.Store.Directory, storage.Options{
		Dimensions: embedder.Dimensions(),
		Metric:     metric,
		Encoder:    embedder.Name(),
		Logger:     logger,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}
	c.Store = store

	ingestOpts := []ingest.Option{
		ingest.WithLogger(logger),
		ingest.WithWorkers(cfg.Ingest.Workers),
		ingest.WithExtensions(cfg.Ingest.Extensions),
	}
	retrievalOpts := []retrieval.Option{retrieval.WithLogger(logger)}
	if cfg.Retrieval.Hybrid {
		kw, err := keyword.Open(cfg.Store.KeywordIndexPath(),
			keyword.WithLogger(logger), keyword.WithFuzziness(cfg.Retrieval.Fuzziness))
		if err != nil {
			c.Close()
			return nil, err
		}
		c.Keyword = kw
		if err := kw.Sync(context.Background(), store.Chunks()); err != nil {
			c.Close()
			return nil, err
		}
		ingestOpts = append(ingestOpts, ingest.WithKeywordIndex(kw))
		retrievalOpts = append(retrievalOpts, retrieval.WithKeywordIndex(kw, retrieval.HybridOptions{
			KeywordWeight:   cfg.Retrieval.KeywordWeight,
			SemanticWeight:  cfg.Retrieval.SemanticWeight,
			CandidateFactor: cfg.Retrieval.CandidateFactor,
		}))
	}

	// Only ingestion memoizes encoder output; queries always hit the encoder.
	cached := embedding.NewCached(embedder, cfg.Embedding.CacheSize)
	pipeline, err := ingest.New(extract.NewLoader(extract.WithLogger(logger)), cached, store,
		cfg.Ingest.ChunkSize, cfg.Ingest.Overlap(), ingestOpts...)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Pipeline = pipeline
	c.Retriever = retrieval.New(embedder, store, retrievalOpts...)

	logger.Info("components initialized",
		zap.String("encoder", embedder.Name()),
		zap.String("store", cfg.Store.Directory),
		zap.Int("chunks", store.Size()),
		zap.Bool("hybrid", cfg.Retrieval.Hybrid))
	return c, nil
}

func printUsage() {
	fmt.Println(`kotae - Ask questions about your documents with a local LLM

Usage:
  kotae ingest [flags] [dir]      Ingest documents from dir (default: ingest.source_directory)
  kotae ask [flags] [question]    Answer questions interactively, or one question and exit
  kotae serve [flags]             Start the HTTP API
  kotae status [flags]            Show vector store status
  kotae version                   Show version
  kotae help                      Show this help

Common Flags:
  --config string    Config file path (default: ./kotae.yaml, optional)
  --debug            Enable debug logging

Ingest Flags:
  --watch            Keep running and ingest files as they change

Ask Flags:
  -S, --hide-source        Do not print source chunks after each answer
  -M, --mute-stream        Print answers only once complete
  --financial-notice       Print a notice after answers to financial questions
  --output string          Output format: text or json (default: text)

Status Flags:
  --output string    Output format: text or json (default: text)

Environment (overrides the config file; .env is loaded first):
  EMBEDDINGS_MODEL_NAME, EMBEDDINGS_PROVIDER, PERSIST_DIRECTORY, SOURCE_DIRECTORY,
  MODEL_TYPE (llamacpp|gpt4all), MODEL_PATH, MODEL_N_CTX, TARGET_SOURCE_CHUNKS, LLM_BASE_URL

Examples:
  kotae ingest ./source_documents
  kotae ingest --watch
  kotae ask
  kotae ask -S "What did the report conclude?"
  kotae serve
  kotae status --output json`)
}
