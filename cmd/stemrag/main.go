// Package main is the stemrag CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/stemrag/internal/cli"
	"github.com/hyperjump/stemrag/internal/config"
	"github.com/hyperjump/stemrag/internal/embedding"
	"github.com/hyperjump/stemrag/internal/ingest"
	"github.com/hyperjump/stemrag/internal/models"
	"github.com/hyperjump/stemrag/internal/server"
	"github.com/hyperjump/stemrag/internal/store"
	"github.com/hyperjump/stemrag/internal/watcher"
	"github.com/hyperjump/stemrag/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "config.yaml"

// loadConfig loads config from path, then .env and environment overrides.
// A missing file at the default path is not an error: defaults are used so the
// tool works from a fresh checkout. Returns the path actually loaded, or "".
func loadConfig(path string) (*config.Config, string, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, "", err
	}
	var cfg *config.Config
	loaded := path
	if _, err := os.Stat(path); err != nil && path == defaultConfigPath && errors.Is(err, os.ErrNotExist) {
		cfg = config.Default()
		loaded = ""
	} else {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, "", err
		}
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, "", err
	}
	return cfg, loaded, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "query":
		runQuery()
	case "status":
		runStatus()
	case "clear":
		runClear()
	case "init":
		runInit()
	case "version", "--version", "-v":
		fmt.Printf("stemrag version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// cliSetup loads config and a console logger for the one-shot commands.
func cliSetup(configPath string, debug bool) (*config.Config, *zap.Logger) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	logger, err := utils.NewCLILogger(cfg.Debug || debug)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	return cfg, logger
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	watch := fs.Bool("watch", false, "re-ingest documents when files in the documents directory change")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
		zap.String("store", cfg.Store.Backend),
		zap.String("embedding", cfg.Embedding.Backend),
	)
	// Retrieval fails open, so the server starts with an incomplete configuration.
	if err := cfg.Validate(false); err != nil {
		logger.Warn("configuration incomplete, retrieval will return no context", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := initializeServerComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	if (*watch || cfg.Watch.Enabled) && components.Orchestrator == nil {
		logger.Warn("watch mode disabled: document store unavailable")
	} else if *watch || cfg.Watch.Enabled {
		w := watcher.New(cfg.Documents.Directory, components.Orchestrator,
			watcher.WithLogger(logger),
			watcher.WithDebounce(cfg.Watch.Debounce),
			watcher.WithRecursive(cfg.Watch.RecursiveOrDefault()),
		)
		if err := w.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer w.Stop()
		go func() {
			sum := w.Sync(ctx)
			logger.Info("initial sync complete",
				zap.Int("files", sum.Files),
				zap.Int("failed", sum.Failed),
				zap.Int("chunks", sum.Chunks))
		}()
	}

	deps := server.Dependencies{
		Retriever: components.Retriever,
		Assembler: components.Assembler,
		Store:     components.Store,
		Embedder:  components.Embeddings,
	}
	if components.Orchestrator != nil {
		deps.Ingester = components.Orchestrator
	}
	srv := server.NewServer(deps, cfg, logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("Server failed", zap.Error(err))
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	file := fs.String("file", "", "ingest a single file instead of the documents directory")
	clearFirst := fs.Bool("clear", false, "delete all chunks before ingesting")
	_ = fs.Parse(os.Args[2:])

	cfg, logger := cliSetup(*configPath, *debug)
	defer logger.Sync()
	if err := cfg.Validate(true); err != nil {
		fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := newEmbeddingService(cfg, logger)
	if err != nil {
		fatalf("%v", err)
	}
	model := ""
	if cfg.Embedding.Backend == embedding.BackendOllama {
		model = cfg.Embedding.Model
	}

	fmt.Println("Checking prerequisites...")
	var st store.Store
	prereq, err := ingest.CheckPrerequisites(ctx, svc, model, func(ctx context.Context, dim int) error {
		s, err := openStore(ctx, cfg, dim, logger)
		if err != nil {
			return err
		}
		st = s
		return s.Ping(ctx)
	})
	if err != nil {
		cli.WritePrerequisiteError(os.Stderr, err)
		if st != nil {
			_ = st.Close()
		}
		_ = svc.Close()
		os.Exit(1)
	}
	cli.WritePrerequisites(os.Stdout, prereq, model)

	components, err := initializeComponents(ctx, cfg, logger, svc, st)
	if err != nil {
		fatalf("Failed to initialize: %v", err)
	}
	defer components.Close()

	paths, err := ingestPaths(*file, cfg.Documents.Directory)
	if err != nil {
		fatalf("%v", err)
	}

	if *clearFirst {
		n, err := components.Store.ClearAll(ctx)
		if err != nil {
			fatalf("Clear failed: %v", err)
		}
		fmt.Printf("Cleared %d chunks\n", n)
	}

	if len(paths) == 0 {
		fmt.Printf("\nNo supported files found in %s\n", cfg.Documents.Directory)
		fmt.Printf("Supported formats: %s\n", strings.Join(models.SupportedExtensions(), ", "))
		return
	}
	fmt.Printf("\nFound %d file(s) to process\n\n", len(paths))
	summary := components.Orchestrator.IngestFiles(ctx, paths)
	cli.WriteSummary(os.Stdout, summary)
}

// ingestPaths returns the single file when one is given, otherwise the
// documents directory listing.
func ingestPaths(file, docsDir string) ([]string, error) {
	if file == "" {
		return ingest.ListDocuments(docsDir)
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("file not found: %s", abs)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", abs)
	}
	return []string{abs}, nil
}

// argsReorder moves flags that appear after the query to the front so that
// flag.Parse sees them; the flag package stops at the first non-flag argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// buildQuery joins positional args so multi-word queries work with or without quotes.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func runQuery() {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	topK := fs.Int("top-k", 0, "number of results (default from config)")
	threshold := fs.Float64("threshold", -2, "minimum similarity (default from config)")
	prompt := fs.Bool("prompt", false, "also print the assembled system prompt")
	asJSON := fs.Bool("json", false, "print JSON")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: stemrag query [flags] <text>\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(argsReorder(os.Args[2:]))

	text := buildQuery(fs.Args())
	if text == "" {
		fs.Usage()
		os.Exit(1)
	}

	cfg, logger := cliSetup(*configPath, *debug)
	defer logger.Sync()
	if err := cfg.Validate(false); err != nil {
		fatalf("Invalid configuration: %v", err)
	}

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger, nil, nil)
	if err != nil {
		fatalf("Failed to initialize: %v", err)
	}
	defer components.Close()

	q := models.RetrieveQuery{Query: text, TopK: *topK, Prompt: *prompt}
	if *threshold >= -1 {
		q.Threshold = threshold
	}
	if err := q.Validate(components.Retriever.TopK(), components.Retriever.Threshold(), cfg.Retrieval.MaxTopK); err != nil {
		fatalf("Invalid query: %v", err)
	}
	contexts, err := components.Retriever.Retrieve(ctx, q.Query, q.TopK, *q.Threshold)
	if err != nil {
		fatalf("Retrieval failed: %v", err)
	}

	resp := models.RetrieveResponse{Query: q.Query, Context: contexts}
	if q.Prompt {
		resp.Prompt = components.Assembler.Assemble(contexts, q.Query)
	}
	format := cli.OutputText
	if *asJSON {
		format = cli.OutputJSON
	}
	if err := cli.WriteRetrieval(os.Stdout, resp, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	asJSON := fs.Bool("json", false, "print JSON")
	_ = fs.Parse(os.Args[2:])

	cfg, logger := cliSetup(*configPath, false)
	defer logger.Sync()
	if err := cfg.Validate(false); err != nil {
		fatalf("Invalid configuration: %v", err)
	}

	ctx := context.Background()
	// Status never embeds, so the Postgres schema is sized from config.
	st, err := openStore(ctx, cfg, cfg.Embedding.Dimensions, logger)
	if err != nil {
		fatalf("%v", err)
	}
	defer st.Close()

	chunks, err := st.CountAll(ctx)
	if err != nil {
		fatalf("Count chunks failed: %v", err)
	}
	sources, err := st.ListSources(ctx)
	if err != nil {
		fatalf("List sources failed: %v", err)
	}
	status := cli.Status{
		Backend:          cfg.Store.Backend,
		Chunks:           chunks,
		Sources:          sources,
		DiskUsageBytes:   -1,
		EmbeddingBackend: cfg.Embedding.Backend,
		EmbeddingModel:   cfg.Embedding.Model,
	}
	if cfg.Store.Backend == store.BackendSQLite {
		status.Location = cfg.Store.DatabasePath
		if n, err := store.SQLiteDiskUsage(cfg.Store.DatabasePath); err == nil {
			status.DiskUsageBytes = n
		}
	}
	format := cli.OutputText
	if *asJSON {
		format = cli.OutputJSON
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runClear() {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	yes := fs.Bool("yes", false, "confirm deleting every chunk")
	source := fs.String("source", "", "delete only the chunks of this source")
	_ = fs.Parse(os.Args[2:])

	if *source == "" && !*yes {
		fatalf("Refusing to delete every chunk without --yes")
	}

	cfg, logger := cliSetup(*configPath, false)
	defer logger.Sync()
	if err := cfg.Validate(false); err != nil {
		fatalf("Invalid configuration: %v", err)
	}

	ctx := context.Background()
	st, err := openStore(ctx, cfg, cfg.Embedding.Dimensions, logger)
	if err != nil {
		fatalf("%v", err)
	}
	defer st.Close()

	if *source != "" {
		n, err := st.DeleteBySource(ctx, *source)
		if err != nil {
			fatalf("Delete failed: %v", err)
		}
		fmt.Printf("Deleted %d chunks of %s\n", n, *source)
		return
	}
	n, err := st.ClearAll(ctx)
	if err != nil {
		fatalf("Clear failed: %v", err)
	}
	fmt.Printf("Deleted %d chunks\n", n)
}

func runInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file to write")
	force := fs.Bool("force", false, "overwrite an existing config file")
	_ = fs.Parse(os.Args[2:])

	if err := writeInitialConfig(*configPath, *force); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("Wrote %s\n", *configPath)
}

// writeInitialConfig writes the default configuration to path and creates the
// documents directory next to it.
func writeInitialConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	cfg := config.Default()
	if err := config.Save(path, cfg); err != nil {
		return err
	}
	docs := filepath.Join(filepath.Dir(path), cfg.Documents.Directory)
	if err := os.MkdirAll(docs, 0755); err != nil {
		return fmt.Errorf("failed to create documents directory: %w", err)
	}
	return nil
}

func printUsage() {
	fmt.Println(`stemrag - document ingestion and retrieval for the STEM Center assistant

Usage:
  stemrag server [flags]          Start the HTTP API
  stemrag ingest [flags]          Ingest the documents directory
  stemrag query [flags] <text>    Retrieve context for a question
  stemrag status [flags]          Show store contents
  stemrag clear --yes             Delete every chunk
  stemrag init [flags]            Write a default config.yaml
  stemrag version                 Show version
  stemrag help                    Show this help

Server Flags:
  --config string    Config file path (default: ./config.yaml, defaults when absent)
  --debug            Enable debug logging
  --watch            Re-ingest documents when the documents directory changes

Ingest Flags:
  --file string      Ingest a single file instead of the documents directory
  --clear            Delete all chunks before ingesting

Query Flags:
  --top-k int        Number of results (default from config)
  --threshold float  Minimum similarity between -1 and 1 (default from config)
  --prompt           Also print the assembled system prompt
  --json             Print JSON

Status Flags:
  --json             Print JSON

Clear Flags:
  --yes              Confirm deleting every chunk
  --source string    Delete only the chunks of one source

Environment:
  PORT, OLLAMA_HOST, OLLAMA_MODEL, EMBEDDING_MODEL, DATABASE_URL,
  STORE_BACKEND, DOCUMENTS_DIR override config values. A .env file in the
  working directory is loaded first.

Examples:
  stemrag init
  stemrag ingest
  stemrag ingest --file documents/tutoring-schedule.pdf
  stemrag query "when is physics tutoring?"
  stemrag query --prompt --top-k 5 calculus help
  stemrag server --watch`)
}
