package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"linkcrawler/internal/config"
	"linkcrawler/internal/crawler"
	applog "linkcrawler/internal/log"
	"linkcrawler/internal/metrics"
	"linkcrawler/internal/report"
	"linkcrawler/internal/storage"
)

var version = "dev"

// LogFile is the JSON copy of the log kept in the output directory.
const LogFile = "crawl.log"

// NewRootCmd builds the crawl command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [seed-file]",
		Short: "Polite, resumable link crawler",
		Long: `crawl fetches every URL in the seed file (one per line, "-" for stdin)
with a bounded number of parallel connections, honouring robots.txt and a
minimum delay between requests to the same host. With --search-links it
follows discovered links up to --depth hops and writes the link graph.

Results go to <output>/results.jsonl and <output>/edges.csv, and the graph
of successful pages to <output>/crawled_data.csv and crawled_data.json.
With --keyword every fetched page is searched for the given text. Progress is
checkpointed to <output>/crawl-state.json; rerun with --resume to continue
an interrupted crawl.`,
		Args:          cobra.MaximumNArgs(1),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runCrawlCmd,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	f := cmd.Flags()
	f.StringP("config", "f", "", "Config file (default: .linkcrawler.yaml in cwd, home or XDG config dir)")
	f.StringArray("url", nil, "Seed URL, in addition to the seed file (repeatable)")
	f.IntP("connections", "c", config.DefaultConnections, "Maximum parallel fetches")
	f.DurationP("timeout", "t", config.DefaultTimeout, "Timeout for one whole fetch")
	f.Duration("connect-timeout", config.DefaultConnectTimeout, "Timeout for establishing a connection")
	f.IntP("depth", "d", config.DefaultMaxDepth, "Maximum link depth from the seeds")
	f.BoolP("search-links", "s", false, "Follow links found on fetched pages")
	f.StringArrayP("user-agent", "u", nil, "User-Agent to send (repeatable, one is picked per URL)")
	f.String("agent-policy", config.AgentRandom, "How to pick the User-Agent: random or first")
	f.Uint64("agent-seed", 0, "Seed for random User-Agent selection (0: time based)")
	f.BoolP("resume", "r", false, "Resume from the checkpoint")
	f.StringArrayP("header", "H", nil, `Extra request header "Name: value" (repeatable)`)
	f.StringP("output", "o", config.DefaultOutputDir, "Output directory")
	f.String("state", "", "Checkpoint file (default: <output>/"+config.DefaultStateFile+")")
	f.Int("checkpoint-every", config.DefaultCheckpointEvery, "Completed fetches between checkpoints")
	f.Duration("min-delay", config.DefaultMinDelay, "Minimum delay between requests to one host")
	f.Duration("robots-timeout", config.DefaultRobotsTimeout, "Timeout for fetching robots.txt")
	f.Int("max-redirects", config.DefaultMaxRedirects, "Redirects to follow per fetch")
	f.Int64("max-body-size", config.DefaultMaxBodySize, "Bytes read from one response body")
	f.String("extractor", config.ExtractorTokenizer, "Link extractor: tokenizer or goquery")
	f.Bool("save-pages", false, "Save response bodies under <output>/pages")
	f.String("keyword", "", "Report pages containing this text (case-insensitive)")
	f.String("db", "", "Also write results and edges to this SQLite database")
	f.String("metrics-addr", "", `Serve Prometheus metrics on this address, e.g. ":2112"`)

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "crawl:", err)
		os.Exit(1)
	}
}

func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	logger, closeLog, err := setupLogger(cmd, cfg)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Info("received shutdown signal, finishing in-flight fetches")
			cancel()
		case <-ctx.Done():
		}
	}()

	return runCrawl(ctx, cmd, cfg, logger)
}

func runCrawl(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) error {
	rec, err := openRecorders(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := rec.Close(); err != nil {
			logger.Warn("close result stores", "error", err)
		}
	}()

	sched, err := crawler.New(*cfg, crawler.WithLogger(logger), crawler.WithRecorder(rec))
	if err != nil {
		return err
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)

	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			logger.Info("serving metrics", "addr", cfg.MetricsAddr)
			if err := metrics.Serve(gctx, cfg.MetricsAddr); err != nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	var sum *crawler.Summary
	g.Go(func() error {
		defer stop()
		var err error
		sum, err = sched.Run(gctx)
		return err
	})
	runErr := g.Wait()

	if sum != nil {
		if err := report.WriteText(cmd.OutOrStdout(), sum); err != nil {
			logger.Warn("print summary", "error", err)
		}
		if path, err := report.WriteFile(cfg.OutputDir, sum); err != nil {
			logger.Warn("write summary", "error", err)
		} else {
			logger.Debug("summary written", "path", path)
		}
		if g, err := storage.ExportGraph(cfg.OutputDir); err != nil {
			logger.Warn("export link graph", "error", err)
		} else {
			logger.Info("link graph exported", "nodes", len(g.Nodes), "edges", len(g.Edges))
		}
	}
	return runErr
}

// openRecorders returns the result sinks the config asks for. The file
// recorder is always present.
func openRecorders(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Recorder, error) {
	files, err := storage.NewFileRecorder(cfg.OutputDir, cfg.Resume)
	if err != nil {
		return nil, err
	}
	recs := storage.Multi{files}

	if cfg.DBPath != "" {
		db, err := storage.OpenSQLite(cfg.DBPath)
		if err != nil {
			_ = recs.Close()
			return nil, err
		}
		recs = append(recs, db)
		logger.Info("writing results to sqlite", "path", cfg.DBPath)
	}

	if cfg.MongoURI != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		mongo, err := storage.NewMongo(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			_ = recs.Close()
			return nil, fmt.Errorf("connect to MongoDB: %w", err)
		}
		recs = append(recs, mongo)
		logger.Info("writing results to mongodb", "database", cfg.MongoDatabase)
	}
	return recs, nil
}

// setupLogger logs text to stderr and JSON to LogFile in the output dir.
func setupLogger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, func(), error) {
	path := filepath.Join(cfg.OutputDir, LogFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640) //nolint:gosec // path from config
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := slog.New(applog.Tee{
		applog.New(cmd.ErrOrStderr(), cfg.Verbose).Handler(),
		applog.NewJSON(f, cfg.Verbose).Handler(),
	})
	return logger, func() { _ = f.Close() }, nil
}

// buildConfig layers defaults, the config file, the environment and the
// flags the user actually set, then loads the seed file.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	configPath, err := flags.GetString("config")
	if err != nil {
		return nil, err
	}
	if path := config.FindConfigFile(configPath); path != "" {
		file, err := config.LoadConfigFile(path)
		if err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
		file.Apply(cfg)
	} else if configPath != "" {
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, configPath)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if uri := os.Getenv("MONGODB_URI"); uri != "" {
		cfg.MongoURI = uri
	}

	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}

	if len(args) > 0 {
		cfg.SeedFile = args[0]
		seeds, err := config.LoadSeedFile(cfg.SeedFile, cmd.InOrStdin())
		if err != nil {
			return nil, err
		}
		cfg.Seeds = append(cfg.Seeds, seeds...)
	}
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	var errs []error
	changed := func(name string) bool { return flags.Changed(name) }
	check := func(err error) { errs = append(errs, err) }

	if v, err := cmd.Flags().GetBool("verbose"); err == nil {
		cfg.Verbose = v
	} else if v, err := cmd.Root().PersistentFlags().GetBool("verbose"); err == nil {
		cfg.Verbose = v
	}

	if changed("url") {
		urls, err := flags.GetStringArray("url")
		check(err)
		cfg.Seeds = append(cfg.Seeds, urls...)
	}
	if changed("connections") {
		cfg.Connections, _ = flags.GetInt("connections")
	}
	if changed("timeout") {
		cfg.Timeout, _ = flags.GetDuration("timeout")
	}
	if changed("connect-timeout") {
		cfg.ConnectTimeout, _ = flags.GetDuration("connect-timeout")
	}
	if changed("depth") {
		cfg.MaxDepth, _ = flags.GetInt("depth")
	}
	if changed("search-links") {
		cfg.SearchLinks, _ = flags.GetBool("search-links")
	}
	if changed("user-agent") {
		agents, err := flags.GetStringArray("user-agent")
		check(err)
		cfg.UserAgents = agents
	}
	if changed("agent-policy") {
		cfg.AgentPolicy, _ = flags.GetString("agent-policy")
	}
	if changed("agent-seed") {
		cfg.AgentSeed, _ = flags.GetUint64("agent-seed")
	}
	if changed("resume") {
		cfg.Resume, _ = flags.GetBool("resume")
	}
	if changed("header") {
		raw, err := flags.GetStringArray("header")
		check(err)
		for _, h := range raw {
			name, value, err := parseHeader(h)
			if err != nil {
				check(err)
				continue
			}
			cfg.Headers[name] = value
		}
	}
	if changed("output") {
		cfg.OutputDir, _ = flags.GetString("output")
	}
	if changed("state") {
		cfg.StatePath, _ = flags.GetString("state")
	}
	if changed("checkpoint-every") {
		cfg.CheckpointEvery, _ = flags.GetInt("checkpoint-every")
	}
	if changed("min-delay") {
		cfg.MinDelay, _ = flags.GetDuration("min-delay")
	}
	if changed("robots-timeout") {
		cfg.RobotsTimeout, _ = flags.GetDuration("robots-timeout")
	}
	if changed("max-redirects") {
		cfg.MaxRedirects, _ = flags.GetInt("max-redirects")
	}
	if changed("max-body-size") {
		cfg.MaxBodySize, _ = flags.GetInt64("max-body-size")
	}
	if changed("extractor") {
		cfg.Extractor, _ = flags.GetString("extractor")
	}
	if changed("save-pages") {
		cfg.SavePages, _ = flags.GetBool("save-pages")
	}
	if changed("keyword") {
		cfg.Keyword, _ = flags.GetString("keyword")
	}
	if changed("db") {
		cfg.DBPath, _ = flags.GetString("db")
	}
	if changed("metrics-addr") {
		cfg.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
	return errors.Join(errs...)
}

// parseHeader accepts "Name: value" and "Name=value".
func parseHeader(s string) (string, string, error) {
	sep := strings.IndexAny(s, ":=")
	if sep <= 0 {
		return "", "", fmt.Errorf("invalid header %q, want \"Name: value\"", s)
	}
	name := strings.TrimSpace(s[:sep])
	if name == "" {
		return "", "", fmt.Errorf("invalid header %q, want \"Name: value\"", s)
	}
	return name, strings.TrimSpace(s[sep+1:]), nil
}
