package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"websearch/pkg/config"
	"websearch/pkg/crawler"
	"websearch/pkg/fetch"
	"websearch/pkg/frontier"
	"websearch/pkg/index"
	"websearch/pkg/search"
	"websearch/pkg/storage"
)

const version = "1.0.0"

const dbGCInterval = 5 * time.Minute

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "crawl":
		runCrawl(os.Args[2:], false)
	case "resume":
		runCrawl(os.Args[2:], true)
	case "index":
		runIndex(os.Args[2:])
	case "search":
		runSearch(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "version":
		fmt.Printf("websearch %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`websearch - web crawler and search engine

Usage:
  websearch <command> [options]

Commands:
  crawl     Start a fresh crawl from the configured seeds
  resume    Resume an interrupted crawl from saved state
  index     Build the ranked index from crawled records
  search    Query the index (one-shot or interactive)
  validate  Validate configuration file
  version   Show version info

Run 'websearch <command> -h' for command-specific help.`)
}

// loadConfig loads and parses the config file
func loadConfig(path string) (*config.AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg config.AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// setupLogger creates a configured logrus.Logger with the given log level.
func setupLogger(logLevelStr string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	level, err := logrus.ParseLevel(logLevelStr)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", logLevelStr, err)
	} else {
		log.SetLevel(level)
	}

	return log
}

// loadAndValidateConfig loads the config file, validates it, and logs warnings.
func loadAndValidateConfig(configFile string, log *logrus.Logger) *config.AppConfig {
	log.Infof("Loading configuration from %s", configFile)
	appCfg, err := loadConfig(configFile)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		log.Fatalf("Config validation failed: %v", err)
	}

	return appCfg
}

// sessionLabel derives the state-directory label from the first seed's
// host so separate crawls get separate visited databases.
func sessionLabel(cfg *config.AppConfig) string {
	if len(cfg.Crawl.Seeds) > 0 {
		if u, err := url.Parse(cfg.Crawl.Seeds[0]); err == nil && u.Hostname() != "" {
			return u.Hostname()
		}
	}
	return "default"
}

// runCrawl handles both crawl and resume subcommands
func runCrawl(args []string, isResume bool) {
	cmdName := "crawl"
	if isResume {
		cmdName = "resume"
	}

	fs := flag.NewFlagSet(cmdName, flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: websearch %s [options]\n\nOptions:\n", cmdName)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := setupLogger(*logLevel)
	appCfg := loadAndValidateConfig(*configFile, log)

	// --- Global context & signal handling ---
	crawlCtx, cancelCrawl := context.WithCancel(context.Background())
	defer cancelCrawl()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		sig := <-sigChan
		log.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
		cancelCrawl()

		select {
		case sig = <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		}
	}()

	// --- Initialize components ---
	log.Info("Initializing components...")
	logEntry := log.WithField("component", "crawl")

	store, err := storage.NewBadgerStore(crawlCtx, appCfg.StateDir, sessionLabel(appCfg), isResume, logEntry)
	if err != nil {
		log.Fatalf("Failed to initialize visited DB: %v", err)
	}
	defer store.Close()

	go store.RunGC(crawlCtx, dbGCInterval)

	records, err := storage.NewRecordStore(appCfg.Crawl.RecordsFile, logEntry)
	if err != nil {
		log.Fatalf("Failed to initialize record store: %v", err)
	}
	if !isResume {
		if err := records.Truncate(); err != nil {
			log.Fatalf("Failed to reset record store: %v", err)
		}
	}

	httpClient := fetch.NewClient(appCfg.HTTPClientSettings, appCfg.Crawl.RequestTimeout, log)
	fetcher := fetch.NewFetcher(httpClient, appCfg.UserAgent, logEntry)

	gate := fetch.NewHostGate(appCfg.Crawl.MaxConcurrentPerHost, appCfg.Crawl.DelayBetweenRequests, logEntry)
	go gate.RunEviction(crawlCtx, time.Minute)

	var robots fetch.RobotsOracle
	if appCfg.Crawl.RespectsRobots() {
		robots = fetch.NewRobotsHandler(fetcher, logEntry)
	} else {
		log.Warn("robots.txt handling disabled by configuration")
		robots = fetch.AllowAllOracle()
	}

	front := frontier.New(logEntry)
	coord := crawler.NewCoordinator(appCfg, front, fetcher, gate, robots, store, records, logEntry)

	// --- Run ---
	stats, err := coord.Run(crawlCtx, isResume)
	if err != nil {
		log.Fatalf("Crawl failed: %v", err)
	}

	log.WithFields(logrus.Fields{
		"fetched":  stats.Fetched,
		"failed":   stats.Failed,
		"skipped":  stats.Skipped,
		"retries":  stats.Retries,
		"chunks":   stats.ChunksSent,
		"duration": stats.Duration.Round(time.Millisecond),
	}).Info("Crawl finished")

	if crawlCtx.Err() != nil {
		log.Warn("Crawl was interrupted; run 'websearch resume' to continue")
		os.Exit(1)
	}
}

// runIndex handles the index subcommand
func runIndex(args []string) {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: websearch index [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := setupLogger(*logLevel)
	appCfg := loadAndValidateConfig(*configFile, log)
	logEntry := log.WithField("component", "index")

	records, err := storage.NewRecordStore(appCfg.Index.RecordsFile, logEntry)
	if err != nil {
		log.Fatalf("Failed to open record store: %v", err)
	}

	indexStore, err := storage.NewIndexStore(appCfg.Index.IndexFile, appCfg.Index.StatsFile, logEntry)
	if err != nil {
		log.Fatalf("Failed to open index store: %v", err)
	}

	result, err := index.NewIndexer(&appCfg.Index, records, indexStore, logEntry).Build()
	if err != nil {
		log.Fatalf("Index build failed: %v", err)
	}

	log.WithFields(logrus.Fields{
		"indexed":     result.Indexed,
		"skipped_bad": result.SkippedBad,
		"terms":       result.Terms,
		"duration":    result.Duration.Round(time.Millisecond),
	}).Info("Index build finished")
}

// runSearch handles the search subcommand
func runSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	query := fs.String("query", "", "Query to run (empty starts an interactive prompt)")
	limit := fs.Int("limit", 0, "Max results per query (0 = config value)")
	order := fs.String("order", "", "Result order, asc or desc (empty = config value)")
	preview := fs.Int("preview", 0, "Preview length in characters (0 = config value)")
	asJSON := fs.Bool("json", false, "Print results as JSON")
	logLevel := fs.String("loglevel", "warn", "Log level (debug, info, warn, error, fatal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: websearch search [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  websearch search -query \"solar energy\"\n")
		fmt.Fprintf(os.Stderr, "  websearch search -query \"energia solar\" -limit 5 -order asc -preview 120\n")
		fmt.Fprintf(os.Stderr, "  websearch search            # interactive prompt\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := setupLogger(*logLevel)
	appCfg := loadAndValidateConfig(*configFile, log)
	if err := applySearchOverrides(&appCfg.Search, *limit, *order, *preview); err != nil {
		log.Fatalf("Invalid search flag: %v", err)
	}
	logEntry := log.WithField("component", "search")

	indexStore, err := storage.NewIndexStore(appCfg.Search.IndexFile, appCfg.Search.StatsFile, logEntry)
	if err != nil {
		log.Fatalf("Failed to open index store: %v", err)
	}

	searcher, err := search.NewSearcher(&appCfg.Search, indexStore, logEntry)
	if err != nil {
		log.Fatalf("Failed to load index: %v", err)
	}

	if *query != "" {
		printResults(os.Stdout, *query, searcher.Search(*query), *asJSON)
		return
	}

	// Interactive loop: one query per line, empty line or EOF exits.
	fmt.Printf("Loaded index with %d document(s). Type a query (empty line to quit).\n", searcher.DocCount())
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		q := strings.TrimSpace(scanner.Text())
		if q == "" {
			break
		}
		printResults(os.Stdout, q, searcher.Search(q), *asJSON)
	}
}

// applySearchOverrides lays per-invocation flag values over the
// validated search config. Zero values leave the config untouched.
func applySearchOverrides(cfg *config.SearchConfig, limit int, order string, preview int) error {
	if limit > 0 {
		cfg.ResultsLimit = limit
	}
	switch order {
	case "":
	case "asc", "desc":
		cfg.Order = order
	default:
		return fmt.Errorf("order must be asc or desc, got %q", order)
	}
	if preview > 0 {
		cfg.PreviewLength = preview
	}
	return nil
}

// printResults renders search results to w.
func printResults(w io.Writer, query string, results []search.Result, asJSON bool) {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(results)
		return
	}

	if len(results) == 0 {
		fmt.Fprintf(w, "No results for %q.\n", query)
		return
	}

	fmt.Fprintf(w, "%d result(s) for %q:\n\n", len(results), query)
	for _, r := range results {
		fmt.Fprintf(w, "%3d. %s\n", r.Rank, r.Title)
		fmt.Fprintf(w, "     %s\n", r.URL)
		fmt.Fprintf(w, "     score=%.4f bm25=%.4f index=%.4f pagerank=%.4f lang=%s\n",
			r.Score, r.BM25, r.IndexScore, r.PageRank, r.Language)
		if r.Preview != "" {
			fmt.Fprintf(w, "     %s\n", r.Preview)
		}
		fmt.Fprintln(w)
	}
}

// runValidate handles the validate subcommand
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: websearch validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doValidate(*configFile, os.Stdout, os.Stderr))
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	fmt.Fprintln(stdout, "Configuration valid.")
	return 0
}
