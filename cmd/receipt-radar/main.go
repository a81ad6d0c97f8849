package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/quillon/receipt-radar/internal/analysis"
	"github.com/quillon/receipt-radar/internal/export"
	"github.com/quillon/receipt-radar/internal/pipeline"
	"github.com/quillon/receipt-radar/internal/receipt"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("receipt-radar")
	var (
		port        = fs.IntLong("port", 8080, "HTTP server port")
		dbPath      = fs.StringLong("db", "receipt-radar.db", "Database file path")
		storagePath = fs.StringLong("storage", "./receipts", "Storage directory path")
		provider    = fs.StringLong("provider", "docintel", "Analysis provider: 'docintel' or 'gemini'")
		endpoint    = fs.StringLong("endpoint", "", "Document Intelligence endpoint URL")
		apiKey      = fs.StringLong("api-key", "", "Document Intelligence API key (or set RECEIPT_RADAR_API_KEY env var)")
		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		workers     = fs.IntLong("workers", 3, "Maximum concurrent analysis jobs")
		maxAttempts = fs.IntLong("max-attempts", 3, "Maximum attempts per remote call")
		backoffBase = fs.DurationLong("backoff-base", time.Second, "Delay before the first retry")
		backoffMax  = fs.DurationLong("backoff-max", 10*time.Second, "Upper bound on the retry delay")
		backoff     = fs.StringLong("backoff-curve", "exponential", "Backoff curve: 'exponential' or 'linear'")
		pollEvery   = fs.DurationLong("poll-interval", 1500*time.Millisecond, "Wait between job status checks")
		maxPollWait = fs.DurationLong("max-poll-wait", 60*time.Second, "Maximum time to wait for one job to finish")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_RADAR"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := receipt.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize analysis client based on provider
	var client analysis.Client
	switch *provider {
	case "docintel":
		key := *apiKey
		if key == "" {
			key = os.Getenv("RECEIPT_RADAR_API_KEY")
		}
		slog.Info("Initializing Document Intelligence client...", "endpoint", *endpoint)
		client, err = analysis.NewDocIntel(*endpoint, key)
		if err != nil {
			slog.Error("Failed to initialize Document Intelligence client", "error", err)
			os.Exit(1)
		}
	case "gemini":
		key := *geminiKey
		if key == "" {
			key = os.Getenv("GEMINI_API_KEY")
		}
		if key == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini client...", "model", *geminiModel)
		client, err = analysis.NewGemini(key, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid analysis provider", "provider", *provider, "valid", "docintel or gemini")
		os.Exit(1)
	}
	defer client.Close()

	curve := pipeline.BackoffCurve(*backoff)
	if curve != pipeline.BackoffLinear && curve != pipeline.BackoffExponential {
		slog.Error("Invalid backoff curve", "curve", *backoff, "valid", "exponential or linear")
		os.Exit(1)
	}

	orchestrator := pipeline.NewOrchestrator(client, pipeline.Config{
		MaxWorkers:   *workers,
		MaxAttempts:  *maxAttempts,
		BackoffBase:  *backoffBase,
		BackoffMax:   *backoffMax,
		BackoffCurve: curve,
		PollInterval: *pollEvery,
		MaxPollWait:  *maxPollWait,
	})

	// Initialize storage
	slog.Info("Initializing storage...")
	store, err := receipt.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	// Initialize service
	receiptService := receipt.NewService(db, orchestrator, store)

	// Initialize server
	basicAuth := receipt.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := receipt.NewServer(receiptService, export.BatchXLSX, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
