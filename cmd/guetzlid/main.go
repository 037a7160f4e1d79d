package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/speexx/guetzli-service/internal/logger"
	"github.com/speexx/guetzli-service/pkg/api"
	"github.com/speexx/guetzli-service/pkg/config"
	"github.com/speexx/guetzli-service/pkg/janitor"
	"github.com/speexx/guetzli-service/pkg/job"
	"github.com/speexx/guetzli-service/pkg/metrics"
	"github.com/speexx/guetzli-service/pkg/probe"
	"github.com/speexx/guetzli-service/pkg/store"
	"github.com/speexx/guetzli-service/pkg/transform"
)

// Build-time variables injected via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const usage = `guetzlid - asynchronous JPEG recompression service

Usage:
  guetzlid <command> [flags]

Commands:
  init     Initialize a sample configuration file
  start    Start the guetzlid server
  version  Show version information

Flags:
  --config string    Path to config file (default: $XDG_CONFIG_HOME/guetzli/config.yaml)
  --force            Force overwrite existing config file (init command only)

Examples:
  # Initialize config file
  guetzlid init

  # Start server with default config location
  guetzlid start

  # Start server with custom config
  guetzlid start --config /etc/guetzli/config.yaml

  # Use environment variables to override config
  GUETZLI_LOGGING_LEVEL=DEBUG guetzlid start

Environment Variables:
  All configuration options can be overridden using environment variables.
  Format: GUETZLI_<SECTION>_<KEY> (use underscores for nested keys)

  Examples:
    GUETZLI_LOGGING_LEVEL=DEBUG
    GUETZLI_STORAGE_BASE=/var/lib/guetzli
    GUETZLI_API_PORT=8081
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "init":
		runInit()
	case "start":
		runStart()
	case "help", "--help", "-h":
		fmt.Print(usage)
		os.Exit(0)
	case "version", "--version", "-v":
		fmt.Printf("guetzlid %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// runInit handles the init subcommand
func runInit() {
	initFlags := flag.NewFlagSet("init", flag.ExitOnError)
	configFile := initFlags.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/guetzli/config.yaml)")
	force := initFlags.Bool("force", false, "Force overwrite existing config file")

	if err := initFlags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	var configPath string
	var err error

	if *configFile != "" {
		err = config.InitConfigToPath(*configFile, *force)
		configPath = *configFile
	} else {
		configPath, err = config.InitConfig(*force)
	}

	if err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Start the server with: guetzlid start")
	fmt.Printf("  3. Or specify custom config: guetzlid start --config %s\n", configPath)
}

// runStart handles the start subcommand
func runStart() {
	startFlags := flag.NewFlagSet("start", flag.ExitOnError)
	configFile := startFlags.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/guetzli/config.yaml)")

	if err := startFlags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	// Config file is optional for guetzlid; without one the defaults
	// serve out of <home>/.guetzli-data on port 8080. An explicitly
	// named file must exist.
	var cfg *config.Config
	var err error
	if *configFile != "" {
		cfg, err = config.MustLoad(*configFile)
	} else {
		cfg, err = config.Load("")
	}
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	// Cancellable context scoping everything to the process lifetime
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("guetzlid starting", "version", version, "config", getConfigSource(*configFile))

	st, err := store.New(cfg.Storage.Base)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	logger.Info("store opened", "base", st.Base())

	prober := probe.New(cfg.Transform.ProbeTimeout)
	processor := transform.New(cfg.Transform.MemLimitMB, cfg.Transform.WaitInterval, cfg.Transform.MaxWaits)

	jobs := job.New(ctx, st, prober, processor,
		int64(cfg.Transform.Parallelism), cfg.Upload.MaxSize.Int64())

	// Deal with entries a previous process left behind before anything
	// new is accepted.
	jobs.Recover()

	sweeper := janitor.New(st, cfg.Janitor.MaxAge, cfg.Janitor.Interval)
	go sweeper.Run(ctx)

	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics.Port)
		go func() {
			if err := metricsServer.Start(ctx); err != nil {
				logger.Error("metrics server error", "error", err)
			}
		}()
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	} else {
		logger.Info("Metrics collection disabled")
	}

	apiServer := api.NewServer(cfg.API, cfg.ShutdownTimeout, jobs, st)
	logger.Info("API server enabled", "port", apiServer.Port())

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- apiServer.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", "error", err)
			os.Exit(1)
		}
		// In-flight jobs left in waiting are picked up by the recovery
		// sweep on next start; running transforms finish here.
		jobs.Wait()
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", "error", err)
			os.Exit(1)
		}
		logger.Info("Server stopped")
	}
}

// getConfigSource returns a description of where the config was loaded from
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
