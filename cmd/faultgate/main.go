package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"faultgate/config"
	"faultgate/internal/analyzer"
	"faultgate/internal/buffer"
	inputredis "faultgate/internal/input/redis"
	"faultgate/internal/logger"
	"faultgate/internal/metrics"
	"faultgate/internal/output/alerthttp"
	"faultgate/internal/output/alertjson"
	"faultgate/internal/output/alertredis"
	"faultgate/internal/pipeline"
	"faultgate/internal/rules"
)

func findConfigFile(configArg string) string {
	if configArg != "" {
		path := configArg
		if _, err := os.Stat(path); err == nil {
			return path
		}
		log.Printf("Warning: config file not found at %s, trying default locations", path)
	}

	if _, err := os.Stat("faultgate.yml"); err == nil {
		return "faultgate.yml"
	}

	exePath, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exePath)
		path := filepath.Join(exeDir, "faultgate.yml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "faultgate.yml"
}

func applyDefaults(cfg *config.Config) {
	if cfg.Faultgate.Input.Redis.Addr == "" {
		cfg.Faultgate.Input.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.Faultgate.Input.Redis.Key == "" {
		cfg.Faultgate.Input.Redis.Key = "device_faults"
	}
	if cfg.Faultgate.Input.Redis.BlockTimeout == 0 {
		cfg.Faultgate.Input.Redis.BlockTimeout = 5 * time.Second
	}

	if cfg.Faultgate.Aggregator.Window <= 0 {
		cfg.Faultgate.Aggregator.Window = 300 * time.Second
	}
	if cfg.Faultgate.Aggregator.Workers <= 0 {
		cfg.Faultgate.Aggregator.Workers = 4
	}
	if cfg.Faultgate.Aggregator.DrainInterval <= 0 {
		cfg.Faultgate.Aggregator.DrainInterval = 2 * time.Second
	}
	if cfg.Faultgate.Aggregator.SweepInterval <= 0 {
		cfg.Faultgate.Aggregator.SweepInterval = time.Minute
	}

	if cfg.Faultgate.Analyzer.LogDir == "" {
		cfg.Faultgate.Analyzer.LogDir = "logs"
	}
	if len(cfg.Faultgate.Analyzer.Files) == 0 {
		cfg.Faultgate.Analyzer.Files = []string{"protocol-message-tcp1801.log"}
	}
	if cfg.Faultgate.Analyzer.WindowMinutes <= 0 {
		cfg.Faultgate.Analyzer.WindowMinutes = analyzer.DefaultWindowMinutes
	}
	if cfg.Faultgate.Analyzer.TopN <= 0 {
		cfg.Faultgate.Analyzer.TopN = analyzer.DefaultTopN
	}

	if cfg.Faultgate.Alerts.Mode == "" {
		cfg.Faultgate.Alerts.Mode = "file"
	}
	if cfg.Faultgate.Alerts.File.Path == "" {
		cfg.Faultgate.Alerts.File.Path = "output/alerts.jsonl"
	}
	if cfg.Faultgate.Alerts.Redis.Addr == "" {
		cfg.Faultgate.Alerts.Redis.Addr = cfg.Faultgate.Input.Redis.Addr
	}
	if cfg.Faultgate.Alerts.Redis.Key == "" {
		cfg.Faultgate.Alerts.Redis.Key = "device_alerts"
	}

	if cfg.Faultgate.Metrics.Listen == "" {
		cfg.Faultgate.Metrics.Listen = ":9190"
	}
	if cfg.Faultgate.Logging.Level == "" {
		cfg.Faultgate.Logging.Level = "info"
	}
}

func runServe(args []string) {
	configArg := ""
	if len(args) > 0 {
		configArg = args[0]
	}

	configPath := findConfigFile(configArg)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyDefaults(cfg)

	if err := logger.Init(cfg.Faultgate.Logging.Enabled, cfg.Faultgate.Logging.Level, cfg.Faultgate.Logging.File, cfg.Faultgate.Logging.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	logger.Infof("Faultgate starting")
	logger.Infof("Config loaded from: %s", configPath)

	if cfg.Faultgate.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			log.Fatalf("Failed to register metrics: %v", err)
		}
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Infof("Metrics endpoint listening on %s", cfg.Faultgate.Metrics.Listen)
			if err := http.ListenAndServe(cfg.Faultgate.Metrics.Listen, mux); err != nil {
				logger.Errorf("Metrics endpoint failed: %v", err)
			}
		}()
	}

	consumer, err := inputredis.NewConsumer(inputredis.Config{
		Addr:         cfg.Faultgate.Input.Redis.Addr,
		Password:     cfg.Faultgate.Input.Redis.Password,
		DB:           cfg.Faultgate.Input.Redis.DB,
		Key:          cfg.Faultgate.Input.Redis.Key,
		BlockTimeout: cfg.Faultgate.Input.Redis.BlockTimeout,
	})
	if err != nil {
		logger.Errorf("Failed to create Redis consumer: %v", err)
		log.Fatalf("Failed to create Redis consumer: %v", err)
	}

	var engine rules.Engine
	if cfg.Faultgate.Rules.Enabled {
		if strings.TrimSpace(cfg.Faultgate.Rules.Path) == "" {
			logger.Warnf("Rules enabled but rules.path is empty; fault classification disabled")
		} else {
			sigmaEngine, stats, err := rules.NewSigmaEngine(cfg.Faultgate.Rules.Path)
			if err != nil {
				logger.Errorf("Failed to load classification rules from %s: %v", cfg.Faultgate.Rules.Path, err)
				log.Fatalf("Failed to load classification rules: %v", err)
			}
			engine = sigmaEngine
			logger.Infof("Classification rules loaded: loaded=%d skipped_complex=%d skipped_invalid=%d files=%d",
				stats.Loaded,
				stats.SkippedComplex,
				stats.SkippedInvalid,
				stats.TotalFiles,
			)
			if stats.Loaded == 0 {
				logger.Warnf("No compatible classification rules loaded; fault tagging is effectively disabled")
			}
		}
	}

	aggregator := buffer.New(buffer.Config{Window: cfg.Faultgate.Aggregator.Window})

	var alertWriter pipeline.AlertWriter
	switch cfg.Faultgate.Alerts.Mode {
	case "file":
		w, err := alertjson.NewWriter(cfg.Faultgate.Alerts.File.Path)
		if err != nil {
			logger.Errorf("Failed to create alert file writer: %v", err)
			log.Fatalf("Failed to create alert file writer: %v", err)
		}
		alertWriter = w
		logger.Infof("Alert output mode: file (%s)", cfg.Faultgate.Alerts.File.Path)
	case "http":
		w, err := alerthttp.NewWriter(alerthttp.Config{
			URL:     cfg.Faultgate.Alerts.HTTP.URL,
			Timeout: cfg.Faultgate.Alerts.HTTP.Timeout,
			Headers: cfg.Faultgate.Alerts.HTTP.Headers,
		})
		if err != nil {
			logger.Errorf("Failed to create alert HTTP writer: %v", err)
			log.Fatalf("Failed to create alert HTTP writer: %v", err)
		}
		alertWriter = w
		logger.Infof("Alert output mode: http (%s)", cfg.Faultgate.Alerts.HTTP.URL)
	case "redis":
		w, err := alertredis.NewWriter(alertredis.Config{
			Addr:     cfg.Faultgate.Alerts.Redis.Addr,
			Password: cfg.Faultgate.Alerts.Redis.Password,
			DB:       cfg.Faultgate.Alerts.Redis.DB,
			Key:      cfg.Faultgate.Alerts.Redis.Key,
		})
		if err != nil {
			logger.Errorf("Failed to create alert Redis writer: %v", err)
			log.Fatalf("Failed to create alert Redis writer: %v", err)
		}
		alertWriter = w
		logger.Infof("Alert output mode: redis (%s/%s)", cfg.Faultgate.Alerts.Redis.Addr, cfg.Faultgate.Alerts.Redis.Key)
	default:
		log.Fatalf("Unknown alert output mode: %s", cfg.Faultgate.Alerts.Mode)
	}

	pipe := pipeline.NewFaultPipeline(
		consumer,
		engine,
		aggregator,
		alertWriter,
		cfg.Faultgate.Aggregator.Workers,
		cfg.Faultgate.Aggregator.DrainInterval,
		cfg.Faultgate.Aggregator.SweepInterval,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := pipe.Run(ctx); err != nil && err != context.Canceled {
			logger.Errorf("Pipeline error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Infof("Shutting down")
	cancel()
	time.Sleep(1 * time.Second)

	if err := pipe.Close(); err != nil {
		logger.Errorf("Error closing pipeline: %v", err)
	}

	logger.Infof("Faultgate stopped")
}

func runAnalyze(args []string) int {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	configArg := fs.String("config", "", "Optional config file with analyzer defaults")
	logDir := fs.String("log-dir", "", "Directory holding protocol logs")
	files := fs.String("files", "", "Comma-separated base log file names")
	window := fs.Int("window", 0, "Lookback window in minutes")
	topN := fs.Int("top", 0, "Number of devices to rank")
	maxLines := fs.Int("max-lines", 0, "Maximum log lines to scan")
	output := fs.String("output", "", "Report output path (default stdout)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	acfg := config.AnalyzerConfig{}
	if *configArg != "" {
		cfg, err := config.LoadConfig(*configArg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			return 1
		}
		applyDefaults(cfg)
		acfg = cfg.Faultgate.Analyzer
	}

	if *logDir != "" {
		acfg.LogDir = *logDir
	}
	if *files != "" {
		acfg.Files = splitNames(*files)
	}
	if *window > 0 {
		acfg.WindowMinutes = *window
	}
	if *topN > 0 {
		acfg.TopN = *topN
	}
	if *maxLines > 0 {
		acfg.MaxLines = *maxLines
	}

	a := analyzer.New(analyzer.Config{
		LogDir:    acfg.LogDir,
		Files:     acfg.Files,
		MaxLines:  acfg.MaxLines,
		BlockSize: acfg.BlockSize,
	})

	started := time.Now()
	report, err := a.Analyze(context.Background(), acfg.WindowMinutes, acfg.TopN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analysis failed: %v\n", err)
		return 1
	}
	metrics.ObserveAnalyze(time.Since(started), report.LinesScanned)

	out := os.Stdout
	if *output != "" {
		if dir := filepath.Dir(*output); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				fmt.Fprintf(os.Stderr, "failed to create output directory: %v\n", err)
				return 1
			}
		}
		f, err := os.Create(*output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create output file: %v\n", err)
			return 1
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode report: %v\n", err)
		return 1
	}
	return 0
}

func splitNames(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			runServe(os.Args[2:])
			return
		case "analyze":
			os.Exit(runAnalyze(os.Args[2:]))
		default:
			// Backward-compatible mode: first arg is config path.
			runServe(os.Args[1:])
			return
		}
	}

	runServe(nil)
}
