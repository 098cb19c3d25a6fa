// Command radartrack runs the single-track estimator over recorded CSV files
// or a live serial feed, prints a per-run summary and optionally persists,
// plots and serves the results.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/banshee-data/radartrack/internal/association"
	"github.com/banshee-data/radartrack/internal/chart"
	"github.com/banshee-data/radartrack/internal/config"
	"github.com/banshee-data/radartrack/internal/db"
	"github.com/banshee-data/radartrack/internal/estimation"
	"github.com/banshee-data/radartrack/internal/ingest"
	"github.com/banshee-data/radartrack/internal/monitoring"
	"github.com/banshee-data/radartrack/internal/version"
)

// Config holds the command-line configuration.
type Config struct {
	CSVFiles    []string
	SerialPort  string
	Baud        int
	Limit       int
	ConfigPath  string
	DBPath      string
	PlotsDir    string
	HTMLPath    string
	JSONPath    string
	Listen      string
	Rule        string
	Parallel    int
	Quiet       bool
	ShowVersion bool
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatal(err)
	}
	if cfg.ShowVersion {
		fmt.Println(version.String())
		return
	}
	if cfg.Quiet {
		monitoring.SetLogger(nil)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func parseFlags(args []string) (Config, error) {
	cfg := Config{}
	fs := flag.NewFlagSet("radartrack", flag.ContinueOnError)

	var csvList string
	fs.StringVar(&csvList, "csv", "", "Comma-separated list of measurement CSV files")
	fs.StringVar(&cfg.SerialPort, "serial", "", "Serial port streaming range,azimuth,elevation,time lines")
	fs.IntVar(&cfg.Baud, "baud", 19200, "Serial baud rate")
	fs.IntVar(&cfg.Limit, "limit", 0, "Stop reading the serial feed after this many measurements (0 = until EOF or interrupt)")
	fs.StringVar(&cfg.ConfigPath, "config", "", "Path to tuning config JSON (defaults apply when empty)")
	fs.StringVar(&cfg.DBPath, "db", "", "SQLite database to record runs in")
	fs.StringVar(&cfg.PlotsDir, "plots", "", "Directory for range/azimuth/elevation PNG plots")
	fs.StringVar(&cfg.HTMLPath, "html", "", "Write an interactive HTML chart page to this path")
	fs.StringVar(&cfg.JSONPath, "json", "", "Write run results as JSON to this path")
	fs.StringVar(&cfg.Listen, "listen", "", "Serve recorded runs over HTTP on this address (requires -db)")
	fs.StringVar(&cfg.Rule, "rule", "", "Association rule: equal or mahalanobis (overrides config)")
	fs.IntVar(&cfg.Parallel, "parallel", 1, "Number of input files processed concurrently")
	fs.BoolVar(&cfg.Quiet, "quiet", false, "Suppress diagnostic logging")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	for _, f := range strings.Split(csvList, ",") {
		if f = strings.TrimSpace(f); f != "" {
			cfg.CSVFiles = append(cfg.CSVFiles, f)
		}
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.ShowVersion {
		return nil
	}
	if len(c.CSVFiles) == 0 && c.SerialPort == "" && c.Listen == "" {
		return fmt.Errorf("at least one of -csv, -serial or -listen is required")
	}
	if c.Listen != "" && c.DBPath == "" {
		return fmt.Errorf("-listen requires -db")
	}
	if c.Parallel < 1 {
		return fmt.Errorf("-parallel must be at least 1, got %d", c.Parallel)
	}
	if c.Limit < 0 {
		return fmt.Errorf("-limit must be non-negative, got %d", c.Limit)
	}
	return nil
}

func loadTuning(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.EmptyTuningConfig(), nil
	}
	return config.LoadTuningConfig(path)
}

func run(ctx context.Context, cfg Config, out io.Writer) error {
	tuning, err := loadTuning(cfg.ConfigPath)
	if err != nil {
		return err
	}
	rule := tuning.GetAssociationRule()
	if cfg.Rule != "" {
		rule = cfg.Rule
	}
	engine, err := association.New(rule)
	if err != nil {
		return err
	}
	loop, err := estimation.NewLoop(estimation.ConfigFromTuning(tuning), engine)
	if err != nil {
		return err
	}

	var store *db.DB
	if cfg.DBPath != "" {
		store, err = db.NewDB(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer store.Close()
	}

	inputs := csvInputs(cfg.CSVFiles, tuning)
	if cfg.SerialPort != "" {
		inputs = append(inputs, serialInput(cfg.SerialPort, ingest.PortOptions{BaudRate: cfg.Baud}, cfg.Limit))
	}

	if len(inputs) > 0 {
		results := runAll(ctx, loop, inputs, cfg.Parallel)
		printSummary(out, results)

		if store != nil {
			configJSON := tuningJSON(tuning)
			for i := range results {
				if err := persist(store, &results[i], rule, configJSON); err != nil {
					log.Printf("Warning: failed to record %s: %v", results[i].Name, err)
				}
			}
		}
		if cfg.PlotsDir != "" {
			if err := writePlots(cfg.PlotsDir, results); err != nil {
				log.Printf("Warning: failed to write plots: %v", err)
			}
		}
		if cfg.HTMLPath != "" {
			if err := writeHTML(cfg.HTMLPath, results); err != nil {
				log.Printf("Warning: failed to write HTML: %v", err)
			} else {
				log.Printf("Charts written to: %s", cfg.HTMLPath)
			}
		}
		if cfg.JSONPath != "" {
			if err := exportJSON(results, cfg.JSONPath); err != nil {
				log.Printf("Warning: failed to export JSON: %v", err)
			} else {
				log.Printf("Results exported to: %s", cfg.JSONPath)
			}
		}
	}

	if cfg.Listen != "" {
		ws := chart.NewWebServer(chart.WebServerConfig{Address: cfg.Listen, Store: store})
		return ws.Start(ctx)
	}
	return nil
}

// tuningJSON encodes the config recorded with each run, or "{}" when it
// cannot be encoded.
func tuningJSON(tuning *config.TuningConfig) string {
	b, err := json.Marshal(tuning)
	if err != nil {
		log.Printf("Warning: failed to encode tuning config: %v", err)
		return "{}"
	}
	return string(b)
}

func exportJSON(results []RunResult, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(results)
}
