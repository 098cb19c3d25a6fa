package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/radartrack/internal/chart"
	"github.com/banshee-data/radartrack/internal/config"
	"github.com/banshee-data/radartrack/internal/db"
	"github.com/banshee-data/radartrack/internal/estimation"
	"github.com/banshee-data/radartrack/internal/ingest"
	"github.com/banshee-data/radartrack/internal/plot"
	"github.com/banshee-data/radartrack/internal/track"
)

// input is one measurement source. A capture input treats cancellation as
// the end of the feed: what was read before the interrupt is still estimated.
type input struct {
	name    string
	load    func(ctx context.Context) ([]track.Measurement, error)
	capture bool
}

// RunResult holds the outcome of estimating one input.
type RunResult struct {
	Name              string         `json:"name"`
	RunID             string         `json:"run_id,omitempty"`
	MeasurementCount  int            `json:"measurement_count"`
	Outputs           []track.Output `json:"outputs"`
	BootstrapVelocity [3]float64     `json:"bootstrap_velocity"`
	Warnings          int            `json:"warnings"`
	Error             string         `json:"error,omitempty"`
	DurationSecs      float64        `json:"duration_secs"`

	measurements []track.Measurement
	err          error
}

func csvInputs(paths []string, tuning *config.TuningConfig) []input {
	cols := ingest.ColumnsFromTuning(tuning)
	skip := tuning.GetCSVSkipHeader()
	inputs := make([]input, 0, len(paths))
	for _, p := range paths {
		inputs = append(inputs, input{
			name: p,
			load: func(context.Context) ([]track.Measurement, error) {
				return ingest.ReadCSVFile(p, cols, skip)
			},
		})
	}
	return inputs
}

func serialInput(port string, opts ingest.PortOptions, limit int) input {
	return input{
		name:    port,
		capture: true,
		load: func(ctx context.Context) ([]track.Measurement, error) {
			r, err := ingest.OpenSerial(port, opts)
			if err != nil {
				return nil, err
			}
			defer r.Close()

			ms, err := ingest.ReadMeasurements(ctx, r, limit)
			if errors.Is(err, context.Canceled) {
				// an interrupt ends the capture; estimate what was read
				log.Printf("serial capture interrupted after %d measurements", len(ms))
				return ms, nil
			}
			return ms, err
		},
	}
}

// runAll estimates every input, at most parallel at a time, and returns the
// results in input order.
func runAll(ctx context.Context, loop *estimation.Loop, inputs []input, parallel int) []RunResult {
	if parallel < 1 {
		parallel = 1
	}
	results := make([]RunResult, len(inputs))
	sem := make(chan struct{}, parallel)

	var wg sync.WaitGroup
	for i, in := range inputs {
		wg.Add(1)
		go func(i int, in input) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = runOne(ctx, loop, in)
		}(i, in)
	}
	wg.Wait()
	return results
}

func runOne(ctx context.Context, loop *estimation.Loop, in input) (res RunResult) {
	start := time.Now()
	res.Name = in.name
	defer func() { res.DurationSecs = time.Since(start).Seconds() }()

	if err := ctx.Err(); err != nil {
		res.setErr(fmt.Errorf("skipped %s: %w", in.name, err))
		return res
	}

	ms, err := in.load(ctx)
	res.measurements = ms
	res.MeasurementCount = len(ms)
	if err != nil {
		res.setErr(fmt.Errorf("load %s: %w", in.name, err))
		return res
	}

	runCtx := ctx
	if in.capture && ctx.Err() != nil {
		runCtx = context.WithoutCancel(ctx)
	}
	out, err := loop.Run(runCtx, ms)
	if out != nil {
		res.Outputs = out.Outputs
		res.BootstrapVelocity = out.BootstrapVelocity
		res.Warnings = out.Warnings
	}
	if err != nil {
		res.setErr(err)
	}
	return res
}

func (r *RunResult) setErr(err error) {
	r.err = err
	r.Error = err.Error()
}

func printSummary(w io.Writer, results []RunResult) {
	fmt.Fprintln(w, "\n=== Track Estimation Results ===")
	fmt.Fprintf(w, "%-32s %8s %8s %8s %10s %10s %10s  %s\n",
		"Input", "Meas", "Outputs", "Warn", "Range", "Azimuth", "Elev", "Status")
	for _, r := range results {
		status := "ok"
		if r.Error != "" {
			status = r.Error
		}
		rng, az, el := "-", "-", "-"
		if n := len(r.Outputs); n > 0 {
			last := r.Outputs[n-1]
			rng = fmt.Sprintf("%.3f", last.Range)
			az = fmt.Sprintf("%.3f", last.AzimuthDeg)
			el = fmt.Sprintf("%.3f", last.ElevationDeg)
		}
		fmt.Fprintf(w, "%-32s %8d %8d %8d %10s %10s %10s  %s\n",
			truncate(r.Name, 32), r.MeasurementCount, len(r.Outputs), r.Warnings, rng, az, el, status)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n+3:]
}

// persist records the run, its measurements and outputs, then marks it
// finished with the run's outcome.
func persist(store *db.DB, r *RunResult, rule, configJSON string) error {
	id, err := store.CreateRun(&db.RunRecord{Source: r.Name, AssociationRule: rule, ConfigJSON: configJSON})
	if err != nil {
		return err
	}
	r.RunID = id

	if err := store.RecordMeasurements(id, r.measurements); err != nil {
		return err
	}
	if err := store.RecordOutputs(id, r.Outputs); err != nil {
		return err
	}
	status := db.StatusComplete
	if r.err != nil {
		status = db.StatusFailed
	}
	return store.FinishRun(id, status, r.Error)
}

// runName derives a file-name-safe label from an input path.
func runName(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, base)
}

func writePlots(dir string, results []RunResult) error {
	runs := make(map[string][]track.Output)
	for _, r := range results {
		if len(r.Outputs) == 0 {
			continue
		}
		name := runName(r.Name)
		files, err := plot.WriteSphericalPlots(dir, name, r.Outputs)
		if err != nil {
			return fmt.Errorf("%s: %w", r.Name, err)
		}
		log.Printf("Plots written: %s", strings.Join(files, ", "))
		runs[name] = r.Outputs
	}
	if len(runs) > 1 {
		if _, err := plot.WriteComparisonPlots(dir, "compare", runs); err != nil {
			return err
		}
	}
	return nil
}

func writeHTML(path string, results []RunResult) error {
	runs := make(map[string][]track.Output, len(results))
	for _, r := range results {
		runs[r.Name] = r.Outputs
	}
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
	return chart.RenderRuns(f, "radartrack", runs)
}
