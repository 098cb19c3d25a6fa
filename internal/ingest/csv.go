// Package ingest turns sensor recordings and live feeds into ordered
// Cartesian measurements. Every source reports range, azimuth, elevation and
// time; conversion to Cartesian happens here so the estimation core only
// sees track.Measurement values.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/radartrack/internal/config"
	"github.com/banshee-data/radartrack/internal/coords"
	"github.com/banshee-data/radartrack/internal/track"
)

// Columns gives the zero-based CSV column of each spherical field.
type Columns struct {
	Range     int
	Azimuth   int
	Elevation int
	Time      int
}

// DefaultColumns is the reference recording layout (MR, MA, ME, MT).
var DefaultColumns = Columns{Range: 10, Azimuth: 11, Elevation: 12, Time: 13}

// ColumnsFromTuning reads the column layout from a tuning config.
func ColumnsFromTuning(cfg *config.TuningConfig) Columns {
	return Columns{
		Range:     cfg.GetCSVRangeColumn(),
		Azimuth:   cfg.GetCSVAzimuthColumn(),
		Elevation: cfg.GetCSVElevationColumn(),
		Time:      cfg.GetCSVTimeColumn(),
	}
}

func (c Columns) validate() error {
	for name, idx := range map[string]int{"range": c.Range, "azimuth": c.Azimuth, "elevation": c.Elevation, "time": c.Time} {
		if idx < 0 {
			return fmt.Errorf("%s column must be non-negative, got %d", name, idx)
		}
	}
	return nil
}

func (c Columns) maxIndex() int {
	return max(c.Range, c.Azimuth, c.Elevation, c.Time)
}

// ReadCSV reads every data row of r into a measurement, preserving row order.
// Rows may have any number of fields as long as the configured columns are
// present. Errors name the 1-based line number of the offending row.
func ReadCSV(r io.Reader, cols Columns, skipHeader bool) ([]track.Measurement, error) {
	if err := cols.validate(); err != nil {
		return nil, err
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var ms []track.Measurement
	line := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		line++
		if skipHeader && line == 1 {
			continue
		}
		if len(record) <= cols.maxIndex() {
			return nil, fmt.Errorf("invalid record at line %d: expected at least %d fields, got %d", line, cols.maxIndex()+1, len(record))
		}

		m, err := parseFields(record[cols.Range], record[cols.Azimuth], record[cols.Elevation], record[cols.Time])
		if err != nil {
			return nil, fmt.Errorf("invalid record at line %d: %w", line, err)
		}
		ms = append(ms, m)
	}
	return ms, nil
}

// ReadCSVFile opens path and reads it with ReadCSV.
func ReadCSVFile(path string, cols Columns, skipHeader bool) ([]track.Measurement, error) {
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".csv" && ext != ".txt" {
		return nil, fmt.Errorf("measurement file must have .csv or .txt extension, got %q", ext)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open measurement file: %w", err)
	}
	defer f.Close()

	ms, err := ReadCSV(f, cols, skipHeader)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ms, nil
}

// ParseLine parses one streamed record of the form "range,azimuth,elevation,time".
// Surrounding whitespace and a trailing carriage return are ignored.
func ParseLine(s string) (track.Measurement, error) {
	fields := strings.Split(strings.TrimSpace(s), ",")
	if len(fields) != 4 {
		return track.Measurement{}, fmt.Errorf("expected 4 comma-separated fields, got %d", len(fields))
	}
	return parseFields(fields[0], fields[1], fields[2], fields[3])
}

func parseFields(rng, az, el, t string) (track.Measurement, error) {
	var vals [4]float64
	for i, f := range []struct{ name, raw string }{
		{"range", rng}, {"azimuth", az}, {"elevation", el}, {"time", t},
	} {
		v, err := strconv.ParseFloat(strings.TrimSpace(f.raw), 64)
		if err != nil {
			return track.Measurement{}, fmt.Errorf("invalid %s %q: %w", f.name, f.raw, err)
		}
		vals[i] = v
	}
	return track.FromSpherical(vals[3], coords.Spherical{
		Range:        vals[0],
		AzimuthDeg:   vals[1],
		ElevationDeg: vals[2],
	}), nil
}
