package ingest

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/radartrack/internal/config"
	"github.com/banshee-data/radartrack/internal/monitoring"
	"github.com/banshee-data/radartrack/internal/track"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func init() {
	monitoring.SetLogger(nil)
}

// row builds a reference-layout record with filler in columns 0..9.
func row(rng, az, el, t string) string {
	fields := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", rng, az, el, t}
	return strings.Join(fields, ",")
}

const header = "c0,c1,c2,c3,c4,c5,c6,c7,c8,c9,MR,MA,ME,MT"

var approx = cmpopts.EquateApprox(0, 1e-9)

func TestReadCSVReferenceLayout(t *testing.T) {
	input := strings.Join([]string{
		header,
		row("2", "90", "0", "0.5"),
		row("10", "0", "0", "1.5"),
		row("4", "180", "30", "2.5"),
	}, "\n")

	got, err := ReadCSV(strings.NewReader(input), DefaultColumns, true)
	require.NoError(t, err)

	want := []track.Measurement{
		{Time: 0.5, X: 2, Y: 0, Z: 0},
		{Time: 1.5, X: 0, Y: 10, Z: 0},
		{Time: 2.5, X: 0, Y: -4 * 0.8660254037844386, Z: 2},
	}
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Errorf("measurements mismatch (-want +got):\n%s", diff)
	}
}

func TestReadCSVWithoutHeader(t *testing.T) {
	got, err := ReadCSV(strings.NewReader("5,0,0,1\n5,90,0,2\n"), Columns{Range: 0, Azimuth: 1, Elevation: 2, Time: 3}, false)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 5, got[0].Y, 1e-12)
	assert.InDelta(t, 5, got[1].X, 1e-12)
}

func TestReadCSVErrorsNameLine(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"short row", header + "\n" + row("1", "2", "3", "4") + "\n1,2,3\n", "line 3"},
		{"bad range", header + "\n" + row("x", "2", "3", "4"), "line 2"},
		{"bad time", header + "\n" + row("1", "2", "3", "") + "\n", "line 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.input), DefaultColumns, true)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestReadCSVRejectsNegativeColumn(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""), Columns{Range: -1}, false)
	assert.Error(t, err)
}

func TestReadCSVEmpty(t *testing.T) {
	got, err := ReadCSV(strings.NewReader(header+"\n"), DefaultColumns, true)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadCSVFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.csv")
	require.NoError(t, os.WriteFile(path, []byte(header+"\n"+row("3", "90", "0", "7")+"\n"), 0o644))

	got, err := ReadCSVFile(path, DefaultColumns, true)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 7.0, got[0].Time)
	assert.InDelta(t, 3, got[0].X, 1e-12)

	_, err = ReadCSVFile(filepath.Join(dir, "run.json"), DefaultColumns, true)
	assert.Error(t, err)

	_, err = ReadCSVFile(filepath.Join(dir, "missing.csv"), DefaultColumns, true)
	assert.Error(t, err)
}

func TestColumnsFromTuning(t *testing.T) {
	assert.Equal(t, DefaultColumns, ColumnsFromTuning(config.EmptyTuningConfig()))
}

func TestParseLine(t *testing.T) {
	m, err := ParseLine(" 2, 90, 0, 1.25\r\n")
	require.NoError(t, err)
	assert.Equal(t, 1.25, m.Time)
	assert.InDelta(t, 2, m.X, 1e-12)
	assert.InDelta(t, 0, m.Y, 1e-12)
	assert.InDelta(t, 0, m.Z, 1e-12)

	for _, bad := range []string{"", "1,2,3", "1,2,3,4,5", "1,az,3,4"} {
		_, err := ParseLine(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestReadMeasurements(t *testing.T) {
	input := "# feed start\n2,90,0,1\n\ngarbage\n3,90,0,2\n4,90,0,3\n"

	t.Run("until EOF", func(t *testing.T) {
		ms, err := ReadMeasurements(context.Background(), strings.NewReader(input), 0)
		require.NoError(t, err)
		require.Len(t, ms, 3)
		assert.Equal(t, []float64{1, 2, 3}, []float64{ms[0].Time, ms[1].Time, ms[2].Time})
	})

	t.Run("limit", func(t *testing.T) {
		ms, err := ReadMeasurements(context.Background(), strings.NewReader(input), 2)
		require.NoError(t, err)
		assert.Len(t, ms, 2)
	})
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("port unplugged") }

func TestReadMeasurementsReadError(t *testing.T) {
	_, err := ReadMeasurements(context.Background(), failingReader{}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port unplugged")
}

func TestReadMeasurementsCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	var got []track.Measurement
	go func() {
		ms, err := ReadMeasurements(ctx, pr, 0)
		got = ms
		done <- err
	}()

	_, err := pw.Write([]byte("2,90,0,1\n"))
	require.NoError(t, err)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.LessOrEqual(t, len(got), 1)
	case <-time.After(2 * time.Second):
		t.Fatal("ReadMeasurements did not return after cancel")
	}
}

func TestPortOptionsNormalize(t *testing.T) {
	got, err := PortOptions{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, PortOptions{BaudRate: 19200, DataBits: 8, StopBits: 1, Parity: "N"}, got)

	got, err = PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "even"}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "E"}, got)

	invalid := []PortOptions{
		{BaudRate: 12345},
		{DataBits: 9},
		{StopBits: 3},
		{Parity: "mark"},
	}
	for _, opts := range invalid {
		_, err := opts.Normalize()
		assert.Error(t, err, "%+v", opts)
	}
}

func TestPortOptionsSerialMode(t *testing.T) {
	mode, err := PortOptions{StopBits: 2, Parity: "O"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, serial.TwoStopBits, mode.StopBits)
	assert.Equal(t, serial.OddParity, mode.Parity)
	assert.Equal(t, 19200, mode.BaudRate)

	mode, err = PortOptions{}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, serial.OneStopBit, mode.StopBits)
	assert.Equal(t, serial.NoParity, mode.Parity)

	_, err = PortOptions{DataBits: 4}.SerialMode()
	assert.Error(t, err)
}
