package chart

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/radartrack/internal/db"
	"github.com/banshee-data/radartrack/internal/monitoring"
	"github.com/banshee-data/radartrack/internal/track"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	monitoring.SetLogger(nil)
}

func sampleOutputs() []track.Output {
	return []track.Output{
		track.NewOutput(2, track.State{2, 0, 0, 1, 0, 0}, 0, []float64{1}),
		track.NewOutput(3, track.State{3, 0, 0, 1, 0, 0}, 0, []float64{1}),
	}
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, "data_57.csv", sampleOutputs()))

	html := buf.String()
	for _, want := range []string{"Range", "Azimuth", "Elevation", "data_57.csv", "echarts"} {
		assert.Contains(t, html, want)
	}
}

func TestRenderRunsOneSeriesPerRun(t *testing.T) {
	var buf bytes.Buffer
	err := RenderRuns(&buf, "compare", map[string][]track.Output{
		"alpha.csv": sampleOutputs(),
		"beta.csv":  sampleOutputs(),
	})
	require.NoError(t, err)
	html := buf.String()
	assert.Contains(t, html, "alpha.csv")
	assert.Contains(t, html, "beta.csv")
}

func TestLineDataDropsNonFinite(t *testing.T) {
	outs := sampleOutputs()
	outs = append(outs, track.Output{Time: 4, Range: math.Inf(1)})
	data := lineData(outs, func(o track.Output) float64 { return o.Range })
	require.Len(t, data, 2)
	assert.Equal(t, []interface{}{2.0, 2.0}, data[0].Value)
}

func TestHandler(t *testing.T) {
	calls := 0
	h := Handler("live", func() []track.Output {
		calls++
		return sampleOutputs()
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "live")
	assert.Equal(t, 1, calls)
}

func newStore(t *testing.T) (*db.DB, string) {
	t.Helper()
	store, err := db.NewDB(filepath.Join(t.TempDir(), "charts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	id, err := store.CreateRun(&db.RunRecord{Source: "data_57.csv", AssociationRule: "equal", StartedAt: time.Unix(1700000000, 0)})
	require.NoError(t, err)
	require.NoError(t, store.RecordOutputs(id, sampleOutputs()))
	require.NoError(t, store.FinishRun(id, db.StatusComplete, ""))
	return store, id
}

func TestWebServerRoutes(t *testing.T) {
	store, id := newStore(t)
	h := NewWebServer(WebServerConfig{Address: "127.0.0.1:0", Store: store}).Handler()

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	t.Run("health", func(t *testing.T) {
		rec := get("/health")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status": "ok"`)
	})

	t.Run("runs", func(t *testing.T) {
		rec := get("/api/runs?limit=5")
		require.Equal(t, http.StatusOK, rec.Code)
		var runs []db.RunRecord
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
		require.Len(t, runs, 1)
		assert.Equal(t, id, runs[0].ID)
		assert.Equal(t, db.StatusComplete, runs[0].Status)
	})

	t.Run("bad limit", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, get("/api/runs?limit=x").Code)
	})

	t.Run("run", func(t *testing.T) {
		rec := get("/api/runs/" + id)
		require.Equal(t, http.StatusOK, rec.Code)
		var run db.RunRecord
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
		assert.Equal(t, 2, run.OutputCount)
	})

	t.Run("outputs", func(t *testing.T) {
		rec := get(fmt.Sprintf("/api/runs/%s/outputs", id))
		require.Equal(t, http.StatusOK, rec.Code)
		var outs []track.Output
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outs))
		assert.Equal(t, sampleOutputs(), outs)
	})

	t.Run("unknown run", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, get("/api/runs/missing/outputs").Code)
		assert.Equal(t, http.StatusNotFound, get("/chart?run_id=missing").Code)
		assert.Equal(t, http.StatusNotFound, get("/api/runs/"+id+"/other").Code)
	})

	t.Run("chart", func(t *testing.T) {
		rec := get("/chart?run_id=" + id)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "data_57.csv (equal)")
		assert.Equal(t, http.StatusBadRequest, get("/chart").Code)
	})

	t.Run("latest", func(t *testing.T) {
		// a later run replaces the first one on the page
		newer, err := store.CreateRun(&db.RunRecord{Source: "data_58.csv", AssociationRule: "equal", StartedAt: time.Unix(1700000100, 0)})
		require.NoError(t, err)
		require.NoError(t, store.RecordOutputs(newer, []track.Output{
			track.NewOutput(7, track.State{7, 0, 0, 1, 0, 0}, 0, []float64{1}),
		}))

		rec := get("/latest")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
		body := rec.Body.String()
		assert.Contains(t, body, "latest run")
		assert.Contains(t, body, "[7,7]")

		outs, err := store.ListOutputs(newer)
		require.NoError(t, err)
		assert.Len(t, outs, 1)
	})

	t.Run("index", func(t *testing.T) {
		rec := get("/")
		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, "data_57.csv")
		assert.True(t, strings.Contains(body, "/chart?run_id="+id))
		assert.Equal(t, http.StatusNotFound, get("/nope").Code)
	})

	t.Run("method", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/runs", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}
