package chart

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/radartrack/internal/db"
	"github.com/banshee-data/radartrack/internal/track"
)

// RunStore is the read side of the run database.
type RunStore interface {
	ListRuns(limit int) ([]db.RunRecord, error)
	GetRun(runID string) (*db.RunRecord, error)
	ListOutputs(runID string) ([]track.Output, error)
}

// WebServer serves stored runs as JSON and as chart pages.
type WebServer struct {
	address string
	store   RunStore
	server  *http.Server
}

// WebServerConfig contains configuration options for the web server
type WebServerConfig struct {
	Address string
	Store   RunStore
}

// NewWebServer creates a new web server with the provided configuration
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address: config.Address,
		store:   config.Store,
	}
	ws.server = &http.Server{
		Addr:              ws.address,
		Handler:           ws.setupRoutes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return ws
}

// Handler exposes the routes, mainly for tests.
func (ws *WebServer) Handler() http.Handler {
	return ws.server.Handler
}

// Start serves until ctx is cancelled, then shuts the server down.
func (ws *WebServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	return nil
}

func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/api/runs", ws.handleRuns)
	mux.HandleFunc("/api/runs/", ws.handleRunOutputs)
	mux.HandleFunc("/chart", ws.handleChart)
	mux.Handle("/latest", Handler("latest run", ws.latestOutputs))
	mux.HandleFunc("/", ws.handleIndex)
	return mux
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (ws *WebServer) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "radartrack", "timestamp": "%s"}`, time.Now().UTC().Format(time.RFC3339))
}

// handleRuns lists recent runs.
// Query params:
//
//	limit (optional, default 100)
func (ws *WebServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			ws.writeJSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	runs, err := ws.store.ListRuns(limit)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []db.RunRecord{}
	}
	ws.writeJSON(w, runs)
}

// handleRunOutputs serves /api/runs/{id} and /api/runs/{id}/outputs.
func (ws *WebServer) handleRunOutputs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/runs/"), "/")
	parts := strings.Split(rest, "/")
	if rest == "" || len(parts) > 2 || (len(parts) == 2 && parts[1] != "outputs") {
		ws.writeJSONError(w, http.StatusNotFound, "not found")
		return
	}
	runID := parts[0]

	run, err := ws.store.GetRun(runID)
	if err != nil {
		ws.writeStoreError(w, err)
		return
	}
	if len(parts) == 1 {
		ws.writeJSON(w, run)
		return
	}

	outs, err := ws.store.ListOutputs(runID)
	if err != nil {
		ws.writeStoreError(w, err)
		return
	}
	if outs == nil {
		outs = []track.Output{}
	}
	ws.writeJSON(w, outs)
}

// handleChart renders the chart page for ?run_id=<id>.
func (ws *WebServer) handleChart(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		ws.writeJSONError(w, http.StatusBadRequest, "missing 'run_id' parameter")
		return
	}
	run, err := ws.store.GetRun(runID)
	if err != nil {
		ws.writeStoreError(w, err)
		return
	}
	outs, err := ws.store.ListOutputs(runID)
	if err != nil {
		ws.writeStoreError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := Render(&buf, fmt.Sprintf("%s (%s)", run.Source, run.AssociationRule), outs); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleIndex links to the chart of every recent run.
func (ws *WebServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	runs, err := ws.store.ListRuns(0)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, runs); err != nil {
		log.Printf("failed to render index: %v", err)
	}
}

// latestOutputs returns the outputs of the most recently started run, so
// /latest follows runs as they are recorded.
func (ws *WebServer) latestOutputs() []track.Output {
	runs, err := ws.store.ListRuns(1)
	if err != nil {
		log.Printf("failed to list runs: %v", err)
		return nil
	}
	if len(runs) == 0 {
		return nil
	}
	outs, err := ws.store.ListOutputs(runs[0].ID)
	if err != nil {
		log.Printf("failed to list outputs for run %s: %v", runs[0].ID, err)
		return nil
	}
	return outs
}

func (ws *WebServer) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, db.ErrRunNotFound) {
		ws.writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
}
