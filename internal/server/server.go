// Package server exposes the dataset builder over HTTP: file uploads, the
// transcript editor API, import/export, AI actions, settings, and a websocket
// event feed for connected clients.
package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/speechset/speechset/internal/ai"
	"github.com/speechset/speechset/internal/dataset"
	"github.com/speechset/speechset/internal/format"
	"github.com/speechset/speechset/internal/health"
	"github.com/speechset/speechset/internal/library"
	"github.com/speechset/speechset/internal/observe"
	"github.com/speechset/speechset/internal/settings"
	"github.com/speechset/speechset/internal/transcript"
)

// maxUploadBytes caps the parsed size of one upload request. Audio batches
// are large but bounded; anything bigger should be split client-side.
const maxUploadBytes = 512 << 20

// Deps are the collaborators behind the HTTP API. Library, Store, Settings,
// Importer, Assembler and AI are required; the rest default sensibly.
type Deps struct {
	Library   *library.Library
	Store     *transcript.MemStore
	Settings  *settings.Manager
	Importer  *dataset.Importer
	Assembler *dataset.Assembler
	AI        *ai.Service

	// Saver, when set, is flushed synchronously after transcript PUTs and
	// imports, so an acknowledged save is durable. The debounced autosave
	// runs off store subscriptions, not the HTTP layer.
	Saver *transcript.Saver
	// Health serves /healthz and /readyz when set.
	Health *health.Handler
	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Server is the HTTP front of the dataset builder.
type Server struct {
	lib       *library.Library
	store     *transcript.MemStore
	settings  *settings.Manager
	importer  *dataset.Importer
	assembler *dataset.Assembler
	ai        *ai.Service
	saver     *transcript.Saver
	health    *health.Handler
	metrics   *observe.Metrics
	hub       *Hub
}

// New wires a Server and subscribes the websocket hub to store and settings
// changes.
func New(d Deps) *Server {
	s := &Server{
		lib:       d.Library,
		store:     d.Store,
		settings:  d.Settings,
		importer:  d.Importer,
		assembler: d.Assembler,
		ai:        d.AI,
		saver:     d.Saver,
		health:    d.Health,
		metrics:   d.Metrics,
		hub:       NewHub(),
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	s.store.Subscribe(func(ev transcript.Event) {
		if ev.Reset {
			s.hub.Broadcast(Event{Type: "cache-cleared"})
			return
		}
		s.hub.Broadcast(Event{Type: "transcript-saved", Data: map[string]string{
			"file": ev.FileName,
			"text": ev.Text,
		}})
	})
	s.settings.SubscribeFormat(func(id format.ID) {
		s.hub.Broadcast(Event{Type: "format-changed", Data: map[string]string{
			"format": string(id),
		}})
	})
	return s
}

// Routes returns the full handler: API routes, websocket feed, health probes
// and /metrics, wrapped in the tracing middleware.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/files", s.handleListFiles)
	mux.HandleFunc("POST /api/files", s.handleUpload)
	mux.HandleFunc("GET /api/files/current", s.handleGetCurrent)
	mux.HandleFunc("PUT /api/files/current", s.handleSetCurrent)
	mux.HandleFunc("GET /api/files/{name}", s.handleGetFile)
	mux.HandleFunc("DELETE /api/files/{name}", s.handleDeleteFile)

	mux.HandleFunc("GET /api/transcripts", s.handleAllTranscripts)
	mux.HandleFunc("GET /api/transcripts/{name}", s.handleGetTranscript)
	mux.HandleFunc("PUT /api/transcripts/{name}", s.handlePutTranscript)

	mux.HandleFunc("POST /api/import", s.handleImport)
	mux.HandleFunc("POST /api/export", s.handleExport)

	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /api/settings", s.handlePutSettings)
	mux.HandleFunc("GET /api/formats", s.handleFormats)
	mux.HandleFunc("POST /api/clear-cache", s.handleClearCache)

	mux.HandleFunc("POST /api/ai/transcribe", s.handleTranscribe)
	mux.HandleFunc("POST /api/ai/normalize", s.handleNormalize)
	mux.HandleFunc("POST /api/ai/test-connection", s.handleTestConnection)

	mux.HandleFunc("GET /ws", s.hub.Handle)
	mux.Handle("GET /metrics", promhttp.Handler())
	if s.health != nil {
		s.health.Register(mux)
	}

	return observe.Middleware(s.metrics)(mux)
}

// Hub returns the websocket event hub, for broadcasting from outside the
// HTTP layer.
func (s *Server) Hub() *Hub {
	return s.hub
}

// ─────────────────────────────────────────────────────────────────────────────
// Files
// ─────────────────────────────────────────────────────────────────────────────

// fileInfo is one library entry in the list response.
type fileInfo struct {
	Name          string `json:"name"`
	MIME          string `json:"mime"`
	Size          int    `json:"size"`
	HasTranscript bool   `json:"hasTranscript"`
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	names := s.lib.Names()
	out := make([]fileInfo, 0, len(names))
	for _, name := range names {
		f, err := s.lib.Get(name)
		if err != nil {
			continue
		}
		out = append(out, fileInfo{
			Name:          f.Name,
			MIME:          f.MIME,
			Size:          len(f.Data),
			HasTranscript: s.store.Has(f.Name),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid multipart payload: " + err.Error()})
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "no files in upload"})
		return
	}

	added := make([]string, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			writeError(w, r, fmt.Errorf("open upload %q: %w", h.Filename, err))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, r, fmt.Errorf("read upload %q: %w", h.Filename, err))
			return
		}

		isNew := !s.lib.Has(h.Filename)
		if err := s.lib.Add(library.AudioFile{
			Name: h.Filename,
			MIME: h.Header.Get("Content-Type"),
			Data: data,
		}); err != nil {
			writeError(w, r, err)
			return
		}
		if isNew {
			s.metrics.UploadedFiles.Add(r.Context(), 1)
		}
		added = append(added, h.Filename)
	}
	writeJSON(w, http.StatusCreated, map[string]any{"added": added})
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	f, err := s.lib.Get(r.PathValue("name"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	mime := f.MIME
	if mime == "" {
		mime = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mime)
	w.WriteHeader(http.StatusOK)
	w.Write(f.Data)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	if err := s.lib.Remove(r.PathValue("name")); err != nil {
		writeError(w, r, err)
		return
	}
	s.metrics.UploadedFiles.Add(r.Context(), -1)
	w.WriteHeader(http.StatusNoContent)
}

// selectRequest is the body of PUT /api/files/current. An empty name clears
// the selection.
type selectRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleGetCurrent(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, selectRequest{Name: s.lib.Current()})
}

func (s *Server) handleSetCurrent(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}
	if err := s.lib.SetCurrent(req.Name); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, selectRequest{Name: s.lib.Current()})
}

// ─────────────────────────────────────────────────────────────────────────────
// Transcripts
// ─────────────────────────────────────────────────────────────────────────────

// transcriptBody is the body of transcript GET/PUT responses and requests.
type transcriptBody struct {
	File string `json:"file"`
	Text string `json:"text"`
}

func (s *Server) handleAllTranscripts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.All())
}

func (s *Server) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	writeJSON(w, http.StatusOK, transcriptBody{File: name, Text: s.store.Get(name)})
}

func (s *Server) handlePutTranscript(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req transcriptBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}

	if !s.store.Has(name) {
		s.metrics.StoredTranscripts.Add(r.Context(), 1)
	}
	s.store.Set(name, req.Text)

	// An acknowledged save must survive a crash: persist before the 200, the
	// debounce only covers keystroke-level edit streams.
	if s.saver != nil {
		if err := s.saver.Flush(r.Context()); err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, transcriptBody{File: name, Text: req.Text})
}

// ─────────────────────────────────────────────────────────────────────────────
// Import / export
// ─────────────────────────────────────────────────────────────────────────────

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid multipart payload: " + err.Error()})
		return
	}
	f, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing \"file\" form field"})
		return
	}
	defer f.Close()

	payload, err := io.ReadAll(f)
	if err != nil {
		writeError(w, r, fmt.Errorf("read import payload: %w", err))
		return
	}

	summary, err := s.importer.Import(payload, header.Filename)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if s.saver != nil {
		if err := s.saver.Flush(r.Context()); err != nil {
			writeError(w, r, err)
			return
		}
	}
	s.metrics.RecordImport(r.Context(), summary.Applied, summary.Ambiguous, summary.Missing)
	s.hub.Broadcast(Event{Type: "import-done", Data: summary})
	writeJSON(w, http.StatusOK, summary)
}

// exportRequest is the body of POST /api/export.
type exportRequest struct {
	Output      string `json:"output"`
	Bundle      bool   `json:"bundle"`
	AudioTarget string `json:"audioTarget"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}

	start := time.Now()
	art, err := s.assembler.Export(r.Context(), dataset.Request{
		Output:      dataset.Output(req.Output),
		Bundle:      req.Bundle,
		AudioTarget: req.AudioTarget,
	})
	s.metrics.ExportDuration.Record(r.Context(), time.Since(start).Seconds())
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.metrics.RecordExport(r.Context(), string(s.settings.Format()), req.Output)

	w.Header().Set("Content-Type", art.MIME)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.Name))
	w.WriteHeader(http.StatusOK)
	w.Write(art.Data)
}

// ─────────────────────────────────────────────────────────────────────────────
// Settings
// ─────────────────────────────────────────────────────────────────────────────

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.Document())
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var doc settings.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}
	if err := s.settings.Update(r.Context(), doc); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.settings.Document())
}

func (s *Server) handleFormats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, format.All())
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	n := s.store.Len()
	s.store.Clear()
	s.metrics.StoredTranscripts.Add(r.Context(), -int64(n))
	if err := s.settings.ClearOverrides(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ─────────────────────────────────────────────────────────────────────────────
// AI actions
// ─────────────────────────────────────────────────────────────────────────────

// aiRequest names the target file of an AI action.
type aiRequest struct {
	File string `json:"file"`
}

// aiResponse reports the provider reply and whether it was written back.
type aiResponse struct {
	Text    string `json:"text"`
	Applied bool   `json:"applied"`
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	var req aiRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}

	start := time.Now()
	out, err := s.ai.Transcribe(r.Context(), req.File)
	s.metrics.TranscribeDuration.Record(r.Context(), time.Since(start).Seconds())

	provider := s.ai.TranscriberName()
	if err != nil {
		s.metrics.RecordProviderRequest(r.Context(), provider, "transcribe", "error")
		s.metrics.RecordProviderError(r.Context(), provider, "transcribe")
		writeError(w, r, err)
		return
	}
	s.metrics.RecordProviderRequest(r.Context(), provider, "transcribe", "ok")
	writeJSON(w, http.StatusOK, aiResponse{Text: out.Text, Applied: out.Applied})
}

func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	var req aiRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}

	start := time.Now()
	out, err := s.ai.Normalize(r.Context(), req.File)
	s.metrics.NormalizeDuration.Record(r.Context(), time.Since(start).Seconds())

	provider := s.ai.GeneratorName()
	if err != nil {
		s.metrics.RecordProviderRequest(r.Context(), provider, "normalize", "error")
		s.metrics.RecordProviderError(r.Context(), provider, "normalize")
		writeError(w, r, err)
		return
	}
	s.metrics.RecordProviderRequest(r.Context(), provider, "normalize", "ok")
	writeJSON(w, http.StatusOK, aiResponse{Text: out.Text, Applied: out.Applied})
}

func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	if err := s.ai.TestConnection(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
