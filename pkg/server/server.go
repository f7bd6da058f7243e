package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/m-mizutani/goerr/v2"
	"github.com/tandemlab/tandem/pkg/ingest"
	"github.com/tandemlab/tandem/pkg/model"
	"github.com/tandemlab/tandem/pkg/usecase/memory"
	"github.com/tandemlab/tandem/pkg/usecase/orchestrate"
	"github.com/tandemlab/tandem/pkg/utils/logging"
)

// Input carries the collaborators of the HTTP server
type Input struct {
	Orchestrator *orchestrate.Orchestrator
	Compactor    *memory.Compactor
	Ingestor     *ingest.Ingestor
}

// Server exposes the assistant over HTTP
type Server struct {
	router       chi.Router
	orchestrator *orchestrate.Orchestrator
	compactor    *memory.Compactor
	ingestor     *ingest.Ingestor
}

// New creates the HTTP server and mounts all routes
func New(input Input) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		orchestrator: input.Orchestrator,
		compactor:    input.Compactor,
		ingestor:     input.Ingestor,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.logRequests)

	s.router.Get("/health", s.handleHealth)
	s.router.Route("/v1/chatbot", func(r chi.Router) {
		r.Post("/query", s.handleQuery)
		r.Post("/query/stream", s.handleQueryStream)
		r.Get("/session/{id}", s.handleSession)
		r.Post("/ingest", s.handleIngest)
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logging.From(r.Context()).Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"elapsed", time.Since(started),
		)
	})
}

type queryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

type queryResponse struct {
	Response         string   `json:"response"`
	SessionID        string   `json:"session_id"`
	Reasoning        string   `json:"reasoning"`
	Sources          []string `json:"sources"`
	ConflictResolved bool     `json:"conflict_resolved"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, goerr.Wrap(err, "malformed request body"))
		return
	}
	if req.Query == "" {
		respondError(w, http.StatusBadRequest, goerr.New("query is required"))
		return
	}

	result, err := s.orchestrator.Invoke(r.Context(), model.SessionID(req.SessionID), req.Query)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	respondJSON(w, http.StatusOK, queryResponse{
		Response:         result.FinalResponse,
		SessionID:        string(result.SessionID),
		Reasoning:        result.Reasoning,
		Sources:          result.Sources,
		ConflictResolved: result.ConflictResolved,
	})
}

type streamToken struct {
	Token string `json:"token"`
}

// handleQueryStream delivers the answer as server-sent events: one "token"
// event per model chunk, then a final "done" event with the turn metadata
func (s *Server) handleQueryStream(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, goerr.Wrap(err, "malformed request body"))
		return
	}
	if req.Query == "" {
		respondError(w, http.StatusBadRequest, goerr.New("query is required"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, goerr.New("streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	result, err := s.orchestrator.StreamInvoke(r.Context(), model.SessionID(req.SessionID), req.Query, func(text string) {
		writeEvent(w, "token", streamToken{Token: text})
		flusher.Flush()
	})
	if err != nil {
		// Headers are already out; the error becomes a terminal event
		writeEvent(w, "error", map[string]string{"error": err.Error()})
		flusher.Flush()
		return
	}

	writeEvent(w, "done", queryResponse{
		Response:         result.FinalResponse,
		SessionID:        string(result.SessionID),
		Reasoning:        result.Reasoning,
		Sources:          result.Sources,
		ConflictResolved: result.ConflictResolved,
	})
	flusher.Flush()
}

func writeEvent(w http.ResponseWriter, event string, payload any) {
	blob, err := json.Marshal(payload)
	if err != nil {
		return
	}
	w.Write([]byte("event: " + event + "\ndata: " + string(blob) + "\n\n"))
}

type sessionResponse struct {
	SessionID string               `json:"session_id"`
	Mode      model.ContextMode    `json:"mode"`
	Context   *model.ContextRecord `json:"context"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := model.SessionID(chi.URLParam(r, "id"))

	record, err := s.compactor.Get(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if record == nil {
		respondError(w, http.StatusNotFound, goerr.New("session not found", goerr.V("session_id", id)))
		return
	}

	respondJSON(w, http.StatusOK, sessionResponse{
		SessionID: string(id),
		Mode:      record.Mode,
		Context:   record,
	})
}

type ingestRequest struct {
	DocName string `json:"doc_name"`
	Content string `json:"content"`
}

type ingestResponse struct {
	DocName string `json:"doc_name"`
	Chunks  int    `json:"chunks"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, goerr.Wrap(err, "malformed request body"))
		return
	}
	if req.DocName == "" || req.Content == "" {
		respondError(w, http.StatusBadRequest, goerr.New("doc_name and content are required"))
		return
	}

	chunks, err := s.ingestor.IngestText(r.Context(), req.DocName, req.Content)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	respondJSON(w, http.StatusOK, ingestResponse{DocName: req.DocName, Chunks: chunks})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]string{"error": err.Error()})
}
