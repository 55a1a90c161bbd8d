// Package httpapi exposes the notebook over HTTP.
//
// Routes are JSON in, JSON out, except the archive endpoints which move
// zip bytes, and /api/events which streams change notifications as
// server-sent events.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vishaltelangre/nerdcalci/archive"
	"github.com/vishaltelangre/nerdcalci/backup"
	"github.com/vishaltelangre/nerdcalci/kit"
	"github.com/vishaltelangre/nerdcalci/notebook"
	"github.com/vishaltelangre/nerdcalci/watch"
)

// Server wires the notebook, backup manager, and change notifier into a
// chi router.
type Server struct {
	notebook *notebook.Notebook
	backups  *backup.Manager
	notifier *watch.Notifier
	logger   *slog.Logger
}

// New creates a Server. The notifier may be nil; /api/events then reports
// that streaming is unavailable.
func New(nb *notebook.Notebook, backups *backup.Manager, notifier *watch.Notifier, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{notebook: nb, backups: backups, notifier: notifier, logger: logger}
}

// Router returns a ready-to-serve handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(securityHeaders)
	r.Use(maxBody)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/documents", s.handleListDocuments)
		r.Post("/documents", s.handleCreateDocument)
		r.Route("/documents/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetDocument)
			r.Patch("/", s.handleRenameDocument)
			r.Delete("/", s.handleDeleteDocument)
			r.Post("/duplicate", s.handleDuplicateDocument)
			r.Post("/pin", s.handleTogglePin)
			r.Get("/text", s.handleRenderText)
			r.Post("/lines", s.handleInsertLine)
			r.Post("/undo", s.handleUndo)
			r.Post("/redo", s.handleRedo)
			r.Post("/clear", s.handleClearLines)
		})
		r.Put("/lines/{id}", s.handleUpdateLine)
		r.Delete("/lines/{id}", s.handleRemoveLine)

		r.Get("/export", s.handleExport)
		r.Post("/import", s.handleImport)

		r.Get("/backups", s.handleListBackups)
		r.Post("/backups", s.handleBackupNow)
		r.Post("/backups/restore", s.handleRestore)

		r.Get("/events", s.handleEvents)
	})

	return r
}

// requestID tags every request with an ID for log correlation.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(kit.WithRequestID(r.Context(), id)))
	})
}

// --- documents ---

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.notebook.ListDocuments(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, 200, map[string]any{"documents": docs})
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, err)
		return
	}
	doc, err := s.notebook.CreateDocument(r.Context(), req.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, 201, doc)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, 400, err)
		return
	}
	doc, err := s.notebook.GetDocument(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	lines, err := s.notebook.Lines(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, 200, map[string]any{
		"document": doc,
		"lines":    lines,
		"can_undo": s.notebook.CanUndo(id),
		"can_redo": s.notebook.CanRedo(id),
	})
}

func (s *Server) handleRenameDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, 400, err)
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, err)
		return
	}
	if err := s.notebook.RenameDocument(r.Context(), id, req.Name); err != nil {
		s.fail(w, r, err)
		return
	}
	doc, err := s.notebook.GetDocument(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, 200, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, 400, err)
		return
	}
	if err := s.notebook.DeleteDocument(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, 200, map[string]any{"deleted": id})
}

func (s *Server) handleDuplicateDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, 400, err)
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, err)
		return
	}
	doc, err := s.notebook.DuplicateDocument(r.Context(), id, req.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, 201, doc)
}

func (s *Server) handleTogglePin(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, 400, err)
		return
	}
	doc, err := s.notebook.TogglePin(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, 200, doc)
}

func (s *Server) handleRenderText(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, 400, err)
		return
	}
	text, err := s.notebook.RenderText(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(text))
}

// --- lines ---

func (s *Server) handleInsertLine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, 400, err)
		return
	}
	var req struct {
		Position   *int   `json:"position"`
		Expression string `json:"expression"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, err)
		return
	}
	var lines []*notebook.Line
	if req.Position == nil {
		lines, err = s.notebook.AppendLine(r.Context(), id, req.Expression)
	} else {
		lines, err = s.notebook.InsertLine(r.Context(), id, *req.Position, req.Expression)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, 201, map[string]any{"lines": lines})
}

func (s *Server) handleUpdateLine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, 400, err)
		return
	}
	var req struct {
		Expression string `json:"expression"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, err)
		return
	}
	lines, err := s.notebook.UpdateLine(r.Context(), id, req.Expression)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, 200, map[string]any{"lines": lines})
}

func (s *Server) handleRemoveLine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, 400, err)
		return
	}
	lines, err := s.notebook.RemoveLine(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, 200, map[string]any{"lines": lines})
}

// --- history ---

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	s.travel(w, r, s.notebook.Undo)
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	s.travel(w, r, s.notebook.Redo)
}

func (s *Server) travel(w http.ResponseWriter, r *http.Request, step func(ctx context.Context, id int64) ([]*notebook.Line, error)) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, 400, err)
		return
	}
	lines, err := step(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, 200, map[string]any{
		"lines":    lines,
		"can_undo": s.notebook.CanUndo(id),
		"can_redo": s.notebook.CanRedo(id),
	})
}

func (s *Server) handleClearLines(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, 400, err)
		return
	}
	if err := s.notebook.ClearLines(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, 200, map[string]any{"cleared": id})
}

// --- archive ---

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	docs, err := s.notebook.ExportAll(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if len(docs) == 0 {
		writeJSON(w, 404, map[string]string{"error": "no documents to export"})
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "nerdcalci_export_"+time.Now().Format("2006-01-02-15-04-05")+".zip"))
	if _, err := archive.Export(w, docs); err != nil {
		s.logger.Error("export stream failed", "error", err)
	}
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	parsed, err := archive.Import(r.Body)
	if err != nil {
		writeError(w, 400, err)
		return
	}
	count, err := s.notebook.ImportAll(r.Context(), parsed)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, 200, map[string]any{"imported": count})
}

// --- backups ---

func (s *Server) handleBackupNow(w http.ResponseWriter, r *http.Request) {
	res, err := s.backups.BackupNow(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, 200, res)
}

func (s *Server) handleListBackups(w http.ResponseWriter, r *http.Request) {
	infos, err := s.backups.ListBackups(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, 200, map[string]any{"backups": infos})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, err)
		return
	}
	info, err := s.backups.FindBackup(r.Context(), req.ID)
	if err != nil {
		writeError(w, 404, err)
		return
	}
	count, err := s.backups.Restore(r.Context(), *info)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, 200, map[string]any{"restored": count})
}

// --- helpers ---

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id: %w", err)
	}
	return id, nil
}

// fail maps domain errors to status codes.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, notebook.ErrNotFound):
		writeError(w, 404, err)
	case errors.Is(err, notebook.ErrNameInvalid):
		writeError(w, 400, err)
	case errors.Is(err, notebook.ErrPinnedLimit),
		errors.Is(err, notebook.ErrNothingToUndo),
		errors.Is(err, notebook.ErrNothingToRedo):
		writeError(w, 409, err)
	default:
		s.logger.Error("request failed",
			"path", r.URL.Path,
			"request_id", kit.GetRequestID(r.Context()),
			"error", err)
		writeError(w, 500, err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
