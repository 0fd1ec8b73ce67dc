package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/sheetfill/internal/audit"
	"github.com/JonMunkholm/sheetfill/internal/core"
	"github.com/JonMunkholm/sheetfill/internal/sheet"
	"github.com/JonMunkholm/sheetfill/internal/web/templates"
)

const (
	// multipartMemory is how much of an upload is buffered in memory before
	// spilling to a temp file.
	multipartMemory = 32 << 20

	// multipartOverhead is allowed on top of the file size limit for the
	// multipart envelope.
	multipartOverhead = 1 << 20

	// maxReconcileBody bounds the JSON body of a reconcile request.
	maxReconcileBody = 1 << 20

	defaultAuditLimit = 100
)

// healthResponse is the body of GET /healthz.
type healthResponse struct {
	Status   string             `json:"status"`
	Time     time.Time          `json:"time"`
	Sessions int                `json:"sessions"`
	Decodes  core.LimiterStatus `json:"decodes"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Time:     time.Now().UTC(),
		Sessions: s.service.SessionCount(),
		Decodes:  s.service.LimiterStatus(),
	})
}

// handleLoad accepts a multipart upload in the "file" field and opens a
// session on it.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.Upload.MaxFileSize + multipartOverhead
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) || r.ContentLength > limit {
			respondError(w, r, fmt.Errorf("upload: %w", sheet.ErrFileTooLarge))
			return
		}
		writeError(w, r, http.StatusBadRequest, "no file provided")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	if header.Size > s.cfg.Upload.MaxFileSize {
		respondError(w, r, fmt.Errorf("upload %s: %w", header.Filename, sheet.ErrFileTooLarge))
		return
	}
	if !sheet.Supported(header.Filename) {
		respondError(w, r, fmt.Errorf("upload %s: %w", header.Filename, sheet.ErrUnsupportedFormat))
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	info, err := s.service.Load(ctx, header.Filename, file)
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/sessions/"+info.ID)
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Sessions())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	info, err := s.service.Session(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	ctx := WithRequestMetadata(r.Context(), r)
	if err := s.service.Discard(ctx, chi.URLParam(r, "sessionID")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleRecords lists record summaries, optionally filtered by ?search=.
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.Records(chi.URLParam(r, "sessionID"), r.URL.Query().Get("search"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if records == nil {
		records = []core.RecordSummary{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	recordID, ok := recordIDParam(w, r)
	if !ok {
		return
	}
	detail, err := s.service.Record(chi.URLParam(r, "sessionID"), recordID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// reconcileRequest is the body of POST .../records/{recordID}. Values may be
// strings, numbers or null; null entries are ignored.
type reconcileRequest struct {
	Values map[string]core.Cell `json:"values"`
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	recordID, ok := recordIDParam(w, r)
	if !ok {
		return
	}

	var req reconcileRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxReconcileBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	values := make(map[string]string, len(req.Values))
	for col, v := range req.Values {
		if v.Valid {
			values[col] = v.String
		}
	}

	ctx := WithRequestMetadata(r.Context(), r)
	out, err := s.service.Reconcile(ctx, chi.URLParam(r, "sessionID"), recordID, values)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", core.DefaultHeatmapRows)
	hm, err := s.service.Heatmap(chi.URLParam(r, "sessionID"), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hm)
}

// handleExport streams the filtered records as an xlsx or csv download.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	mode, err := core.ParseExportMode(r.URL.Query().Get("mode"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	format, err := sheet.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	file, err := s.service.Export(ctx, chi.URLParam(r, "sessionID"), mode, format)
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", sheet.ContentType(file.Format))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, file.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	w.Header().Set("X-Export-Rows", strconv.Itoa(file.Rows))
	_, _ = w.Write(file.Data)
}

// handleReport renders the printable completeness report.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.service.Report(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.Report(rep).Render(r.Context(), w); err != nil {
		respondError(w, r, err)
	}
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	limit := parseIntParam(r, "limit", defaultAuditLimit)

	// Entries outlive their session, so no session lookup here.
	entries, err := s.service.AuditLog(r.Context(), id, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// recordIDParam parses {recordID}, writing a 400 when it is not a
// non-negative integer.
func recordIDParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "recordID"))
	if err != nil || id < 0 {
		writeError(w, r, http.StatusBadRequest, "invalid record id")
		return 0, false
	}
	return id, true
}

// parseIntParam reads a positive integer query parameter, falling back to
// defaultVal when it is absent or malformed.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}
