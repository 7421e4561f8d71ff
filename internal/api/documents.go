package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/localrag/localrag/internal/document"
	"github.com/localrag/localrag/internal/ingest"
)

// maxUploadBytes bounds one upload request. PDFs of a few hundred pages fit
// comfortably.
const maxUploadBytes = 64 << 20

// Ingester is the slice of the ingestion engine the documents API needs.
type Ingester interface {
	IngestBatch(ctx context.Context, files []ingest.File) []ingest.FileResult
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts document.ListOptions) ([]document.Document, int, error)
}

type documentsHandler struct {
	engine Ingester
	logger *slog.Logger
}

// DocumentSummary is the JSON shape of a catalog record. Content is omitted;
// it can be large and nothing in the API needs it.
type DocumentSummary struct {
	ID          uuid.UUID         `json:"id"`
	Title       string            `json:"title"`
	Type        string            `json:"type"`
	ContentHash string            `json:"contentHash"`
	ChunkCount  int               `json:"chunkCount"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

func summarize(d document.Document) DocumentSummary {
	return DocumentSummary{
		ID:          d.ID,
		Title:       d.Title,
		Type:        string(d.Type),
		ContentHash: d.ContentHash,
		ChunkCount:  len(d.ChunkIDs),
		Metadata:    d.Metadata,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// UploadFileResult is the per-file outcome of an upload request.
type UploadFileResult struct {
	Name       string    `json:"name"`
	Outcome    string    `json:"outcome,omitempty"`
	DocumentID uuid.UUID `json:"documentId,omitempty"`
	ChunkCount int       `json:"chunkCount,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// upload handles POST /api/v1/documents: a multipart form with one or more
// "files" parts. Files are processed in order; one file's failure is
// reported in its result entry and never aborts the batch.
func (h *documentsHandler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "expected multipart form upload", h.logger)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	parts := r.MultipartForm.File["files"]
	if len(parts) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "no files provided", h.logger)
		return
	}

	var files []ingest.File
	var opened []io.Closer
	for _, part := range parts {
		f, err := part.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unreadable file part: "+part.Filename, h.logger)
			for _, c := range opened {
				_ = c.Close()
			}
			return
		}
		opened = append(opened, f)
		files = append(files, ingest.File{Name: part.Filename, Reader: f})
	}
	defer func() {
		for _, c := range opened {
			_ = c.Close()
		}
	}()

	results := h.engine.IngestBatch(r.Context(), files)

	out := make([]UploadFileResult, 0, len(results))
	for _, res := range results {
		entry := UploadFileResult{Name: res.Name}
		if res.Err != nil {
			entry.Error = res.Err.Error()
		} else {
			entry.Outcome = string(res.Result.Outcome)
			entry.DocumentID = res.Result.DocumentID
			entry.ChunkCount = res.Result.ChunkCount
		}
		out = append(out, entry)
	}

	writeJSON(w, http.StatusOK, map[string]any{"files": out}, h.logger)
}

// list handles GET /api/v1/documents.
//
// Query parameters: type (repeatable), page, pageSize (-1 for everything),
// skip (absolute offset, overrides page when set).
func (h *documentsHandler) list(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), h.logger)
		return
	}

	docs, total, err := h.engine.List(r.Context(), opts)
	if err != nil {
		h.logger.Error("listing documents", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "listing documents failed", h.logger)
		return
	}

	summaries := make([]DocumentSummary, 0, len(docs))
	for _, d := range docs {
		summaries = append(summaries, summarize(d))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"documents": summaries,
		"total":     total,
	}, h.logger)
}

func parseListOptions(r *http.Request) (document.ListOptions, error) {
	var opts document.ListOptions
	q := r.URL.Query()

	for _, raw := range q["type"] {
		for _, t := range strings.Split(raw, ",") {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			docType := document.Type(t)
			if !docType.Valid() {
				return opts, errors.New("unknown document type: " + t)
			}
			opts.Types = append(opts.Types, docType)
		}
	}

	var err error
	if opts.Page, err = intParam(q.Get("page"), 0); err != nil {
		return opts, errors.New("page must be an integer")
	}
	if opts.PageSize, err = intParam(q.Get("pageSize"), 0); err != nil {
		return opts, errors.New("pageSize must be an integer")
	}
	if opts.Offset, err = intParam(q.Get("skip"), 0); err != nil {
		return opts, errors.New("skip must be an integer")
	}
	return opts, nil
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// remove handles DELETE /api/v1/documents/{id}.
func (h *documentsHandler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid document id", h.logger)
		return
	}

	if err := h.engine.Delete(r.Context(), id); err != nil {
		if errors.Is(err, document.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "document not found", h.logger)
			return
		}
		h.logger.Error("deleting document", "error", err, "document_id", id)
		writeError(w, http.StatusInternalServerError, "internal_error", "deleting document failed", h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
