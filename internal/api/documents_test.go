package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localrag/localrag/internal/document"
	"github.com/localrag/localrag/internal/ingest"
	"github.com/localrag/localrag/internal/log"
)

type fakeIngester struct {
	batchResults []ingest.FileResult
	gotFiles     []string

	listDocs  []document.Document
	listTotal int
	listOpts  document.ListOptions
	listErr   error

	deleteErr error
	deletedID uuid.UUID
}

func (f *fakeIngester) IngestBatch(_ context.Context, files []ingest.File) []ingest.FileResult {
	for _, file := range files {
		f.gotFiles = append(f.gotFiles, file.Name)
	}
	return f.batchResults
}

func (f *fakeIngester) Delete(_ context.Context, id uuid.UUID) error {
	f.deletedID = id
	return f.deleteErr
}

func (f *fakeIngester) List(_ context.Context, opts document.ListOptions) ([]document.Document, int, error) {
	f.listOpts = opts
	return f.listDocs, f.listTotal, f.listErr
}

func newDocumentsHandler(engine Ingester) *documentsHandler {
	return &documentsHandler{engine: engine, logger: log.NewNop()}
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = io.WriteString(part, content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUpload(t *testing.T) {
	docID := uuid.New()
	engine := &fakeIngester{
		batchResults: []ingest.FileResult{
			{Name: "notes.md", Result: ingest.Result{Outcome: ingest.OutcomeCreated, DocumentID: docID, ChunkCount: 3}},
			{Name: "broken.pdf", Err: errors.New("extracting content: truncated file")},
		},
	}
	h := newDocumentsHandler(engine)

	body, contentType := multipartBody(t, map[string]string{
		"notes.md":   "# Notes\n\nsome text",
		"broken.pdf": "not really a pdf",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.upload(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.ElementsMatch(t, []string{"notes.md", "broken.pdf"}, engine.gotFiles)

	var resp struct {
		Files []UploadFileResult `json:"files"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Files, 2)

	assert.Equal(t, "notes.md", resp.Files[0].Name)
	assert.Equal(t, "created", resp.Files[0].Outcome)
	assert.Equal(t, docID, resp.Files[0].DocumentID)
	assert.Equal(t, 3, resp.Files[0].ChunkCount)
	assert.Empty(t, resp.Files[0].Error)

	assert.Equal(t, "broken.pdf", resp.Files[1].Name)
	assert.Empty(t, resp.Files[1].Outcome)
	assert.Contains(t, resp.Files[1].Error, "truncated file")
}

func TestUploadNoFiles(t *testing.T) {
	h := newDocumentsHandler(&fakeIngester{})

	body, contentType := multipartBody(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.upload(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "no files provided")
}

func TestUploadNotMultipart(t *testing.T) {
	h := newDocumentsHandler(&fakeIngester{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", bytes.NewBufferString(`{"not":"multipart"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.upload(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestList(t *testing.T) {
	engine := &fakeIngester{
		listDocs: []document.Document{
			{
				ID:       uuid.New(),
				Title:    "handbook.pdf",
				Type:     document.TypePDF,
				ChunkIDs: []string{"a", "b", "c"},
				Content:  "should not appear in the response",
			},
		},
		listTotal: 17,
	}
	h := newDocumentsHandler(engine)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents?type=pdf,markdown&page=2&pageSize=5", nil)
	rec := httptest.NewRecorder()

	h.list(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []document.Type{document.TypePDF, document.TypeMarkdown}, engine.listOpts.Types)
	assert.Equal(t, 2, engine.listOpts.Page)
	assert.Equal(t, 5, engine.listOpts.PageSize)

	var resp struct {
		Documents []DocumentSummary `json:"documents"`
		Total     int               `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 17, resp.Total)
	require.Len(t, resp.Documents, 1)
	assert.Equal(t, "handbook.pdf", resp.Documents[0].Title)
	assert.Equal(t, 3, resp.Documents[0].ChunkCount)
	assert.NotContains(t, rec.Body.String(), "should not appear")
}

func TestListUnknownType(t *testing.T) {
	h := newDocumentsHandler(&fakeIngester{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents?type=docx", nil)
	rec := httptest.NewRecorder()

	h.list(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown document type")
}

func TestListBadPageParam(t *testing.T) {
	h := newDocumentsHandler(&fakeIngester{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents?page=two", nil)
	rec := httptest.NewRecorder()

	h.list(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListStoreError(t *testing.T) {
	h := newDocumentsHandler(&fakeIngester{listErr: errors.New("connection refused")})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)
	rec := httptest.NewRecorder()

	h.list(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestParseListOptions(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  document.ListOptions
	}{
		{
			name:  "defaults",
			query: "",
			want:  document.ListOptions{},
		},
		{
			name:  "repeated type params",
			query: "type=pdf&type=markdown",
			want:  document.ListOptions{Types: []document.Type{document.TypePDF, document.TypeMarkdown}},
		},
		{
			name:  "skip overrides paging",
			query: "skip=40&pageSize=10",
			want:  document.ListOptions{Offset: 40, PageSize: 10},
		},
		{
			name:  "unbounded page size",
			query: "pageSize=-1",
			want:  document.ListOptions{PageSize: -1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, (&url.URL{Path: "/api/v1/documents", RawQuery: tt.query}).String(), nil)
			opts, err := parseListOptions(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, opts)
		})
	}
}

func TestRemove(t *testing.T) {
	engine := &fakeIngester{}
	h := newDocumentsHandler(engine)
	id := uuid.New()

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/documents/"+id.String(), nil)
	req.SetPathValue("id", id.String())
	rec := httptest.NewRecorder()

	h.remove(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, id, engine.deletedID)
}

func TestRemoveNotFound(t *testing.T) {
	h := newDocumentsHandler(&fakeIngester{deleteErr: document.ErrNotFound})
	id := uuid.New()

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/documents/"+id.String(), nil)
	req.SetPathValue("id", id.String())
	rec := httptest.NewRecorder()

	h.remove(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRemoveInvalidID(t *testing.T) {
	h := newDocumentsHandler(&fakeIngester{})

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/documents/not-a-uuid", nil)
	req.SetPathValue("id", "not-a-uuid")
	rec := httptest.NewRecorder()

	h.remove(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
