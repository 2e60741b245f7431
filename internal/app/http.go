package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/saianfordx/vellum/internal/agent"
	"github.com/saianfordx/vellum/internal/ingest"
	"github.com/saianfordx/vellum/pkg/docstore"
	"github.com/saianfordx/vellum/pkg/document"
)

// maxUploadBytes caps a single document upload. Uploads are plain extracted
// text, so anything larger is almost certainly a mistake.
const maxUploadBytes = 32 << 20

// chatRequest is the POST /v1/chat body. History entries alternate
// user/assistant starting with the oldest user turn.
type chatRequest struct {
	Question string   `json:"question"`
	History  []string `json:"history"`
}

// chatResponse extends the agent's answer with the per-turn accounting that
// the Answer type itself does not serialize.
type chatResponse struct {
	*agent.Answer
	Iterations int       `json:"iterations"`
	Usage      usageInfo `json:"usage"`
}

type usageInfo struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// documentInfo is the wire form of a stored document. Content is deliberately
// omitted; the chat endpoint is the way to read document knowledge back out.
type documentInfo struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	Source      string    `json:"source"`
	MimeType    string    `json:"mimeType,omitempty"`
	Size        int64     `json:"size"`
	Language    string    `json:"language,omitempty"`
	Status      string    `json:"status"`
	ChunkCount  int       `json:"chunkCount"`
	UploadedAt  time.Time `json:"uploadedAt"`
	ProcessedAt time.Time `json:"processedAt,omitzero"`
}

type documentList struct {
	Documents []documentInfo `json:"documents"`
	Total     int            `json:"total"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleChat answers one question through the agent loop.
func (a *App) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question must not be empty")
		return
	}

	a.metrics.ActiveTurns.Add(ctx, 1)
	start := time.Now()
	ans, err := a.Orchestrator().Answer(ctx, req.Question, req.History)
	a.metrics.TurnDuration.Record(ctx, time.Since(start).Seconds())
	a.metrics.ActiveTurns.Add(ctx, -1)

	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			// Client is gone; nothing useful to write.
			return
		case errors.Is(err, context.DeadlineExceeded):
			writeError(w, http.StatusGatewayTimeout, "answer timed out")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	a.metrics.RecordTokenUsage(ctx, int64(ans.Usage.PromptTokens), int64(ans.Usage.CompletionTokens))

	writeJSON(w, http.StatusOK, chatResponse{
		Answer:     ans,
		Iterations: ans.Iterations,
		Usage: usageInfo{
			PromptTokens:     ans.Usage.PromptTokens,
			CompletionTokens: ans.Usage.CompletionTokens,
			TotalTokens:      ans.Usage.TotalTokens,
		},
	})
}

// handleUpload ingests one multipart document upload end to end. The response
// is written only after the document is chunked, embedded, and indexed.
func (a *App) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("read upload: %v", err))
		return
	}

	up := ingest.Upload{
		Filename:     header.Filename,
		Content:      string(content),
		OriginalName: header.Filename,
		MimeType:     header.Header.Get("Content-Type"),
		Size:         header.Size,
		Source:       r.FormValue("source"),
		Language:     r.FormValue("language"),
	}

	a.metrics.ActiveIngests.Add(ctx, 1)
	start := time.Now()
	doc, err := a.pipeline.Ingest(ctx, up)
	a.metrics.IngestDuration.Record(ctx, time.Since(start).Seconds())
	a.metrics.ActiveIngests.Add(ctx, -1)

	if err != nil {
		a.metrics.RecordDocumentIngested(ctx, string(document.StatusFailed))
		if errors.Is(err, context.Canceled) {
			return
		}
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	a.metrics.RecordDocumentIngested(ctx, string(doc.Status))
	a.metrics.ChunksIndexed.Add(ctx, int64(doc.Metadata.ChunkCount))

	writeJSON(w, http.StatusCreated, toDocumentInfo(doc))
}

// handleListDocuments returns every stored document, newest first.
func (a *App) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := a.store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := documentList{Documents: make([]documentInfo, 0, len(docs))}
	for _, doc := range docs {
		out.Documents = append(out.Documents, toDocumentInfo(doc))
	}
	out.Total = len(out.Documents)

	writeJSON(w, http.StatusOK, out)
}

// handleGetDocument returns a single document by ID.
func (a *App) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := a.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toDocumentInfo(doc))
}

// handleDeleteDocument removes a document and all of its index records.
func (a *App) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := a.pipeline.Delete(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toDocumentInfo(doc *document.Document) documentInfo {
	return documentInfo{
		ID:          doc.ID,
		Filename:    doc.Filename,
		Source:      doc.Metadata.Source,
		MimeType:    doc.Metadata.MimeType,
		Size:        doc.Metadata.Size,
		Language:    doc.Metadata.Language,
		Status:      string(doc.Status),
		ChunkCount:  doc.Metadata.ChunkCount,
		UploadedAt:  doc.UploadedAt,
		ProcessedAt: doc.ProcessedAt,
	}
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encode response"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
