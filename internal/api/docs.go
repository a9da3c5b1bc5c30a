package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/docassist/docassist/internal/assist"
	"github.com/docassist/docassist/internal/chat"
	"github.com/docassist/docassist/internal/knowledge"
	"github.com/docassist/docassist/internal/log"
	"github.com/docassist/docassist/internal/session"
	"github.com/docassist/docassist/internal/store"
)

// jsonBodyLimit bounds non-upload request bodies.
const jsonBodyLimit = 4 << 20

// Limits are the request validation bounds.
type Limits struct {
	MaxDocIDChars        int
	MaxUserMessageChars  int
	MaxInstructionsChars int
	MaxTitleChars        int
	MaxFilenameChars     int
	MaxDocTextChars      int
	MaxUploadBytes       int
}

// docsHandler serves the document synchronization and chat endpoints.
type docsHandler struct {
	provisioner *session.Provisioner
	sync        *knowledge.Synchronizer
	chat        *chat.Orchestrator
	store       *store.Store
	limits      Limits
	logger      log.Logger
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, jsonBodyLimit)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// validateDocID checks presence and length.
func (h *docsHandler) validateDocID(docID string) error {
	if docID == "" {
		return fmt.Errorf("docId is required")
	}
	if len(docID) > h.limits.MaxDocIDChars {
		return fmt.Errorf("docId exceeds %d characters", h.limits.MaxDocIDChars)
	}
	return nil
}

// fail maps domain errors onto HTTP statuses with the uniform envelope.
func (h *docsHandler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, knowledge.ErrEmptyContent):
		writeError(w, http.StatusBadRequest, "empty_content", "content is empty after normalization", h.logger)
	case errors.Is(err, knowledge.ErrNoChunks):
		writeError(w, http.StatusBadRequest, "no_chunks", "content produced no indexable chunks", h.logger)
	case errors.Is(err, chat.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "empty_message", "message is required", h.logger)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "document not found", h.logger)
	case isUpstream(err):
		h.logger.Error("upstream service error", "error", err)
		writeError(w, http.StatusBadGateway, "upstream_error", "retrieval service request failed", h.logger)
	default:
		h.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
	}
}

func isUpstream(err error) bool {
	var apiErr *assist.APIError
	return errors.As(err, &apiErr)
}

type initRequest struct {
	DocID        string `json:"docId"`
	Instructions string `json:"instructions"`
}

type sessionResponse struct {
	DocID          string `json:"docId"`
	ConversationID string `json:"conversationId"`
	IndexID        string `json:"indexId"`
	Model          string `json:"model"`
}

// init provisions (or fetches) the document session.
func (h *docsHandler) init(w http.ResponseWriter, r *http.Request) {
	var req initRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), h.logger)
		return
	}
	if err := h.validateDocID(req.DocID); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), h.logger)
		return
	}
	if len(req.Instructions) > h.limits.MaxInstructionsChars {
		writeError(w, http.StatusBadRequest, "bad_request",
			fmt.Sprintf("instructions exceed %d characters", h.limits.MaxInstructionsChars), h.logger)
		return
	}

	sess, err := h.provisioner.Ensure(r.Context(), req.DocID, req.Instructions)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		DocID:          sess.DocID,
		ConversationID: sess.ConversationID,
		IndexID:        sess.IndexID,
		Model:          sess.Model,
	}, h.logger)
}

type syncDocRequest struct {
	DocID        string `json:"docId"`
	Title        string `json:"title"`
	Text         string `json:"text"`
	Instructions string `json:"instructions"`
	// ReplaceKnowledge retires everything previously synchronized before
	// indexing. FileScope defaults to true when omitted.
	ReplaceKnowledge bool  `json:"replaceKnowledge"`
	FileScope        *bool `json:"fileScope"`
}

// syncOptions applies the request defaults: never replace unless asked,
// file scope on unless switched off.
func syncOptions(replace bool, fileScope *bool) knowledge.SyncOptions {
	opts := knowledge.SyncOptions{ReplaceKnowledge: replace, FileScope: true}
	if fileScope != nil {
		opts.FileScope = *fileScope
	}
	return opts
}

// syncDoc synchronizes the main document body.
func (h *docsHandler) syncDoc(w http.ResponseWriter, r *http.Request) {
	var req syncDocRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), h.logger)
		return
	}
	if err := h.validateSync(req.DocID, req.Title, req.Text); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), h.logger)
		return
	}

	sess, err := h.provisioner.Ensure(r.Context(), req.DocID, req.Instructions)
	if err != nil {
		h.fail(w, err)
		return
	}
	result, err := h.sync.SyncDoc(r.Context(), sess, req.Title, req.Text,
		syncOptions(req.ReplaceKnowledge, req.FileScope))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result, h.logger)
}

type syncTabRequest struct {
	DocID            string `json:"docId"`
	TabID            string `json:"tabId"`
	Title            string `json:"title"`
	Text             string `json:"text"`
	ReplaceKnowledge bool   `json:"replaceKnowledge"`
	FileScope        *bool  `json:"fileScope"`
}

// syncTab synchronizes one side tab.
func (h *docsHandler) syncTab(w http.ResponseWriter, r *http.Request) {
	var req syncTabRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), h.logger)
		return
	}
	if req.TabID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "tabId is required", h.logger)
		return
	}
	if err := h.validateSync(req.DocID, req.Title, req.Text); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), h.logger)
		return
	}

	sess, err := h.provisioner.Ensure(r.Context(), req.DocID, "")
	if err != nil {
		h.fail(w, err)
		return
	}
	result, err := h.sync.SyncTab(r.Context(), sess, req.TabID, req.Title, req.Text,
		syncOptions(req.ReplaceKnowledge, req.FileScope))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result, h.logger)
}

func (h *docsHandler) validateSync(docID, title, text string) error {
	if err := h.validateDocID(docID); err != nil {
		return err
	}
	if len(title) > h.limits.MaxTitleChars {
		return fmt.Errorf("title exceeds %d characters", h.limits.MaxTitleChars)
	}
	if len(text) > h.limits.MaxDocTextChars {
		return fmt.Errorf("text exceeds %d characters", h.limits.MaxDocTextChars)
	}
	return nil
}

// uploadFile indexes a multipart attachment.
func (h *docsHandler) uploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(h.limits.MaxUploadBytes)+jsonBodyLimit)
	if err := r.ParseMultipartForm(int64(h.limits.MaxUploadBytes)); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid multipart body", h.logger)
		return
	}

	docID := r.FormValue("docId")
	if err := h.validateDocID(docID); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), h.logger)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "file field is required", h.logger)
		return
	}
	defer file.Close()

	if len(header.Filename) > h.limits.MaxFilenameChars {
		writeError(w, http.StatusBadRequest, "bad_request",
			fmt.Sprintf("filename exceeds %d characters", h.limits.MaxFilenameChars), h.logger)
		return
	}

	content, err := io.ReadAll(io.LimitReader(file, int64(h.limits.MaxUploadBytes)+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "reading upload failed", h.logger)
		return
	}
	if len(content) > h.limits.MaxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large",
			fmt.Sprintf("upload exceeds %d bytes", h.limits.MaxUploadBytes), h.logger)
		return
	}

	var fileScope *bool
	if v := r.FormValue("fileScope"); v != "" {
		b := v == "true" || v == "1"
		fileScope = &b
	}
	replace := r.FormValue("replaceKnowledge") == "true" || r.FormValue("replaceKnowledge") == "1"

	sess, err := h.provisioner.Ensure(r.Context(), docID, "")
	if err != nil {
		h.fail(w, err)
		return
	}
	result, err := h.sync.UploadFile(r.Context(), sess, header.Filename, content,
		syncOptions(replace, fileScope))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result, h.logger)
}

type fileEntry struct {
	Kind        string `json:"kind"`
	SHA256      string `json:"sha256"`
	SourceID    string `json:"sourceId,omitempty"`
	FileID      string `json:"fileId,omitempty"`
	FileIndexID string `json:"fileIndexId,omitempty"`
	Title       string `json:"title,omitempty"`
	Filename    string `json:"filename,omitempty"`
	Bytes       int64  `json:"bytes,omitempty"`
	CreatedAt   string `json:"createdAt"`
}

// listFiles returns the synchronized sources of a document.
func (h *docsHandler) listFiles(w http.ResponseWriter, r *http.Request) {
	docID := r.URL.Query().Get("docId")
	if err := h.validateDocID(docID); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), h.logger)
		return
	}

	units, err := h.sync.ListFiles(r.Context(), docID)
	if err != nil {
		h.fail(w, err)
		return
	}

	entries := make([]fileEntry, 0, len(units))
	for _, u := range units {
		entries = append(entries, fileEntry{
			Kind:        u.Kind,
			SHA256:      u.SHA256,
			SourceID:    u.SourceID,
			FileID:      u.FileID,
			FileIndexID: u.FileIndexID,
			Title:       u.Title,
			Filename:    u.Filename,
			Bytes:       u.Bytes,
			CreatedAt:   u.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"docId": docID, "files": entries}, h.logger)
}

// reconcile reports drift between local unit rows and the remote index.
func (h *docsHandler) reconcile(w http.ResponseWriter, r *http.Request) {
	docID := r.URL.Query().Get("docId")
	if err := h.validateDocID(docID); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), h.logger)
		return
	}

	sess, err := h.store.GetSession(r.Context(), docID)
	if err != nil {
		h.fail(w, err)
		return
	}
	report, err := h.sync.Reconcile(r.Context(), sess)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report, h.logger)
}

type docIDRequest struct {
	DocID string `json:"docId"`
}

// resetDoc drops knowledge and history but keeps the session.
func (h *docsHandler) resetDoc(w http.ResponseWriter, r *http.Request) {
	var req docIDRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), h.logger)
		return
	}
	if err := h.validateDocID(req.DocID); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), h.logger)
		return
	}

	result, err := h.sync.Reset(r.Context(), req.DocID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"docId": req.DocID, "retired": result}, h.logger)
}

// cleanup tears the document down completely.
func (h *docsHandler) cleanup(w http.ResponseWriter, r *http.Request) {
	var req docIDRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), h.logger)
		return
	}
	if err := h.validateDocID(req.DocID); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), h.logger)
		return
	}

	result, found, err := h.sync.Cleanup(r.Context(), req.DocID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"docId":   req.DocID,
		"found":   found,
		"cleanup": result,
	}, h.logger)
}
