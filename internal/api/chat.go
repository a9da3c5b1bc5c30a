package api

import (
	"fmt"
	"net/http"

	"github.com/docassist/docassist/internal/chat"
)

type chatRequest struct {
	DocID        string `json:"docId"`
	Message      string `json:"message"`
	Instructions string `json:"instructions"`
	FocusSHA256  string `json:"focusSha256"`
}

// chat answers a question against the document's retrieval index.
func (h *docsHandler) chatHandler(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), h.logger)
		return
	}
	if err := h.validateChat(req.DocID, req.Message, req.Instructions); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), h.logger)
		return
	}

	// Instructions land on the session; the orchestrator layers them
	// from there.
	sess, err := h.provisioner.Ensure(r.Context(), req.DocID, req.Instructions)
	if err != nil {
		h.fail(w, err)
		return
	}
	result, err := h.chat.Chat(r.Context(), sess, chat.Request{
		Message:     req.Message,
		FocusSHA256: req.FocusSHA256,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result, h.logger)
}

func (h *docsHandler) validateChat(docID, message, instructions string) error {
	if err := h.validateDocID(docID); err != nil {
		return err
	}
	if len(message) > h.limits.MaxUserMessageChars {
		return fmt.Errorf("message exceeds %d characters", h.limits.MaxUserMessageChars)
	}
	if len(instructions) > h.limits.MaxInstructionsChars {
		return fmt.Errorf("instructions exceed %d characters", h.limits.MaxInstructionsChars)
	}
	return nil
}

type agentTab struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

type agentRequest struct {
	DocID        string     `json:"docId"`
	Title        string     `json:"title"`
	DocText      string     `json:"docText"`
	Tabs         []agentTab `json:"tabs"`
	Message      string     `json:"message"`
	Instructions string     `json:"instructions"`
	FileScope    *bool      `json:"fileScope"`
}

type agentSyncEntry struct {
	Kind     string `json:"kind"`
	SourceID string `json:"sourceId,omitempty"`
	SHA256   string `json:"sha256"`
	Reused   bool   `json:"reused"`
	Uploaded int    `json:"uploaded"`
	Error    string `json:"error,omitempty"`
}

type agentResponse struct {
	DocID  string           `json:"docId"`
	Synced []agentSyncEntry `json:"synced"`
	Chat   *chat.Result     `json:"chat,omitempty"`
}

// docsAgent is the composite endpoint: provision, sync everything the
// caller sent, then answer the message in one round trip. Sync failures
// for individual sources are reported per entry and do not abort the chat.
func (h *docsHandler) docsAgent(w http.ResponseWriter, r *http.Request) {
	var req agentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), h.logger)
		return
	}
	if err := h.validateDocID(req.DocID); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), h.logger)
		return
	}
	if len(req.DocText) > h.limits.MaxDocTextChars {
		writeError(w, http.StatusBadRequest, "bad_request",
			fmt.Sprintf("docText exceeds %d characters", h.limits.MaxDocTextChars), h.logger)
		return
	}
	if err := h.validateChat(req.DocID, req.Message, req.Instructions); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), h.logger)
		return
	}

	sess, err := h.provisioner.Ensure(r.Context(), req.DocID, req.Instructions)
	if err != nil {
		h.fail(w, err)
		return
	}

	resp := agentResponse{DocID: req.DocID, Synced: []agentSyncEntry{}}
	opts := syncOptions(false, req.FileScope)

	if req.DocText != "" {
		result, err := h.sync.SyncDoc(r.Context(), sess, req.Title, req.DocText, opts)
		entry := agentSyncEntry{Kind: "doc"}
		if result != nil {
			entry.SHA256 = result.SHA256
			entry.Reused = result.Reused
			entry.Uploaded = result.Uploaded
		}
		if err != nil {
			entry.Error = err.Error()
			h.logger.Warn("agent doc sync failed", "doc_id", req.DocID, "error", err)
		}
		resp.Synced = append(resp.Synced, entry)
	}

	for _, tab := range req.Tabs {
		if len(tab.Text) > h.limits.MaxDocTextChars {
			resp.Synced = append(resp.Synced, agentSyncEntry{
				Kind:     "tab",
				SourceID: tab.ID,
				Error:    fmt.Sprintf("text exceeds %d characters", h.limits.MaxDocTextChars),
			})
			continue
		}
		result, err := h.sync.SyncTab(r.Context(), sess, tab.ID, tab.Title, tab.Text, opts)
		entry := agentSyncEntry{Kind: "tab", SourceID: tab.ID}
		if result != nil {
			entry.SHA256 = result.SHA256
			entry.Reused = result.Reused
			entry.Uploaded = result.Uploaded
		}
		if err != nil {
			entry.Error = err.Error()
			h.logger.Warn("agent tab sync failed", "doc_id", req.DocID, "tab_id", tab.ID, "error", err)
		}
		resp.Synced = append(resp.Synced, entry)
	}

	if req.Message != "" {
		result, err := h.chat.Chat(r.Context(), sess, chat.Request{
			Message: req.Message,
		})
		if err != nil {
			h.fail(w, err)
			return
		}
		resp.Chat = result
	}

	writeJSON(w, http.StatusOK, resp, h.logger)
}
