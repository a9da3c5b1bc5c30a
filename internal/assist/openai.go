package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/docassist/docassist/internal/log"
)

const (
	defaultTimeout    = 2 * time.Minute
	maxRetries        = 3
	pollInterval      = 700 * time.Millisecond
	pollDeadline      = 90 * time.Second
	maxErrorBodyBytes = 4096
)

// OpenAIConfig configures the OpenAI adapter.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// OpenAI implements Client against the OpenAI REST API:
// conversations, vector stores as retrieval indexes, and the
// responses endpoint for generation.
type OpenAI struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     log.Logger
}

// NewOpenAI creates the adapter. A nil logger discards output.
func NewOpenAI(cfg OpenAIConfig, logger log.Logger) *OpenAI {
	if logger == nil {
		logger = log.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAI{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

var _ Client = (*OpenAI)(nil)

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// doJSON sends a JSON request and decodes the JSON response into out.
// 429 and 5xx responses are retried with exponential backoff; other
// failures surface immediately as *APIError.
func (c *OpenAI) doJSON(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		c.setAuth(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("sending request: %w", err)
			continue
		}

		retry, err := c.handleResponse(resp, out)
		if err == nil {
			return nil
		}
		if !retry {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("assist: %s %s: retries exhausted: %w", method, path, lastErr)
}

// handleResponse decodes a success body into out or builds an error.
// The bool result reports whether the caller should retry.
func (c *OpenAI) handleResponse(resp *http.Response, out any) (bool, error) {
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			io.Copy(io.Discard, resp.Body)
			return false, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, fmt.Errorf("decoding response: %w", err)
		}
		return false, nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	msg := string(raw)
	var parsed apiErrorBody
	if json.Unmarshal(raw, &parsed) == nil && parsed.Error.Message != "" {
		msg = parsed.Error.Message
	}
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: msg}

	retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
	return retry, apiErr
}

func (c *OpenAI) setAuth(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

type idResponse struct {
	ID string `json:"id"`
}

// CreateConversation provisions a server-side conversation.
func (c *OpenAI) CreateConversation(ctx context.Context, metadata map[string]string) (string, error) {
	body := map[string]any{}
	if len(metadata) > 0 {
		body["metadata"] = metadata
	}
	var resp idResponse
	if err := c.doJSON(ctx, http.MethodPost, "/conversations", body, &resp); err != nil {
		return "", err
	}
	c.logger.Debug("conversation created", "conversation_id", resp.ID)
	return resp.ID, nil
}

// DeleteConversation removes a conversation.
func (c *OpenAI) DeleteConversation(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/conversations/"+id, nil, nil)
}

// CreateIndex provisions a vector store.
func (c *OpenAI) CreateIndex(ctx context.Context, name string) (string, error) {
	var resp idResponse
	if err := c.doJSON(ctx, http.MethodPost, "/vector_stores", map[string]string{"name": name}, &resp); err != nil {
		return "", err
	}
	c.logger.Debug("index created", "index_id", resp.ID, "name", name)
	return resp.ID, nil
}

// DeleteIndex removes a vector store.
func (c *OpenAI) DeleteIndex(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/vector_stores/"+id, nil, nil)
}

// UploadIndexFile uploads content, attaches it to the vector store, and
// polls until indexing finishes or the poll deadline expires.
func (c *OpenAI) UploadIndexFile(ctx context.Context, indexID, filename string, content []byte, attrs map[string]string) (UploadResult, error) {
	fileID, err := c.uploadFile(ctx, filename, content)
	if err != nil {
		return UploadResult{}, err
	}

	attach := map[string]any{"file_id": fileID}
	if len(attrs) > 0 {
		attach["attributes"] = attrs
	}
	var attached struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/vector_stores/"+indexID+"/files", attach, &attached); err != nil {
		// Orphaned raw file; remove it so it does not leak storage.
		if delErr := c.DeleteFile(context.WithoutCancel(ctx), fileID); delErr != nil {
			c.logger.Warn("orphan file cleanup failed", "file_id", fileID, "error", delErr)
		}
		return UploadResult{}, err
	}

	if err := c.waitIndexed(ctx, indexID, fileID, attached.Status); err != nil {
		return UploadResult{}, err
	}
	return UploadResult{FileID: fileID, IndexFileID: attached.ID}, nil
}

func (c *OpenAI) uploadFile(ctx context.Context, filename string, content []byte) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("purpose", "assistants"); err != nil {
		return "", fmt.Errorf("writing multipart field: %w", err)
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("creating multipart file: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return "", fmt.Errorf("writing multipart file: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("closing multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files", &buf)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("uploading file: %w", err)
	}
	var uploaded idResponse
	if _, err := c.handleResponse(resp, &uploaded); err != nil {
		return "", err
	}
	return uploaded.ID, nil
}

// waitIndexed polls the index attachment until it leaves in_progress.
func (c *OpenAI) waitIndexed(ctx context.Context, indexID, fileID, status string) error {
	deadline := time.Now().Add(pollDeadline)
	for status == "" || status == "in_progress" || status == "queued" {
		if time.Now().After(deadline) {
			return fmt.Errorf("assist: indexing of %s timed out", fileID)
		}
		select {
		case <-time.After(pollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}

		var st struct {
			Status    string `json:"status"`
			LastError *struct {
				Message string `json:"message"`
			} `json:"last_error"`
		}
		if err := c.doJSON(ctx, http.MethodGet, "/vector_stores/"+indexID+"/files/"+fileID, nil, &st); err != nil {
			return err
		}
		if st.Status == "failed" || st.Status == "cancelled" {
			msg := st.Status
			if st.LastError != nil {
				msg = st.LastError.Message
			}
			return fmt.Errorf("assist: indexing of %s failed: %s", fileID, msg)
		}
		status = st.Status
	}
	return nil
}

// DeleteIndexFile detaches a file from a vector store.
func (c *OpenAI) DeleteIndexFile(ctx context.Context, indexID, fileID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/vector_stores/"+indexID+"/files/"+fileID, nil, nil)
}

// DeleteFile removes an uploaded file.
func (c *OpenAI) DeleteFile(ctx context.Context, fileID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/files/"+fileID, nil, nil)
}

// ListIndexFiles pages through every file attached to a vector store.
func (c *OpenAI) ListIndexFiles(ctx context.Context, indexID string) ([]IndexFile, error) {
	var files []IndexFile
	after := ""
	for {
		path := "/vector_stores/" + indexID + "/files?limit=100"
		if after != "" {
			path += "&after=" + after
		}
		var page struct {
			Data []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"data"`
			HasMore bool   `json:"has_more"`
			LastID  string `json:"last_id"`
		}
		if err := c.doJSON(ctx, http.MethodGet, path, nil, &page); err != nil {
			return nil, err
		}
		for _, f := range page.Data {
			// Attachment IDs equal the underlying file IDs in this API.
			files = append(files, IndexFile{ID: f.ID, FileID: f.ID, Status: f.Status})
		}
		if !page.HasMore || page.LastID == "" {
			return files, nil
		}
		after = page.LastID
	}
}

// RetrieveFile looks up metadata for an uploaded file.
func (c *OpenAI) RetrieveFile(ctx context.Context, fileID string) (FileInfo, error) {
	var resp struct {
		ID       string `json:"id"`
		Filename string `json:"filename"`
		Bytes    int64  `json:"bytes"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/files/"+fileID, nil, &resp); err != nil {
		return FileInfo{}, err
	}
	return FileInfo{ID: resp.ID, Filename: resp.Filename, Bytes: resp.Bytes}, nil
}

type responsesRequest struct {
	Model           string `json:"model"`
	Conversation    string `json:"conversation,omitempty"`
	Instructions    string `json:"instructions,omitempty"`
	Input           string `json:"input"`
	MaxOutputTokens int    `json:"max_output_tokens,omitempty"`
	Tools           []any  `json:"tools,omitempty"`
	ToolChoice      any    `json:"tool_choice,omitempty"`
}

type responsesResponse struct {
	ID     string `json:"id"`
	Output []struct {
		Type    string `json:"type"`
		Content []struct {
			Type        string `json:"type"`
			Text        string `json:"text"`
			Annotations []struct {
				Type     string `json:"type"`
				FileID   string `json:"file_id"`
				Filename string `json:"filename"`
				Quote    string `json:"quote"`
			} `json:"annotations"`
		} `json:"content"`
	} `json:"output"`
}

// Respond generates a reply on the responses endpoint, optionally with
// retrieval over the request's indexes.
func (c *OpenAI) Respond(ctx context.Context, req RespondRequest) (*Response, error) {
	body := responsesRequest{
		Model:           req.Model,
		Conversation:    req.ConversationID,
		Instructions:    req.Instructions,
		Input:           req.Input,
		MaxOutputTokens: req.MaxOutputTokens,
	}
	if len(req.IndexIDs) > 0 {
		body.Tools = []any{map[string]any{
			"type":             "file_search",
			"vector_store_ids": req.IndexIDs,
		}}
		if req.ForceRetrieval {
			body.ToolChoice = map[string]string{"type": "file_search"}
		}
	}

	var resp responsesResponse
	if err := c.doJSON(ctx, http.MethodPost, "/responses", body, &resp); err != nil {
		return nil, err
	}

	out := &Response{ID: resp.ID}
	var text strings.Builder
	for _, item := range resp.Output {
		if item.Type != "message" {
			continue
		}
		for _, content := range item.Content {
			if content.Type != "output_text" {
				continue
			}
			text.WriteString(content.Text)
			for _, a := range content.Annotations {
				if a.Type != "file_citation" {
					continue
				}
				out.Annotations = append(out.Annotations, Annotation{
					FileID:   a.FileID,
					Filename: a.Filename,
					Quote:    a.Quote,
				})
			}
		}
	}
	out.Text = strings.TrimSpace(text.String())
	return out, nil
}

// Complete runs a one-shot completion without conversation state.
func (c *OpenAI) Complete(ctx context.Context, model, instructions, input string, maxOutputTokens int) (string, error) {
	resp, err := c.Respond(ctx, RespondRequest{
		Model:           model,
		Instructions:    instructions,
		Input:           input,
		MaxOutputTokens: maxOutputTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
