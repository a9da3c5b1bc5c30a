// Package assist talks to the hosted retrieval and completion service.
//
// The Client interface is deliberately narrow: it covers exactly the
// operations the rest of the application needs (conversation lifecycle,
// retrieval index lifecycle, file upload and indexing, and response
// generation). Callers depend on the interface; OpenAI is the concrete
// implementation.
package assist

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound reports that a remote resource no longer exists.
// Cleanup paths treat it as success.
var ErrNotFound = errors.New("assist: resource not found")

// APIError carries the HTTP status and message of a failed service call.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("assist: service returned %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err represents a missing remote resource.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}

// IndexFile is one entry in a retrieval index listing.
type IndexFile struct {
	ID     string
	FileID string
	Status string
}

// FileInfo describes an uploaded file.
type FileInfo struct {
	ID       string
	Filename string
	Bytes    int64
}

// UploadResult identifies a file after it has been uploaded and attached
// to a retrieval index.
type UploadResult struct {
	FileID      string
	IndexFileID string
}

// Annotation is a retrieval citation attached to generated output.
type Annotation struct {
	FileID   string
	Filename string
	Quote    string
}

// RespondRequest describes one response-generation call.
type RespondRequest struct {
	Model           string
	ConversationID  string
	Instructions    string
	Input           string
	MaxOutputTokens int
	// IndexIDs enables retrieval over the named indexes when non-empty.
	IndexIDs []string
	// ForceRetrieval requires at least one retrieval pass before answering.
	ForceRetrieval bool
}

// Response is the generated output plus its retrieval citations.
type Response struct {
	ID          string
	Text        string
	Annotations []Annotation
}

// Client is the surface the application uses to reach the service.
type Client interface {
	// CreateConversation provisions a server-side conversation and
	// returns its identifier.
	CreateConversation(ctx context.Context, metadata map[string]string) (string, error)

	// DeleteConversation removes a conversation. Missing conversations
	// return an error satisfying IsNotFound.
	DeleteConversation(ctx context.Context, id string) error

	// CreateIndex provisions a retrieval index and returns its identifier.
	CreateIndex(ctx context.Context, name string) (string, error)

	// DeleteIndex removes a retrieval index.
	DeleteIndex(ctx context.Context, id string) error

	// UploadIndexFile uploads content as a named file, attaches it to the
	// index with the given attributes, and waits until indexing completes.
	UploadIndexFile(ctx context.Context, indexID, filename string, content []byte, attrs map[string]string) (UploadResult, error)

	// DeleteIndexFile detaches a file from an index.
	DeleteIndexFile(ctx context.Context, indexID, fileID string) error

	// DeleteFile removes an uploaded file.
	DeleteFile(ctx context.Context, fileID string) error

	// ListIndexFiles returns all files attached to an index.
	ListIndexFiles(ctx context.Context, indexID string) ([]IndexFile, error)

	// RetrieveFile looks up metadata for an uploaded file.
	RetrieveFile(ctx context.Context, fileID string) (FileInfo, error)

	// Respond generates a reply, optionally grounded by retrieval.
	Respond(ctx context.Context, req RespondRequest) (*Response, error)

	// Complete runs a one-shot completion outside any conversation.
	Complete(ctx context.Context, model, instructions, input string, maxOutputTokens int) (string, error)
}
