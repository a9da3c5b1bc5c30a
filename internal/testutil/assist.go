package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/docassist/docassist/internal/assist"
)

// FakeAssist is an in-memory assist.Client for tests. Zero value works:
// every call succeeds with generated identifiers. Individual calls can be
// overridden through the *Func fields; all calls are recorded.
type FakeAssist struct {
	mu sync.Mutex

	CreateConversationFunc func(ctx context.Context, metadata map[string]string) (string, error)
	CreateIndexFunc        func(ctx context.Context, name string) (string, error)
	UploadIndexFileFunc    func(ctx context.Context, indexID, filename string, content []byte, attrs map[string]string) (assist.UploadResult, error)
	RespondFunc            func(ctx context.Context, req assist.RespondRequest) (*assist.Response, error)
	CompleteFunc           func(ctx context.Context, model, instructions, input string, maxOutputTokens int) (string, error)
	DeleteConversationFunc func(ctx context.Context, id string) error
	DeleteIndexFunc        func(ctx context.Context, id string) error
	DeleteIndexFileFunc    func(ctx context.Context, indexID, fileID string) error
	DeleteFileFunc         func(ctx context.Context, fileID string) error
	RetrieveFileFunc       func(ctx context.Context, fileID string) (assist.FileInfo, error)
	ListIndexFilesFunc     func(ctx context.Context, indexID string) ([]assist.IndexFile, error)

	conversations        int
	indexes              int
	uploads              int
	Uploaded             []FakeUpload
	CreatedIndexes       []string
	RespondRequests      []assist.RespondRequest
	DeletedConversations []string
	DeletedIndexes       []string
	DeletedIndexFiles    []string
	DeletedFiles         []string
}

// FakeUpload records one UploadIndexFile call.
type FakeUpload struct {
	IndexID  string
	Filename string
	Content  string
	Attrs    map[string]string
	Result   assist.UploadResult
}

var _ assist.Client = (*FakeAssist)(nil)

func (f *FakeAssist) CreateConversation(ctx context.Context, metadata map[string]string) (string, error) {
	if f.CreateConversationFunc != nil {
		return f.CreateConversationFunc(ctx, metadata)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conversations++
	return fmt.Sprintf("conv_%d", f.conversations), nil
}

func (f *FakeAssist) DeleteConversation(ctx context.Context, id string) error {
	f.mu.Lock()
	f.DeletedConversations = append(f.DeletedConversations, id)
	f.mu.Unlock()
	if f.DeleteConversationFunc != nil {
		return f.DeleteConversationFunc(ctx, id)
	}
	return nil
}

func (f *FakeAssist) CreateIndex(ctx context.Context, name string) (string, error) {
	f.mu.Lock()
	f.CreatedIndexes = append(f.CreatedIndexes, name)
	f.mu.Unlock()
	if f.CreateIndexFunc != nil {
		return f.CreateIndexFunc(ctx, name)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexes++
	return fmt.Sprintf("vs_%d", f.indexes), nil
}

func (f *FakeAssist) DeleteIndex(ctx context.Context, id string) error {
	f.mu.Lock()
	f.DeletedIndexes = append(f.DeletedIndexes, id)
	f.mu.Unlock()
	if f.DeleteIndexFunc != nil {
		return f.DeleteIndexFunc(ctx, id)
	}
	return nil
}

func (f *FakeAssist) UploadIndexFile(ctx context.Context, indexID, filename string, content []byte, attrs map[string]string) (assist.UploadResult, error) {
	if f.UploadIndexFileFunc != nil {
		res, err := f.UploadIndexFileFunc(ctx, indexID, filename, content, attrs)
		if err == nil {
			f.recordUpload(indexID, filename, content, attrs, res)
		}
		return res, err
	}
	f.mu.Lock()
	f.uploads++
	n := f.uploads
	f.mu.Unlock()
	res := assist.UploadResult{
		FileID:      fmt.Sprintf("file_%d", n),
		IndexFileID: fmt.Sprintf("vsf_%d", n),
	}
	f.recordUpload(indexID, filename, content, attrs, res)
	return res, nil
}

func (f *FakeAssist) recordUpload(indexID, filename string, content []byte, attrs map[string]string, res assist.UploadResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Uploaded = append(f.Uploaded, FakeUpload{
		IndexID:  indexID,
		Filename: filename,
		Content:  string(content),
		Attrs:    attrs,
		Result:   res,
	})
}

func (f *FakeAssist) DeleteIndexFile(ctx context.Context, indexID, fileID string) error {
	f.mu.Lock()
	f.DeletedIndexFiles = append(f.DeletedIndexFiles, fileID)
	f.mu.Unlock()
	if f.DeleteIndexFileFunc != nil {
		return f.DeleteIndexFileFunc(ctx, indexID, fileID)
	}
	return nil
}

func (f *FakeAssist) DeleteFile(ctx context.Context, fileID string) error {
	f.mu.Lock()
	f.DeletedFiles = append(f.DeletedFiles, fileID)
	f.mu.Unlock()
	if f.DeleteFileFunc != nil {
		return f.DeleteFileFunc(ctx, fileID)
	}
	return nil
}

func (f *FakeAssist) ListIndexFiles(ctx context.Context, indexID string) ([]assist.IndexFile, error) {
	if f.ListIndexFilesFunc != nil {
		return f.ListIndexFilesFunc(ctx, indexID)
	}
	return nil, nil
}

func (f *FakeAssist) RetrieveFile(ctx context.Context, fileID string) (assist.FileInfo, error) {
	if f.RetrieveFileFunc != nil {
		return f.RetrieveFileFunc(ctx, fileID)
	}
	return assist.FileInfo{ID: fileID, Filename: fileID + ".txt"}, nil
}

func (f *FakeAssist) Respond(ctx context.Context, req assist.RespondRequest) (*assist.Response, error) {
	f.mu.Lock()
	f.RespondRequests = append(f.RespondRequests, req)
	f.mu.Unlock()
	if f.RespondFunc != nil {
		return f.RespondFunc(ctx, req)
	}
	return &assist.Response{ID: "resp_1", Text: "ok"}, nil
}

func (f *FakeAssist) Complete(ctx context.Context, model, instructions, input string, maxOutputTokens int) (string, error) {
	if f.CompleteFunc != nil {
		return f.CompleteFunc(ctx, model, instructions, input, maxOutputTokens)
	}
	return "summary", nil
}
