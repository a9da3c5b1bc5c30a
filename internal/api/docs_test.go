package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/docassist/docassist/internal/assist"
	"github.com/docassist/docassist/internal/chat"
	"github.com/docassist/docassist/internal/knowledge"
	"github.com/docassist/docassist/internal/log"
	"github.com/docassist/docassist/internal/store"
)

func testLimits() Limits {
	return Limits{
		MaxDocIDChars:        32,
		MaxUserMessageChars:  100,
		MaxInstructionsChars: 100,
		MaxTitleChars:        50,
		MaxFilenameChars:     50,
		MaxDocTextChars:      1000,
		MaxUploadBytes:       1024,
	}
}

func newTestHandler() *docsHandler {
	return &docsHandler{limits: testLimits(), logger: log.NewNop()}
}

func TestInit_RejectsInvalidBody(t *testing.T) {
	h := newTestHandler()

	tests := []struct {
		name string
		body string
	}{
		{"malformed JSON", `{"docId": `},
		{"missing docId", `{}`},
		{"docId too long", `{"docId":"` + strings.Repeat("x", 33) + `"}`},
		{"instructions too long", `{"docId":"d1","instructions":"` + strings.Repeat("i", 101) + `"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/v2/init", strings.NewReader(tt.body))
			h.init(w, r)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			if env := decodeErrorEnvelope(t, w); env.Code != "bad_request" {
				t.Errorf("error code = %q, want bad_request", env.Code)
			}
		})
	}
}

func TestSyncDoc_RejectsOversizedText(t *testing.T) {
	h := newTestHandler()

	body := `{"docId":"d1","text":"` + strings.Repeat("a", 1001) + `"}`
	w := httptest.NewRecorder()
	h.syncDoc(w, httptest.NewRequest(http.MethodPost, "/v2/sync-doc", strings.NewReader(body)))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if env := decodeErrorEnvelope(t, w); !strings.Contains(env.Message, "text exceeds") {
		t.Errorf("error message = %q, want text size complaint", env.Message)
	}
}

func TestSyncTab_RequiresTabID(t *testing.T) {
	h := newTestHandler()

	w := httptest.NewRecorder()
	h.syncTab(w, httptest.NewRequest(http.MethodPost, "/v2/sync-tab", strings.NewReader(`{"docId":"d1","text":"hi"}`)))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if env := decodeErrorEnvelope(t, w); !strings.Contains(env.Message, "tabId") {
		t.Errorf("error message = %q, want tabId complaint", env.Message)
	}
}

func TestChat_RejectsOversizedMessage(t *testing.T) {
	h := newTestHandler()

	body := `{"docId":"d1","message":"` + strings.Repeat("m", 101) + `"}`
	w := httptest.NewRecorder()
	h.chatHandler(w, httptest.NewRequest(http.MethodPost, "/v2/chat", strings.NewReader(body)))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestListFiles_RequiresDocID(t *testing.T) {
	h := newTestHandler()

	w := httptest.NewRecorder()
	h.listFiles(w, httptest.NewRequest(http.MethodGet, "/v2/list-files", nil))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestFail_ErrorMapping(t *testing.T) {
	h := newTestHandler()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"empty content", knowledge.ErrEmptyContent, http.StatusBadRequest, "empty_content"},
		{"no chunks", knowledge.ErrNoChunks, http.StatusBadRequest, "no_chunks"},
		{"empty message", chat.ErrEmptyMessage, http.StatusBadRequest, "empty_message"},
		{"not found", store.ErrNotFound, http.StatusNotFound, "not_found"},
		{"wrapped not found", errors.Join(errors.New("loading session"), store.ErrNotFound), http.StatusNotFound, "not_found"},
		{"upstream", &assist.APIError{StatusCode: 500, Message: "server error"}, http.StatusBadGateway, "upstream_error"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.fail(w, tt.err)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if env := decodeErrorEnvelope(t, w); env.Code != tt.wantCode {
				t.Errorf("error code = %q, want %q", env.Code, tt.wantCode)
			}
		})
	}
}

func TestSyncOptionsDefaults(t *testing.T) {
	if opts := syncOptions(false, nil); opts.ReplaceKnowledge || !opts.FileScope {
		t.Errorf("syncOptions(false, nil) = %+v, want file scope on", opts)
	}
	off := false
	if opts := syncOptions(true, &off); !opts.ReplaceKnowledge || opts.FileScope {
		t.Errorf("syncOptions(true, &false) = %+v", opts)
	}
	on := true
	if opts := syncOptions(false, &on); !opts.FileScope {
		t.Errorf("syncOptions(false, &true) = %+v", opts)
	}
}

func TestReconcile_RequiresDocID(t *testing.T) {
	h := newTestHandler()

	w := httptest.NewRecorder()
	h.reconcile(w, httptest.NewRequest(http.MethodGet, "/v2/reconcile", nil))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
