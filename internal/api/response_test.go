package api

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/docassist/docassist/internal/log"
)

type errorEnvelope struct {
	Code    string
	Message string
}

func decodeErrorEnvelope(t *testing.T, w *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()

	var body errorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error envelope: %v (body: %s)", err, w.Body.String())
	}
	return errorEnvelope{Code: body.Error.Code, Message: body.Error.Message}
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()

	writeJSON(w, 200, map[string]string{"message": "hello"}, log.NewNop())

	if w.Code != 200 {
		t.Fatalf("writeJSON status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}

	var result map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if result["message"] != "hello" {
		t.Errorf("message = %q, want hello", result["message"])
	}
}

func TestWriteJSON_EncodeFailure(t *testing.T) {
	w := httptest.NewRecorder()

	// Channels cannot be JSON encoded.
	writeJSON(w, 200, map[string]any{"bad": make(chan int)}, log.NewNop())

	if w.Code != 500 {
		t.Fatalf("writeJSON(unencodable) status = %d, want 500", w.Code)
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()

	writeError(w, 404, "not_found", "document not found", log.NewNop())

	if w.Code != 404 {
		t.Fatalf("writeError status = %d, want 404", w.Code)
	}
	env := decodeErrorEnvelope(t, w)
	if env.Code != "not_found" {
		t.Errorf("error code = %q, want not_found", env.Code)
	}
	if env.Message != "document not found" {
		t.Errorf("error message = %q, want %q", env.Message, "document not found")
	}
}
