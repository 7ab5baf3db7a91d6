package messages

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/miluhq/milu/internal/model/message"
	"github.com/miluhq/milu/internal/service/conversation"
	"github.com/miluhq/milu/internal/service/generate"
	"github.com/miluhq/milu/internal/store/memory"
)

func setupRouter() *chi.Mux {
	conv := conversation.New(memory.New(), generate.NewScript(nil, 0))
	handler := New(conv)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func decodeMessage(t *testing.T, resp *httptest.ResponseRecorder) message.Message {
	t.Helper()
	var msg message.Message
	if err := json.Unmarshal(resp.Body.Bytes(), &msg); err != nil {
		t.Fatalf("decode failed: %v (body: %s)", err, resp.Body.String())
	}
	return msg
}

func TestAppendRootMessage(t *testing.T) {
	r := setupRouter()

	resp := doJSON(t, r, http.MethodPost, "/messages", map[string]any{
		"role":    "system",
		"content": "You are a helpful assistant.",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", resp.Code, resp.Body.String())
	}

	msg := decodeMessage(t, resp)
	if msg.ID == "" {
		t.Fatal("expected an assigned id")
	}
	if msg.Role != message.RoleSystem {
		t.Fatalf("expected role system, got %q", msg.Role)
	}
}

func TestAppendInvalidBody(t *testing.T) {
	r := setupRouter()

	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewReader([]byte("{not json")))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestAppendWithoutRole(t *testing.T) {
	r := setupRouter()

	resp := doJSON(t, r, http.MethodPost, "/messages", map[string]any{"content": "hi"})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestAppendWithUnknownParent(t *testing.T) {
	r := setupRouter()

	resp := doJSON(t, r, http.MethodPost, "/messages", map[string]any{
		"role":     "user",
		"content":  "hi",
		"parentId": "missing",
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestGetNotFound(t *testing.T) {
	r := setupRouter()

	resp := doJSON(t, r, http.MethodGet, "/messages/missing", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestConversationFlow(t *testing.T) {
	r := setupRouter()

	resp := doJSON(t, r, http.MethodPost, "/messages", map[string]any{
		"role":    "user",
		"content": "hi",
	})
	// A user message needs a parent; start with a system root instead.
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for parentless user message, got %d", resp.Code)
	}

	resp = doJSON(t, r, http.MethodPost, "/messages", map[string]any{
		"role":    "system",
		"content": "You are a helpful assistant.",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}
	root := decodeMessage(t, resp)

	resp = doJSON(t, r, http.MethodPost, "/messages", map[string]any{
		"role":     "user",
		"content":  "hello",
		"parentId": root.ID,
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", resp.Code, resp.Body.String())
	}
	child := decodeMessage(t, resp)
	if child.ParentID == nil || *child.ParentID != root.ID {
		t.Fatalf("expected parent %s, got %v", root.ID, child.ParentID)
	}

	resp = doJSON(t, r, http.MethodGet, "/messages/"+root.ID+"/children", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var children []message.Message
	if err := json.Unmarshal(resp.Body.Bytes(), &children); err != nil {
		t.Fatalf("decode children failed: %v", err)
	}
	if len(children) != 1 || children[0].ID != child.ID {
		t.Fatalf("expected [%s], got %v", child.ID, children)
	}

	resp = doJSON(t, r, http.MethodPatch, "/messages/"+root.ID, map[string]any{"status": "done"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	updated := decodeMessage(t, resp)
	if updated.Status == nil || *updated.Status != "done" {
		t.Fatalf("expected status done, got %v", updated.Status)
	}
	if updated.Content == nil || *updated.Content != "You are a helpful assistant." {
		t.Fatalf("content should be untouched, got %v", updated.Content)
	}

	resp = doJSON(t, r, http.MethodDelete, "/messages/"+root.ID, nil)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 while children exist, got %d", resp.Code)
	}

	resp = doJSON(t, r, http.MethodDelete, "/messages/"+child.ID, nil)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	resp = doJSON(t, r, http.MethodDelete, "/messages/"+root.ID, nil)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
}

func TestListRoots(t *testing.T) {
	r := setupRouter()

	resp := doJSON(t, r, http.MethodGet, "/messages", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var roots []message.Message
	if err := json.Unmarshal(resp.Body.Bytes(), &roots); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(roots) != 0 {
		t.Fatalf("expected no roots yet, got %v", roots)
	}

	doJSON(t, r, http.MethodPost, "/messages", map[string]any{"role": "system", "content": "a"})
	doJSON(t, r, http.MethodPost, "/messages", map[string]any{"role": "system", "content": "b"})

	resp = doJSON(t, r, http.MethodGet, "/messages", nil)
	if err := json.Unmarshal(resp.Body.Bytes(), &roots); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(roots) != 2 {
		t.Fatalf("expected 2 roots, got %d", len(roots))
	}
}
