package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/taleloom/taleloom/backend/internal/handler"
	chatservice "github.com/taleloom/taleloom/backend/internal/service/chat"
	"github.com/taleloom/taleloom/backend/internal/service/library"
	"github.com/taleloom/taleloom/backend/internal/service/resolve"
	settingsservice "github.com/taleloom/taleloom/backend/internal/service/settings"
	"github.com/taleloom/taleloom/backend/internal/store"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	st := store.NewMemoryStore()
	resolver := resolve.NewResolver(st)
	return handler.NewRouter(handler.Deps{
		ChatSvc:     chatservice.NewService(st, resolver, nil),
		LibrarySvc:  library.NewService(st),
		SettingsSvc: settingsservice.NewService(st),
	})
}

func doJSON(t *testing.T, router http.Handler, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestChatLifecycleOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	// Create a chat.
	rec := doJSON(t, router, http.MethodPost, "/api/chats", map[string]string{"title": "my chat"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create chat: status %d, body %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	decode(t, rec, &created)
	if created.ID == "" {
		t.Fatal("create chat: empty id")
	}

	// Append a user turn.
	rec = doJSON(t, router, http.MethodPost, "/api/chats/"+created.ID+"/messages", map[string]string{
		"role":    "user",
		"content": "hello there",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("append message: status %d, body %s", rec.Code, rec.Body.String())
	}
	var msg struct {
		ID string `json:"id"`
	}
	decode(t, rec, &msg)

	// The resolved view contains the turn.
	rec = doJSON(t, router, http.MethodGet, "/api/chats/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("resolved view: status %d", rec.Code)
	}
	var view struct {
		Messages []struct {
			ID      string `json:"id"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	decode(t, rec, &view)
	if len(view.Messages) != 1 || view.Messages[0].Content != "hello there" {
		t.Fatalf("resolved view: unexpected messages %+v", view.Messages)
	}

	// Fork at the turn.
	rec = doJSON(t, router, http.MethodPost, "/api/chats/"+created.ID+"/fork", map[string]string{
		"messageId": msg.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("fork: status %d, body %s", rec.Code, rec.Body.String())
	}
	var child struct {
		ID       string `json:"id"`
		ParentID string `json:"parentId"`
	}
	decode(t, rec, &child)
	if child.ParentID != created.ID {
		t.Fatalf("fork: parentId = %q, want %q", child.ParentID, created.ID)
	}

	// Delete the parent; the child goes with it.
	rec = doJSON(t, router, http.MethodDelete, "/api/chats/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodGet, "/api/chats/"+child.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("child after cascade delete: status %d, want 404", rec.Code)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/chats/no-such-chat", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing chat: status %d, want 404", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/settings/activate", map[string]string{"name": "ghost"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown preset: status %d, want 400", rec.Code)
	}
}

func TestCharacterLibraryOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/characters", map[string]string{
		"name":        "Alice",
		"description": "A knight",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("save character: status %d, body %s", rec.Code, rec.Body.String())
	}
	var saved struct {
		ID string `json:"id"`
	}
	decode(t, rec, &saved)

	rec = doJSON(t, router, http.MethodGet, "/api/characters/"+saved.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get character: status %d", rec.Code)
	}

	// Name is mandatory.
	rec = doJSON(t, router, http.MethodPost, "/api/characters", map[string]string{"description": "nameless"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("nameless character: status %d, want 400", rec.Code)
	}
}

func TestStreamUnavailableWithoutBackend(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/chats/c1/stream?message=hi", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("stream without backend: status %d, want 503", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/chats/c1/messages/m1/regenerate", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("regenerate without backend: status %d, want 503", rec.Code)
	}
}
