package history

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"vhrealtime/middleware/security"
	"vhrealtime/service/chat"
	"vhrealtime/service/identity"
	"vhrealtime/service/storage"
)

type fakeSource struct {
	msgs    []storage.ChatMessage
	err     error
	lastWho identity.Identity
}

func (f *fakeSource) History(_ context.Context, id int64) ([]storage.ChatMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]storage.ChatMessage, 0)
	for _, m := range f.msgs {
		if m.AppointmentID == id {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeSource) Post(_ context.Context, id int64, who identity.Identity, text string) (storage.ChatMessage, error) {
	f.lastWho = who
	if strings.TrimSpace(text) == "" {
		return storage.ChatMessage{}, chat.ErrEmptyMessage.Wrap()
	}
	if f.err != nil {
		return storage.ChatMessage{}, f.err
	}
	m := storage.ChatMessage{ID: "new", AppointmentID: id, SenderID: who.UserID, SenderName: who.Name, SenderRole: who.Role, Body: text}
	f.msgs = append(f.msgs, m)
	return m, nil
}

var caller = identity.Identity{UserID: 9, Name: "Bob Lee", Role: "patient"}

func newRouter(src Source) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(src, nil)
	auth := func(c *gin.Context) { c.Set(security.PPCtxIdentityKey, caller); c.Next() }
	r.GET("/api/chat/:appointment_id/", auth, h.List)
	r.POST("/api/chat/:appointment_id/", auth, h.Create)
	return r
}

func TestList(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	src := &fakeSource{msgs: []storage.ChatMessage{
		{ID: "1", AppointmentID: 42, SenderID: 5, SenderName: "Anna Smith", SenderRole: "doctor", Body: "hello", Timestamp: ts},
		{ID: "2", AppointmentID: 42, SenderID: 9, SenderName: "Bob Lee", SenderRole: "patient", Body: "hi", Timestamp: ts.Add(time.Second)},
		{ID: "3", AppointmentID: 7, Body: "other room"},
	}}
	w := httptest.NewRecorder()
	newRouter(src).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/chat/42/", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 2)
	require.Equal(t, map[string]any{
		"id": "1", "appointment": float64(42), "sender": float64(5), "sender_name": "Anna Smith",
		"sender_role": "doctor", "message": "hello", "timestamp": "2025-01-02T03:04:05Z",
	}, got[0])
}

func TestList_EmptyIsArray(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter(&fakeSource{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/chat/1/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `[]`, w.Body.String())
}

func TestList_Errors(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter(&fakeSource{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/chat/abc/", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	newRouter(&fakeSource{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/chat/0/", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	newRouter(&fakeSource{err: errors.New("db down")}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/chat/1/", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestCreate(t *testing.T) {
	src := &fakeSource{}
	r := newRouter(src)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/chat/42/", strings.NewReader(`{"message":"hello"}`)))
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, caller, src.lastWho)
	require.Len(t, src.msgs, 1)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/chat/42/", strings.NewReader(`{"message":"  "}`)))
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/chat/42/", strings.NewReader(`nope`)))
	require.Equal(t, http.StatusBadRequest, w.Code)

	src.err = errors.New("db down")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/chat/42/", strings.NewReader(`{"message":"x"}`)))
	require.Equal(t, http.StatusInternalServerError, w.Code)
}
