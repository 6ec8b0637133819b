package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"codearena/internal/arena/model"
	pkgerrors "codearena/pkg/errors"
)

type nopHandler struct{}

func (nopHandler) HandleConnect(ctx context.Context, userID int64)    {}
func (nopHandler) HandleDisconnect(ctx context.Context, userID int64) {}
func (nopHandler) HandleMessage(ctx context.Context, userID int64, msgType string, payload json.RawMessage) {
}

func TestReadPumpRejectsMalformedMessage(t *testing.T) {
	hub := NewHub()
	hub.SetHandler(nopHandler{})
	go hub.Run()
	t.Cleanup(hub.Stop)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(hub, w, r, 1)
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var event model.Event
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.Type != model.EventError {
		t.Fatalf("expected error event, got %q", event.Type)
	}
	var payload model.ErrorPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Code != int(pkgerrors.InvalidParams) {
		t.Fatalf("expected code %d, got %d", pkgerrors.InvalidParams, payload.Code)
	}
}
