package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"training-gate-service/internal/domain"
)

func TestStatusFeedStreamsUpdates(t *testing.T) {
	h := newTestHandler(t).Routes()
	server := httptest.NewServer(h)
	defer server.Close()

	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/sessions/s1/status/ws?user_id=c1&role=coordinator"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Expect the current status first.
	typ, summary := readStatus(t, conn)
	if typ != "status" || summary.Stages[domain.StagePreTest].Released {
		t.Fatalf("expected initial unreleased status, got %s %+v", typ, summary)
	}

	req, _ := http.NewRequest(http.MethodPost, server.URL+"/sessions/s1/access/release",
		strings.NewReader(`{"stage":"pre_test","enabled":true}`))
	req.Header.Set(headerUserID, "c1")
	req.Header.Set(headerUserRole, "coordinator")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	resp.Body.Close()

	typ, summary = readStatus(t, conn)
	if typ != "status" || !summary.Stages[domain.StagePreTest].Released || summary.TotalParticipants != 2 {
		t.Fatalf("expected released status, got %s %+v", typ, summary)
	}
}

func TestStatusFeedRejectsParticipants(t *testing.T) {
	server := httptest.NewServer(newTestHandler(t).Routes())
	defer server.Close()

	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/sessions/s1/status/ws?user_id=p1&role=participant"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var msg outboundMessage[errorPayload]
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if msg.Type != "error" || msg.Payload.Message == "" {
		t.Fatalf("expected error frame, got %+v", msg)
	}
}

func readStatus(t *testing.T, conn *websocket.Conn) (string, domain.AccessSummary) {
	t.Helper()
	var msg outboundMessage[domain.AccessSummary]
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	return msg.Type, msg.Payload
}
