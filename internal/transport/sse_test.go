package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestSSEAdapter_ReceivesEndpointThenMessages(t *testing.T) {
	var mu sync.Mutex
	var posted []string
	postReceived := make(chan struct{}, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/sse", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "event: endpoint\ndata: /messages\n\n")
		fmt.Fprintf(w, "data: {\"jsonrpc\":\"2.0\",\"method\":\"notifications/ping\"}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})
	mux.HandleFunc("/messages", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		posted = append(posted, string(body))
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
		select {
		case postReceived <- struct{}{}:
		default:
		}
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	var receivedMu sync.Mutex
	var received []string
	gotMessage := make(chan struct{}, 1)

	adapter := NewSSEAdapter(server.URL+"/sse", WithSSEMessageHandler(func(msg []byte) {
		receivedMu.Lock()
		received = append(received, string(msg))
		receivedMu.Unlock()
		select {
		case gotMessage <- struct{}{}:
		default:
		}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := adapter.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer func() { _ = adapter.Close() }()

	select {
	case <-gotMessage:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server event")
	}

	receivedMu.Lock()
	if len(received) != 1 || !strings.Contains(received[0], "notifications/ping") {
		t.Errorf("received = %v, want one ping notification", received)
	}
	receivedMu.Unlock()

	if err := adapter.Send(ctx, []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	select {
	case <-postReceived:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for POST to companion endpoint")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(posted) != 1 || !strings.Contains(posted[0], "tools/list") {
		t.Errorf("posted = %v, want one tools/list request routed to the endpoint URL", posted)
	}
}

func TestSSEAdapter_DoubleStart(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sse", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		<-r.Context().Done()
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	adapter := NewSSEAdapter(server.URL + "/sse")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := adapter.Start(ctx); err != nil {
		t.Fatalf("first Start() error: %v", err)
	}
	defer func() { _ = adapter.Close() }()

	if err := adapter.Start(ctx); err == nil {
		t.Error("second Start() = nil error, want error")
	}
}

func TestSSEAdapter_BearerTokenAttached(t *testing.T) {
	gotAuth := make(chan string, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/sse", func(w http.ResponseWriter, r *http.Request) {
		select {
		case gotAuth <- r.Header.Get("Authorization"):
		default:
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		<-r.Context().Done()
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	adapter := NewSSEAdapter(server.URL+"/sse", WithSSEBearerToken("secret-token"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := adapter.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer func() { _ = adapter.Close() }()

	select {
	case auth := <-gotAuth:
		if auth != "Bearer secret-token" {
			t.Errorf("Authorization header = %q, want %q", auth, "Bearer secret-token")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for request")
	}
}
