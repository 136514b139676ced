package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"cms-go/internal/cms"
)

type sseMessage struct {
	event string
	data  streamEvent
	rows  json.RawMessage
}

// readEvents parses SSE messages from resp until the body closes.
func readEvents(t *testing.T, resp *http.Response) <-chan sseMessage {
	t.Helper()
	out := make(chan sseMessage, 16)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 64<<10), 1<<20)
		var msg sseMessage
		for sc.Scan() {
			line := sc.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				msg.event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				raw := []byte(strings.TrimPrefix(line, "data: "))
				var body struct {
					Rows json.RawMessage `json:"rows"`
				}
				_ = json.Unmarshal(raw, &msg.data)
				_ = json.Unmarshal(raw, &body)
				msg.rows = body.Rows
			case line == "" && msg.event != "":
				out <- msg
				msg = sseMessage{}
			}
		}
	}()
	return out
}

func next(t *testing.T, events <-chan sseMessage) sseMessage {
	t.Helper()
	select {
	case m, ok := <-events:
		if !ok {
			t.Fatal("stream closed")
		}
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no stream event before deadline")
	}
	return sseMessage{}
}

func openStream(t *testing.T, e *env, query string) (*http.Response, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.srv.URL+"/api/stream?"+query, nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	resp, err := e.srv.Client().Do(req)
	if err != nil {
		cancel()
		t.Fatalf("opening stream: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		resp.Body.Close()
	})
	return resp, cancel
}

func TestStream_PushesFreshReads(t *testing.T) {
	e := newEnv(t, 0)
	resp, _ := openStream(t, e, "table=officials")
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}
	events := readEvents(t, resp)

	first := next(t, events)
	if first.event != "snapshot" || first.data.Table != cms.TableOfficials || string(first.rows) != "[]" {
		t.Fatalf("first event = %+v rows %s", first, first.rows)
	}

	if _, err := e.svc.SaveContent(context.Background(), cms.TableOfficials, cms.ContentInput{
		Fields:   map[string]any{"name": "Collector"},
		IsActive: true,
	}); err != nil {
		t.Fatalf("SaveContent() error = %v", err)
	}

	change := next(t, events)
	if change.event != "change" || change.data.Op != cms.ChangeInsert {
		t.Fatalf("change event = %+v", change)
	}
	if !strings.Contains(string(change.rows), "Collector") {
		t.Errorf("change rows = %s, want the new record", change.rows)
	}
}

func TestStream_UnsubscribesOnDisconnect(t *testing.T) {
	e := newEnv(t, 0)
	resp, cancel := openStream(t, e, "table=officials,schemes,officials")
	events := readEvents(t, resp)
	next(t, events)
	next(t, events)

	if got := e.hub.Active(); got != 2 {
		t.Fatalf("Active() = %d, want one per distinct table", got)
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for e.hub.Active() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("Active() = %d after disconnect, want 0", e.hub.Active())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStream_Rejected(t *testing.T) {
	e := newEnv(t, 1)
	hold, err := e.hub.Subscribe(cms.TableNews, func(cms.Change) {})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer hold.Unsubscribe()

	tests := []struct {
		query string
		want  int
	}{
		{"", http.StatusBadRequest},
		{"table=users", http.StatusBadRequest},
		{"table=officials", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp := e.do(t, http.MethodGet, "/api/stream?"+tt.query, nil, nil)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
	if got := e.hub.Active(); got != 1 {
		t.Errorf("Active() = %d, want only the held subscription", got)
	}
}
