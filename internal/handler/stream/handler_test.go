package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/rag-chatbot/backend/internal/service/ai"
)

type fakeStreamer struct {
	parts     []string
	err       error
	sessionID string
}

func (f *fakeStreamer) StreamChat(_ context.Context, sessionID, _ string, onDelta func(string) error) (ai.Reply, error) {
	f.sessionID = sessionID
	if f.err != nil {
		return ai.Reply{}, f.err
	}
	for _, p := range f.parts {
		if err := onDelta(p); err != nil {
			return ai.Reply{}, err
		}
	}
	return ai.Reply{SessionID: sessionID, Text: strings.Join(f.parts, "")}, nil
}

func readEvents(t *testing.T, body string) []StreamResponse {
	t.Helper()
	var events []StreamResponse
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev StreamResponse
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("decode event %q: %v", line, err)
		}
		events = append(events, ev)
	}
	return events
}

func serve(h *Handler, target string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	req := httptest.NewRequest(http.MethodGet, target, nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestStreamSendsDeltasThenMessage(t *testing.T) {
	fake := &fakeStreamer{parts: []string{"Open ", "at ", "noon."}}
	resp := serve(New(fake), "/stream/s1?message=hours")

	if ct := resp.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected event stream, got %q", ct)
	}

	events := readEvents(t, resp.Body.String())
	var kinds []string
	for _, ev := range events {
		kinds = append(kinds, ev.Event)
	}
	want := "start,delta,delta,delta,message,end"
	if got := strings.Join(kinds, ","); got != want {
		t.Fatalf("expected events %s, got %s", want, got)
	}
	if events[4].Content != "Open at noon." {
		t.Fatalf("unexpected final message %q", events[4].Content)
	}
	if fake.sessionID != "s1" {
		t.Fatalf("expected session s1, got %s", fake.sessionID)
	}
}

func TestStreamReportsUpstreamError(t *testing.T) {
	fake := &fakeStreamer{err: fmt.Errorf("%w: refused", ai.ErrUpstream)}
	resp := serve(New(fake), "/stream/s1?message=hi")

	events := readEvents(t, resp.Body.String())
	if len(events) != 2 || events[1].Event != "error" || events[1].Error == "" {
		t.Fatalf("expected start then error, got %+v", events)
	}
	if strings.Contains(events[1].Error, "refused") {
		t.Fatalf("upstream detail leaked: %q", events[1].Error)
	}
}

func TestStreamRequiresMessage(t *testing.T) {
	resp := serve(New(&fakeStreamer{}), "/stream/s1")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
