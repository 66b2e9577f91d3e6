package llm

import (
    "context"
    "net/http"
    "net/http/httptest"
    "testing"

    "carevoice/agent/internal/dialogue"
)

func sseBody(lines ...string) string {
    var out string
    for _, l := range lines {
        out += "data: " + l + "\n\n"
    }
    return out
}

func TestStreamContentDeltas(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        w.Header().Set("Content-Type", "text/event-stream")
        w.Write([]byte(sseBody(
            `{"choices":[{"delta":{"content":"Hello"}}]}`,
            `{"choices":[{"delta":{"content":" world."}}]}`,
            `[DONE]`,
        )))
    }))
    defer srv.Close()

    c := NewClient(srv.URL, "key", "test-model")
    deltas, err := c.Stream(context.Background(), []dialogue.Message{{Role: "user", Content: "hi"}}, nil)
    if err != nil {
        t.Fatalf("stream: %v", err)
    }

    var text string
    for d := range deltas {
        if d.Err != nil {
            t.Fatalf("delta error: %v", d.Err)
        }
        text += d.Content
    }
    if text != "Hello world." {
        t.Fatalf("expected accumulated content, got %q", text)
    }
}

func TestStreamToolCallDeltas(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        w.Write([]byte(sseBody(
            `{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"get_weather","arguments":""}}]}}]}`,
            `{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"city\":\"Oslo\"}"}}]}}]}`,
            `[DONE]`,
        )))
    }))
    defer srv.Close()

    c := NewClient(srv.URL, "key", "test-model")
    deltas, err := c.Stream(context.Background(), nil, []ToolDef{{Name: "get_weather"}})
    if err != nil {
        t.Fatalf("stream: %v", err)
    }

    var tools []*ToolDelta
    for d := range deltas {
        if d.Tool != nil {
            tools = append(tools, d.Tool)
        }
    }
    if len(tools) != 2 {
        t.Fatalf("expected 2 tool deltas, got %d", len(tools))
    }
    if tools[0].Name != "get_weather" || tools[0].ID != "call_1" {
        t.Fatalf("unexpected first delta %+v", tools[0])
    }
    if tools[1].Index == nil || *tools[1].Index != 0 || tools[1].Arguments == "" {
        t.Fatalf("unexpected second delta %+v", tools[1])
    }
}

func TestStreamHTTPError(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        w.WriteHeader(http.StatusInternalServerError)
    }))
    defer srv.Close()

    c := NewClient(srv.URL, "key", "test-model")
    if _, err := c.Stream(context.Background(), nil, nil); err == nil {
        t.Fatalf("expected error on non-2xx status")
    }
}
