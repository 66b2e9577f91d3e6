package llm

import (
    "bufio"
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "strings"

    "carevoice/agent/internal/dialogue"
)

// ToolDef describes one callable function offered to the model.
type ToolDef struct {
    Name        string          `json:"name"`
    Description string          `json:"description"`
    Parameters  json.RawMessage `json:"parameters"`
}

// ToolDelta is one streamed tool-call fragment. Index is nil when the
// provider does not tag fragments with a position.
type ToolDelta struct {
    Index     *int
    ID        string
    Name      string
    Arguments string
}

// Delta is one streamed fragment of a model turn.
type Delta struct {
    Content string
    Tool    *ToolDelta
    Err     error
}

// Model streams a chat completion. The returned channel is closed when the
// stream ends; a terminal provider failure arrives as a Delta with Err set.
type Model interface {
    Stream(ctx context.Context, messages []dialogue.Message, tools []ToolDef) (<-chan Delta, error)
}

// Client is an OpenAI-compatible streaming chat client.
type Client struct {
    baseURL string
    apiKey  string
    model   string
    httpc   *http.Client
}

func NewClient(baseURL, apiKey, model string) *Client {
    return &Client{
        baseURL: strings.TrimRight(baseURL, "/"),
        apiKey:  apiKey,
        model:   model,
        httpc:   &http.Client{Timeout: 0},
    }
}

type wireMessage struct {
    Role       string              `json:"role"`
    Content    string              `json:"content,omitempty"`
    ToolCallID string              `json:"tool_call_id,omitempty"`
    ToolCalls  []dialogue.ToolCall `json:"tool_calls,omitempty"`
}

type wireTool struct {
    Type     string  `json:"type"`
    Function ToolDef `json:"function"`
}

func (c *Client) Stream(ctx context.Context, messages []dialogue.Message, tools []ToolDef) (<-chan Delta, error) {
    body := map[string]any{
        "model":    c.model,
        "stream":   true,
        "messages": toWire(messages),
    }
    if len(tools) > 0 {
        wt := make([]wireTool, len(tools))
        for i, t := range tools {
            wt[i] = wireTool{Type: "function", Function: t}
        }
        body["tools"] = wt
    }
    reqBytes, err := json.Marshal(body)
    if err != nil {
        return nil, err
    }

    req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(reqBytes))
    if err != nil {
        return nil, err
    }
    req.Header.Set("Authorization", "Bearer "+c.apiKey)
    req.Header.Set("Content-Type", "application/json")
    req.Header.Set("Accept", "text/event-stream")

    resp, err := c.httpc.Do(req)
    if err != nil {
        return nil, err
    }
    if resp.StatusCode/100 != 2 {
        b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
        resp.Body.Close()
        return nil, fmt.Errorf("llm status=%d body=%s", resp.StatusCode, string(b))
    }

    out := make(chan Delta, 32)
    go c.pump(resp.Body, out)
    return out, nil
}

func (c *Client) pump(body io.ReadCloser, out chan<- Delta) {
    defer close(out)
    defer body.Close()

    decoder := newSSEDecoder(bufio.NewReader(body))
    for {
        _, data, err := decoder.Next()
        if err != nil {
            if err != io.EOF {
                out <- Delta{Err: err}
            }
            return
        }
        if len(data) == 0 {
            continue
        }
        if string(data) == "[DONE]" {
            return
        }

        var chunk struct {
            Choices []struct {
                Delta struct {
                    Content   string `json:"content"`
                    ToolCalls []struct {
                        Index    *int   `json:"index"`
                        ID       string `json:"id"`
                        Function struct {
                            Name      string `json:"name"`
                            Arguments string `json:"arguments"`
                        } `json:"function"`
                    } `json:"tool_calls"`
                } `json:"delta"`
            } `json:"choices"`
        }
        if err := json.Unmarshal(data, &chunk); err != nil {
            continue
        }
        if len(chunk.Choices) == 0 {
            continue
        }
        d := chunk.Choices[0].Delta
        if d.Content != "" {
            out <- Delta{Content: d.Content}
        }
        for _, tc := range d.ToolCalls {
            out <- Delta{Tool: &ToolDelta{
                Index:     tc.Index,
                ID:        tc.ID,
                Name:      tc.Function.Name,
                Arguments: tc.Function.Arguments,
            }}
        }
    }
}

func toWire(in []dialogue.Message) []wireMessage {
    out := make([]wireMessage, len(in))
    for i, m := range in {
        out[i] = wireMessage{
            Role:       m.Role,
            Content:    m.Content,
            ToolCallID: m.ToolCallID,
            ToolCalls:  m.ToolCalls,
        }
    }
    return out
}

type sseDecoder struct {
    r *bufio.Reader
}

func newSSEDecoder(r *bufio.Reader) *sseDecoder { return &sseDecoder{r: r} }

// Next returns (event, data, error). Providers rarely set an event name;
// data lines begin with "data: ".
func (d *sseDecoder) Next() (string, []byte, error) {
    var event string
    var data []byte
    for {
        line, err := d.r.ReadBytes('\n')
        if err != nil {
            return "", nil, err
        }
        line = bytes.TrimSpace(line)
        if len(line) == 0 { // dispatch
            if len(data) == 0 {
                continue
            }
            return event, data, nil
        }
        if bytes.HasPrefix(line, []byte("event:")) {
            event = strings.TrimSpace(string(line[len("event:"):]))
        } else if bytes.HasPrefix(line, []byte("data:")) {
            data = append(data, bytes.TrimSpace(line[len("data:"):])...)
        }
    }
}
