package dialogue

import (
    "sync"
)

// Message is one entry in the conversation log.
type Message struct {
    Role       string     `json:"role"` // system | user | assistant | tool
    Content    string     `json:"content,omitempty"`
    ToolCallID string     `json:"tool_call_id,omitempty"`
    ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a structured function invocation carried on an assistant message.
type ToolCall struct {
    ID       string `json:"id"`
    Type     string `json:"type"`
    Index    int    `json:"index"`
    Function struct {
        Name      string `json:"name"`
        Arguments string `json:"arguments"`
    } `json:"function"`
}

// Dialogue is the ordered, append-only message log for one session. The
// system message is special: it is replaced in place, never appended twice.
type Dialogue struct {
    mu       sync.Mutex
    messages []Message
    turnSeq  uint64
}

func New() *Dialogue {
    return &Dialogue{}
}

// Put appends a message to the log.
func (d *Dialogue) Put(m Message) {
    d.mu.Lock()
    d.messages = append(d.messages, m)
    d.mu.Unlock()
}

// SetSystem replaces the system message, inserting it at position 0 if none
// exists yet.
func (d *Dialogue) SetSystem(prompt string) {
    d.mu.Lock()
    defer d.mu.Unlock()
    for i := range d.messages {
        if d.messages[i].Role == "system" {
            d.messages[i].Content = prompt
            return
        }
    }
    d.messages = append([]Message{{Role: "system", Content: prompt}}, d.messages...)
}

// Messages returns a copy of the log in append order.
func (d *Dialogue) Messages() []Message {
    d.mu.Lock()
    defer d.mu.Unlock()
    out := make([]Message, len(d.messages))
    copy(out, d.messages)
    return out
}

// Len reports the number of messages including the system message.
func (d *Dialogue) Len() int {
    d.mu.Lock()
    defer d.mu.Unlock()
    return len(d.messages)
}

// NextTurn advances and returns the monotonic turn counter.
func (d *Dialogue) NextTurn() uint64 {
    d.mu.Lock()
    defer d.mu.Unlock()
    d.turnSeq++
    return d.turnSeq
}
