package turn

import (
    "context"
    "encoding/json"
    "fmt"
    "log"
    "strings"
    "sync"

    "github.com/google/uuid"

    "carevoice/agent/internal/dialogue"
    "carevoice/agent/internal/llm"
    "carevoice/agent/internal/tools"
    "carevoice/agent/internal/tts"
)

const (
    apologyText       = "Sorry, I'm having trouble thinking right now. Please try again in a moment."
    finalAnswerPrompt = "Answer the user now with the information you already have. Do not request any more tools."
)

// Emitter receives ordered output units; the synthesis pipeline implements it.
type Emitter interface {
    Enqueue(u tts.Unit) bool
}

// Orchestrator drives one model turn at a time: stream content, split it into
// sentences, dispatch tool calls, and recurse on tool results that need a
// follow-up model pass.
type Orchestrator struct {
    dlg      *dialogue.Dialogue
    model    llm.Model
    invoker  tools.Invoker
    out      Emitter
    maxDepth int
    aborted  func() bool

    // FunctionCall gates whether tool definitions are offered at all; it is
    // flipped per device profile after binding.
    FunctionCall bool
}

func NewOrchestrator(dlg *dialogue.Dialogue, model llm.Model, invoker tools.Invoker, out Emitter, maxDepth int, aborted func() bool) *Orchestrator {
    if maxDepth <= 0 {
        maxDepth = 5
    }
    if aborted == nil {
        aborted = func() bool { return false }
    }
    return &Orchestrator{
        dlg:          dlg,
        model:        model,
        invoker:      invoker,
        out:          out,
        maxDepth:     maxDepth,
        aborted:      aborted,
        FunctionCall: true,
    }
}

// Run executes a complete turn for one piece of user text. It returns after
// every unit of the turn has been enqueued; synthesis drains asynchronously.
func (o *Orchestrator) Run(ctx context.Context, userText string) {
    turnID := fmt.Sprintf("t%d", o.dlg.NextTurn())
    metricTurns.Inc()

    o.dlg.Put(dialogue.Message{Role: "user", Content: userText})
    o.out.Enqueue(tts.Unit{TurnID: turnID, Framing: tts.SentenceFirst, Kind: tts.ContentAction})

    o.step(ctx, turnID, 0)

    if !o.aborted() {
        o.out.Enqueue(tts.Unit{TurnID: turnID, Framing: tts.SentenceLast, Kind: tts.ContentAction})
    }
}

func (o *Orchestrator) step(ctx context.Context, turnID string, depth int) {
    var defs []llm.ToolDef
    if o.FunctionCall && o.invoker != nil && depth < o.maxDepth {
        defs = o.invoker.Definitions()
    }
    if depth >= o.maxDepth {
        log.Printf("[turn] %s tool depth limit reached, forcing final answer", turnID)
        o.dlg.Put(dialogue.Message{Role: "user", Content: finalAnswerPrompt})
    }

    sctx, cancel := context.WithCancel(ctx)
    defer cancel()

    ch, err := o.model.Stream(sctx, o.dlg.Messages(), defs)
    if err != nil {
        metricModelFailures.Inc()
        log.Printf("[turn] %s model stream failed: %v", turnID, err)
        o.speak(turnID, apologyText)
        return
    }

    var full strings.Builder
    var pending string
    var calls []dialogue.ToolCall
    textual := textualUndecided

    for d := range ch {
        if o.aborted() {
            return
        }
        if d.Err != nil {
            metricModelFailures.Inc()
            log.Printf("[turn] %s model stream broke: %v", turnID, d.Err)
            o.speak(turnID, apologyText)
            return
        }
        if d.Tool != nil {
            calls = mergeToolDelta(calls, d.Tool)
            continue
        }
        if d.Content == "" {
            continue
        }
        full.WriteString(d.Content)
        switch textual {
        case textualYes:
            continue
        case textualUndecided:
            textual = classifyTextual(full.String())
            if textual != textualNo {
                continue
            }
            pending = full.String()
        case textualNo:
            pending += d.Content
        }
        var done []string
        done, pending = splitSentences(pending)
        // Once a tool call is in flight the pass's text is scaffolding for
        // the call, not an answer: stop speaking it.
        if len(calls) == 0 {
            for _, s := range done {
                o.speak(turnID, s)
            }
        }
    }

    if o.aborted() {
        return
    }

    if textual == textualUndecided && full.Len() > 0 {
        // Stream ended before the prefix could be classified.
        textual = textualNo
        pending = full.String()
    }

    assistantContent := strings.TrimSpace(full.String())
    if textual == textualYes && depth < o.maxDepth {
        if tc, ok := parseTextualCall(full.String()); ok {
            calls = append(calls, tc)
            assistantContent = ""
        } else {
            // Malformed tag: keep the raw text as the turn's answer.
            raw := strings.TrimSpace(full.String())
            if raw != "" {
                o.speak(turnID, raw)
                o.dlg.Put(dialogue.Message{Role: "assistant", Content: raw})
            }
            return
        }
    }

    if len(calls) == 0 || depth >= o.maxDepth {
        if s := strings.TrimSpace(pending); s != "" {
            o.speak(turnID, s)
        }
        if assistantContent != "" {
            o.dlg.Put(dialogue.Message{Role: "assistant", Content: assistantContent})
        }
        return
    }

    o.dlg.Put(dialogue.Message{Role: "assistant", Content: assistantContent, ToolCalls: calls})
    o.dispatch(ctx, turnID, depth, calls)
}

// dispatch runs all of a pass's tool calls concurrently, records their results
// in call order, and recurses once if any tool asked for another model pass.
func (o *Orchestrator) dispatch(ctx context.Context, turnID string, depth int, calls []dialogue.ToolCall) {
    results := make([]tools.Result, len(calls))
    var wg sync.WaitGroup
    for i, c := range calls {
        wg.Add(1)
        go func(i int, c dialogue.ToolCall) {
            defer wg.Done()
            results[i] = o.invoker.Invoke(ctx, c.Function.Name, c.Function.Arguments)
        }(i, c)
    }
    wg.Wait()

    if o.aborted() {
        return
    }

    needsModel := false
    for i, r := range results {
        metricToolCalls.WithLabelValues(actionLabel(r.Action)).Inc()
        switch r.Action {
        case tools.ActionNeedsModel:
            needsModel = true
        case tools.ActionRespond, tools.ActionNotFound, tools.ActionError:
            o.speak(turnID, r.Text)
        }
        o.dlg.Put(dialogue.Message{Role: "tool", ToolCallID: calls[i].ID, Content: r.Text})
    }

    if needsModel {
        o.step(ctx, turnID, depth+1)
    }
}

func (o *Orchestrator) speak(turnID, text string) {
    if text == "" {
        return
    }
    o.out.Enqueue(tts.Unit{TurnID: turnID, Framing: tts.SentenceMiddle, Kind: tts.ContentText, Text: text})
}

func actionLabel(a tools.Action) string {
    switch a {
    case tools.ActionRespond:
        return "respond"
    case tools.ActionNotFound:
        return "not_found"
    case tools.ActionError:
        return "error"
    case tools.ActionNeedsModel:
        return "needs_model"
    }
    return "unknown"
}

// mergeToolDelta folds one streamed fragment into the accumulated call list.
// Providers that tag fragments with an index get positional merging; for the
// rest, a fragment carrying a name starts a new call and a nameless fragment
// extends the latest call's arguments.
func mergeToolDelta(calls []dialogue.ToolCall, d *llm.ToolDelta) []dialogue.ToolCall {
    if d.Index != nil {
        for len(calls) <= *d.Index {
            calls = append(calls, dialogue.ToolCall{Type: "function", Index: len(calls)})
        }
        c := &calls[*d.Index]
        if d.ID != "" {
            c.ID = d.ID
        }
        if d.Name != "" {
            c.Function.Name += d.Name
        }
        c.Function.Arguments += d.Arguments
        return calls
    }
    if d.Name != "" {
        tc := dialogue.ToolCall{ID: d.ID, Type: "function", Index: len(calls)}
        if tc.ID == "" {
            tc.ID = uuid.NewString()
        }
        tc.Function.Name = d.Name
        tc.Function.Arguments = d.Arguments
        return append(calls, tc)
    }
    if len(calls) > 0 {
        calls[len(calls)-1].Function.Arguments += d.Arguments
    }
    return calls
}

// Some models emit tool calls as tagged text instead of structured deltas:
//
//	<tool_call>
//	{"name": "...", "arguments": {...}}
//	</tool_call>

const toolCallTag = "<tool_call>"

type textualState uint8

const (
    textualUndecided textualState = iota
    textualNo
    textualYes
)

// classifyTextual decides whether the stream so far looks like a tagged tool
// call. Undecided while the prefix is still shorter than the tag.
func classifyTextual(s string) textualState {
    s = strings.TrimLeft(s, " \t\r\n")
    if s == "" {
        return textualUndecided
    }
    if len(s) < len(toolCallTag) {
        if strings.HasPrefix(toolCallTag, s) {
            return textualUndecided
        }
        return textualNo
    }
    if strings.HasPrefix(s, toolCallTag) {
        return textualYes
    }
    return textualNo
}

func parseTextualCall(s string) (dialogue.ToolCall, bool) {
    s = strings.TrimSpace(s)
    s = strings.TrimPrefix(s, toolCallTag)
    if i := strings.Index(s, "</tool_call>"); i >= 0 {
        s = s[:i]
    }
    var body struct {
        Name      string          `json:"name"`
        Arguments json.RawMessage `json:"arguments"`
    }
    if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &body); err != nil || body.Name == "" {
        return dialogue.ToolCall{}, false
    }
    tc := dialogue.ToolCall{ID: uuid.NewString(), Type: "function"}
    tc.Function.Name = body.Name
    tc.Function.Arguments = string(body.Arguments)
    return tc, true
}

var sentenceEnders = map[rune]bool{
    '。': true, '！': true, '？': true, '；': true,
    '.': true, '!': true, '?': true, ';': true, '\n': true,
}

// splitSentences cuts the pending text at sentence punctuation, returning the
// completed sentences and the unterminated tail.
func splitSentences(s string) ([]string, string) {
    var out []string
    start := 0
    for i, r := range s {
        if sentenceEnders[r] {
            seg := strings.TrimSpace(s[start : i+len(string(r))])
            if seg != "" && seg != string(r) {
                out = append(out, seg)
            }
            start = i + len(string(r))
        }
    }
    return out, s[start:]
}
