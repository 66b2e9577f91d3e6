package turn

import (
    "context"
    "fmt"
    "strings"
    "sync"
    "testing"

    "carevoice/agent/internal/dialogue"
    "carevoice/agent/internal/llm"
    "carevoice/agent/internal/tools"
    "carevoice/agent/internal/tts"
)

type unitLog struct {
    mu    sync.Mutex
    units []tts.Unit
}

func (l *unitLog) Enqueue(u tts.Unit) bool {
    l.mu.Lock()
    defer l.mu.Unlock()
    l.units = append(l.units, u)
    return true
}

func (l *unitLog) spoken() []string {
    l.mu.Lock()
    defer l.mu.Unlock()
    var out []string
    for _, u := range l.units {
        if u.Framing == tts.SentenceMiddle {
            out = append(out, u.Text)
        }
    }
    return out
}

func (l *unitLog) last() tts.Unit {
    l.mu.Lock()
    defer l.mu.Unlock()
    return l.units[len(l.units)-1]
}

// scriptedModel plays back one delta script per Stream call and records what
// it was asked.
type scriptedModel struct {
    mu      sync.Mutex
    scripts [][]llm.Delta
    calls   int
    gotMsgs [][]dialogue.Message
    gotDefs [][]llm.ToolDef
}

func (m *scriptedModel) Stream(_ context.Context, msgs []dialogue.Message, defs []llm.ToolDef) (<-chan llm.Delta, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    m.gotMsgs = append(m.gotMsgs, msgs)
    m.gotDefs = append(m.gotDefs, defs)
    var script []llm.Delta
    if m.calls < len(m.scripts) {
        script = m.scripts[m.calls]
    }
    m.calls++
    ch := make(chan llm.Delta, len(script)+1)
    for _, d := range script {
        ch <- d
    }
    close(ch)
    return ch, nil
}

type fakeInvoker struct {
    mu      sync.Mutex
    results map[string]tools.Result
    invoked []string
}

func (f *fakeInvoker) Definitions() []llm.ToolDef {
    return []llm.ToolDef{{Name: "get_weather"}, {Name: "remember"}}
}

func (f *fakeInvoker) Invoke(_ context.Context, name, args string) tools.Result {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.invoked = append(f.invoked, name+"("+args+")")
    if r, ok := f.results[name]; ok {
        return r
    }
    return tools.Result{Action: tools.ActionNotFound, Text: "no such tool"}
}

func content(parts ...string) []llm.Delta {
    out := make([]llm.Delta, len(parts))
    for i, p := range parts {
        out[i] = llm.Delta{Content: p}
    }
    return out
}

func idx(i int) *int { return &i }

func TestPlainContentTurn(t *testing.T) {
    dlg := dialogue.New()
    model := &scriptedModel{scripts: [][]llm.Delta{content("Hello the", "re. How are", " you?")}}
    out := &unitLog{}
    o := NewOrchestrator(dlg, model, &fakeInvoker{}, out, 5, nil)

    o.Run(context.Background(), "hi")

    if got := out.units[0].Framing; got != tts.SentenceFirst {
        t.Fatalf("first unit framing = %d", got)
    }
    if got := out.last().Framing; got != tts.SentenceLast {
        t.Fatalf("last unit framing = %d", got)
    }
    want := []string{"Hello there.", "How are you?"}
    got := out.spoken()
    if len(got) != len(want) {
        t.Fatalf("spoken = %v, want %v", got, want)
    }
    for i := range want {
        if got[i] != want[i] {
            t.Fatalf("sentence %d = %q, want %q", i, got[i], want[i])
        }
    }

    msgs := dlg.Messages()
    if len(msgs) != 2 || msgs[0].Role != "user" || msgs[1].Role != "assistant" {
        t.Fatalf("dialogue = %+v", msgs)
    }
    if msgs[1].Content != "Hello there. How are you?" {
        t.Fatalf("assistant content = %q", msgs[1].Content)
    }
}

func TestToolResultFeedsSecondPass(t *testing.T) {
    dlg := dialogue.New()
    model := &scriptedModel{scripts: [][]llm.Delta{
        {
            {Tool: &llm.ToolDelta{Index: idx(0), ID: "c1", Name: "get_weather"}},
            {Tool: &llm.ToolDelta{Index: idx(0), Arguments: `{"city":`}},
            {Tool: &llm.ToolDelta{Index: idx(0), Arguments: `"leeds"}`}},
        },
        content("It is sunny today."),
    }}
    inv := &fakeInvoker{results: map[string]tools.Result{
        "get_weather": tools.NeedsModel("sunny, 21C"),
    }}
    out := &unitLog{}
    o := NewOrchestrator(dlg, model, inv, out, 5, nil)

    o.Run(context.Background(), "weather?")

    if model.calls != 2 {
        t.Fatalf("model calls = %d, want 2", model.calls)
    }
    if len(inv.invoked) != 1 || inv.invoked[0] != `get_weather({"city":"leeds"})` {
        t.Fatalf("invoked = %v", inv.invoked)
    }

    roles := make([]string, 0, 4)
    for _, m := range dlg.Messages() {
        roles = append(roles, m.Role)
    }
    want := "user assistant tool assistant"
    if strings.Join(roles, " ") != want {
        t.Fatalf("roles = %v, want %q", roles, want)
    }
    if tm := dlg.Messages()[2]; tm.ToolCallID != "c1" || tm.Content != "sunny, 21C" {
        t.Fatalf("tool message = %+v", tm)
    }
    if got := out.spoken(); len(got) != 1 || got[0] != "It is sunny today." {
        t.Fatalf("spoken = %v", got)
    }
}

func TestDepthLimitForcesFinalAnswer(t *testing.T) {
    toolPass := []llm.Delta{{Tool: &llm.ToolDelta{Index: idx(0), ID: "c", Name: "get_weather", Arguments: "{}"}}}
    model := &scriptedModel{scripts: [][]llm.Delta{
        toolPass, toolPass, content("Final answer."),
    }}
    inv := &fakeInvoker{results: map[string]tools.Result{
        "get_weather": tools.NeedsModel("keep going"),
    }}
    dlg := dialogue.New()
    out := &unitLog{}
    o := NewOrchestrator(dlg, model, inv, out, 2, nil)

    o.Run(context.Background(), "loop forever")

    if model.calls != 3 {
        t.Fatalf("model calls = %d, want 3", model.calls)
    }
    if len(model.gotDefs[2]) != 0 {
        t.Fatalf("final pass should offer no tools, got %v", model.gotDefs[2])
    }
    lastMsgs := model.gotMsgs[2]
    if lastMsgs[len(lastMsgs)-1].Content != finalAnswerPrompt {
        t.Fatalf("expected forcing prompt, got %q", lastMsgs[len(lastMsgs)-1].Content)
    }
    if got := out.spoken(); len(got) != 1 || got[0] != "Final answer." {
        t.Fatalf("spoken = %v", got)
    }
}

func TestParallelToolsOneRecursivePass(t *testing.T) {
    model := &scriptedModel{scripts: [][]llm.Delta{
        {
            {Tool: &llm.ToolDelta{Index: idx(0), ID: "c1", Name: "remember", Arguments: "{}"}},
            {Tool: &llm.ToolDelta{Index: idx(1), ID: "c2", Name: "get_weather", Arguments: "{}"}},
        },
        content("Done."),
    }}
    inv := &fakeInvoker{results: map[string]tools.Result{
        "remember":    tools.Respond("I'll remember that."),
        "get_weather": tools.NeedsModel("rainy"),
    }}
    dlg := dialogue.New()
    out := &unitLog{}
    o := NewOrchestrator(dlg, model, inv, out, 5, nil)

    o.Run(context.Background(), "do both")

    if model.calls != 2 {
        t.Fatalf("model calls = %d, want exactly one recursive pass", model.calls)
    }
    if len(inv.invoked) != 2 {
        t.Fatalf("invoked = %v", inv.invoked)
    }
    spoken := out.spoken()
    if len(spoken) != 2 || spoken[0] != "I'll remember that." || spoken[1] != "Done." {
        t.Fatalf("spoken = %v", spoken)
    }
    var toolMsgs int
    for _, m := range dlg.Messages() {
        if m.Role == "tool" {
            toolMsgs++
        }
    }
    if toolMsgs != 2 {
        t.Fatalf("tool messages = %d, want 2", toolMsgs)
    }
}

func TestTextAfterToolCallNotSpoken(t *testing.T) {
    model := &scriptedModel{scripts: [][]llm.Delta{
        {
            {Content: "Let me check. "},
            {Tool: &llm.ToolDelta{Index: idx(0), ID: "c1", Name: "get_weather", Arguments: "{}"}},
            {Content: "Scaffolding text. "},
        },
        content("Sunny."),
    }}
    inv := &fakeInvoker{results: map[string]tools.Result{
        "get_weather": tools.NeedsModel("sunny"),
    }}
    out := &unitLog{}
    o := NewOrchestrator(dialogue.New(), model, inv, out, 5, nil)

    o.Run(context.Background(), "weather?")

    spoken := out.spoken()
    if len(spoken) != 2 || spoken[0] != "Let me check." || spoken[1] != "Sunny." {
        t.Fatalf("content streamed after a tool call must stay silent, spoken = %v", spoken)
    }
}

func TestMergeToolDeltaWithoutIndex(t *testing.T) {
    var calls []dialogue.ToolCall
    calls = mergeToolDelta(calls, &llm.ToolDelta{Name: "a", Arguments: `{"x`})
    calls = mergeToolDelta(calls, &llm.ToolDelta{Arguments: `":1}`})
    calls = mergeToolDelta(calls, &llm.ToolDelta{Name: "b"})
    calls = mergeToolDelta(calls, &llm.ToolDelta{Arguments: `{}`})

    if len(calls) != 2 {
        t.Fatalf("calls = %+v, want 2", calls)
    }
    if calls[0].Function.Name != "a" || calls[0].Function.Arguments != `{"x":1}` {
        t.Fatalf("call 0 = %+v", calls[0])
    }
    if calls[1].Function.Name != "b" || calls[1].Function.Arguments != `{}` {
        t.Fatalf("call 1 = %+v", calls[1])
    }
}

func TestTextualToolCallDispatched(t *testing.T) {
    model := &scriptedModel{scripts: [][]llm.Delta{
        content("<tool_call>\n", `{"name":"get_weather","arguments":{"city":"york"}}`, "\n</tool_call>"),
        content("Weather fetched."),
    }}
    inv := &fakeInvoker{results: map[string]tools.Result{
        "get_weather": tools.NeedsModel("cloudy"),
    }}
    out := &unitLog{}
    o := NewOrchestrator(dialogue.New(), model, inv, out, 5, nil)

    o.Run(context.Background(), "weather?")

    if len(inv.invoked) != 1 || !strings.HasPrefix(inv.invoked[0], "get_weather(") {
        t.Fatalf("invoked = %v", inv.invoked)
    }
    spoken := out.spoken()
    if len(spoken) != 1 || spoken[0] != "Weather fetched." {
        t.Fatalf("spoken = %v, tagged call text must not be spoken", spoken)
    }
}

func TestMalformedTextualCallSpokenAsText(t *testing.T) {
    raw := "<tool_call> this is not json"
    model := &scriptedModel{scripts: [][]llm.Delta{content(raw)}}
    inv := &fakeInvoker{}
    dlg := dialogue.New()
    out := &unitLog{}
    o := NewOrchestrator(dlg, model, inv, out, 5, nil)

    o.Run(context.Background(), "hm")

    if len(inv.invoked) != 0 {
        t.Fatalf("no tool should run, invoked = %v", inv.invoked)
    }
    if got := out.spoken(); len(got) != 1 || got[0] != raw {
        t.Fatalf("spoken = %v", got)
    }
    msgs := dlg.Messages()
    if msgs[len(msgs)-1].Role != "assistant" || msgs[len(msgs)-1].Content != raw {
        t.Fatalf("assistant message = %+v", msgs[len(msgs)-1])
    }
}

func TestAbortSkipsFinalMarker(t *testing.T) {
    model := &scriptedModel{scripts: [][]llm.Delta{content("One. ", "Two. ", "Three.")}}
    polls := 0
    aborted := func() bool {
        polls++
        return polls > 1
    }
    out := &unitLog{}
    o := NewOrchestrator(dialogue.New(), model, &fakeInvoker{}, out, 5, aborted)

    o.Run(context.Background(), "talk")

    if got := out.last().Framing; got == tts.SentenceLast {
        t.Fatalf("aborted turn must not emit a final marker, units = %+v", out.units)
    }
    if spoken := out.spoken(); len(spoken) > 1 {
        t.Fatalf("expected at most one sentence before abort, got %v", spoken)
    }
}

func TestModelFailureSpeaksApology(t *testing.T) {
    model := &scriptedModel{scripts: [][]llm.Delta{{{Err: fmt.Errorf("upstream reset")}}}}
    out := &unitLog{}
    o := NewOrchestrator(dialogue.New(), model, &fakeInvoker{}, out, 5, nil)

    o.Run(context.Background(), "hi")

    if got := out.spoken(); len(got) != 1 || got[0] != apologyText {
        t.Fatalf("spoken = %v", got)
    }
    if out.last().Framing != tts.SentenceLast {
        t.Fatalf("failed turn still closes with the final marker")
    }
}

func TestSplitSentences(t *testing.T) {
    done, rest := splitSentences("First. Second! Thi")
    if len(done) != 2 || done[0] != "First." || done[1] != "Second!" {
        t.Fatalf("done = %v", done)
    }
    if strings.TrimSpace(rest) != "Thi" {
        t.Fatalf("rest = %q", rest)
    }
}
