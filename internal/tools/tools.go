package tools

import (
    "context"
    "fmt"
    "log"
    "sync"

    "carevoice/agent/internal/llm"
)

// Action classifies what the session should do with a tool result.
type Action uint8

const (
    // ActionRespond: speak the text directly, the call is finished.
    ActionRespond Action = iota
    // ActionNotFound: the model asked for a tool that does not exist.
    ActionNotFound
    // ActionError: the tool failed; the text is a spoken apology.
    ActionError
    // ActionNeedsModel: feed the text back to the model for another pass.
    ActionNeedsModel
)

// Result is the outcome of one tool invocation.
type Result struct {
    Action Action
    Text   string
}

// Respond builds a terminal result spoken directly to the user.
func Respond(text string) Result { return Result{Action: ActionRespond, Text: text} }

// NeedsModel builds a result whose text goes back into the dialogue for a
// follow-up model call.
func NeedsModel(text string) Result { return Result{Action: ActionNeedsModel, Text: text} }

// Errorf builds a non-fatal error result.
func Errorf(format string, args ...any) Result {
    return Result{Action: ActionError, Text: fmt.Sprintf(format, args...)}
}

// Handler executes one tool. args is the raw JSON argument string as
// accumulated from the stream; handlers parse it themselves.
type Handler func(ctx context.Context, args string) Result

// Invoker is the surface the turn orchestrator dispatches against.
type Invoker interface {
    Definitions() []llm.ToolDef
    Invoke(ctx context.Context, name, args string) Result
}

// Registry is a thread-safe named tool set.
type Registry struct {
    mu    sync.RWMutex
    defs  []llm.ToolDef
    funcs map[string]Handler
}

func NewRegistry() *Registry {
    return &Registry{funcs: make(map[string]Handler)}
}

// Register adds a tool; a later registration under the same name replaces
// the handler but not the advertised definition order.
func (r *Registry) Register(def llm.ToolDef, h Handler) {
    r.mu.Lock()
    defer r.mu.Unlock()
    if _, exists := r.funcs[def.Name]; !exists {
        r.defs = append(r.defs, def)
    }
    r.funcs[def.Name] = h
}

func (r *Registry) Definitions() []llm.ToolDef {
    r.mu.RLock()
    defer r.mu.RUnlock()
    out := make([]llm.ToolDef, len(r.defs))
    copy(out, r.defs)
    return out
}

// Invoke runs the named tool. A panic inside a handler is downgraded to an
// error result so a misbehaving tool cannot take the session down.
func (r *Registry) Invoke(ctx context.Context, name, args string) (res Result) {
    r.mu.RLock()
    h := r.funcs[name]
    r.mu.RUnlock()
    if h == nil {
        return Result{Action: ActionNotFound, Text: fmt.Sprintf("I don't know how to do %q yet.", name)}
    }
    defer func() {
        if rec := recover(); rec != nil {
            log.Printf("[tools] panic in %s: %v", name, rec)
            res = Errorf("Sorry, something went wrong while doing that.")
        }
    }()
    return h(ctx, args)
}
