package tools

import (
    "context"
    "encoding/json"
    "fmt"
    "time"

    "carevoice/agent/internal/llm"
)

// RegisterBuiltins installs the tools every deployment gets regardless of
// device profile.
func RegisterBuiltins(r *Registry) {
    r.Register(llm.ToolDef{
        Name:        "get_time",
        Description: "Get the current local time.",
        Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
    }, func(context.Context, string) Result {
        now := time.Now()
        return Respond(fmt.Sprintf("It's %s.", now.Format("3:04 PM")))
    })

    r.Register(llm.ToolDef{
        Name:        "get_date",
        Description: "Get today's date, including the weekday.",
        Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
    }, func(context.Context, string) Result {
        now := time.Now()
        return Respond(fmt.Sprintf("Today is %s.", now.Format("Monday, January 2")))
    })
}
