package history

import (
    "context"
    "testing"

    "carevoice/agent/internal/dialogue"
)

func TestMemoryStoreSaveLoad(t *testing.T) {
    s := NewMemoryStore()
    ctx := context.Background()

    err := s.Save(ctx, Record{
        SessionID: "sess-1",
        DeviceID:  "dev-a",
        Messages: []dialogue.Message{
            {Role: "user", Content: "hello"},
            {Role: "assistant", Content: "hi there"},
        },
    })
    if err != nil {
        t.Fatalf("save: %v", err)
    }

    rec, err := s.Load(ctx, "sess-1")
    if err != nil {
        t.Fatalf("load: %v", err)
    }
    if rec == nil || len(rec.Messages) != 2 {
        t.Fatalf("unexpected record %+v", rec)
    }
    if rec.SavedAt.IsZero() {
        t.Fatalf("SavedAt should be stamped on save")
    }
}

func TestMemoryStoreLoadMissing(t *testing.T) {
    rec, err := NewMemoryStore().Load(context.Background(), "nope")
    if err != nil {
        t.Fatalf("load: %v", err)
    }
    if rec != nil {
        t.Fatalf("missing session should load as nil, got %+v", rec)
    }
}
