package registry

import (
    "context"
    "testing"
)

type fakeSession struct {
    id   string
    said []string
}

func (f *fakeSession) ID() string { return f.id }

func (f *fakeSession) Say(_ context.Context, text string) error {
    f.said = append(f.said, text)
    return nil
}

func TestRegisterLookup(t *testing.T) {
    r := New()
    s := &fakeSession{id: "sess-1"}
    r.Register("dev-a", "user-1", s)

    if got := r.Lookup("dev-a"); got != Session(s) {
        t.Fatalf("expected registered session, got %v", got)
    }
    if r.Lookup("dev-b") != nil {
        t.Fatalf("unknown device should return nil")
    }
    if r.Count() != 1 {
        t.Fatalf("expected 1 registered device, got %d", r.Count())
    }
}

func TestLookupAllByOwner(t *testing.T) {
    r := New()
    r.Register("dev-a", "user-1", &fakeSession{id: "a"})
    r.Register("dev-b", "user-1", &fakeSession{id: "b"})
    r.Register("dev-c", "user-2", &fakeSession{id: "c"})

    got := r.LookupAll("user-1")
    if len(got) != 2 {
        t.Fatalf("expected 2 sessions for user-1, got %d", len(got))
    }
}

func TestUnregisterPrunesOwnerIndex(t *testing.T) {
    r := New()
    r.Register("dev-a", "user-1", &fakeSession{id: "a"})
    r.Unregister("dev-a")

    if r.Lookup("dev-a") != nil {
        t.Fatalf("unregistered device should not resolve")
    }
    if got := r.LookupAll("user-1"); len(got) != 0 {
        t.Fatalf("owner index should be pruned, got %d sessions", len(got))
    }
}

func TestRegisterReplacesExisting(t *testing.T) {
    r := New()
    r.Register("dev-a", "user-1", &fakeSession{id: "old"})
    r.Register("dev-a", "user-1", &fakeSession{id: "new"})

    if got := r.Lookup("dev-a"); got.ID() != "new" {
        t.Fatalf("expected replacement session, got %s", got.ID())
    }
    if len(r.LookupAll("user-1")) != 1 {
        t.Fatalf("owner index should not duplicate the device")
    }
}
