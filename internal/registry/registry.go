package registry

import (
    "context"
    "sync"
)

// Session is the narrow surface out-of-band producers get: enough to push a
// spoken message into a live connection, nothing else.
type Session interface {
    ID() string
    Say(ctx context.Context, text string) error
}

// Registry maps endpoint (device) ids to their live sessions, with a
// secondary owner index so a producer can reach every device an owner has
// online. It is the only structure shared across sessions and is guarded by
// a single mutex.
type Registry struct {
    mu     sync.RWMutex
    byDev  map[string]Session
    owners map[string][]string // ownerID -> device ids
}

func New() *Registry {
    return &Registry{
        byDev:  make(map[string]Session),
        owners: make(map[string][]string),
    }
}

// Register binds a device id to its session. An existing entry for the same
// device is replaced. ownerID may be empty for unowned devices.
func (r *Registry) Register(deviceID, ownerID string, s Session) {
    r.mu.Lock()
    defer r.mu.Unlock()
    r.byDev[deviceID] = s
    if ownerID == "" {
        return
    }
    for _, d := range r.owners[ownerID] {
        if d == deviceID {
            return
        }
    }
    r.owners[ownerID] = append(r.owners[ownerID], deviceID)
}

// Unregister removes the device and prunes it from every owner index.
func (r *Registry) Unregister(deviceID string) {
    r.mu.Lock()
    defer r.mu.Unlock()
    delete(r.byDev, deviceID)
    for owner, devs := range r.owners {
        for i, d := range devs {
            if d == deviceID {
                r.owners[owner] = append(devs[:i], devs[i+1:]...)
                break
            }
        }
        if len(r.owners[owner]) == 0 {
            delete(r.owners, owner)
        }
    }
}

// Lookup returns the live session for a device, or nil.
func (r *Registry) Lookup(deviceID string) Session {
    r.mu.RLock()
    defer r.mu.RUnlock()
    return r.byDev[deviceID]
}

// LookupAll returns every live session registered under an owner.
func (r *Registry) LookupAll(ownerID string) []Session {
    r.mu.RLock()
    defer r.mu.RUnlock()
    var out []Session
    for _, d := range r.owners[ownerID] {
        if s := r.byDev[d]; s != nil {
            out = append(out, s)
        }
    }
    return out
}

// Count reports the number of registered devices.
func (r *Registry) Count() int {
    r.mu.RLock()
    defer r.mu.RUnlock()
    return len(r.byDev)
}
