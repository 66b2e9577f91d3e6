package session

import (
    "context"
    "errors"
    "fmt"
    "log"
    "strings"
    "sync"
    "sync/atomic"
    "time"

    "carevoice/agent/internal/manage"
    "carevoice/agent/internal/tts"
)

const (
    stateUnknown int32 = iota
    stateBound
    stateNeedsBinding
)

const probeRetryDelay = 5 * time.Second

// binder tracks whether the device is bound to an account. Until it is, the
// session has no private config: audio is discarded and the user hears a
// rate-limited prompt with the binding code instead.
type binder struct {
    st       atomic.Int32
    interval time.Duration

    mu         sync.Mutex
    code       string
    uid        string
    save       bool
    lastPrompt time.Time
}

func newBinder(interval time.Duration) *binder {
    if interval <= 0 {
        interval = time.Minute
    }
    return &binder{interval: interval}
}

func (b *binder) state() int32 { return b.st.Load() }

func (b *binder) userID() string {
    b.mu.Lock()
    defer b.mu.Unlock()
    return b.uid
}

func (b *binder) saveHistory() bool {
    if b.st.Load() != stateBound {
        return false
    }
    b.mu.Lock()
    defer b.mu.Unlock()
    return b.save
}

func (b *binder) setBound(uid string, save bool) {
    b.mu.Lock()
    b.uid = uid
    b.save = save
    b.mu.Unlock()
    b.st.Store(stateBound)
}

func (b *binder) setNeedsBinding(code string) {
    b.mu.Lock()
    b.code = code
    b.mu.Unlock()
    b.st.Store(stateNeedsBinding)
    metricUnbound.Inc()
}

// probe resolves the device against the manage API, retrying transport
// failures until the session ends. Without a manage API every device is
// bound with defaults.
func (b *binder) probe(ctx context.Context, s *Session) {
    if !s.deps.Manage.Enabled() {
        b.setBound("", true)
        s.deps.Registry.Register(s.deviceID, "", s)
        return
    }
    for {
        dc, err := s.deps.Manage.DeviceConfig(ctx, s.deviceID, s.clientID)
        if err == nil {
            b.setBound(dc.UserID, dc.SaveHistory)
            s.applyDeviceConfig(dc)
            log.Printf("[session] %s device %s bound user=%s", s.id, s.deviceID, dc.UserID)
            return
        }
        var be *manage.BindError
        switch {
        case errors.As(err, &be):
            b.setNeedsBinding(be.Code)
            log.Printf("[session] %s device %s awaiting binding", s.id, s.deviceID)
            return
        case errors.Is(err, manage.ErrDeviceNotFound):
            b.setNeedsBinding("")
            log.Printf("[session] %s device %s unknown to manage api", s.id, s.deviceID)
            return
        default:
            log.Printf("[session] %s device config probe: %v", s.id, err)
        }
        select {
        case <-ctx.Done():
            return
        case <-time.After(probeRetryDelay):
        }
    }
}

// promptIfDue speaks the binding prompt at most once per interval. While the
// probe is still undecided the session stays quiet.
func (b *binder) promptIfDue(s *Session) {
    if b.st.Load() != stateNeedsBinding {
        return
    }
    b.mu.Lock()
    if time.Since(b.lastPrompt) < b.interval {
        b.mu.Unlock()
        return
    }
    b.lastPrompt = time.Now()
    code := b.code
    b.mu.Unlock()

    metricBindPrompts.Inc()
    s.pipeline.Say(fmt.Sprintf("t%d", s.dlg.NextTurn()), bindPromptText(code))
}

func bindPromptText(code string) string {
    if code == "" {
        return "This device isn't registered yet. Please add it in the care console."
    }
    return fmt.Sprintf("This device isn't linked to an account yet. Your binding code is %s.", spacedDigits(code))
}

// spacedDigits makes a code readable when spoken: "4711" becomes "4 7 1 1".
func spacedDigits(code string) string {
    return strings.Join(strings.Split(code, ""), " ")
}

func (s *Session) applyDeviceConfig(dc *manage.DeviceConfig) {
    if dc.Prompt != "" {
        s.dlg.SetSystem(dc.Prompt)
    }
    if dc.Language != "" {
        s.setLanguage(dc.Language)
    }
    if v, ok := s.synth.(*tts.HTTPSynthesizer); ok {
        v.SetVoice(dc.VoiceID)
    }
    s.orch.FunctionCall = dc.FunctionCall
    // Out-of-band producers can reach the device only once it is bound.
    s.deps.Registry.Register(s.deviceID, dc.UserID, s)
}
