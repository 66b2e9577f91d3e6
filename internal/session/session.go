package session

import (
    "context"
    "fmt"
    "log"
    "strings"
    "sync"
    "sync/atomic"
    "time"

    "github.com/google/uuid"
    ws "nhooyr.io/websocket"

    "carevoice/agent/internal/asr"
    "carevoice/agent/internal/config"
    "carevoice/agent/internal/dialogue"
    "carevoice/agent/internal/history"
    "carevoice/agent/internal/protocol"
    "carevoice/agent/internal/reorder"
    "carevoice/agent/internal/tts"
    "carevoice/agent/internal/turn"
    "carevoice/agent/internal/vad"
)

// watchdogTick is how often the idle watchdog re-checks activity.
const watchdogTick = 10 * time.Second

// wire is the subset of the websocket connection a session uses; tests swap
// in an in-memory implementation.
type wire interface {
    Read(ctx context.Context) (ws.MessageType, []byte, error)
    Write(ctx context.Context, typ ws.MessageType, p []byte) error
    Close(code ws.StatusCode, reason string) error
}

// Session is one device connection: read loop, segmentation, recognition,
// turn handling and ordered synthesis, torn down as a unit.
type Session struct {
    id       string
    deviceID string
    clientID string
    clientIP string
    gateway  bool

    cfg  config.Config
    deps Deps

    conn wire
    sink *wsSink

    dlg      *dialogue.Dialogue
    pipeline *tts.Pipeline
    orch     *turn.Orchestrator
    rec      *asr.Coordinator
    det      *vad.Detector
    jitter   *reorder.Buffer
    bind     *binder
    synth    tts.Synthesizer

    aborted    atomic.Bool
    lastActive atomic.Int64
    closing    atomic.Bool

    langMu   sync.Mutex
    language string

    ctx       context.Context
    cancel    context.CancelFunc
    closeOnce sync.Once
}

func newSession(cfg config.Config, deps Deps, conn wire, deviceID, clientID, clientIP string, gateway bool) *Session {
    s := &Session{
        id:       uuid.NewString(),
        deviceID: deviceID,
        clientID: clientID,
        clientIP: clientIP,
        gateway:  gateway,
        cfg:      cfg,
        deps:     deps,
        conn:     conn,
        dlg:      dialogue.New(),
    }
    s.sink = &wsSink{conn: conn}
    s.synth = deps.Synth()
    s.pipeline = tts.NewPipeline(s.id, s.synth, s.sink, s.aborted.Load)
    s.orch = turn.NewOrchestrator(s.dlg, deps.Model, deps.Tools, s.pipeline, cfg.LLM.MaxToolDepth, s.aborted.Load)
    s.rec = asr.NewCoordinator(deps.ASR, s.onTranscript)
    s.det = vad.New(vad.Config{
        StartFrames:  cfg.VAD.StartFrames,
        EndFrames:    cfg.VAD.EndFrames,
        WindowFrames: cfg.VAD.WindowFrames,
    }, s.onSpeechStart, s.onUtterance)
    s.jitter = reorder.New(cfg.Reorder.Capacity, s.det.Push)
    s.bind = newBinder(cfg.Session.BindPromptInterval)
    s.dlg.SetSystem(cfg.LLM.SystemPrompt)
    s.touch()
    return s
}

// ID implements registry.Session.
func (s *Session) ID() string { return s.id }

// Say pushes an out-of-band spoken message into the session, wrapped in its
// own turn framing. Used by the reminder scheduler and the manage push path.
func (s *Session) Say(_ context.Context, text string) error {
    if s.closing.Load() {
        return fmt.Errorf("session %s closing", s.id)
    }
    turnID := fmt.Sprintf("t%d", s.dlg.NextTurn())
    s.pipeline.Say(turnID, text)
    s.dlg.Put(dialogue.Message{Role: "assistant", Content: text})
    return nil
}

func (s *Session) run(ctx context.Context) {
    sctx, cancel := context.WithCancel(ctx)
    s.ctx = sctx
    s.cancel = cancel
    defer s.teardown()

    metricSessions.Inc()
    gaugeLive.Inc()
    log.Printf("[session] %s open device=%s ip=%s gateway=%v", s.id, s.deviceID, s.clientIP, s.gateway)

    _ = s.sink.SendText(sctx, protocol.Hello(s.id))

    s.pipeline.Start(sctx)
    s.rec.Start(sctx)
    if s.deps.Manage.Enabled() {
        go s.bind.probe(sctx, s)
    } else {
        // No manage API: binding resolves instantly, so the first client
        // frame already sees the bound state.
        s.bind.probe(sctx, s)
    }
    go s.watchdog(sctx)

    for {
        typ, data, err := s.conn.Read(sctx)
        if err != nil {
            return
        }
        switch typ {
        case ws.MessageBinary:
            s.handleAudio(data)
        case ws.MessageText:
            s.handleText(sctx, data)
        }
    }
}

func (s *Session) handleAudio(data []byte) {
    if s.bind.state() == stateNeedsBinding || s.bind.state() == stateUnknown {
        // No private config yet: the audio has nowhere safe to go.
        s.bind.promptIfDue(s)
        return
    }
    if s.gateway {
        frame, err := protocol.ParseGatewayFrame(data)
        if err != nil {
            metricBadFrames.Inc()
            return
        }
        s.jitter.Push(frame.Timestamp, frame.Payload)
        return
    }
    s.det.Push(data)
}

func (s *Session) handleText(ctx context.Context, data []byte) {
    msg, err := protocol.ParseClient(data)
    if err != nil {
        log.Printf("[session] %s bad text frame: %v", s.id, err)
        return
    }
    s.touch()
    switch msg.Type {
    case "hello":
        _ = s.sink.SendText(ctx, protocol.Hello(s.id))
    case "listen":
        s.handleListen(ctx, msg)
    case "abort":
        s.abort(ctx)
    case "chat":
        s.submitUserText(msg.Text)
    default:
        log.Printf("[session] %s ignoring message type %q", s.id, msg.Type)
    }
}

func (s *Session) handleListen(ctx context.Context, msg protocol.ClientMessage) {
    switch msg.State {
    case "start":
        s.det.Reset()
    case "stop":
        if s.gateway {
            s.jitter.Flush()
        }
        if utt := s.det.Finish(); utt != nil {
            s.rec.Enqueue(utt)
        }
    case "detect":
        // Wake-word text recognized on-device arrives pre-transcribed.
        s.submitUserText(msg.Text)
    }
}

// submitUserText queues typed or wake-word text behind the recognition
// worker, so its turn streams off the read loop and never overlaps an audio
// turn. Unbound devices get the binding prompt instead, same as audio.
func (s *Session) submitUserText(text string) {
    if text == "" {
        return
    }
    if s.bind.state() != stateBound {
        s.bind.promptIfDue(s)
        return
    }
    s.rec.EnqueueText(asr.Result{Text: text})
}

func (s *Session) onSpeechStart() {
    s.touch()
}

func (s *Session) onUtterance(utt []byte) {
    s.touch()
    s.rec.Enqueue(utt)
}

// onTranscript runs on the recognition worker goroutine, which serializes
// turns: the next utterance is not handled until this one's turn has been
// fully enqueued. The turn inherits the session context, so teardown cancels
// an in-flight model stream instead of leaking it.
func (s *Session) onTranscript(res asr.Result) {
    s.handleUserText(s.turnContext(), res)
}

func (s *Session) turnContext() context.Context {
    if s.ctx != nil {
        return s.ctx
    }
    return context.Background()
}

func (s *Session) handleUserText(ctx context.Context, res asr.Result) {
    s.touch()
    text := strings.TrimSpace(res.Text)
    if text == "" {
        return
    }
    _ = s.sink.SendText(ctx, protocol.STTResult(s.id, text))

    if s.isExitCommand(text) {
        s.farewell()
        return
    }

    if res.Language != "" {
        s.setLanguage(res.Language)
    }

    s.aborted.Store(false)
    _ = s.sink.SendText(ctx, protocol.LLMEmotion(s.id, "neutral"))

    modelText := text
    if res.Speaker != "" {
        modelText = fmt.Sprintf("[%s] %s", res.Speaker, text)
    }
    s.orch.Run(ctx, modelText)
}

func (s *Session) isExitCommand(text string) bool {
    t := strings.ToLower(strings.TrimRight(strings.TrimSpace(text), ".!?。！？"))
    for _, cmd := range s.cfg.Session.ExitCommands {
        if t == strings.ToLower(cmd) {
            return true
        }
    }
    return false
}

func (s *Session) farewell() {
    s.closing.Store(true)
    turnID := fmt.Sprintf("t%d", s.dlg.NextTurn())
    s.pipeline.Say(turnID, "Goodbye, talk to you soon.")
    // Leave time for the farewell to reach the device before tearing down.
    time.AfterFunc(3*time.Second, func() { s.close("farewell") })
}

func (s *Session) abort(ctx context.Context) {
    s.aborted.Store(true)
    s.pipeline.Drain()
    _ = s.sink.SendText(ctx, protocol.TTSStop(s.id))
    log.Printf("[session] %s client abort", s.id)
}

func (s *Session) setLanguage(lang string) {
    s.langMu.Lock()
    s.language = lang
    s.langMu.Unlock()
}

// Language reports the most recent language tag recognition attached to an
// utterance, or the device profile default.
func (s *Session) Language() string {
    s.langMu.Lock()
    defer s.langMu.Unlock()
    return s.language
}

func (s *Session) touch() {
    s.lastActive.Store(time.Now().Unix())
}

func (s *Session) watchdog(ctx context.Context) {
    ticker := time.NewTicker(watchdogTick)
    defer ticker.Stop()
    timeout := int64(s.cfg.Session.IdleTimeoutSec)
    if timeout <= 0 {
        return
    }
    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
            idle := time.Now().Unix() - s.lastActive.Load()
            if idle > timeout {
                metricIdleCloses.Inc()
                log.Printf("[session] %s idle for %ds, closing", s.id, idle)
                s.close("idle timeout")
                return
            }
        }
    }
}

func (s *Session) close(reason string) {
    s.closeOnce.Do(func() {
        s.closing.Store(true)
        _ = s.conn.Close(ws.StatusNormalClosure, reason)
        if s.cancel != nil {
            s.cancel()
        }
    })
}

func (s *Session) teardown() {
    s.close("done")
    gaugeLive.Dec()
    s.deps.Registry.Unregister(s.deviceID)
    s.persist()
    log.Printf("[session] %s closed device=%s", s.id, s.deviceID)
}

// persist saves the dialogue on a detached goroutine: teardown never waits
// on the history backend.
func (s *Session) persist() {
    if !s.bind.saveHistory() {
        return
    }
    msgs := s.dlg.Messages()
    if len(msgs) < 2 { // system prompt only, nothing worth keeping
        return
    }
    rec := history.Record{
        SessionID: s.id,
        DeviceID:  s.deviceID,
        UserID:    s.bind.userID(),
        Language:  s.Language(),
        Messages:  msgs,
    }
    go func() {
        ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
        defer cancel()
        if err := s.deps.History.Save(ctx, rec); err != nil {
            log.Printf("[session] %s history save failed: %v", s.id, err)
        }
    }()
}

// wsSink serializes websocket writes; the read loop, the synthesis consumer
// and out-of-band producers all write through it.
type wsSink struct {
    mu   sync.Mutex
    conn wire
}

func (k *wsSink) SendText(ctx context.Context, msg protocol.ServerMessage) error {
    k.mu.Lock()
    defer k.mu.Unlock()
    return k.conn.Write(ctx, ws.MessageText, protocol.Marshal(msg))
}

func (k *wsSink) SendAudio(ctx context.Context, audio []byte) error {
    k.mu.Lock()
    defer k.mu.Unlock()
    return k.conn.Write(ctx, ws.MessageBinary, audio)
}
