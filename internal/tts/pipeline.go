package tts

import (
    "context"
    "log"
    "time"

    "carevoice/agent/internal/protocol"
)

// Framing marks a unit's position within its turn.
type Framing uint8

const (
    SentenceFirst Framing = iota
    SentenceMiddle
    SentenceLast
)

// ContentKind separates spoken text from structural actions.
type ContentKind uint8

const (
    ContentAction ContentKind = iota
    ContentText
)

// Unit is one ordered chunk of turn output. FIRST/LAST units are structural
// and carry no text; MIDDLE units carry a sentence to synthesize.
type Unit struct {
    TurnID  string
    Framing Framing
    Kind    ContentKind
    Text    string
}

// Synthesizer turns a sentence into audio.
type Synthesizer interface {
    Speak(ctx context.Context, text string) ([]byte, error)
}

// Sink is the session's outbound half of the socket.
type Sink interface {
    SendText(ctx context.Context, msg protocol.ServerMessage) error
    SendAudio(ctx context.Context, audio []byte) error
}

// Pipeline is the per-session ordered output queue. A single consumer
// drains it, so audio for sentence N is fully on the wire before sentence
// N+1 starts even though synthesis itself is remote and slow.
type Pipeline struct {
    sessionID string
    synth     Synthesizer
    sink      Sink
    aborted   func() bool

    queue chan Unit
}

func NewPipeline(sessionID string, synth Synthesizer, sink Sink, aborted func() bool) *Pipeline {
    if aborted == nil {
        aborted = func() bool { return false }
    }
    return &Pipeline{
        sessionID: sessionID,
        synth:     synth,
        sink:      sink,
        aborted:   aborted,
        queue:     make(chan Unit, 256),
    }
}

// Start runs the consumer until ctx is cancelled.
func (p *Pipeline) Start(ctx context.Context) {
    go p.run(ctx)
}

// Enqueue appends a unit to the turn's output. Returns false if the queue is
// saturated and the unit was dropped.
func (p *Pipeline) Enqueue(u Unit) bool {
    select {
    case p.queue <- u:
        return true
    default:
        metricUnitDrops.Inc()
        log.Printf("[tts] DROPPED unit turn=%s framing=%d", u.TurnID, u.Framing)
        return false
    }
}

// Say is the one-sentence convenience used for prompts injected from outside
// a model turn: it wraps text in its own FIRST/MIDDLE/LAST framing.
func (p *Pipeline) Say(turnID, text string) {
    p.Enqueue(Unit{TurnID: turnID, Framing: SentenceFirst, Kind: ContentAction})
    p.Enqueue(Unit{TurnID: turnID, Framing: SentenceMiddle, Kind: ContentText, Text: text})
    p.Enqueue(Unit{TurnID: turnID, Framing: SentenceLast, Kind: ContentAction})
}

// Drain discards everything queued; used on client abort so stale sentences
// from the interrupted turn are never spoken.
func (p *Pipeline) Drain() {
    for {
        select {
        case <-p.queue:
        default:
            return
        }
    }
}

func (p *Pipeline) run(ctx context.Context) {
    for {
        select {
        case <-ctx.Done():
            return
        case u := <-p.queue:
            if p.aborted() && u.Framing == SentenceMiddle {
                continue
            }
            p.emit(ctx, u)
        }
    }
}

func (p *Pipeline) emit(ctx context.Context, u Unit) {
    switch u.Framing {
    case SentenceFirst:
        metricUnits.WithLabelValues("first").Inc()
        _ = p.sink.SendText(ctx, protocol.TTSStart(p.sessionID))
    case SentenceLast:
        metricUnits.WithLabelValues("last").Inc()
        _ = p.sink.SendText(ctx, protocol.TTSStop(p.sessionID))
    case SentenceMiddle:
        metricUnits.WithLabelValues("middle").Inc()
        if u.Text == "" {
            return
        }
        _ = p.sink.SendText(ctx, protocol.TTSSentenceStart(p.sessionID, u.Text))
        start := time.Now()
        audio, err := p.synth.Speak(ctx, u.Text)
        if err != nil {
            metricSynthFailures.Inc()
            log.Printf("[tts] synthesis failed turn=%s: %v", u.TurnID, err)
            return
        }
        metricSynthMS.Observe(float64(time.Since(start).Milliseconds()))
        if err := p.sink.SendAudio(ctx, audio); err != nil {
            log.Printf("[tts] send audio failed turn=%s: %v", u.TurnID, err)
        }
    }
}
