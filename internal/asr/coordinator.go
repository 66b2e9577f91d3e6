package asr

import (
    "context"
    "log"
)

// Result is one transcription. Speaker and Language tags are optional and
// provider-dependent.
type Result struct {
    Text     string
    Speaker  string
    Language string
}

// Provider turns a complete utterance into text.
type Provider interface {
    Transcribe(ctx context.Context, audio []byte) (Result, error)
}

// job is one queued unit of work: audio awaiting transcription, or an
// already-transcribed result (typed chat, on-device wake word).
type job struct {
    audio []byte
    ready *Result
}

// Coordinator owns the per-session utterance queue and the single worker
// that drives the provider. Recognition is blocking network I/O, so it runs
// off the read loop; the worker also serializes downstream turn handling,
// which keeps at most one turn open at a time. Pre-transcribed text rides
// the same queue so it cannot race an audio turn.
type Coordinator struct {
    provider Provider
    onResult func(Result)
    queue    chan job
}

func NewCoordinator(p Provider, onResult func(Result)) *Coordinator {
    return &Coordinator{
        provider: p,
        onResult: onResult,
        queue:    make(chan job, 16),
    }
}

// Start runs the worker until ctx is cancelled.
func (c *Coordinator) Start(ctx context.Context) {
    go c.run(ctx)
}

func (c *Coordinator) run(ctx context.Context) {
    for {
        select {
        case <-ctx.Done():
            return
        case j := <-c.queue:
            gaugeQueueDepth.Set(float64(len(c.queue)))
            if j.ready != nil {
                if j.ready.Text != "" {
                    metricUtterances.Inc()
                    c.onResult(*j.ready)
                }
                continue
            }
            res, err := c.provider.Transcribe(ctx, j.audio)
            if err != nil {
                // A failed transcription is "no utterance": log and move on.
                metricFailures.Inc()
                log.Printf("[asr] transcribe failed: %v", err)
                continue
            }
            if res.Text == "" {
                continue
            }
            metricUtterances.Inc()
            c.onResult(res)
        }
    }
}

// Enqueue hands a completed utterance to the worker. Drop-latest under
// backpressure so a stalled provider never blocks segmentation.
func (c *Coordinator) Enqueue(utterance []byte) bool {
    select {
    case c.queue <- job{audio: utterance}:
        gaugeQueueDepth.Set(float64(len(c.queue)))
        return true
    default:
        metricDrops.Inc()
        log.Printf("[asr] DROPPED utterance bytes=%d queueLen=%d", len(utterance), len(c.queue))
        return false
    }
}

// EnqueueText hands an already-transcribed utterance to the worker, keeping
// the read loop free while its turn streams.
func (c *Coordinator) EnqueueText(res Result) bool {
    select {
    case c.queue <- job{ready: &res}:
        gaugeQueueDepth.Set(float64(len(c.queue)))
        return true
    default:
        metricDrops.Inc()
        log.Printf("[asr] DROPPED text utterance queueLen=%d", len(c.queue))
        return false
    }
}

// QueueLen reports the current queue depth.
func (c *Coordinator) QueueLen() int { return len(c.queue) }
