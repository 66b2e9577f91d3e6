package vad

import (
    "math"
)

// Config controls the hysteresis thresholds. Speech starts only after
// StartFrames consecutive voiced frames and ends only after EndFrames
// consecutive silent ones, so single-frame jitter never flips state.
type Config struct {
    StartFrames  int
    EndFrames    int
    WindowFrames int     // pre-roll kept ahead of speech-start
    MinRMS       float64 // energy threshold for a voiced frame
}

func (c *Config) fill() {
    if c.StartFrames <= 0 {
        c.StartFrames = 2
    }
    if c.EndFrames <= 0 {
        c.EndFrames = 5
    }
    if c.WindowFrames <= 0 {
        c.WindowFrames = 5
    }
    if c.MinRMS <= 0 {
        c.MinRMS = 1200.0
    }
}

// Detector segments a frame stream into utterances.
type Detector struct {
    cfg Config

    speaking     bool
    consecSpeech int
    nonSpeech    int

    window    [][]byte // rolling pre-roll of recent frames
    utterance []byte

    onSpeechStart func()
    onUtterance   func([]byte)
}

// New builds a detector. onSpeechStart may be nil; onUtterance receives the
// completed utterance buffer on speech-end.
func New(cfg Config, onSpeechStart func(), onUtterance func([]byte)) *Detector {
    cfg.fill()
    return &Detector{cfg: cfg, onSpeechStart: onSpeechStart, onUtterance: onUtterance}
}

// Push feeds one audio frame. Empty frames are no-ops.
func (d *Detector) Push(frame []byte) {
    if len(frame) == 0 {
        return
    }
    voiced := RMS(frame) >= d.cfg.MinRMS

    if !d.speaking {
        d.window = append(d.window, frame)
        if len(d.window) > d.cfg.WindowFrames {
            d.window = d.window[1:]
        }
        if voiced {
            d.consecSpeech++
            if d.consecSpeech >= d.cfg.StartFrames {
                d.speaking = true
                d.nonSpeech = 0
                // seed the utterance with the pre-roll so the leading
                // syllable is not clipped
                d.utterance = d.utterance[:0]
                for _, w := range d.window {
                    d.utterance = append(d.utterance, w...)
                }
                d.window = d.window[:0]
                if d.onSpeechStart != nil {
                    d.onSpeechStart()
                }
            }
        } else {
            d.consecSpeech = 0
        }
        return
    }

    d.utterance = append(d.utterance, frame...)
    if voiced {
        d.nonSpeech = 0
        return
    }
    d.nonSpeech++
    if d.nonSpeech >= d.cfg.EndFrames {
        utt := make([]byte, len(d.utterance))
        copy(utt, d.utterance)
        d.Reset()
        if d.onUtterance != nil {
            d.onUtterance(utt)
        }
    }
}

// Finish force-ends the current utterance, as when the client reports a
// manual listen-stop. Returns nil when no utterance is in progress.
func (d *Detector) Finish() []byte {
    if !d.speaking || len(d.utterance) == 0 {
        d.Reset()
        return nil
    }
    utt := make([]byte, len(d.utterance))
    copy(utt, d.utterance)
    d.Reset()
    return utt
}

// Speaking reports whether the detector is inside an utterance.
func (d *Detector) Speaking() bool { return d.speaking }

// Reset clears all segmentation state, discarding any partial utterance.
func (d *Detector) Reset() {
    d.speaking = false
    d.consecSpeech = 0
    d.nonSpeech = 0
    d.utterance = d.utterance[:0]
    d.window = d.window[:0]
}

// RMS computes the root-mean-square of little-endian PCM16 audio.
func RMS(b []byte) float64 {
    if len(b) < 2 {
        return 0
    }
    var sum float64
    n := len(b) / 2
    for i := 0; i < n; i++ {
        sample := int16(uint16(b[i*2]) | uint16(b[i*2+1])<<8)
        sum += float64(sample) * float64(sample)
    }
    return math.Sqrt(sum / float64(n))
}
