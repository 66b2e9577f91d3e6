package asr

import (
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promauto"
)

var (
    metricUtterances = promauto.NewCounter(prometheus.CounterOpts{
        Name: "asr_utterances_total",
        Help: "Total utterances transcribed with non-empty text",
    })

    metricFailures = promauto.NewCounter(prometheus.CounterOpts{
        Name: "asr_failures_total",
        Help: "Total failed transcription calls",
    })

    metricDrops = promauto.NewCounter(prometheus.CounterOpts{
        Name: "asr_drops_total",
        Help: "Total utterances dropped due to backpressure",
    })

    gaugeQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
        Name: "asr_queue_depth",
        Help: "Current depth of the utterance queue (last observed)",
    })
)
