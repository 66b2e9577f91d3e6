package tts

import (
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promauto"
)

var (
    metricUnits = promauto.NewCounterVec(prometheus.CounterOpts{
        Name: "tts_units_total",
        Help: "Output units consumed, by framing position.",
    }, []string{"framing"})

    metricUnitDrops = promauto.NewCounter(prometheus.CounterOpts{
        Name: "tts_unit_drops_total",
        Help: "Units dropped because the output queue was full.",
    })

    metricSynthFailures = promauto.NewCounter(prometheus.CounterOpts{
        Name: "tts_synth_failures_total",
        Help: "Sentence synthesis requests that failed.",
    })

    metricSynthMS = promauto.NewHistogram(prometheus.HistogramOpts{
        Name:    "tts_synth_duration_ms",
        Help:    "Latency of sentence synthesis in milliseconds.",
        Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000},
    })
)
