package session

import (
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promauto"
)

var (
    metricSessions = promauto.NewCounter(prometheus.CounterOpts{
        Name: "session_opened_total",
        Help: "Device sessions accepted.",
    })

    gaugeLive = promauto.NewGauge(prometheus.GaugeOpts{
        Name: "session_live",
        Help: "Currently open device sessions.",
    })

    metricIdleCloses = promauto.NewCounter(prometheus.CounterOpts{
        Name: "session_idle_closes_total",
        Help: "Sessions closed by the idle watchdog.",
    })

    metricBadFrames = promauto.NewCounter(prometheus.CounterOpts{
        Name: "session_bad_gateway_frames_total",
        Help: "Gateway binary frames shorter than the fixed header.",
    })

    metricUnbound = promauto.NewCounter(prometheus.CounterOpts{
        Name: "session_unbound_devices_total",
        Help: "Connections from devices not yet bound to an account.",
    })

    metricBindPrompts = promauto.NewCounter(prometheus.CounterOpts{
        Name: "session_bind_prompts_total",
        Help: "Spoken binding prompts delivered.",
    })
)
