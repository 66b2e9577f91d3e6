package turn

import (
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promauto"
)

var (
    metricTurns = promauto.NewCounter(prometheus.CounterOpts{
        Name: "turn_runs_total",
        Help: "Model turns started.",
    })

    metricModelFailures = promauto.NewCounter(prometheus.CounterOpts{
        Name: "turn_model_failures_total",
        Help: "Model streams that failed or broke mid-turn.",
    })

    metricToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
        Name: "turn_tool_calls_total",
        Help: "Tool invocations by outcome.",
    }, []string{"action"})
)
