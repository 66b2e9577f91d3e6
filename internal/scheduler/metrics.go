package scheduler

import (
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promauto"
)

var metricDelivered = promauto.NewCounter(prometheus.CounterOpts{
    Name: "scheduler_reminders_delivered_total",
    Help: "Reminders spoken into at least one live session.",
})
