package scheduler

import (
    "context"
    "fmt"
    "log"
    "time"

    "carevoice/agent/internal/manage"
    "carevoice/agent/internal/registry"
)

// Source lists due reminders and acknowledges delivered ones; the manage API
// client implements it.
type Source interface {
    DueReminders(ctx context.Context) ([]manage.Reminder, error)
    MarkAnnounced(ctx context.Context, reminderID string) error
}

// Sessions resolves an owner to their live device sessions; the connection
// registry implements it.
type Sessions interface {
    LookupAll(ownerID string) []registry.Session
}

// Scheduler polls the manage API and pushes due reminders into whichever of
// the owner's devices are online. A reminder is only acknowledged after at
// least one device took it, so offline users get it on a later tick.
type Scheduler struct {
    source   Source
    sessions Sessions
    interval time.Duration
}

func New(source Source, sessions Sessions, interval time.Duration) *Scheduler {
    if interval <= 0 {
        interval = 30 * time.Second
    }
    return &Scheduler{source: source, sessions: sessions, interval: interval}
}

// Start runs the poll loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
    go func() {
        ticker := time.NewTicker(s.interval)
        defer ticker.Stop()
        for {
            select {
            case <-ctx.Done():
                return
            case <-ticker.C:
                s.tick(ctx)
            }
        }
    }()
}

func (s *Scheduler) tick(ctx context.Context) {
    due, err := s.source.DueReminders(ctx)
    if err != nil {
        log.Printf("[scheduler] list due reminders: %v", err)
        return
    }
    for _, r := range due {
        targets := s.sessions.LookupAll(r.UserID)
        if len(targets) == 0 {
            continue
        }
        delivered := false
        text := announcementText(r)
        for _, t := range targets {
            if err := t.Say(ctx, text); err != nil {
                log.Printf("[scheduler] deliver reminder %s to %s: %v", r.ID, t.ID(), err)
                continue
            }
            delivered = true
        }
        if !delivered {
            continue
        }
        metricDelivered.Inc()
        if err := s.source.MarkAnnounced(ctx, r.ID); err != nil {
            log.Printf("[scheduler] ack reminder %s: %v", r.ID, err)
        }
    }
}

func announcementText(r manage.Reminder) string {
    if r.Title == "" {
        return r.Content
    }
    if r.Content == "" {
        return r.Title
    }
    return fmt.Sprintf("%s: %s", r.Title, r.Content)
}
