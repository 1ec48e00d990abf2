package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"forumcore/internal/logging"
)

// Sweeper runs Manager.Sweep on a cron schedule.
type Sweeper struct {
	cron *cron.Cron
}

// StartSweeper schedules periodic sweeps. schedule accepts standard cron
// expressions and descriptors such as "@every 1m".
func StartSweeper(m *Manager, schedule string, log *slog.Logger) (*Sweeper, error) {
	log = logging.OrDiscard(log)
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if _, err := m.Sweep(context.Background()); err != nil {
			log.Error("session sweep failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling session sweep %q: %w", schedule, err)
	}
	c.Start()
	log.Info("session sweeper started", "schedule", schedule)
	return &Sweeper{cron: c}, nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
