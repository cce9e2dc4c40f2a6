package periodwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"runclub/core"
	"runclub/core/types"
	"runclub/native/runclub"
)

const DefaultSchedule = "@every 1m"

// EventLedger reports whether an event was already recorded. The indexer
// satisfies it; without one announcements are only deduplicated in memory.
type EventLedger interface {
	HasEvent(ctx context.Context, eventType string, clubID uint64) (bool, error)
}

// Watcher announces clubs whose competition period has ended so off-chain
// consumers can prompt members to redeem.
type Watcher struct {
	rt       *core.Runtime
	ledger   EventLedger
	logger   *slog.Logger
	schedule string
	cron     *cron.Cron

	mu        sync.Mutex
	announced map[uint64]struct{}
}

func New(rt *core.Runtime, ledger EventLedger, schedule string, logger *slog.Logger) (*Watcher, error) {
	if rt == nil {
		return nil, errors.New("periodwatch: runtime is required")
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("periodwatch: invalid schedule %q: %w", schedule, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		rt:        rt,
		ledger:    ledger,
		logger:    logger.With(slog.String("component", "periodwatch")),
		schedule:  schedule,
		cron:      cron.New(),
		announced: make(map[uint64]struct{}),
	}, nil
}

func (w *Watcher) Start() error {
	_, err := w.cron.AddFunc(w.schedule, func() {
		if _, err := w.Sweep(context.Background()); err != nil {
			w.logger.Error("period sweep failed", slog.Any("error", err))
		}
	})
	if err != nil {
		return err
	}
	w.cron.Start()
	w.logger.Info("period watcher started", slog.String("schedule", w.schedule))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (w *Watcher) Stop() {
	ctx := w.cron.Stop()
	<-ctx.Done()
	w.logger.Info("period watcher stopped")
}

// Sweep publishes a period-ended event for every active club past its
// deadline that has not been announced yet. It returns the number published.
func (w *Watcher) Sweep(ctx context.Context) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var candidates []*runclub.Club
	err := w.rt.View(ctx, func(call *core.Call) error {
		clubs, err := call.Clubs.Clubs()
		if err != nil {
			return err
		}
		now := w.rt.Now()
		for _, club := range clubs {
			if club.IsActive && club.PeriodEnded(now) {
				candidates = append(candidates, club)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan clubs: %w", err)
	}

	var pending []*types.Event
	for _, club := range candidates {
		if _, ok := w.announced[club.ID]; ok {
			continue
		}
		if w.ledger != nil {
			seen, err := w.ledger.HasEvent(ctx, runclub.EventTypeClubPeriodEnded, club.ID)
			if err != nil {
				return 0, fmt.Errorf("check club %d: %w", club.ID, err)
			}
			if seen {
				w.announced[club.ID] = struct{}{}
				continue
			}
		}
		pending = append(pending, runclub.ClubPeriodEndedEvent(club.ID, club.MonthEndTimestamp, club.USDCDeposited))
		w.announced[club.ID] = struct{}{}
	}
	if len(pending) == 0 {
		return 0, nil
	}
	w.rt.Publish(pending...)
	w.logger.Info("club periods ended", slog.Int("count", len(pending)))
	return len(pending), nil
}
