package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"membership-api/internal/database"
	"membership-api/internal/models"
	"membership-api/pkg/logging"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// Reminder windows in days before expiry.
const (
	firstReminderDays  = 3
	secondReminderDays = 1
)

var ErrSweepInProgress = errors.New("expiry sweep already running")

// SweepReport summarizes one sweep.
type SweepReport struct {
	Scanned      int           `json:"scanned"`
	Reminded3Day int           `json:"reminded_3_day"`
	Reminded1Day int           `json:"reminded_1_day"`
	Expired      int           `json:"expired"`
	Failed       int           `json:"failed"`
	Duration     time.Duration `json:"duration"`
}

// Sweeper sends pre-expiry reminders and expires lapsed subscriptions.
// Every transition is claimed with a conditional update before its side
// effect runs, so overlapping sweeps never repeat a message or a revoke.
type Sweeper struct {
	store       *database.Store
	manager     *SubscriptionManager
	fulfillment *Fulfillment
	concurrency int

	running sync.Mutex
	cron    *cron.Cron
	startup *time.Timer
}

// NewSweeper creates a sweeper processing up to concurrency users at once.
func NewSweeper(store *database.Store, manager *SubscriptionManager, fulfillment *Fulfillment, concurrency int) *Sweeper {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Sweeper{
		store:       store,
		manager:     manager,
		fulfillment: fulfillment,
		concurrency: concurrency,
	}
}

// Start runs the sweep on schedule and once after startupDelay.
func (s *Sweeper) Start(ctx context.Context, schedule string, startupDelay time.Duration) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { s.runScheduled(ctx) }); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	s.cron = c
	c.Start()

	s.startup = time.AfterFunc(startupDelay, func() { s.runScheduled(ctx) })
	logging.Infof("Expiry sweeper scheduled (%s, first run in %s)", schedule, startupDelay)
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.startup != nil {
		s.startup.Stop()
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

func (s *Sweeper) runScheduled(ctx context.Context) {
	report, err := s.SweepOnce(ctx)
	if errors.Is(err, ErrSweepInProgress) {
		logging.Infof("Skipping expiry sweep, previous run still in progress")
		return
	}
	if err != nil {
		logging.Errorf("Expiry sweep failed: %v", err)
		return
	}
	logging.With("scanned", report.Scanned, "reminded_3_day", report.Reminded3Day,
		"reminded_1_day", report.Reminded1Day, "expired", report.Expired,
		"failed", report.Failed, "duration", report.Duration.String()).
		Info("Expiry sweep finished")
}

// SweepOnce visits every active, non-lifetime subscription once.
func (s *Sweeper) SweepOnce(ctx context.Context) (*SweepReport, error) {
	if !s.running.TryLock() {
		return nil, ErrSweepInProgress
	}
	defer s.running.Unlock()

	start := time.Now()
	subs, err := s.store.ActiveTimedSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active subscriptions: %w", err)
	}

	byUser := make(map[string][]models.Subscription)
	for _, sub := range subs {
		byUser[sub.UserID] = append(byUser[sub.UserID], sub)
	}

	var reminded3, reminded1, expired, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for userID, userSubs := range byUser {
		userID, userSubs := userID, userSubs
		g.Go(func() error {
			for i := range userSubs {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				res, err := s.sweepSubscription(gctx, &userSubs[i])
				if err != nil {
					failed.Add(1)
					logging.Errorf("Sweep failed - user: %s, subscription: %s, error: %v", userID, userSubs[i].ID, err)
				}
				if res.reminded3 {
					reminded3.Add(1)
				}
				if res.reminded1 {
					reminded1.Add(1)
				}
				if res.expired {
					expired.Add(1)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &SweepReport{
		Scanned:      len(subs),
		Reminded3Day: int(reminded3.Load()),
		Reminded1Day: int(reminded1.Load()),
		Expired:      int(expired.Load()),
		Failed:       int(failed.Load()),
		Duration:     time.Since(start),
	}, nil
}

type sweepResult struct {
	reminded3 bool
	reminded1 bool
	expired   bool
}

func (s *Sweeper) sweepSubscription(ctx context.Context, sub *models.Subscription) (sweepResult, error) {
	var res sweepResult
	if sub.IsLifetime {
		return res, nil
	}

	days := s.manager.DaysRemaining(sub)
	if days <= 0 {
		claimed, err := s.store.ClaimExpiry(ctx, sub.ID, s.manager.Now())
		if err != nil {
			return res, fmt.Errorf("failed to expire: %w", err)
		}
		if claimed {
			sub.IsActive = false
			s.fulfillment.Expired(ctx, sub)
			res.expired = true
		}
		return res, nil
	}

	var errs []error
	if days <= firstReminderDays && !sub.RemindedAt3Day {
		sent, err := s.remind(ctx, sub, database.Reminder3Day, days)
		res.reminded3 = sent
		errs = append(errs, err)
	}
	if days <= secondReminderDays && !sub.RemindedAt1Day {
		sent, err := s.remind(ctx, sub, database.Reminder1Day, days)
		res.reminded1 = sent
		errs = append(errs, err)
	}
	return res, errors.Join(errs...)
}

// remind claims the reminder flag and then sends. The flag stays set when the
// send fails, so a reminder is delivered at most once.
func (s *Sweeper) remind(ctx context.Context, sub *models.Subscription, which database.Reminder, days int) (bool, error) {
	claimed, err := s.store.ClaimReminder(ctx, sub.ID, which)
	if err != nil {
		return false, fmt.Errorf("failed to claim %s: %w", which, err)
	}
	if !claimed {
		return false, nil
	}
	if err := s.fulfillment.Reminder(ctx, sub, days); err != nil {
		return true, fmt.Errorf("reminder delivery failed: %w", err)
	}
	return true, nil
}
