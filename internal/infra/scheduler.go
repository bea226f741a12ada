package infra

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"copytrade/internal/domain"
)

const syncTimeout = 15 * time.Second

// Scheduler periodically reconciles the monitor's loops with the active broker accounts
type Scheduler struct {
	cron     *cron.Cron
	brokers  domain.BrokerAccountRepository
	monitor  *Monitor
	schedule string
}

// NewScheduler creates a new scheduler.
// schedule defaults to "@every 30s" if empty.
func NewScheduler(brokers domain.BrokerAccountRepository, monitor *Monitor, schedule string) *Scheduler {
	if schedule == "" {
		schedule = "@every 30s"
	}
	return &Scheduler{
		cron:     cron.New(),
		brokers:  brokers,
		monitor:  monitor,
		schedule: schedule,
	}
}

// Start runs one sync immediately and then on every schedule tick
func (s *Scheduler) Start(ctx context.Context) error {
	logrus.WithField("schedule", s.schedule).Info("Starting scheduler...")

	_, err := s.cron.AddFunc(s.schedule, func() {
		syncCtx, cancel := context.WithTimeout(ctx, syncTimeout)
		defer cancel()
		if err := s.Sync(syncCtx); err != nil {
			logrus.WithError(err).Error("ERROR: Broker account sync failed")
		}
	})
	if err != nil {
		return err
	}

	if err := s.Sync(ctx); err != nil {
		logrus.WithError(err).Error("ERROR: Initial broker account sync failed")
	}

	s.cron.Start()
	logrus.Info("[OK] Scheduler started successfully")
	return nil
}

// Stop stops the scheduler gracefully
func (s *Scheduler) Stop() {
	logrus.Info("Stopping scheduler...")
	<-s.cron.Stop().Done()
	logrus.Info("[OK] Scheduler stopped")
}

// Sync starts loops for newly active accounts and stops loops for accounts that went away
func (s *Scheduler) Sync(ctx context.Context) error {
	active, err := s.brokers.GetActive(ctx)
	if err != nil {
		return err
	}

	want := make(map[uuid.UUID]bool, len(active))
	for _, b := range active {
		if !b.Monitorable() {
			continue
		}
		want[b.ID] = true
		if s.monitor.IsRunning(b.ID) {
			continue
		}
		if err := s.monitor.Start(b); err != nil && !errors.Is(err, ErrLoopExists) {
			logrus.WithError(err).WithField("broker", b.AccountName).Error("ERROR: Failed to start monitoring")
		}
	}

	for _, id := range s.monitor.Running() {
		if want[id] {
			continue
		}
		logrus.WithField("broker_id", id).Info("Broker account no longer active, stopping loop")
		_ = s.monitor.Stop(id)
	}
	return nil
}
