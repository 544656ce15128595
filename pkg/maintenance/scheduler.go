// Package maintenance runs the background cleanup jobs: expired invitation
// removal and stale email-token purging.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/crewdesk/crewdesk/pkg/observability"
)

const jobTimeout = 2 * time.Minute

// InvitationCleaner removes expired unaccepted invitations
type InvitationCleaner interface {
	CleanupExpiredInvitations(ctx context.Context) (int64, error)
}

// TokenPurger clears expired reset and verification token digests
type TokenPurger interface {
	PurgeExpiredTokens(ctx context.Context) (int64, error)
}

// Scheduler owns the cron instance and its jobs
type Scheduler struct {
	cron   *cron.Cron
	logger *observability.Logger
}

// NewScheduler registers the cleanup jobs. Invitations are swept hourly;
// token purging runs nightly since expired tokens already fail verification.
func NewScheduler(invitations InvitationCleaner, tokens TokenPurger, logger *observability.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger{logger}),
			cron.SkipIfStillRunning(cronLogger{logger}),
		)),
		logger: logger,
	}

	if _, err := s.cron.AddFunc("@hourly", func() {
		s.run("invitation cleanup", invitations.CleanupExpiredInvitations)
	}); err != nil {
		return nil, err
	}
	if _, err := s.cron.AddFunc("30 3 * * *", func() {
		s.run("token purge", tokens.PurgeExpiredTokens)
	}); err != nil {
		return nil, err
	}
	return s, nil
}

// Start launches the cron scheduler in its own goroutine
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) run(name string, job func(context.Context) (int64, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := job(ctx)
	if err != nil {
		s.logger.WithError(err).WithField("job", name).Error("maintenance job failed")
		return
	}
	if n > 0 {
		s.logger.WithFields(map[string]interface{}{
			"job":  name,
			"rows": n,
		}).Info("maintenance job completed")
	}
}

// cronLogger adapts our logger to cron's logging interface
type cronLogger struct {
	logger *observability.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.logger.WithField("detail", keysAndValues).Debug(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.logger.WithError(err).WithField("detail", keysAndValues).Error(msg)
}
