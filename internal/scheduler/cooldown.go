package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"serpgap/internal/logger"
	"serpgap/internal/repository"
)

// CooldownScheduler periodically returns rate-limited credentials to active
// once their cooldown has elapsed. Credentials marked failed are not touched;
// those need manual reactivation from the dashboard.
type CooldownScheduler struct {
	cron     *cron.Cron
	repo     *repository.CredentialRepository
	cooldown time.Duration
	spec     string
	logger   *logger.Logger
}

// NewCooldownScheduler creates a new cooldown scheduler.
// Parameters:
//   - repo: credential repository.
//   - spec: cron spec for the sweep, e.g. "@every 5m".
//   - cooldown: how long a credential stays rate_limited before reset.
//   - log: logger instance.
// Returns:
//   - *CooldownScheduler: initialized scheduler, not yet started.
func NewCooldownScheduler(repo *repository.CredentialRepository, spec string, cooldown time.Duration, log *logger.Logger) *CooldownScheduler {
	return &CooldownScheduler{
		cron:     cron.New(),
		repo:     repo,
		cooldown: cooldown,
		spec:     spec,
		logger:   log,
	}
}

// Start registers the sweep job and starts the cron loop.
// Returns:
//   - error: non-nil if the cron spec is invalid.
func (s *CooldownScheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Infof("Cooldown scheduler started: spec=%s, cooldown=%s", s.spec, s.cooldown)
	return nil
}

// Stop stops the cron loop and waits for a running sweep to finish.
func (s *CooldownScheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *CooldownScheduler) sweep() {
	ctx := logger.WithFields(context.Background(), logger.Fields{
		logger.FieldComponent: "scheduler",
	})

	cutoff := time.Now().UTC().Add(-s.cooldown)
	n, err := s.repo.ReactivateStaleRateLimited(ctx, cutoff)
	if err != nil {
		logger.CtxError(ctx, "Cooldown sweep failed: %v", err)
		return
	}
	if n > 0 {
		logger.With(logger.Fields{logger.FieldCount: n}).Info(ctx, "Rate-limited credentials reactivated")
	}
}
