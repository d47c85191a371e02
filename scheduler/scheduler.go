// Package scheduler runs the periodic discrepancy digest.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/warp/fuel-engine/station"
)

// DigestSource builds a digest. *station.Service implements it.
type DigestSource interface {
	DiscrepancyDigest(ctx context.Context) (station.Digest, error)
}

// Notifier receives non-empty digests. It may be nil, in which case the
// digest is only logged.
type Notifier func(ctx context.Context, d station.Digest) error

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron    *cron.Cron
	spec    string
	source  DigestSource
	notify  Notifier
	logger  *zap.Logger
	timeout time.Duration
}

// New creates a scheduler for the given cron spec (5 fields, e.g. "0 20 * * *").
func New(spec string, source DigestSource, notify Notifier, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:    cron.New(),
		spec:    spec,
		source:  source,
		notify:  notify,
		logger:  logger,
		timeout: 2 * time.Minute,
	}
}

// Start registers the digest job and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.runDigest); err != nil {
		return fmt.Errorf("scheduler: invalid digest cron %q: %w", s.spec, err)
	}
	s.logger.Info("starting scheduler", zap.String("digest_cron", s.spec))
	s.cron.Start()
	return nil
}

// Stop stops the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runDigest() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("digest failed", zap.Error(err))
	}
}

// RunOnce builds one digest, logs it and hands it to the notifier.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	d, err := s.source.DiscrepancyDigest(ctx)
	if err != nil {
		return fmt.Errorf("build digest: %w", err)
	}
	if d.Empty() {
		s.logger.Info("digest: nothing flagged")
		return nil
	}

	for _, f := range d.Shifts {
		s.logger.Warn("digest: shift outside tolerance",
			zap.String("shift_id", string(f.Shift.ID)),
			zap.String("nozzleman", f.Shift.Nozzleman),
			zap.String("difference", f.Reconciliation.Difference.String()))
	}
	for _, f := range d.Sales {
		s.logger.Warn("digest: sale discrepancy",
			zap.String("sale_id", string(f.Sale.ID)),
			zap.String("difference", f.Reconciliation.Difference.String()))
	}
	for _, ts := range d.Stock {
		s.logger.Warn("digest: stock needs attention",
			zap.String("tank_id", string(ts.TankID)),
			zap.String("level", string(ts.Status.Level)),
			zap.Float64("percent_full", ts.Status.PercentFull))
	}

	if s.notify == nil {
		return nil
	}
	if err := s.notify(ctx, d); err != nil {
		return fmt.Errorf("notify digest: %w", err)
	}
	return nil
}
