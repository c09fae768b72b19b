package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const reconcileTimeout = 30 * time.Second

// Reconciler periodically repairs accepted applications that have no party.
type Reconciler struct {
	parties  *PartyService
	cron     *cron.Cron
	logger   *slog.Logger
	schedule string
}

func NewReconciler(parties *PartyService, schedule string, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		parties:  parties,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:   logger,
		schedule: schedule,
	}
}

// Start registers the job and starts the scheduler in the background.
func (r *Reconciler) Start() error {
	if _, err := r.cron.AddFunc(r.schedule, r.RunOnce); err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", r.schedule, err)
	}
	r.cron.Start()
	r.logger.Info("party reconciler started", "schedule", r.schedule)
	return nil
}

// Stop waits for a running pass to finish.
func (r *Reconciler) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Reconciler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
	defer cancel()

	repaired, err := r.parties.Reconcile(ctx)
	if err != nil {
		r.logger.Error("party reconcile failed", "error", err)
		return
	}
	if repaired > 0 {
		r.logger.Warn("party reconcile repaired parties", "count", repaired)
	}
}
