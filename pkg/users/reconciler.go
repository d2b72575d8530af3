package users

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/skcetlabs/portal/pkg/observability"
)

// Reconciler periodically counts the mirrored users and publishes the gauge.
// Webhook delivery is at-least-once but not guaranteed forever; the sweep
// makes drift between the provider and the mirror visible in metrics.
type Reconciler struct {
	store   *Store
	logger  *observability.Logger
	metrics *observability.Metrics
	cron    *cron.Cron
}

// NewReconciler creates the reconciler; Start schedules it
func NewReconciler(store *Store, logger *observability.Logger, metrics *observability.Metrics) *Reconciler {
	return &Reconciler{
		store:   store,
		logger:  logger,
		metrics: metrics,
		cron:    cron.New(),
	}
}

// Start registers the sweep on the given cron schedule and begins running.
// It runs one sweep immediately so the gauge is populated at boot.
func (r *Reconciler) Start(schedule string) error {
	if _, err := r.cron.AddFunc(schedule, r.sweep); err != nil {
		return err
	}
	r.cron.Start()
	go r.sweep()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish
func (r *Reconciler) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

func (r *Reconciler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	count, err := r.store.Count(ctx)
	if err != nil {
		r.logger.WithError(err).Error("User mirror sweep failed")
		return
	}

	if r.metrics != nil {
		r.metrics.MirroredUsersTotal.Set(float64(count))
	}
	r.logger.WithFields(map[string]interface{}{
		"mirrored_users": count,
		"duration_ms":    time.Since(start).Milliseconds(),
	}).Info("User mirror sweep completed")
}
