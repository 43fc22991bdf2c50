package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/terra-clan/estimate-engine/internal/estimate"
	"github.com/terra-clan/estimate-engine/internal/project"
)

// Store finds and repairs projects whose stored metrics drifted from their
// estimate
type Store interface {
	FindDrifted(ctx context.Context) ([]project.Drift, error)
	RepairMetrics(ctx context.Context, id int64, m estimate.Metrics) error
}

// Reconciler periodically recomputes project metrics from saved estimates
type Reconciler struct {
	store    Store
	interval time.Duration
}

// NewReconciler creates a reconcile worker. A zero interval disables the
// periodic loop; Reconcile can still be called directly.
func NewReconciler(store Store, interval time.Duration) *Reconciler {
	return &Reconciler{
		store:    store,
		interval: interval,
	}
}

// Start begins the reconcile worker in a goroutine
func (r *Reconciler) Start(ctx context.Context) {
	if r.interval <= 0 {
		slog.Info("reconcile worker disabled")
		return
	}
	go r.run(ctx)
}

func (r *Reconciler) run(ctx context.Context) {
	slog.Info("reconcile worker started", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Reconcile(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("reconcile worker stopped")
			return
		case <-ticker.C:
			r.Reconcile(ctx)
		}
	}
}

// Reconcile repairs every drifted project and returns how many were fixed
func (r *Reconciler) Reconcile(ctx context.Context) int {
	slog.Debug("running reconcile cycle")

	drifted, err := r.store.FindDrifted(ctx)
	if err != nil {
		slog.Error("failed to find drifted projects", "error", err)
		return 0
	}

	if len(drifted) == 0 {
		slog.Debug("no drifted projects found")
		return 0
	}

	slog.Info("found drifted projects", "count", len(drifted))

	repaired := 0
	for _, d := range drifted {
		if err := r.store.RepairMetrics(ctx, d.ProjectID, d.Computed); err != nil {
			slog.Error("failed to repair project metrics",
				"error", err,
				"project_id", d.ProjectID,
			)
			continue
		}

		slog.Info("project metrics repaired",
			"project_id", d.ProjectID,
			"stored_net_profit", d.Stored.NetProfit,
			"net_profit", d.Computed.NetProfit,
		)
		repaired++
	}

	return repaired
}
