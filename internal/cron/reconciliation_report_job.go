package cron

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/rifa-backend/pkg/logger"
	"github.com/angelmondragon/rifa-backend/pkg/metrics"
)

type reconciliationCounter interface {
	CountReconciliation(ctx context.Context) (int64, error)
}

// ReconciliationReportJob exports how many paid-but-unallocated orders are
// waiting on staff and warns while the backlog is non-empty.
type ReconciliationReportJob struct {
	logg    *logger.Logger
	orders  reconciliationCounter
	metrics *metrics.CronJobMetrics
}

func NewReconciliationReportJob(logg *logger.Logger, orders reconciliationCounter, m *metrics.CronJobMetrics) (*ReconciliationReportJob, error) {
	if logg == nil {
		return nil, errors.New("logger required")
	}
	if orders == nil {
		return nil, errors.New("orders repository required")
	}
	return &ReconciliationReportJob{logg: logg, orders: orders, metrics: m}, nil
}

func (j *ReconciliationReportJob) Name() string { return "reconciliation-report" }

func (j *ReconciliationReportJob) Run(ctx context.Context) error {
	pending, err := j.orders.CountReconciliation(ctx)
	if err != nil {
		return fmt.Errorf("count reconciliation orders: %w", err)
	}
	j.metrics.SetReconciliationPending(pending)
	if pending > 0 {
		j.logg.Warn(j.logg.WithField(ctx, "pending", pending), "orders awaiting reconciliation")
	}
	return nil
}
