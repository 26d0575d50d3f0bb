package metrics

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// DefaultReportSchedule logs a snapshot every fifteen minutes.
const DefaultReportSchedule = "@every 15m"

// Reporter logs Collector snapshots on a cron schedule.
type Reporter struct {
	collector *Collector
	logger    *slog.Logger
	cron      *cron.Cron
}

// NewReporter schedules periodic snapshot logging. schedule accepts standard
// five-field cron expressions and descriptors such as "@hourly" or
// "@every 5m".
func NewReporter(collector *Collector, schedule string, logger *slog.Logger) (*Reporter, error) {
	if schedule == "" {
		schedule = DefaultReportSchedule
	}

	r := &Reporter{
		collector: collector,
		logger:    logger,
		cron:      cron.New(),
	}
	if _, err := r.cron.AddFunc(schedule, r.Report); err != nil {
		return nil, fmt.Errorf("parsing metrics schedule %q: %w", schedule, err)
	}
	return r, nil
}

// Report logs the current snapshot once.
func (r *Reporter) Report() {
	s := r.collector.Get()
	r.logger.Info("pipeline metrics",
		"processed", s.TotalProcessed,
		"failed", s.TotalFailed,
		"retries", s.TotalRetries,
		"success_rate", s.SuccessRate,
		"avg_retries", s.AvgRetriesPerMessage,
	)
}

// Start runs the schedule in the background.
func (r *Reporter) Start() {
	r.cron.Start()
}

// Stop halts the schedule and waits for a running report to finish or ctx
// to expire.
func (r *Reporter) Stop(ctx context.Context) {
	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
