package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/payhub/internal/domain"
	"github.com/aryan0dhankhar/payhub/internal/observability/metrics"
)

// StaleSweeper fails payslips stuck in PROCESSING. A job can be lost when
// the in-process queue dies with the server or Redis drops it; without the
// sweep such payslips would never leave PROCESSING.
type StaleSweeper struct {
	payslips   domain.PayslipRepository
	events     domain.StatusBroadcaster
	logger     *slog.Logger
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time
}

// NewStaleSweeper creates a sweeper checking every interval for payslips
// uploaded more than staleAfter ago.
func NewStaleSweeper(
	payslips domain.PayslipRepository,
	events domain.StatusBroadcaster,
	logger *slog.Logger,
	interval, staleAfter time.Duration,
) *StaleSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &StaleSweeper{
		payslips:   payslips,
		events:     events,
		logger:     logger,
		interval:   interval,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Start begins the sweep loop
func (w *StaleSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("stale payslip sweeper started",
		slog.Duration("interval", w.interval),
		slog.Duration("stale_after", w.staleAfter),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("stale payslip sweeper stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep fails every stale payslip and returns how many it moved.
func (w *StaleSweeper) sweep(ctx context.Context) int {
	now := w.now()
	stale, err := w.payslips.ListStale(ctx, now.Add(-w.staleAfter))
	if err != nil {
		w.logger.Error("failed to list stale payslips", slog.String("error", err.Error()))
		metrics.ObserveSweep("error")
		return 0
	}

	failed := 0
	for _, p := range stale {
		logger := w.logger.With(slog.String("payslip_id", p.ID))
		updated, err := w.payslips.FinishProcessing(ctx, p.ID, p.FilePath, domain.PayslipFailed, now)
		switch {
		case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrNotFound):
			// Finished, deleted or re-uploaded in the meantime.
			metrics.ObserveSweep("skipped")
			continue
		case err != nil:
			logger.Error("failed to fail stale payslip", slog.String("error", err.Error()))
			metrics.ObserveSweep("error")
			continue
		}

		logger.Warn("stale payslip marked failed", slog.Time("uploaded_at", p.UploadDate))
		metrics.ObserveSweep("failed")
		failed++
		event := domain.PayslipStatusEvent{
			PayslipID:     updated.ID,
			InstitutionID: updated.InstitutionID,
			UserID:        updated.UserID,
			Status:        updated.Status,
			ProcessedAt:   updated.ProcessedAt,
		}
		if err := w.events.Publish(ctx, event); err != nil {
			logger.Warn("failed to publish payslip status", slog.String("error", err.Error()))
		}
	}
	return failed
}
