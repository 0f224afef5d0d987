package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/aryan0dhankhar/payhub/internal/domain"
	"github.com/aryan0dhankhar/payhub/internal/featureflags"
	"github.com/aryan0dhankhar/payhub/internal/observability/metrics"
	"github.com/aryan0dhankhar/payhub/internal/observability/tracing"
	"github.com/aryan0dhankhar/payhub/internal/reliability/retry"
)

// maxDocumentSize bounds how much of an upload the worker reads.
const maxDocumentSize = 64 << 20

var (
	errEmptyDocument     = errors.New("document is empty")
	errNotPDF            = errors.New("document is not a PDF")
	errTruncatedDocument = errors.New("document has no %%EOF trailer")
)

// depthReporter is implemented by queues that can report their backlog.
type depthReporter interface {
	Depth(ctx context.Context) (int64, error)
}

// PayslipProcessor consumes payslip jobs. Each job's document is checked
// and the payslip moved from PROCESSING to AVAILABLE or FAILED.
type PayslipProcessor struct {
	queue       domain.JobQueue
	payslips    domain.PayslipRepository
	files       domain.FileStore
	events      domain.StatusBroadcaster
	logger      *slog.Logger
	workers     int
	pollTimeout time.Duration
	retry       *retry.Config
	now         func() time.Time
}

// NewPayslipProcessor creates a processor running workers goroutines
func NewPayslipProcessor(
	queue domain.JobQueue,
	payslips domain.PayslipRepository,
	files domain.FileStore,
	events domain.StatusBroadcaster,
	logger *slog.Logger,
	workers int,
) *PayslipProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}
	cfg := retry.DefaultConfig()
	// Domain errors (missing row, lost race) will not change on retry.
	cfg.ShouldRetry = func(err error) bool {
		var de *domain.Error
		return !errors.As(err, &de)
	}
	return &PayslipProcessor{
		queue:       queue,
		payslips:    payslips,
		files:       files,
		events:      events,
		logger:      logger,
		workers:     workers,
		pollTimeout: 5 * time.Second,
		retry:       cfg,
		now:         time.Now,
	}
}

// Start runs the worker pool until ctx is cancelled.
func (p *PayslipProcessor) Start(ctx context.Context) {
	p.logger.Info("payslip processor started", slog.Int("workers", p.workers))

	var wg sync.WaitGroup
	for i := range p.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.loop(ctx, i)
		}()
	}
	if dr, ok := p.queue.(depthReporter); ok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.reportDepth(ctx, dr)
		}()
	}
	wg.Wait()

	p.logger.Info("payslip processor stopped")
}

func (p *PayslipProcessor) loop(ctx context.Context, id int) {
	logger := p.logger.With(slog.Int("worker", id))
	for ctx.Err() == nil {
		job, err := p.queue.Dequeue(ctx, p.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("failed to dequeue payslip job", slog.String("error", err.Error()))
			sleep(ctx, time.Second)
			continue
		}
		if job == nil {
			continue
		}
		p.process(ctx, *job)
	}
}

func (p *PayslipProcessor) reportDepth(ctx context.Context, dr depthReporter) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if depth, err := dr.Depth(ctx); err == nil {
				metrics.SetQueueDepth(depth)
			}
		}
	}
}

// process handles one job and returns the outcome label it recorded.
func (p *PayslipProcessor) process(ctx context.Context, job domain.PayslipJob) string {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "payslip.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("payslip.id", job.PayslipID),
		attribute.String("institution.id", job.InstitutionID),
	)

	logger := p.logger.With(slog.String("payslip_id", job.PayslipID))
	result := p.handle(ctx, logger, job)
	if result == "error" {
		span.SetStatus(codes.Error, "payslip processing failed")
	}
	metrics.ObservePayslipJob(result, time.Since(start))
	return result
}

func (p *PayslipProcessor) handle(ctx context.Context, logger *slog.Logger, job domain.PayslipJob) string {
	payslip, err := p.payslips.GetByID(ctx, domain.Scope{InstitutionID: job.InstitutionID}, job.PayslipID)
	if errors.Is(err, domain.ErrNotFound) {
		logger.Info("payslip gone before processing, dropping job")
		return "dropped"
	}
	if err != nil {
		logger.Error("failed to load payslip", slog.String("error", err.Error()))
		return "error"
	}
	if payslip.Status != domain.PayslipProcessing {
		logger.Debug("payslip no longer processing, skipping", slog.String("status", string(payslip.Status)))
		return "skipped"
	}

	target := domain.PayslipAvailable
	if err := p.verify(payslip.FilePath); err != nil {
		logger.Warn("payslip document rejected", slog.String("error", err.Error()))
		target = domain.PayslipFailed
	}

	updated, err := retry.Do(ctx, p.retry, logger, "payslip status update", func(ctx context.Context) (*domain.Payslip, error) {
		return p.payslips.FinishProcessing(ctx, payslip.ID, payslip.FilePath, target, p.now())
	})
	if errors.Is(err, domain.ErrInvalidState) {
		logger.Info("payslip changed while processing, skipping")
		return "skipped"
	}
	if err != nil {
		logger.Error("failed to update payslip status", slog.String("error", err.Error()))
		return "error"
	}

	p.publish(ctx, logger, updated)
	logger.Info("payslip processed", slog.String("status", string(updated.Status)))
	if target == domain.PayslipFailed {
		return "failed"
	}
	return "available"
}

// verify checks that the stored document looks like a complete PDF.
func (p *PayslipProcessor) verify(path string) error {
	if path == "" {
		return errEmptyDocument
	}
	f, err := p.files.Open(path)
	if err != nil {
		return fmt.Errorf("open document: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxDocumentSize))
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}
	if len(data) == 0 {
		return errEmptyDocument
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return errNotPDF
	}
	if featureflags.EnabledOr(featureflags.StrictPDFCheck, true) {
		tail := data[max(0, len(data)-1024):]
		if !bytes.Contains(tail, []byte("%%EOF")) {
			return errTruncatedDocument
		}
	}
	return nil
}

func (p *PayslipProcessor) publish(ctx context.Context, logger *slog.Logger, payslip *domain.Payslip) {
	event := domain.PayslipStatusEvent{
		PayslipID:     payslip.ID,
		InstitutionID: payslip.InstitutionID,
		UserID:        payslip.UserID,
		Status:        payslip.Status,
		ProcessedAt:   payslip.ProcessedAt,
	}
	if err := p.events.Publish(ctx, event); err != nil {
		logger.Warn("failed to publish payslip status", slog.String("error", err.Error()))
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
