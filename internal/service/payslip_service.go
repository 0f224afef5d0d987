package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aryan0dhankhar/payhub/internal/domain"
	"github.com/aryan0dhankhar/payhub/internal/reliability/circuitbreaker"
	"github.com/aryan0dhankhar/payhub/internal/security"
	"github.com/aryan0dhankhar/payhub/internal/security/audit"
)

var (
	errPayslipTarget   = domain.NewError(domain.ErrValidation, "Either staffId or userId is required")
	errStaffNotFound   = domain.NewError(domain.ErrNotFound, "Staff member not found")
	errPayslipUserGone = domain.NewError(domain.ErrNotFound, "User not found")
)

type CreatePayslipInput struct {
	StaffID       string   `json:"staffId"`
	UserID        string   `json:"userId"`
	Month         string   `json:"month" validate:"required" msg:"Month is required"`
	Year          int      `json:"year" validate:"gte=2020" msg:"Year must be 2020 or later"`
	GrossPay      float64  `json:"grossPay" validate:"gt=0" msg:"Gross pay must be positive"`
	NetPay        float64  `json:"netPay" validate:"gt=0" msg:"Net pay must be positive"`
	Deductions    *float64 `json:"deductions" validate:"omitnil,gte=0" msg:"Deductions cannot be negative"`
	Allowances    *float64 `json:"allowances" validate:"omitnil,gte=0" msg:"Allowances cannot be negative"`
	InstitutionID string   `json:"institutionId"`
}

// UpdatePayslipInput is a partial update. Status is owned by the
// processing workers and cannot be set here.
type UpdatePayslipInput struct {
	StaffID    *string  `json:"staffId"`
	UserID     *string  `json:"userId"`
	Month      *string  `json:"month" validate:"omitnil,min=1" msg:"Month is required"`
	Year       *int     `json:"year" validate:"omitnil,gte=2020" msg:"Year must be 2020 or later"`
	GrossPay   *float64 `json:"grossPay" validate:"omitnil,gt=0" msg:"Gross pay must be positive"`
	NetPay     *float64 `json:"netPay" validate:"omitnil,gt=0" msg:"Net pay must be positive"`
	Deductions *float64 `json:"deductions" validate:"omitnil,gte=0" msg:"Deductions cannot be negative"`
	Allowances *float64 `json:"allowances" validate:"omitnil,gte=0" msg:"Allowances cannot be negative"`
}

// PayslipService manages payslip records and their uploaded documents.
type PayslipService struct {
	payslips domain.PayslipRepository
	staff    domain.StaffRepository
	users    domain.UserRepository
	files    domain.FileStore
	queue    domain.JobQueue
	events   domain.StatusBroadcaster
	breaker  *circuitbreaker.CircuitBreaker
	guard    *Guard
	audit    *audit.Logger
	logger   *slog.Logger
	now      func() time.Time
}

// NewPayslipService creates a payslip service. breaker guards the job
// queue; enqueue failures fail the upload's payslip immediately.
func NewPayslipService(
	payslips domain.PayslipRepository,
	staff domain.StaffRepository,
	users domain.UserRepository,
	files domain.FileStore,
	queue domain.JobQueue,
	events domain.StatusBroadcaster,
	breaker *circuitbreaker.CircuitBreaker,
	guard *Guard,
	auditLog *audit.Logger,
	logger *slog.Logger,
) *PayslipService {
	if logger == nil {
		logger = slog.Default()
	}
	if breaker == nil {
		breaker = circuitbreaker.NewCircuitBreaker(5, 2, 30*time.Second)
	}
	return &PayslipService{
		payslips: payslips,
		staff:    staff,
		users:    users,
		files:    files,
		queue:    queue,
		events:   events,
		breaker:  breaker,
		guard:    guard,
		audit:    auditLog,
		logger:   logger,
		now:      time.Now,
	}
}

// List returns payslips in the caller's scope. STAFF callers only see
// payslips addressed to their own login.
func (s *PayslipService) List(ctx context.Context, caller domain.Caller, institutionID string, filter domain.PayslipFilter, page domain.Page) (domain.PageOf[*domain.Payslip], error) {
	scope, err := s.guard.Scope(caller, security.PermReadPayslips, institutionID)
	if err != nil {
		return domain.PageOf[*domain.Payslip]{}, err
	}
	rows, total, err := s.payslips.List(ctx, scope, s.guard.PayslipFilter(caller, filter), page)
	if err != nil {
		return domain.PageOf[*domain.Payslip]{}, err
	}
	return domain.NewPageOf(rows, page, total), nil
}

// ListForStaff returns the payslips of one staff member.
func (s *PayslipService) ListForStaff(ctx context.Context, caller domain.Caller, staffID string, page domain.Page) (domain.PageOf[*domain.Payslip], error) {
	scope, err := s.guard.Scope(caller, security.PermManagePayslips, "")
	if err != nil {
		return domain.PageOf[*domain.Payslip]{}, err
	}
	st, err := s.staff.GetByID(ctx, scope, staffID)
	if err != nil {
		return domain.PageOf[*domain.Payslip]{}, err
	}
	rows, total, err := s.payslips.List(ctx,
		domain.Scope{InstitutionID: st.InstitutionID},
		domain.PayslipFilter{StaffID: st.ID},
		page,
	)
	if err != nil {
		return domain.PageOf[*domain.Payslip]{}, err
	}
	return domain.NewPageOf(rows, page, total), nil
}

func (s *PayslipService) Get(ctx context.Context, caller domain.Caller, id string) (*domain.Payslip, error) {
	scope, err := s.guard.Scope(caller, security.PermReadPayslips, "")
	if err != nil {
		return nil, err
	}
	p, err := s.payslips.GetByID(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.PayslipAccess(caller, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PayslipService) Create(ctx context.Context, caller domain.Caller, in CreatePayslipInput) (*domain.Payslip, error) {
	institutionID, err := s.guard.Owner(caller, security.PermManagePayslips, in.InstitutionID)
	if err != nil {
		return nil, err
	}
	if err := validateInput(&in); err != nil {
		return nil, err
	}

	p := &domain.Payslip{
		InstitutionID: institutionID,
		StaffID:       strings.TrimSpace(in.StaffID),
		UserID:        strings.TrimSpace(in.UserID),
		Month:         in.Month,
		Year:          in.Year,
		GrossPay:      in.GrossPay,
		NetPay:        in.NetPay,
		Deductions:    in.Deductions,
		Allowances:    in.Allowances,
		Status:        domain.PayslipProcessing,
		UploadDate:    s.now(),
	}
	if err := s.checkTargets(ctx, p); err != nil {
		return nil, err
	}
	if err := s.payslips.Create(ctx, p); err != nil {
		return nil, err
	}

	s.audit.LogAction(ctx, audit.Entry{
		Action:        "payslip_created",
		EntityType:    "payslip",
		EntityID:      p.ID,
		UserID:        caller.ID,
		InstitutionID: institutionID,
		Details:       map[string]any{"month": p.Month, "year": p.Year},
	})
	return p, nil
}

func (s *PayslipService) Update(ctx context.Context, caller domain.Caller, id string, in UpdatePayslipInput) (*domain.Payslip, error) {
	scope, err := s.guard.Scope(caller, security.PermManagePayslips, "")
	if err != nil {
		return nil, err
	}
	if err := validateInput(&in); err != nil {
		return nil, err
	}
	p, err := s.payslips.GetByID(ctx, scope, id)
	if err != nil {
		return nil, err
	}

	if in.StaffID != nil {
		p.StaffID = strings.TrimSpace(*in.StaffID)
	}
	if in.UserID != nil {
		p.UserID = strings.TrimSpace(*in.UserID)
	}
	if in.Month != nil {
		p.Month = *in.Month
	}
	if in.Year != nil {
		p.Year = *in.Year
	}
	if in.GrossPay != nil {
		p.GrossPay = *in.GrossPay
	}
	if in.NetPay != nil {
		p.NetPay = *in.NetPay
	}
	if in.Deductions != nil {
		p.Deductions = in.Deductions
	}
	if in.Allowances != nil {
		p.Allowances = in.Allowances
	}
	if err := s.checkTargets(ctx, p); err != nil {
		return nil, err
	}
	if err := s.payslips.Update(ctx, p); err != nil {
		return nil, err
	}

	s.audit.LogAction(ctx, audit.Entry{
		Action:        "payslip_updated",
		EntityType:    "payslip",
		EntityID:      p.ID,
		UserID:        caller.ID,
		InstitutionID: p.InstitutionID,
	})
	return p, nil
}

func (s *PayslipService) Delete(ctx context.Context, caller domain.Caller, id string) error {
	scope, err := s.guard.Scope(caller, security.PermManagePayslips, "")
	if err != nil {
		return err
	}
	if err := s.payslips.Delete(ctx, scope, id); err != nil {
		return err
	}
	s.audit.LogAction(ctx, audit.Entry{
		Action:        "payslip_deleted",
		EntityType:    "payslip",
		EntityID:      id,
		UserID:        caller.ID,
		InstitutionID: scope.InstitutionID,
	})
	return nil
}

// Upload stores a payslip document and queues it for processing. The
// returned payslip is PROCESSING; a worker moves it to AVAILABLE or FAILED.
func (s *PayslipService) Upload(ctx context.Context, caller domain.Caller, id, fileName string, r io.Reader) (*domain.Payslip, error) {
	scope, err := s.guard.Scope(caller, security.PermManagePayslips, "")
	if err != nil {
		return nil, err
	}
	if _, err := s.payslips.GetByID(ctx, scope, id); err != nil {
		return nil, err
	}

	path, err := s.files.Save(ctx, "payslip", ".pdf", r)
	if err != nil {
		return nil, fmt.Errorf("store payslip file: %w", err)
	}
	p, err := s.payslips.AttachFile(ctx, scope, id, path, fileName, s.now())
	if err != nil {
		if rmErr := s.files.Remove(path); rmErr != nil {
			s.logger.Warn("failed to remove unattached payslip file",
				slog.String("path", path),
				slog.String("error", rmErr.Error()),
			)
		}
		return nil, err
	}

	job := domain.PayslipJob{PayslipID: p.ID, InstitutionID: p.InstitutionID, EnqueuedAt: s.now()}
	if err := s.breaker.Execute(func() error { return s.queue.Enqueue(ctx, job) }); err != nil {
		s.logger.Error("failed to enqueue payslip job",
			slog.String("payslip_id", p.ID),
			slog.String("breaker", s.breaker.GetState().String()),
			slog.String("error", err.Error()),
		)
		failed, terr := s.payslips.FinishProcessing(context.WithoutCancel(ctx), p.ID, path, domain.PayslipFailed, s.now())
		if terr == nil {
			s.publish(ctx, failed)
			p = failed
		}
	}

	s.logger.Info("payslip uploaded",
		slog.String("payslip_id", p.ID),
		slog.String("institution_id", p.InstitutionID),
		slog.String("status", string(p.Status)),
	)
	s.audit.LogAction(ctx, audit.Entry{
		Action:        "payslip_uploaded",
		EntityType:    "payslip",
		EntityID:      p.ID,
		UserID:        caller.ID,
		InstitutionID: p.InstitutionID,
		Details:       map[string]any{"fileName": fileName},
	})
	return p, nil
}

// Watch streams status changes of one payslip the caller may read. The
// release function must be called once the caller stops reading.
func (s *PayslipService) Watch(ctx context.Context, caller domain.Caller, id string) (*domain.Payslip, <-chan domain.PayslipStatusEvent, func(), error) {
	p, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, nil, nil, err
	}
	all, release, err := s.events.Subscribe(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("subscribe to payslip events: %w", err)
	}

	out := make(chan domain.PayslipStatusEvent, 1)
	go func() {
		defer close(out)
		for event := range all {
			if event.PayslipID != id {
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return p, out, release, nil
}

func (s *PayslipService) publish(ctx context.Context, p *domain.Payslip) {
	event := domain.PayslipStatusEvent{
		PayslipID:     p.ID,
		InstitutionID: p.InstitutionID,
		UserID:        p.UserID,
		Status:        p.Status,
		ProcessedAt:   p.ProcessedAt,
	}
	if err := s.events.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn("failed to publish payslip status",
			slog.String("payslip_id", p.ID),
			slog.String("error", err.Error()),
		)
	}
}

// checkTargets enforces that a payslip names a staff member, a login or
// both, and that each belongs to the payslip's institution.
func (s *PayslipService) checkTargets(ctx context.Context, p *domain.Payslip) error {
	if p.StaffID == "" && p.UserID == "" {
		return errPayslipTarget
	}
	scope := domain.Scope{InstitutionID: p.InstitutionID}
	if p.StaffID != "" {
		if _, err := s.staff.GetByID(ctx, scope, p.StaffID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return errStaffNotFound
			}
			return err
		}
	}
	if p.UserID != "" {
		u, err := s.users.GetByID(ctx, p.UserID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if err != nil || u.InstitutionID != p.InstitutionID {
			return errPayslipUserGone
		}
	}
	return nil
}
