package memory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/aryan0dhankhar/payhub/internal/domain"
)

// PayslipRepository implements domain.PayslipRepository in memory
type PayslipRepository struct{ s *Store }

var (
	errPayslipNotFound  = domain.NewError(domain.ErrNotFound, "Payslip not found")
	errPayslipDuplicate = domain.NewError(domain.ErrDuplicate, "Payslip already exists for this staff member in the specified month and year")
)

// periodTakenLocked mirrors the (institution, staff, month, year) unique index;
// rows without a staff member never collide.
func (r *PayslipRepository) periodTakenLocked(p *domain.Payslip) bool {
	if p.StaffID == "" {
		return false
	}
	for id, other := range r.s.payslips.rows {
		if id != p.ID && other.InstitutionID == p.InstitutionID && other.StaffID == p.StaffID &&
			other.Month == p.Month && other.Year == p.Year {
			return true
		}
	}
	return false
}

func (r *PayslipRepository) Create(_ context.Context, p *domain.Payslip) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p.ID = ""
	if r.periodTakenLocked(p) {
		return errPayslipDuplicate
	}
	now := r.s.now()
	p.ID = newID()
	p.CreatedAt, p.UpdatedAt = now, now
	if p.UploadDate.IsZero() {
		p.UploadDate = now
	}
	r.s.payslips.insert(p.ID, clone(p))
	return nil
}

func (r *PayslipRepository) getLocked(scope domain.Scope, id string) (*domain.Payslip, error) {
	p, ok := r.s.payslips.get(id)
	if !ok || !scope.Allows(p.InstitutionID) {
		return nil, errPayslipNotFound
	}
	return p, nil
}

func (r *PayslipRepository) GetByID(_ context.Context, scope domain.Scope, id string) (*domain.Payslip, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, err := r.getLocked(scope, id)
	if err != nil {
		return nil, err
	}
	return clone(p), nil
}

func (r *PayslipRepository) Update(_ context.Context, p *domain.Payslip) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, err := r.getLocked(domain.Scope{InstitutionID: p.InstitutionID}, p.ID)
	if err != nil {
		return err
	}
	if r.periodTakenLocked(p) {
		return errPayslipDuplicate
	}
	existing.StaffID = p.StaffID
	existing.UserID = p.UserID
	existing.Month = p.Month
	existing.Year = p.Year
	existing.GrossPay = p.GrossPay
	existing.NetPay = p.NetPay
	existing.Deductions = p.Deductions
	existing.Allowances = p.Allowances
	existing.UpdatedAt = r.s.now()
	*p = *existing
	return nil
}

func (r *PayslipRepository) Delete(_ context.Context, scope domain.Scope, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, err := r.getLocked(scope, id); err != nil {
		return err
	}
	r.s.payslips.remove(id)
	return nil
}

func (r *PayslipRepository) List(_ context.Context, scope domain.Scope, filter domain.PayslipFilter, page domain.Page) ([]*domain.Payslip, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rows := r.s.payslips.newestFirst(func(p *domain.Payslip) bool {
		switch {
		case !scope.Allows(p.InstitutionID):
			return false
		case filter.UserID != "" && p.UserID != filter.UserID:
			return false
		case filter.StaffID != "" && p.StaffID != filter.StaffID:
			return false
		case filter.Month != "" && p.Month != filter.Month:
			return false
		case filter.Year != 0 && p.Year != filter.Year:
			return false
		case filter.Status != "" && p.Status != filter.Status:
			return false
		}
		return true
	})
	slices.SortStableFunc(rows, func(a, b *domain.Payslip) int { return b.Year - a.Year })
	return paginate(rows, page), len(rows), nil
}

func (r *PayslipRepository) AttachFile(_ context.Context, scope domain.Scope, id, filePath, fileName string, at time.Time) (*domain.Payslip, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, err := r.getLocked(scope, id)
	if err != nil {
		return nil, err
	}
	p.FilePath = filePath
	p.FileName = fileName
	p.UploadDate = at
	p.Status = domain.PayslipProcessing
	p.ProcessedAt = nil
	p.UpdatedAt = r.s.now()
	return clone(p), nil
}

func (r *PayslipRepository) Transition(_ context.Context, id string, from, to domain.PayslipStatus, at time.Time) (*domain.Payslip, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payslips.get(id)
	if !ok {
		return nil, errPayslipNotFound
	}
	if p.Status != from {
		return nil, domain.NewError(domain.ErrInvalidState, fmt.Sprintf("Payslip is %s, expected %s", p.Status, from))
	}
	p.Status = to
	p.ProcessedAt = &at
	p.UpdatedAt = r.s.now()
	return clone(p), nil
}

func (r *PayslipRepository) FinishProcessing(_ context.Context, id, filePath string, to domain.PayslipStatus, at time.Time) (*domain.Payslip, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payslips.get(id)
	if !ok {
		return nil, errPayslipNotFound
	}
	if p.Status != domain.PayslipProcessing {
		return nil, domain.NewError(domain.ErrInvalidState, fmt.Sprintf("Payslip is %s, expected %s", p.Status, domain.PayslipProcessing))
	}
	if p.FilePath != filePath {
		return nil, domain.NewError(domain.ErrInvalidState, "Payslip document was replaced")
	}
	p.Status = to
	p.ProcessedAt = &at
	p.UpdatedAt = r.s.now()
	return clone(p), nil
}

func (r *PayslipRepository) ListStale(_ context.Context, cutoff time.Time) ([]*domain.Payslip, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rows := r.s.payslips.newestFirst(func(p *domain.Payslip) bool {
		return p.Status == domain.PayslipProcessing && p.FilePath != "" && p.UploadDate.Before(cutoff)
	})
	slices.Reverse(rows)
	return cloneAll(rows), nil
}

func (r *PayslipRepository) CountByInstitution(_ context.Context, institutionID string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.payslips.newestFirst(func(p *domain.Payslip) bool { return p.InstitutionID == institutionID })), nil
}
