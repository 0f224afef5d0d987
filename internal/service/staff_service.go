package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aryan0dhankhar/payhub/internal/domain"
	"github.com/aryan0dhankhar/payhub/internal/observability/metrics"
	"github.com/aryan0dhankhar/payhub/internal/security"
	"github.com/aryan0dhankhar/payhub/internal/security/audit"
)

const recentPayslipCount = 5

type CreateStaffInput struct {
	Name          string     `json:"name" validate:"min=2" msg:"Name must be at least 2 characters"`
	Email         string     `json:"email" validate:"required,email" msg:"Invalid email address"`
	EmployeeID    string     `json:"employeeId"`
	Department    string     `json:"department"`
	Position      string     `json:"position"`
	Salary        *float64   `json:"salary" validate:"omitnil,gt=0" msg:"Salary must be positive"`
	JoinedDate    *time.Time `json:"joinedDate"`
	InstitutionID string     `json:"institutionId"`
}

// UpdateStaffInput is a partial update; nil fields are left alone.
type UpdateStaffInput struct {
	Name       *string    `json:"name" validate:"omitnil,min=2" msg:"Name must be at least 2 characters"`
	Email      *string    `json:"email" validate:"omitnil,email" msg:"Invalid email address"`
	EmployeeID *string    `json:"employeeId"`
	Department *string    `json:"department"`
	Position   *string    `json:"position"`
	Salary     *float64   `json:"salary" validate:"omitnil,gt=0" msg:"Salary must be positive"`
	JoinedDate *time.Time `json:"joinedDate"`
	IsActive   *bool      `json:"isActive"`
}

// StaffDetail is a staff member with their most recent payslips.
type StaffDetail struct {
	*domain.Staff
	Payslips []*domain.Payslip `json:"payslips"`
}

// StaffService manages the payroll roster of an institution.
type StaffService struct {
	staff    domain.StaffRepository
	payslips domain.PayslipRepository
	files    domain.FileStore
	guard    *Guard
	audit    *audit.Logger
	logger   *slog.Logger
}

func NewStaffService(staff domain.StaffRepository, payslips domain.PayslipRepository, files domain.FileStore, guard *Guard, auditLog *audit.Logger, logger *slog.Logger) *StaffService {
	if logger == nil {
		logger = slog.Default()
	}
	return &StaffService{staff: staff, payslips: payslips, files: files, guard: guard, audit: auditLog, logger: logger}
}

func (s *StaffService) List(ctx context.Context, caller domain.Caller, institutionID string, filter domain.StaffFilter, page domain.Page) (domain.PageOf[*domain.Staff], error) {
	scope, err := s.guard.Scope(caller, security.PermManageStaff, institutionID)
	if err != nil {
		return domain.PageOf[*domain.Staff]{}, err
	}
	rows, total, err := s.staff.List(ctx, scope, filter, page)
	if err != nil {
		return domain.PageOf[*domain.Staff]{}, err
	}
	return domain.NewPageOf(rows, page, total), nil
}

func (s *StaffService) Create(ctx context.Context, caller domain.Caller, in CreateStaffInput) (*domain.Staff, error) {
	institutionID, err := s.guard.Owner(caller, security.PermManageStaff, in.InstitutionID)
	if err != nil {
		return nil, err
	}
	if err := validateInput(&in); err != nil {
		return nil, err
	}

	st := &domain.Staff{
		InstitutionID: institutionID,
		Name:          strings.TrimSpace(in.Name),
		Email:         normalizeEmail(in.Email),
		EmployeeID:    in.EmployeeID,
		Department:    in.Department,
		Position:      in.Position,
		Salary:        in.Salary,
		JoinedDate:    in.JoinedDate,
		IsActive:      true,
	}
	if err := s.staff.Create(ctx, st); err != nil {
		return nil, err
	}

	s.audit.LogAction(ctx, audit.Entry{
		Action:        "staff_created",
		EntityType:    "staff",
		EntityID:      st.ID,
		UserID:        caller.ID,
		InstitutionID: institutionID,
	})
	return st, nil
}

func (s *StaffService) Get(ctx context.Context, caller domain.Caller, id string) (*StaffDetail, error) {
	scope, err := s.guard.Scope(caller, security.PermManageStaff, "")
	if err != nil {
		return nil, err
	}
	st, err := s.staff.GetByID(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	recent, _, err := s.payslips.List(ctx,
		domain.Scope{InstitutionID: st.InstitutionID},
		domain.PayslipFilter{StaffID: st.ID},
		domain.NewPage(1, recentPayslipCount),
	)
	if err != nil {
		return nil, err
	}
	if recent == nil {
		recent = []*domain.Payslip{}
	}
	return &StaffDetail{Staff: st, Payslips: recent}, nil
}

func (s *StaffService) Update(ctx context.Context, caller domain.Caller, id string, in UpdateStaffInput) (*domain.Staff, error) {
	scope, err := s.guard.Scope(caller, security.PermManageStaff, "")
	if err != nil {
		return nil, err
	}
	if err := validateInput(&in); err != nil {
		return nil, err
	}
	st, err := s.staff.GetByID(ctx, scope, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		st.Name = strings.TrimSpace(*in.Name)
	}
	if in.Email != nil {
		st.Email = normalizeEmail(*in.Email)
	}
	if in.EmployeeID != nil {
		st.EmployeeID = *in.EmployeeID
	}
	if in.Department != nil {
		st.Department = *in.Department
	}
	if in.Position != nil {
		st.Position = *in.Position
	}
	if in.Salary != nil {
		st.Salary = in.Salary
	}
	if in.JoinedDate != nil {
		st.JoinedDate = in.JoinedDate
	}
	if in.IsActive != nil {
		st.IsActive = *in.IsActive
	}
	if err := s.staff.Update(ctx, st); err != nil {
		return nil, err
	}

	s.audit.LogAction(ctx, audit.Entry{
		Action:        "staff_updated",
		EntityType:    "staff",
		EntityID:      st.ID,
		UserID:        caller.ID,
		InstitutionID: st.InstitutionID,
	})
	return st, nil
}

// Deactivate soft-deletes a staff member.
func (s *StaffService) Deactivate(ctx context.Context, caller domain.Caller, id string) error {
	scope, err := s.guard.Scope(caller, security.PermManageStaff, "")
	if err != nil {
		return err
	}
	if err := s.staff.Deactivate(ctx, scope, id); err != nil {
		return err
	}
	s.audit.LogAction(ctx, audit.Entry{
		Action:        "staff_deactivated",
		EntityType:    "staff",
		EntityID:      id,
		UserID:        caller.ID,
		InstitutionID: scope.InstitutionID,
	})
	return nil
}

func (s *StaffService) Departments(ctx context.Context, caller domain.Caller, institutionID string) ([]string, error) {
	scope, err := s.guard.Scope(caller, security.PermManageStaff, institutionID)
	if err != nil {
		return nil, err
	}
	return s.staff.Departments(ctx, scope)
}

// Import creates one staff member per CSV row. Rows are independent: a
// bad or duplicate row is recorded in the result and the import moves on.
// The first row is a header naming the columns (name and email required).
func (s *StaffService) Import(ctx context.Context, caller domain.Caller, institutionID string, r io.Reader) (*domain.ImportResult, error) {
	owner, err := s.guard.Owner(caller, security.PermManageStaff, institutionID)
	if err != nil {
		return nil, err
	}

	// The upload is kept on disk as the record of what was imported.
	path, err := s.files.Save(ctx, "staff", ".csv", r)
	if err != nil {
		return nil, fmt.Errorf("store staff csv: %w", err)
	}
	f, err := s.files.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open staff csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, domain.NewError(domain.ErrValidation, "CSV file is empty")
	}
	if err != nil {
		return nil, domain.NewError(domain.ErrValidation, "Invalid CSV file")
	}
	columns := csvColumns(header)
	if _, ok := columns["name"]; !ok {
		return nil, domain.NewError(domain.ErrValidation, "CSV must include name and email columns")
	}
	if _, ok := columns["email"]; !ok {
		return nil, domain.NewError(domain.ErrValidation, "CSV must include name and email columns")
	}

	result := &domain.ImportResult{}
	for row := 1; ; row++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		result.TotalProcessed++
		if err != nil {
			rejectRow(result, row, "Malformed CSV row")
			continue
		}
		if msg := s.importRow(ctx, owner, columns, record); msg != "" {
			rejectRow(result, row, msg)
			continue
		}
		result.SuccessCount++
	}

	metrics.ObserveImportRows("created", result.SuccessCount)
	metrics.ObserveImportRows("rejected", result.ErrorCount)
	s.logger.Info("staff import finished",
		slog.String("institution_id", owner),
		slog.String("file", path),
		slog.Int("processed", result.TotalProcessed),
		slog.Int("created", result.SuccessCount),
		slog.Int("rejected", result.ErrorCount),
	)
	s.audit.LogAction(ctx, audit.Entry{
		Action:        "staff_imported",
		EntityType:    "staff",
		UserID:        caller.ID,
		InstitutionID: owner,
		Details: map[string]any{
			"totalProcessed": result.TotalProcessed,
			"successCount":   result.SuccessCount,
			"errorCount":     result.ErrorCount,
		},
	})
	return result, nil
}

// importRow stores one CSV record and returns the reason it was rejected,
// or "" on success.
func (s *StaffService) importRow(ctx context.Context, institutionID string, columns map[string]int, record []string) string {
	field := func(name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	name, email := field("name"), normalizeEmail(field("email"))
	if name == "" || email == "" {
		return "Name and email are required"
	}
	in := CreateStaffInput{Name: name, Email: email}
	if raw := field("salary"); raw != "" {
		salary, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return "Salary must be positive"
		}
		in.Salary = &salary
	}
	if raw := field("joineddate"); raw != "" {
		joined, err := parseDate(raw)
		if err != nil {
			return "Invalid joined date"
		}
		in.JoinedDate = &joined
	}
	if err := validateInput(&in); err != nil {
		return domain.Message(err)
	}

	st := &domain.Staff{
		InstitutionID: institutionID,
		Name:          in.Name,
		Email:         in.Email,
		EmployeeID:    field("employeeid"),
		Department:    field("department"),
		Position:      field("position"),
		Salary:        in.Salary,
		JoinedDate:    in.JoinedDate,
		IsActive:      true,
	}
	err := s.staff.Create(ctx, st)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrDuplicate):
		return fmt.Sprintf("Staff with email %s already exists", email)
	default:
		s.logger.Error("failed to import staff row",
			slog.String("institution_id", institutionID),
			slog.String("error", err.Error()),
		)
		return "Unable to save staff member"
	}
}

func rejectRow(result *domain.ImportResult, row int, reason string) {
	result.ErrorCount++
	result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %s", row, reason))
}

var dateLayouts = []string{time.RFC3339, "2006-01-02"}

func parseDate(raw string) (time.Time, error) {
	var err error
	for _, layout := range dateLayouts {
		var t time.Time
		if t, err = time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

// csvColumns maps lower-cased header names to their column index.
func csvColumns(header []string) map[string]int {
	columns := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, seen := columns[name]; !seen {
			columns[name] = i
		}
	}
	return columns
}
