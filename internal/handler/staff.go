package handler

import (
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/payhub/internal/domain"
	"github.com/aryan0dhankhar/payhub/internal/service"
)

// StaffHandler handles /api/staff
type StaffHandler struct {
	staff       *service.StaffService
	maxFileSize int64
	logger      *slog.Logger
}

func NewStaffHandler(staff *service.StaffService, maxFileSize int64, logger *slog.Logger) *StaffHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StaffHandler{staff: staff, maxFileSize: maxFileSize, logger: logger}
}

// List handles GET /api/staff?search=&department=&status=active|inactive
func (h *StaffHandler) List(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	q := r.URL.Query()
	filter := domain.StaffFilter{
		Search:     q.Get("search"),
		Department: q.Get("department"),
		Active:     activeFilter(q.Get("status")),
	}
	page, err := h.staff.List(r.Context(), c, q.Get("institutionId"), filter, pageFrom(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, page)
}

func (h *StaffHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	detail, err := h.staff.Get(r.Context(), c, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, detail)
}

func (h *StaffHandler) Create(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var in service.CreateStaffInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	st, err := h.staff.Create(r.Context(), c, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, st)
}

func (h *StaffHandler) Update(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var in service.UpdateStaffInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	st, err := h.staff.Update(r.Context(), c, r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, st)
}

func (h *StaffHandler) Delete(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.staff.Deactivate(r.Context(), c, r.PathValue("id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeMessage(w, "Staff member deactivated successfully", nil)
}

func (h *StaffHandler) Departments(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	departments, err := h.staff.Departments(r.Context(), c, r.URL.Query().Get("institutionId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if departments == nil {
		departments = []string{}
	}
	writeData(w, http.StatusOK, departments)
}

// UploadCSV handles POST /api/staff/upload-csv
func (h *StaffHandler) UploadCSV(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	up, err := readUpload(w, r, csvUpload, h.maxFileSize)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	defer up.Close()

	result, err := h.staff.Import(r.Context(), c, r.FormValue("institutionId"), up.file)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, result)
}
