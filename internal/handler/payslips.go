package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aryan0dhankhar/payhub/internal/domain"
	"github.com/aryan0dhankhar/payhub/internal/service"
)

// PayslipHandler handles /api/payslips
type PayslipHandler struct {
	payslips    *service.PayslipService
	maxFileSize int64
	logger      *slog.Logger
}

func NewPayslipHandler(payslips *service.PayslipService, maxFileSize int64, logger *slog.Logger) *PayslipHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PayslipHandler{payslips: payslips, maxFileSize: maxFileSize, logger: logger}
}

// List handles GET /api/payslips?month=&year=&status=
func (h *PayslipHandler) List(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	q := r.URL.Query()
	year, _ := strconv.Atoi(q.Get("year"))
	filter := domain.PayslipFilter{
		Month:  q.Get("month"),
		Year:   year,
		Status: domain.PayslipStatus(q.Get("status")),
	}
	page, err := h.payslips.List(r.Context(), c, q.Get("institutionId"), filter, pageFrom(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, page)
}

// ListForStaff handles GET /api/payslips/staff/{staffId}
func (h *PayslipHandler) ListForStaff(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	page, err := h.payslips.ListForStaff(r.Context(), c, r.PathValue("staffId"), pageFrom(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, page)
}

func (h *PayslipHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	p, err := h.payslips.Get(r.Context(), c, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, p)
}

func (h *PayslipHandler) Create(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var in service.CreatePayslipInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	p, err := h.payslips.Create(r.Context(), c, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, p)
}

func (h *PayslipHandler) Update(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var in service.UpdatePayslipInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	p, err := h.payslips.Update(r.Context(), c, r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, p)
}

func (h *PayslipHandler) Delete(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.payslips.Delete(r.Context(), c, r.PathValue("id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeMessage(w, "Payslip deleted successfully", nil)
}

// Upload handles POST /api/payslips/{id}/upload. The document is stored and
// queued; the response carries the payslip in PROCESSING state.
func (h *PayslipHandler) Upload(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	up, err := readUpload(w, r, pdfUpload, h.maxFileSize)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	defer up.Close()

	p, err := h.payslips.Upload(r.Context(), c, r.PathValue("id"), up.header.Filename, up.file)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, p)
}
