package handler

import (
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/payhub/internal/domain"
	"github.com/aryan0dhankhar/payhub/internal/service"
)

// InstitutionHandler handles /api/institutions
type InstitutionHandler struct {
	institutions *service.InstitutionService
	logger       *slog.Logger
}

func NewInstitutionHandler(institutions *service.InstitutionService, logger *slog.Logger) *InstitutionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &InstitutionHandler{institutions: institutions, logger: logger}
}

func (h *InstitutionHandler) List(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	filter := domain.InstitutionFilter{Search: r.URL.Query().Get("search")}
	page, err := h.institutions.List(r.Context(), c, filter, pageFrom(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, page)
}

func (h *InstitutionHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	view, err := h.institutions.Get(r.Context(), c, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, view)
}

func (h *InstitutionHandler) Create(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var in service.CreateInstitutionInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	view, err := h.institutions.Create(r.Context(), c, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, view)
}

func (h *InstitutionHandler) Update(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var in service.UpdateInstitutionInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	inst, err := h.institutions.Update(r.Context(), c, r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, inst)
}

// Delete soft-deletes an institution
func (h *InstitutionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.institutions.Deactivate(r.Context(), c, r.PathValue("id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeMessage(w, "Institution deactivated successfully", nil)
}
