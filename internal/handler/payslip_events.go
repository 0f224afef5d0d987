package handler

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aryan0dhankhar/payhub/internal/domain"
	"github.com/aryan0dhankhar/payhub/internal/service"
)

const (
	wsPingInterval = 15 * time.Second
	wsWriteTimeout = 5 * time.Second
)

// PayslipEventsHandler streams payslip status changes over a websocket.
type PayslipEventsHandler struct {
	payslips       *service.PayslipService
	allowedOrigins []string
	logger         *slog.Logger
}

func NewPayslipEventsHandler(payslips *service.PayslipService, allowedOrigins []string, logger *slog.Logger) *PayslipEventsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PayslipEventsHandler{payslips: payslips, allowedOrigins: allowedOrigins, logger: logger}
}

type statusMessage struct {
	ID          string               `json:"id"`
	Status      domain.PayslipStatus `json:"status"`
	ProcessedAt *time.Time           `json:"processedAt,omitempty"`
}

func (h *PayslipEventsHandler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// non-browser clients send no origin
			if origin == "" || slices.Contains(h.allowedOrigins, origin) {
				return true
			}
			h.logger.Warn("websocket origin rejected", slog.String("origin", origin))
			return false
		},
	}
}

// ServeHTTP handles GET /api/payslips/{id}/events. The current status is sent
// first, then every change until the client disconnects.
func (h *PayslipEventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ctx := r.Context()
	p, events, release, err := h.payslips.Watch(ctx, c, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	defer release()

	upgrader := h.upgrader()
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	// The reader only exists to notice the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	if err := h.send(ws, statusMessage{ID: p.ID, Status: p.Status, ProcessedAt: p.ProcessedAt}); err != nil {
		return
	}

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			msg := statusMessage{ID: event.PayslipID, Status: event.Status, ProcessedAt: event.ProcessedAt}
			if err := h.send(ws, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		case <-closed:
			h.logger.Debug("payslip watcher disconnected", slog.String("payslip_id", p.ID))
			return
		case <-ctx.Done():
			return
		}
	}
}

func (h *PayslipEventsHandler) send(ws *websocket.Conn, msg statusMessage) error {
	_ = ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := ws.WriteJSON(msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
			h.logger.Debug("websocket closed", slog.String("payslip_id", msg.ID))
		}
		return err
	}
	return nil
}
