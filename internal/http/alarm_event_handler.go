package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/AnishVcode/senior-launcher/internal/models"
	"github.com/AnishVcode/senior-launcher/internal/repository"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// AlarmEventService 报警事件查询与用户响应
type AlarmEventService interface {
	ListAlarmEvents(ctx context.Context, filters repository.AlarmEventFilters, page, size int) ([]*models.AlarmEvent, int, error)
	GetAlarmEvent(ctx context.Context, eventID string) (*models.AlarmEvent, error)
	HandleResponse(ctx context.Context, deviceID string, resp models.UserResponse) error
}

// AlarmEventHandler 报警事件 Handler
type AlarmEventHandler struct {
	service AlarmEventService
	logger  *zap.Logger
}

// NewAlarmEventHandler 创建报警事件 Handler
func NewAlarmEventHandler(service AlarmEventService, logger *zap.Logger) *AlarmEventHandler {
	return &AlarmEventHandler{
		service: service,
		logger:  logger,
	}
}

// ListAlarmEvents GET /api/v1/alarms?device_id=&event_type=&status=&start=&end=&page=&size=
func (h *AlarmEventHandler) ListAlarmEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filters := repository.AlarmEventFilters{
		DeviceID:    optionalQuery(r, "device_id"),
		EventType:   optionalQuery(r, "event_type"),
		AlarmStatus: optionalQuery(r, "status"),
	}
	if s := q.Get("start"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeJSON(w, http.StatusOK, Fail("invalid start: must be RFC3339"))
			return
		}
		filters.StartTime = &t
	}
	if s := q.Get("end"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeJSON(w, http.StatusOK, Fail("invalid end: must be RFC3339"))
			return
		}
		filters.EndTime = &t
	}

	page := parseInt(q.Get("page"), 1)
	size := parseInt(q.Get("size"), 20)

	events, total, err := h.service.ListAlarmEvents(ctx, filters, page, size)
	if err != nil {
		h.logger.Error("ListAlarmEvents failed", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": events,
		"total": total,
		"page":  page,
		"size":  size,
	}))
}

// GetAlarmEvent GET /api/v1/alarms/{event_id}
func (h *AlarmEventHandler) GetAlarmEvent(w http.ResponseWriter, r *http.Request) {
	eventID := mux.Vars(r)["event_id"]

	event, err := h.service.GetAlarmEvent(r.Context(), eventID)
	if err != nil {
		h.logger.Error("GetAlarmEvent failed",
			zap.String("event_id", eventID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, Ok(event))
}

// AcknowledgeAlarmEvent POST /api/v1/alarms/{event_id}/ok
func (h *AlarmEventHandler) AcknowledgeAlarmEvent(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, models.ActionImOK)
}

// RequestHelp POST /api/v1/alarms/{event_id}/help
func (h *AlarmEventHandler) RequestHelp(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, models.ActionGetHelp)
}

func (h *AlarmEventHandler) respond(w http.ResponseWriter, r *http.Request, action string) {
	eventID := mux.Vars(r)["event_id"]

	resp := models.UserResponse{EventID: eventID, Action: action}
	if err := h.service.HandleResponse(r.Context(), "", resp); err != nil {
		h.logger.Error("HandleResponse failed",
			zap.String("event_id", eventID),
			zap.String("action", action),
			zap.Error(err),
		)
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"event_id": eventID,
		"action":   action,
	}))
}
