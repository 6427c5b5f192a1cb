package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/AnishVcode/senior-launcher/internal/detector"
	"github.com/AnishVcode/senior-launcher/internal/models"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// SettingsService 设备跌倒监测设置
type SettingsService interface {
	GetSettings(ctx context.Context, deviceID string) (*models.MonitorSettings, error)
	UpdateSettings(ctx context.Context, settings *models.MonitorSettings) error
}

// SettingsHandler 设备跌倒监测设置 Handler
type SettingsHandler struct {
	service SettingsService
	logger  *zap.Logger
}

// NewSettingsHandler 创建设置 Handler
func NewSettingsHandler(service SettingsService, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{
		service: service,
		logger:  logger,
	}
}

// updateSettingsRequest PUT 请求体；enabled 缺省为 true，阈值缺省回退到服务默认
type updateSettingsRequest struct {
	Enabled  *bool             `json:"enabled"`
	Detector thresholdsRequest `json:"detector"`
}

// thresholdsRequest 区分"未填写"和"显式填 0"：未填写的字段由仓库回退到默认值，
// 显式的 0 或负数直接拒绝
type thresholdsRequest struct {
	FallThreshold       *float64 `json:"fall_threshold"`
	ImpactThreshold     *float64 `json:"impact_threshold"`
	FallWindowMs        *int64   `json:"fall_window_ms"`
	JerkThreshold       *float64 `json:"jerk_threshold"`
	MinSampleIntervalMs *int64   `json:"min_sample_interval_ms"`
}

func (t thresholdsRequest) config() (detector.Config, error) {
	var c detector.Config
	floats := []struct {
		name string
		src  *float64
		dst  *float64
	}{
		{"fall_threshold", t.FallThreshold, &c.FallThreshold},
		{"impact_threshold", t.ImpactThreshold, &c.ImpactThreshold},
		{"jerk_threshold", t.JerkThreshold, &c.JerkThreshold},
	}
	for _, f := range floats {
		if f.src == nil {
			continue
		}
		if !(*f.src > 0) {
			return c, fmt.Errorf("%s %v: must be positive", f.name, *f.src)
		}
		*f.dst = *f.src
	}

	ints := []struct {
		name string
		src  *int64
		dst  *int64
	}{
		{"fall_window_ms", t.FallWindowMs, &c.FallWindowMs},
		{"min_sample_interval_ms", t.MinSampleIntervalMs, &c.MinSampleIntervalMs},
	}
	for _, f := range ints {
		if f.src == nil {
			continue
		}
		if *f.src < 1 {
			return c, fmt.Errorf("%s %d: must be at least 1", f.name, *f.src)
		}
		*f.dst = *f.src
	}
	return c, nil
}

// GetSettings GET /api/v1/devices/{device_id}/settings
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["device_id"]

	settings, err := h.service.GetSettings(r.Context(), deviceID)
	if err != nil {
		h.logger.Error("GetSettings failed",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, Ok(settings))
}

// UpdateSettings PUT /api/v1/devices/{device_id}/settings
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["device_id"]

	var req updateSettingsRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}

	thresholds, err := req.Detector.config()
	if err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid detector thresholds: "+err.Error()))
		return
	}

	settings := &models.MonitorSettings{
		DeviceID: deviceID,
		Enabled:  true,
		Detector: thresholds,
	}
	if req.Enabled != nil {
		settings.Enabled = *req.Enabled
	}

	if err := h.service.UpdateSettings(r.Context(), settings); err != nil {
		h.logger.Error("UpdateSettings failed",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, Ok(settings))
}
