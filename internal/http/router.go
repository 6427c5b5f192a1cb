package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/AnishVcode/senior-launcher/internal/observability"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// ReadyFunc 依赖检查（数据库 / Redis / 消息通道）
type ReadyFunc func(ctx context.Context) error

// NewRouter 注册所有路由，外层包裹 panic 恢复和访问日志
func NewRouter(
	alarms *AlarmEventHandler,
	settings *SettingsHandler,
	ready ReadyFunc,
	metrics *observability.Metrics,
	logger *zap.Logger,
) http.Handler {
	r := mux.NewRouter()

	handle := func(path, route string, h http.HandlerFunc, methods ...string) {
		r.Handle(path, metrics.WrapHandler(route, h)).Methods(methods...)
	}

	// 运维
	handle("/health", "health", healthHandler(ready, logger), http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	// 报警事件
	api := "/api/v1"
	handle(api+"/alarms", "alarms_list", alarms.ListAlarmEvents, http.MethodGet)
	handle(api+"/alarms/{event_id}", "alarms_get", alarms.GetAlarmEvent, http.MethodGet)
	handle(api+"/alarms/{event_id}/ok", "alarms_ok", alarms.AcknowledgeAlarmEvent, http.MethodPost)
	handle(api+"/alarms/{event_id}/help", "alarms_help", alarms.RequestHelp, http.MethodPost)

	// 设备设置
	handle(api+"/devices/{device_id}/settings", "settings_get", settings.GetSettings, http.MethodGet)
	handle(api+"/devices/{device_id}/settings", "settings_update", settings.UpdateSettings, http.MethodPut)

	stdLogger := zap.NewStdLog(logger.Named("http"))
	var h http.Handler = r
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(stdLogger), handlers.PrintRecoveryStack(true))(h)
	h = handlers.CombinedLoggingHandler(stdLogger.Writer(), h)
	return h
}

func healthHandler(ready ReadyFunc, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				logger.Warn("Health check failed", zap.Error(err))
				writeJSON(w, http.StatusServiceUnavailable, Fail(err.Error()))
				return
			}
		}
		writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
	}
}
