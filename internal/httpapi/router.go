package httpapi

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// NewRouter 注册显示层路由；metrics 为 nil 时不挂载 /metrics
func NewRouter(trucks *TruckHandler, metrics http.Handler, logger *zap.Logger) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, Ok(map[string]any{"status": "ok"}))
	}).Methods(http.MethodGet)

	if metrics != nil {
		r.Handle("/metrics", metrics).Methods(http.MethodGet)
	}

	// 直接挂在根路由上，方法不匹配时返回 405
	r.HandleFunc("/api/v1/trucks", trucks.ListTrucks).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/trucks/{truckId}/snapshot", trucks.GetSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/trucks/{truckId}/alarms", trucks.ListAlarms).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/trucks/{truckId}/alarms/export", trucks.ExportAlarms).Methods(http.MethodGet)

	access := zap.NewStdLog(logger.Named("http")).Writer()
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(zap.NewStdLog(logger.Named("http"))),
	)(handlers.CombinedLoggingHandler(access, r))
}
