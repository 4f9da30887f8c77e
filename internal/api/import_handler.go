package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shaiso/Buffy/internal/orchestrator"
)

// RunImport синхронно выполняет цикл импорта.
// POST /api/v1/import
//
// Отключение клиента цикл не прерывает.
func (h *Handler) RunImport(w http.ResponseWriter, r *http.Request) {
	report, err := h.cycles.RunImportCycle(context.WithoutCancel(r.Context()))
	if errors.Is(err, orchestrator.ErrCycleInProgress) {
		Conflict(w, err.Error())
		return
	}
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Success(w, report)
}

// LastImport возвращает отчёт последнего завершённого цикла.
// GET /api/v1/import/last
func (h *Handler) LastImport(w http.ResponseWriter, _ *http.Request) {
	report := h.cycles.LastCycle()
	if report == nil {
		NotFound(w, "no import cycle has finished yet")
		return
	}

	Success(w, report)
}

// UpdateSchedule пересчитывает tier'ы подписок.
// POST /api/v1/schedule/update
func (h *Handler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	report, err := h.tiers.Update(r.Context())
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Success(w, report)
}

// Healthz отдаёт состояние процесса. 503, если компонент не работает.
// GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	health := h.health.Health()

	w.Header().Set("Content-Type", "application/json")
	if health.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(health)
}
