package main

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

type maintenanceState struct {
	Enabled *bool `json:"enabled"`
}

// handleGetMaintenance handles the GET /maintenance endpoint
func (app *application) handleGetMaintenance(w http.ResponseWriter, _ *http.Request) {
	on := app.Manager.Maintenance()
	app.writeJSON(w, http.StatusOK, maintenanceState{Enabled: &on})
}

// handleSetMaintenance handles the POST /maintenance endpoint
func (app *application) handleSetMaintenance(w http.ResponseWriter, r *http.Request) {
	var req maintenanceState
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil || req.Enabled == nil {
		http.Error(w, `body must be {"enabled":bool}`, http.StatusBadRequest)
		return
	}

	on := *req.Enabled
	if err := app.Hub.Do(r.Context(), func() { app.Manager.SetMaintenance(on) }); err != nil {
		app.Logger.Error("maintenance toggle failed", zap.Error(err))
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	app.Logger.Info("maintenance toggled", zap.Bool("enabled", on), zap.String("remote_addr", r.RemoteAddr))
	app.writeJSON(w, http.StatusOK, maintenanceState{Enabled: &on})
}
