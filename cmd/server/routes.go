package main

import (
	"net/http"
)

func (app *application) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", app.handleHealth)
	mux.HandleFunc("GET /stats", app.handleStats)
	mux.HandleFunc("GET /maintenance", app.handleGetMaintenance)
	mux.HandleFunc("POST /maintenance", app.authenticate(app.handleSetMaintenance))
	mux.HandleFunc("GET /ws", app.handleWebSocket)

	return app.recoverPanic(app.logRequests(mux))
}
