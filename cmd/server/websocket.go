package main

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tecu23/blitz-server/pkg/server"
)

func (app *application) upgrader() *websocket.Upgrader {
	origin := app.Config.FrontendOrigin
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return origin == "" || origin == r.Header.Get("Origin")
		},
	}
}

// handleWebSocket handles WebSocket connections
func (app *application) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if app.Manager.Maintenance() {
		http.Error(w, "server is in maintenance mode", http.StatusServiceUnavailable)
		return
	}

	ws, err := app.upgrader().Upgrade(w, r, nil)
	if err != nil {
		app.Logger.Warn("Failed to upgrade to WebSocket", zap.Error(err))
		return
	}

	conn := server.NewConnection(ws, app.Hub, app.Logger)
	if err := app.Hub.Register(conn); err != nil {
		_ = ws.Close()
		return
	}

	app.Logger.Debug("WebSocket connection established",
		zap.String("conn_id", conn.ID),
		zap.String("remote_addr", r.RemoteAddr))

	go conn.WritePump()
	go conn.ReadPump()
}
