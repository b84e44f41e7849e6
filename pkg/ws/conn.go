package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/openride/dispatch/pkg/logger"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

// LocationHandler processes a driver_location_update frame.
type LocationHandler func(ctx context.Context, driverID uuid.UUID, lat, lng float64) error

// Serve runs a client connection to completion: registers it with the hub,
// sends the welcome frame, then pumps frames both ways until the socket
// closes. It blocks until the connection ends.
func Serve(ctx context.Context, conn *websocket.Conn, clientID uuid.UUID, hub *Hub, onLocation LocationHandler) {
	send := hub.Register(clientID)
	defer hub.Unregister(clientID, send)
	defer conn.Close()

	welcome, _ := json.Marshal(NewWelcome(clientID, time.Now()))
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, welcome); err != nil {
		logger.Warn("welcome write failed", zap.String("client_id", clientID.String()), zap.Error(err))
		return
	}

	done := make(chan struct{})
	go writePump(conn, send, done)
	defer close(done)

	readPump(ctx, conn, clientID, hub, onLocation)
}

// writePump forwards queued frames to the socket and keeps the connection
// alive with protocol pings.
func writePump(conn *websocket.Conn, send <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// readPump decodes inbound frames and dispatches them by type. Malformed
// frames are logged and skipped; the connection stays up.
func readPump(ctx context.Context, conn *websocket.Conn, clientID uuid.UUID, hub *Hub, onLocation LocationHandler) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("unexpected socket close", zap.String("client_id", clientID.String()), zap.Error(err))
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			logger.Warn("skipping malformed frame", zap.String("client_id", clientID.String()), zap.Error(err))
			continue
		}

		switch env.Type {
		case FrameClientPing:
			pong, _ := json.Marshal(NewPong(time.Now()))
			hub.SendTo(clientID, pong)

		case FrameHeartBeat:
			conn.SetReadDeadline(time.Now().Add(pongWait))

		case FrameDriverLocationUpdate:
			var frame LocationUpdateFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				logger.Warn("skipping malformed location frame", zap.String("client_id", clientID.String()), zap.Error(err))
				continue
			}
			if frame.DriverID == uuid.Nil {
				frame.DriverID = clientID
			}
			if onLocation != nil {
				if err := onLocation(ctx, frame.DriverID, frame.Latitude, frame.Longitude); err != nil {
					logger.Error("location update failed", zap.String("client_id", clientID.String()), zap.Error(err))
				}
			}

		default:
			logger.Debug("ignoring unknown frame type",
				zap.String("client_id", clientID.String()),
				zap.String("type", env.Type),
			)
		}
	}
}
