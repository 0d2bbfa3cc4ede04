package transport

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/tbcnet/gateway/internal/router"
)

// newUpgrader builds the upgrader a wsHandler shares across its
// connections; CheckOrigin enforces the configured allow_origin.
func newUpgrader(allowOrigin string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowOrigin == "*" || allowOrigin == "" {
				return true
			}
			return r.Header.Get("Origin") == allowOrigin
		},
	}
}

// wsHandler upgrades to a full-duplex connection and routes each
// inbound text frame independently, preserving per-connection response
// ordering. Binary frames are rejected with a typed error and the
// connection stays open.
func wsHandler(r *router.Router, allowOrigin string, log *logrus.Entry) http.HandlerFunc {
	upgrader := newUpgrader(allowOrigin)
	return func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			log.WithError(err).Warn("websocket upgrade failed")
			return
		}
		defer conn.Close()

		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}

			switch msgType {
			case websocket.TextMessage:
				out := r.Route(req.Context(), data)
				if writeErr := conn.WriteMessage(websocket.TextMessage, out); writeErr != nil {
					return
				}
			case websocket.BinaryMessage:
				rejected := []byte(`{"type":"ERROR","code":"TBC_WS_BINARY_REJECTED","message":"binary frames are not accepted on this endpoint"}`)
				if writeErr := conn.WriteMessage(websocket.TextMessage, rejected); writeErr != nil {
					return
				}
			case websocket.PingMessage:
				_ = conn.WriteMessage(websocket.PongMessage, data)
			case websocket.PongMessage:
				// transparently absorbed
			case websocket.CloseMessage:
				return
			}
		}
	}
}
