// Package ws is a gorilla/websocket transport.Endpoint adapter for
// browser clients, grounded on CometBFT's own use of gorilla/websocket
// for its RPC subscription endpoint: each socket opens with a single
// binary message carrying the 8-byte big-endian player token, then
// exchanges one binary message per frame for the lifetime of the
// session.
package ws

import (
	"context"
	"encoding/binary"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/oakmoth/reactorium/log"
	"github.com/oakmoth/reactorium/reactor"
	"github.com/oakmoth/reactorium/transport"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type conn struct {
	ws *websocket.Conn
}

func (c *conn) ReadFrame() ([]byte, error) {
	_, payload, err := c.ws.ReadMessage()
	return payload, err
}

func (c *conn) WriteFrame(payload []byte) error {
	return c.ws.WriteMessage(websocket.BinaryMessage, payload)
}

func (c *conn) Close() error { return c.ws.Close() }

// Handler upgrades incoming HTTP requests to websocket connections and
// hands each to the Client Manager via the shared transport.Endpoint.
// It implements http.Handler so it can be mounted directly on a
// net/http.ServeMux alongside game/httpapi.
type Handler struct {
	endpoint *transport.Endpoint
	broker   *reactor.Broker
	logger   log.Logger
}

// NewHandler builds a websocket Handler for endpoint.
func NewHandler(endpoint *transport.Endpoint, broker *reactor.Broker, logger log.Logger) *Handler {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Handler{endpoint: endpoint, broker: broker, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "err", err.Error())
		return
	}
	go h.handle(r.Context(), wsConn)
}

func (h *Handler) handle(ctx context.Context, wsConn *websocket.Conn) {
	c := &conn{ws: wsConn}

	_, tokenMsg, err := wsConn.ReadMessage()
	if err != nil || len(tokenMsg) != 8 {
		h.logger.Error("websocket handshake failed")
		_ = wsConn.Close()
		return
	}
	token := binary.BigEndian.Uint64(tokenMsg)

	bound, err := h.endpoint.Accept(ctx, c, token)
	if err != nil {
		h.logger.Error("websocket accept failed", "err", err.Error())
		_ = wsConn.Close()
		return
	}

	var sessionID reactor.ID
	select {
	case sessionID = <-bound:
	case <-ctx.Done():
		_ = wsConn.Close()
		return
	}

	for {
		frame, err := c.ReadFrame()
		if err != nil {
			return
		}
		if err := transport.FeedFrame(h.broker, sessionID, frame); err != nil {
			return
		}
	}
}
