package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/formcraft/formcraft-backend/internal/response"
	"github.com/formcraft/formcraft-backend/internal/service"
	ws "github.com/formcraft/formcraft-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams a form's new responses over WebSocket.
type WSHandler struct {
	forms    FormService
	feeds    FeedSubscriber
	log      zerolog.Logger
	upgrader websocket.Upgrader
	ping     time.Duration
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(forms FormService, feeds FeedSubscriber, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		forms:    forms,
		feeds:    feeds,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
		ping:     ws.PingPeriod,
	}
}

// ResponseFeed godoc
// WS /ws/forms/:id/responses
// Sends a ready message with the current response count, then one message per
// new response. Clients may send {"action":"ping"}.
func (h *WSHandler) ResponseFeed(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	count, err := h.forms.ResponseCount(ctx, id)
	if err != nil {
		if errors.Is(err, service.ErrFormNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrFormNotFound)
			return
		}
		h.log.Error().Err(err).Str("form_id", id).Msg("Feed count failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	feed, err := h.feeds.SubscribeFeed(ctx, id)
	if err != nil {
		h.log.Error().Err(err).Str("form_id", id).Msg("Feed subscribe failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	defer feed.Close()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Str("form_id", id).Logger()
	wsLog.Info().Msg("Feed client connected")

	if err := ws.WriteTyped(conn, ws.ReadyMessage{Event: ws.EventReady, FormID: id, ResponseCount: count}); err != nil {
		return
	}

	// gorilla allows one concurrent writer, so the reader only signals pings
	pings := make(chan struct{}, 1)
	go h.readLoop(conn, wsLog, cancel, pings)

	ticker := time.NewTicker(h.ping)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			wsLog.Info().Msg("Feed client disconnected")
			return

		case payload, ok := <-feed.C:
			if !ok {
				return
			}
			if err := ws.WriteRaw(conn, []byte(payload)); err != nil {
				wsLog.Debug().Err(err).Msg("Feed write failed")
				return
			}

		case <-pings:
			if err := ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong}); err != nil {
				return
			}

		case <-ticker.C:
			if err := ws.WritePing(conn); err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) readLoop(conn *websocket.Conn, wsLog zerolog.Logger, cancel context.CancelFunc, pings chan<- struct{}) {
	defer cancel()
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(ws.ReadWait))
	})

	for {
		var msg ws.RequestEnvelope
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			}
			return
		}
		if msg.Action != ws.ActionPing {
			wsLog.Debug().Str("action", string(msg.Action)).Msg("Ignoring unknown action")
			continue
		}
		select {
		case pings <- struct{}{}:
		default:
		}
	}
}
