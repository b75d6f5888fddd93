// Package server adapts the tracker service onto its transports: a
// WebSocket endpoint for live tracking and a small JSON API for queries.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"tracking-svr/internal/apperr"
	"tracking-svr/internal/hub"
	"tracking-svr/internal/model"
	"tracking-svr/internal/observability"
	"tracking-svr/internal/tracker"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client -> server events.
const (
	opAuth        = "auth"
	opSubmit      = "driver:location"
	opSubscribe   = "subscribe"
	opUnsubscribe = "unsubscribe"
	opGetLatest   = "get:latest"
	opGetActive   = "get:active"
	opGetNearby   = "get:nearby"
)

type clientMessage struct {
	Type         string           `json:"type"`
	Token        string           `json:"token,omitempty"`
	Topic        string           `json:"topic,omitempty"`
	Report       *model.RawReport `json:"report,omitempty"`
	VehicleID    string           `json:"vehicleId,omitempty"`
	SinceMinutes int              `json:"sinceMinutes,omitempty"`
	Longitude    float64          `json:"longitude,omitempty"`
	Latitude     float64          `json:"latitude,omitempty"`
	RadiusMeters float64          `json:"radiusMeters,omitempty"`
}

type serverMessage struct {
	Type   string            `json:"type"`
	Op     string            `json:"op,omitempty"`
	Fix    *model.Fix        `json:"fix,omitempty"`
	Fixes  []model.Fix       `json:"fixes,omitempty"`
	Nearby []model.NearbyFix `json:"nearby,omitempty"`
	Code   apperr.Code       `json:"code,omitempty"`
	Error  string            `json:"error,omitempty"`
}

type Server struct {
	svc      *tracker.Service
	hub      *hub.Hub
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func New(svc *tracker.Service, h *hub.Hub, logger *slog.Logger) *Server {
	return &Server{
		svc:    svc,
		hub:    h,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The platform fronts this with its own origin checks.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	observability.WSConnections.Inc()

	sess := s.hub.NewSession()
	if token := r.URL.Query().Get("token"); token != "" {
		if p, err := s.svc.Authenticate(token); err == nil {
			sess.SetPrincipal(p)
		}
	}

	replies := make(chan serverMessage, 16)
	go s.writePump(conn, sess, replies)
	s.readLoop(r.Context(), conn, sess, replies)
}

// readLoop decodes client events until the transport drops, then tears the
// session down. Teardown is idempotent.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, sess *hub.Session, replies chan<- serverMessage) {
	defer func() {
		s.svc.Disconnect(sess)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("ws read error", "error", err)
			}
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.reply(sess, replies, serverMessage{
				Type: "error", Code: apperr.CodeValidation, Error: "malformed message",
			})
			continue
		}
		s.dispatch(ctx, sess, msg, replies)
	}
}

func (s *Server) dispatch(ctx context.Context, sess *hub.Session, msg clientMessage, replies chan<- serverMessage) {
	switch msg.Type {
	case opAuth:
		p, err := s.svc.Authenticate(msg.Token)
		if err != nil {
			s.replyErr(sess, replies, msg.Type, err)
			return
		}
		sess.SetPrincipal(p)
		s.reply(sess, replies, serverMessage{Type: "ok", Op: msg.Type})

	case opSubmit:
		if msg.Report == nil {
			s.replyErr(sess, replies, msg.Type, apperr.Validation("report is required"))
			return
		}
		if _, err := s.svc.SubmitFix(ctx, sess.Principal(), *msg.Report); err != nil {
			s.replyErr(sess, replies, msg.Type, err)
			return
		}
		s.reply(sess, replies, serverMessage{Type: "ok", Op: msg.Type})

	case opSubscribe:
		if err := s.svc.Subscribe(ctx, sess, msg.Topic); err != nil {
			s.replyErr(sess, replies, msg.Type, err)
			return
		}
		s.reply(sess, replies, serverMessage{Type: "ok", Op: msg.Type})

	case opUnsubscribe:
		if err := s.svc.Unsubscribe(sess, msg.Topic); err != nil {
			s.replyErr(sess, replies, msg.Type, err)
			return
		}
		s.reply(sess, replies, serverMessage{Type: "ok", Op: msg.Type})

	case opGetLatest:
		fix, err := s.svc.GetLatest(ctx, msg.VehicleID)
		if err != nil {
			s.replyErr(sess, replies, msg.Type, err)
			return
		}
		s.reply(sess, replies, serverMessage{Type: "latest:fix", Fix: &fix})

	case opGetActive:
		fixes, err := s.svc.GetActive(ctx, msg.SinceMinutes)
		if err != nil {
			s.replyErr(sess, replies, msg.Type, err)
			return
		}
		s.reply(sess, replies, serverMessage{Type: "active:list", Fixes: fixes})

	case opGetNearby:
		nearby, err := s.svc.GetNearby(ctx, msg.Longitude, msg.Latitude, msg.RadiusMeters)
		if err != nil {
			s.replyErr(sess, replies, msg.Type, err)
			return
		}
		s.reply(sess, replies, serverMessage{Type: "nearby:list", Nearby: nearby})

	default:
		s.replyErr(sess, replies, msg.Type, apperr.Validation("unknown event type %q", msg.Type))
	}
}

func (s *Server) reply(sess *hub.Session, replies chan<- serverMessage, m serverMessage) {
	select {
	case replies <- m:
	case <-sess.Done():
	}
}

func (s *Server) replyErr(sess *hub.Session, replies chan<- serverMessage, op string, err error) {
	s.reply(sess, replies, serverMessage{
		Type:  "error",
		Op:    op,
		Code:  apperr.CodeOf(err),
		Error: err.Error(),
	})
}

// writePump is the only writer on the connection. It interleaves hub
// fan-out events, direct replies and keepalive pings.
func (s *Server) writePump(conn *websocket.Conn, sess *hub.Session, replies <-chan serverMessage) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		// Tear the session down here too: the read loop may be parked in
		// reply() and only its Done close releases it. Disconnect is
		// idempotent, so the read loop's own teardown is still safe.
		s.svc.Disconnect(sess)
		conn.Close()
	}()

	writeJSON := func(v any) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(v); err != nil {
			// Persistently unresponsive client; drop the connection and
			// let the read loop tear the session down.
			return false
		}
		return true
	}

	for {
		select {
		case ev := <-sess.Events():
			if !writeJSON(serverMessage{Type: ev.Type, Fix: ev.Fix, Fixes: ev.Fixes}) {
				return
			}
		case m := <-replies:
			if !writeJSON(m) {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-sess.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
