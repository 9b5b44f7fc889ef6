package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/claude/romkiosk/internal/models"
	"github.com/claude/romkiosk/internal/tracking"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

// Text frame types sent by kiosk clients. Binary frames are always
// msgpack landmark results.
const (
	msgPose       = "pose"
	msgHands      = "hands"
	msgKey        = "key"
	msgRoute      = "route"
	msgGameResult = "game_result"
)

type clientMessage struct {
	Type string             `json:"type"`
	Key  string             `json:"key,omitempty"`
	Path string             `json:"path,omitempty"`
	Game *models.GameResult `json:"game,omitempty"`
}

// handleWS upgrades to a websocket that carries landmarks and controls in
// and session events out.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	send, cancel := s.kiosk.Subscribe()
	limiter := rate.NewLimiter(rate.Limit(s.frameRate), int(s.frameRate/4)+1)

	go s.writePump(conn, send)
	s.readPump(conn, limiter)
	cancel()
}

func (s *Server) readPump(conn *websocket.Conn, limiter *rate.Limiter) {
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Warn("websocket unexpected close", "error", err)
			}
			return
		}

		if kind == websocket.BinaryMessage {
			if !limiter.Allow() {
				s.countDropped()
				continue
			}
			s.deliver(data, true)
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Debug("ignoring malformed websocket message", "error", err)
			continue
		}
		switch msg.Type {
		case msgPose, msgHands:
			if !limiter.Allow() {
				s.countDropped()
				continue
			}
			s.deliver(data, false)
		case msgKey:
			s.kiosk.Press(msg.Key)
		case msgRoute:
			s.kiosk.Navigate(msg.Path)
		case msgGameResult:
			if msg.Game != nil {
				s.kiosk.ReportGameResult(*msg.Game)
			}
		default:
			s.log.Debug("ignoring websocket message", "type", msg.Type)
		}
	}
}

func (s *Server) deliver(data []byte, binaryMsg bool) {
	res, err := tracking.DecodeResult(data, binaryMsg)
	if err != nil {
		s.log.Debug("ignoring undecodable landmarks", "error", err)
		return
	}
	s.kiosk.Deliver(res)
}

func (s *Server) countDropped() {
	if s.metrics != nil {
		s.metrics.Frame("rate_limited")
	}
}

// writePump relays hub messages and keeps the connection alive. It returns
// when the subscription is cancelled or a write fails.
func (s *Server) writePump(conn *websocket.Conn, send <-chan []byte) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case message, ok := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
