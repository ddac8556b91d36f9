package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/h1v3-io/chatwidget/internal/render"
	"github.com/h1v3-io/chatwidget/internal/widget"
	"github.com/h1v3-io/chatwidget/pkg/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxFrameSize   = 64 << 10
	outboundBuffer = 64
)

var errUnknownAction = errors.New("unknown action")

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.origins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // non-browser clients
	}
	return s.origins[origin]
}

// handleSocket runs one widget instance for the lifetime of a WebSocket
// connection. Client frames are protocol.Action values; every surface call
// is written back as a protocol.Command.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	id := uuid.NewString()
	logger := s.logger.With("conversation_id", id)
	out := newOutbound(conn, logger)
	go out.run()

	opts := []widget.Option{
		widget.WithLogger(logger.With("component", "widget")),
		widget.WithIDGenerator(func() string { return id }),
	}
	if s.cfg.RequestTimeout > 0 {
		opts = append(opts, widget.WithRequestTimeout(s.cfg.RequestTimeout))
	}
	ctl := widget.New(s.cfg.Widget, s.transport, render.NewEmitter(out.send), opts...)

	s.sessions.Add(id, ctl, r.RemoteAddr)
	logger.Info("widget connected", "remote", r.RemoteAddr)

	s.readActions(conn, ctl, out, logger)

	out.close()
	conn.Close()
	// Replies still in flight land in the transcript before the instance
	// disappears from the registry.
	ctl.Wait()
	s.sessions.Remove(id)
	logger.Info("widget disconnected")
}

func (s *Server) readActions(conn *websocket.Conn, ctl *widget.Controller, out *outbound, logger *slog.Logger) {
	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket closed unexpectedly", "error", err)
			}
			return
		}

		var action protocol.Action
		if err := json.Unmarshal(data, &action); err != nil {
			out.send(notice("invalid action frame"))
			continue
		}
		if err := applyAction(ctl, action); err != nil {
			logger.Debug("action rejected", "action", action.Type, "error", err)
			out.send(notice(err.Error()))
		}
	}
}

func applyAction(ctl *widget.Controller, a protocol.Action) error {
	switch a.Type {
	case protocol.ActionToggle:
		ctl.Toggle()
	case protocol.ActionOpen:
		ctl.Open()
	case protocol.ActionClose:
		ctl.Close()
	case protocol.ActionSubmit:
		return ctl.Submit(a.Fields)
	case protocol.ActionSend:
		return ctl.Send(a.Text)
	case protocol.ActionSuggest:
		return ctl.SelectSuggestion(a.Index)
	default:
		return fmt.Errorf("%w %q", errUnknownAction, a.Type)
	}
	return nil
}

func notice(text string) protocol.Command {
	return protocol.Command{Op: protocol.OpNotice, Text: text}
}

// outbound serialises writes to a connection. Commands are queued so the
// controller never blocks on a slow client; a client that falls too far
// behind is disconnected.
type outbound struct {
	conn   *websocket.Conn
	logger *slog.Logger
	queue  chan protocol.Command
	done   chan struct{}
	once   sync.Once
}

func newOutbound(conn *websocket.Conn, logger *slog.Logger) *outbound {
	return &outbound{
		conn:   conn,
		logger: logger,
		queue:  make(chan protocol.Command, outboundBuffer),
		done:   make(chan struct{}),
	}
}

func (o *outbound) send(cmd protocol.Command) {
	select {
	case <-o.done:
		return
	default:
	}
	select {
	case o.queue <- cmd:
	case <-o.done:
	default:
		o.logger.Warn("websocket client too slow, disconnecting")
		o.close()
		o.conn.Close()
	}
}

func (o *outbound) close() {
	o.once.Do(func() { close(o.done) })
}

func (o *outbound) run() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-o.done:
			o.conn.SetWriteDeadline(time.Now().Add(writeWait))
			o.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case cmd := <-o.queue:
			o.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := o.conn.WriteJSON(cmd); err != nil {
				o.logger.Debug("websocket write failed", "error", err)
				o.close()
				o.conn.Close()
				return
			}
		case <-ticker.C:
			o.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := o.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				o.close()
				o.conn.Close()
				return
			}
		}
	}
}
