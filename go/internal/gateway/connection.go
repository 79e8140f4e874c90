package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mcdev12/focushub/go/internal/focustimer"
	"github.com/mcdev12/focushub/go/internal/models"
	"github.com/mcdev12/focushub/go/internal/session"
	"github.com/mcdev12/focushub/go/internal/store"
	"github.com/rs/zerolog/log"
)

// Connection is one websocket client. After a successful join command it
// owns exactly one session; the session's snapshot callbacks feed the send
// channel drained by writePump.
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time

	sessionMu sync.Mutex
	session   *session.Session

	sendMu     sync.Mutex
	sendClosed bool
}

func (c *Connection) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.Send)
	}
}

func (c *Connection) hasSession() bool {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	return c.session != nil
}

func (c *Connection) teardownSession() {
	c.sessionMu.Lock()
	sess := c.session
	c.session = nil
	c.sessionMu.Unlock()

	if sess != nil {
		sess.Leave()
	}
}

// writePump handles sending messages to the websocket connection.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to websocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
			c.LastPing = c.Manager.clock.Now()
		}
	}
}

// readPump handles reading commands from the websocket connection.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = c.Manager.clock.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected websocket close error")
			}
			break
		}

		c.handleCommand(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleCommand routes one client frame.
func (c *Connection) handleCommand(message []byte) {
	var cmd Command
	if err := json.Unmarshal(message, &cmd); err != nil {
		c.sendError("malformed command")
		return
	}

	switch cmd.Type {
	case CommandJoin:
		c.handleJoin(cmd.Nickname)

	case CommandMessage:
		c.withSession(func(sess *session.Session) {
			if err := sess.SendMessage(cmd.Text); err != nil {
				commandErrorsTotal.Inc()
				c.sendError(err.Error())
				return
			}
			messagesTotal.Inc()
		})

	case CommandStart:
		c.withSession(func(sess *session.Session) { sess.StartFocus() })

	case CommandPause:
		c.withSession(func(sess *session.Session) { sess.PauseFocus() })

	case CommandReset:
		c.withSession(func(sess *session.Session) { sess.ResetFocus() })

	default:
		log.Debug().
			Str("connection_id", c.ID).
			Str("command", string(cmd.Type)).
			Msg("unknown command")
		c.sendError("unknown command")
	}
}

func (c *Connection) handleJoin(nickname string) {
	c.sessionMu.Lock()
	already := c.session != nil
	c.sessionMu.Unlock()
	if already {
		c.sendError("already joined")
		return
	}

	cfg := session.Config{
		TimerDuration: c.Manager.timerDuration,
		OnPresence: func(records []models.PresenceRecord) {
			c.sendEvent(EventTypePresence, PresencePayload{Records: records})
		},
		OnMessages: func(msgs []models.Message) {
			c.sendEvent(EventTypeFeed, FeedPayload{Messages: msgs})
		},
		OnTimer: func(display string, phase focustimer.Phase, remaining int) {
			c.sendEvent(EventTypeTimer, TimerPayload{Display: display, Phase: phase, Remaining: remaining})
		},
		OnNotice: func(err error) {
			c.sendNotice(err)
		},
	}

	sess, err := session.Join(context.Background(), c.Manager.store, nickname, cfg)
	if err != nil {
		commandErrorsTotal.Inc()
		c.sendError(err.Error())
		return
	}

	c.sessionMu.Lock()
	if c.session != nil {
		// A concurrent join slipped in; keep the first one.
		c.sessionMu.Unlock()
		sess.Leave()
		c.sendError("already joined")
		return
	}
	c.session = sess
	c.sessionMu.Unlock()

	joinsTotal.Inc()
	c.sendEvent(EventTypeJoined, JoinedPayload{
		ParticipantID: sess.ID(),
		Nickname:      sess.Nickname(),
		TimerDisplay:  sess.TimerDisplay(),
	})
}

func (c *Connection) withSession(fn func(*session.Session)) {
	c.sessionMu.Lock()
	sess := c.session
	c.sessionMu.Unlock()
	if sess == nil {
		c.sendError("join first")
		return
	}
	fn(sess)
}

func (c *Connection) sendEvent(t EventType, payload interface{}) {
	event, err := newEvent(t, payload)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to marshal event payload")
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to marshal event")
		return
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}

	select {
	case c.Send <- data:
	default:
		// Connection is slow/dead, close it; writePump unregisters.
		log.Warn().
			Str("connection_id", c.ID).
			Msg("connection send buffer full, closing connection")
		c.Conn.Close()
	}
}

func (c *Connection) sendNotice(err error) {
	kind := "store"
	var writeErr *store.WriteError
	var subErr *store.SubscriptionError
	switch {
	case errors.As(err, &writeErr):
		kind = "write"
	case errors.As(err, &subErr):
		kind = "subscription"
	}
	noticesTotal.WithLabelValues(kind).Inc()
	c.sendEvent(EventTypeNotice, NoticePayload{Kind: kind, Detail: err.Error()})
}

func (c *Connection) sendError(detail string) {
	c.sendEvent(EventTypeError, ErrorPayload{Detail: detail})
}
