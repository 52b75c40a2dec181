package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/medivoice/internal/call"
	"github.com/yoockh/medivoice/internal/services"
	"github.com/yoockh/medivoice/internal/utils"
)

const (
	wsWriteWait   = 10 * time.Second
	wsPongWait    = 60 * time.Second
	wsPingPeriod  = 30 * time.Second
	wsDrainWindow = 2 * time.Second
	wsEndTimeout  = 45 * time.Second
)

// EventSource relays a call's published updates as raw JSON.
type EventSource interface {
	Subscribe(ctx context.Context, sessionID string) (<-chan []byte, func() error)
}

type WSHandler struct {
	calls    services.CallService
	events   EventSource
	log      *logrus.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(calls services.CallService, events EventSource, log *logrus.Logger, allowedOrigins []string) *WSHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &WSHandler{
		calls:  calls,
		events: events,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := map[string]struct{}{}
	for _, o := range allowed {
		set[strings.TrimRight(strings.TrimSpace(o), "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

type wsClientMsg struct {
	Type string `json:"type"` // start|user_text|end_session
	Text string `json:"text"`
}

type wsErrorMsg struct {
	Type    string     `json:"type"`
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) write(kind int, b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.c.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.c.WriteMessage(kind, b)
}

func (w *wsConn) writeText(b []byte) error { return w.write(websocket.TextMessage, b) }

func (w *wsConn) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return w.writeText(b)
}

func (w *wsConn) writeError(code utils.Code, msg string) {
	_ = w.writeJSON(wsErrorMsg{Type: "error", Code: code, Message: msg})
}

// wsSpeaker plays synthesized PCM by sending it as binary frames.
type wsSpeaker struct {
	conn      *wsConn
	sessionID string
}

func (s *wsSpeaker) WriteAudio(ctx context.Context, pcm []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.conn.write(websocket.BinaryMessage, pcm)
}

// Reset tells the client to drop audio it has queued but not yet played.
func (s *wsSpeaker) Reset() {
	_ = s.conn.writeJSON(call.Update{Type: call.UpdateReset, SessionID: s.sessionID, At: time.Now().UTC()})
}

// SessionWS carries one live call: binary frames in are microphone PCM,
// binary frames out are agent speech, text frames are control and events.
func (h *WSHandler) SessionWS(c *gin.Context) {
	const op = "WSHandler.SessionWS"

	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	sessionID := c.Param("session_id")
	if sessionID == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "missing session_id", nil))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}
	l := h.log.WithFields(logrus.Fields{"session_id": sessionID, "user_id": userID})

	// the call outlives the request context so the report export can finish
	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()

	lc, err := h.calls.Attach(ctx, userID, sessionID, &wsSpeaker{conn: wc, sessionID: sessionID})
	if err != nil {
		wc.writeError(utils.CodeOf(err), errMessage(err))
		return
	}
	l.Info("call socket attached")

	var events <-chan []byte
	if h.events != nil {
		var closeSub func() error
		events, closeSub = h.events.Subscribe(ctx, sessionID)
		defer func() { _ = closeSub() }()
	}

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		h.readLoop(ctx, wc, lc, userID, l)
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	callDone := lc.Done()
	var drain <-chan time.Time
	for {
		select {
		case <-readDone:
			select {
			case <-lc.Done():
			default:
				h.hangUp(ctx, userID, sessionID, l)
			}
			readDone = nil
			if drain == nil {
				drain = time.After(wsDrainWindow)
			}
		case <-callDone:
			callDone = nil
			if drain == nil {
				drain = time.After(wsDrainWindow)
			}
		case <-drain:
			_ = wc.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "call ended"))
			return
		case msg, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if err := wc.writeText(msg); err != nil {
				l.WithError(err).Debug("event relay stopped")
				events = nil
			}
		case <-ping.C:
			if err := wc.write(websocket.PingMessage, nil); err != nil {
				l.WithError(err).Debug("ping failed")
			}
		}
	}
}

func (h *WSHandler) readLoop(ctx context.Context, wc *wsConn, lc *services.LiveCall, userID string, l *logrus.Entry) {
	conn := wc.c
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))

		if kind == websocket.BinaryMessage {
			if !lc.Mic.Push(data) {
				l.Trace("mic frame dropped")
			}
			continue
		}

		var msg wsClientMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			wc.writeError(utils.CodeInvalidArgument, "invalid json")
			continue
		}

		switch msg.Type {
		case "start":
			if err := lc.Start(ctx); err != nil {
				wc.writeError(utils.CodeConflict, err.Error())
			}
		case "user_text":
			text := strings.TrimSpace(msg.Text)
			if text == "" {
				wc.writeError(utils.CodeInvalidArgument, "text is required")
				continue
			}
			if err := lc.SubmitTranscript(ctx, text); err != nil {
				wc.writeError(utils.CodeConflict, err.Error())
			}
		case "end_session":
			h.hangUp(ctx, userID, lc.SessionID(), l)
			return
		default:
			wc.writeError(utils.CodeInvalidArgument, "unknown message type")
		}
	}
}

// hangUp ends the call; the report reaches the client as a report event.
func (h *WSHandler) hangUp(ctx context.Context, userID, sessionID string, l *logrus.Entry) {
	endCtx, cancel := context.WithTimeout(ctx, wsEndTimeout)
	defer cancel()
	if _, err := h.calls.End(endCtx, userID, sessionID); err != nil {
		l.WithError(err).Warn("end call failed")
	}
}

func errMessage(err error) string {
	var ae *utils.AppError
	if errors.As(err, &ae) {
		return ae.Message
	}
	return "internal error"
}
