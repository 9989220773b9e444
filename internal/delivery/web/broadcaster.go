package web

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/NasaVasa/coinwatch/internal/domain"
	"github.com/NasaVasa/coinwatch/internal/usecase"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 5 * time.Second

type Submitter interface {
	Submit(ctx context.Context, cmd usecase.Command) error
}

type envelope struct {
	Type  string       `json:"type"`
	View  *domain.View `json:"view,omitempty"`
	Title string       `json:"title,omitempty"`
	Body  string       `json:"body,omitempty"`
	Error string       `json:"error,omitempty"`
}

// Broadcaster pushes every rendered view and notification to connected
// browsers and turns their messages into loop commands.
type Broadcaster struct {
	mu       sync.Mutex
	clients  map[*websocket.Conn]struct{}
	last     *domain.View
	upgrader websocket.Upgrader
	submit   Submitter
	logger   *zap.Logger
}

func NewBroadcaster(submit Submitter, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		clients:  make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{CheckOrigin: sameOrigin},
		submit:   submit,
		logger:   logger,
	}
}

// SetSubmitter wires the command sink after construction, since the loop
// needs the broadcaster as its renderer first.
func (b *Broadcaster) SetSubmitter(submit Submitter) {
	b.mu.Lock()
	b.submit = submit
	b.mu.Unlock()
}

func (b *Broadcaster) Render(view domain.View) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = &view
	b.broadcastLocked(envelope{Type: "view", View: &view})
}

func (b *Broadcaster) Notify(ctx context.Context, title, body string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broadcastLocked(envelope{Type: "notification", Title: title, Body: body})
	return nil
}

func (b *Broadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

func (b *Broadcaster) broadcastLocked(msg envelope) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("failed to marshal ws message", zap.String("type", msg.Type), zap.Error(err))
		return
	}
	for conn := range b.clients {
		if err := writeMessage(conn, data); err != nil {
			b.logger.Debug("ws write failed, dropping client", zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
			_ = conn.Close()
			delete(b.clients, conn)
		}
	}
}

func writeMessage(conn *websocket.Conn, data []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (b *Broadcaster) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := b.upgrader.Upgrade(w, r, nil)
		if err != nil {
			b.logger.Warn("ws upgrade failed", zap.Error(err))
			return
		}

		b.mu.Lock()
		b.clients[conn] = struct{}{}
		if b.last != nil {
			if data, err := json.Marshal(envelope{Type: "view", View: b.last}); err == nil {
				_ = writeMessage(conn, data)
			}
		}
		b.mu.Unlock()
		b.logger.Info("ws client connected", zap.String("remote", r.RemoteAddr))

		go b.readLoop(conn)
	}
}

func (b *Broadcaster) readLoop(conn *websocket.Conn) {
	defer func() {
		b.mu.Lock()
		delete(b.clients, conn)
		b.mu.Unlock()
		_ = conn.Close()
		b.logger.Info("ws client disconnected", zap.String("remote", conn.RemoteAddr().String()))
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		cmd, err := decodeCommand(data)
		if err != nil {
			b.logger.Debug("ws command rejected", zap.Error(err))
			b.reply(conn, envelope{Type: "error", Error: err.Error()})
			continue
		}

		b.mu.Lock()
		submit := b.submit
		b.mu.Unlock()
		if submit == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		if err := submit.Submit(ctx, cmd); err != nil {
			b.logger.Warn("ws command dropped", zap.String("command", cmd.CommandName()), zap.Error(err))
		}
		cancel()
	}
}

func (b *Broadcaster) reply(conn *websocket.Conn, msg envelope) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[conn]; ok {
		_ = writeMessage(conn, data)
	}
}
