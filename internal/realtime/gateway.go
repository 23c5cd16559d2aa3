package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/verse-journal/internal/domain"
	"github.com/cuongbtq/verse-journal/internal/jobid"
	"github.com/cuongbtq/verse-journal/internal/queue"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	EventJoin  = "poem:join"
	EventLeave = "poem:leave"
	EventError = "error"

	maxMessageSize = 4096
)

// Snapshots reads the durable state of a job
type Snapshots interface {
	Lookup(ctx context.Context, id jobid.ID) (*queue.Handle, error)
}

// Config tunes the gateway
type Config struct {
	SendBuffer     int
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	AllowedOrigins []string
}

// inbound is a client message
type inbound struct {
	Event string `json:"event" validate:"required,oneof=poem:join poem:leave"`
	Data  string `json:"data" validate:"required,max=256"`
}

// Joined acknowledges a join with the job's state at join time
type Joined struct {
	Type  string `json:"type"`
	State string `json:"state"`
}

type errorData struct {
	Message string `json:"message"`
}

// Gateway upgrades HTTP requests and lets clients join job rooms
type Gateway struct {
	hub      *Hub
	jobs     Snapshots
	upgrader websocket.Upgrader
	validate *validator.Validate
	config   Config
	logger   *slog.Logger
}

func NewGateway(hub *Hub, jobs Snapshots, config Config, logger *slog.Logger) *Gateway {
	if config.SendBuffer <= 0 {
		config.SendBuffer = 16
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 10 * time.Second
	}
	if config.PingInterval <= 0 {
		config.PingInterval = 30 * time.Second
	}

	g := &Gateway{
		hub:      hub,
		jobs:     jobs,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		config:   config,
		logger:   logger,
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	if len(g.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, o := range g.config.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		g.logger.Debug("Websocket upgrade failed", slog.Any("error", err))
		return
	}

	client := newClient(uuid.NewString(), g.config.SendBuffer)
	logger := g.logger.With(slog.String("client_id", client.id))
	logger.Debug("Client connected")

	go g.writeLoop(conn, client, logger)
	g.readLoop(r.Context(), conn, client, logger)

	g.hub.LeaveAll(client)
	client.close()
	logger.Debug("Client disconnected")
}

func (g *Gateway) readLoop(ctx context.Context, conn *websocket.Conn, client *Client, logger *slog.Logger) {
	conn.SetReadLimit(maxMessageSize)
	pongWait := g.config.PingInterval * 2
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("Websocket read failed", slog.Any("error", err))
			}
			return
		}
		g.handle(ctx, client, raw, logger)
	}
}

func (g *Gateway) handle(ctx context.Context, client *Client, raw []byte, logger *slog.Logger) {
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		g.reply(client, Frame{Event: EventError, Data: errorData{Message: "message must be a JSON object"}})
		return
	}
	if err := g.validate.Struct(msg); err != nil {
		g.reply(client, Frame{Event: EventError, Data: errorData{Message: "unsupported event or missing data"}})
		return
	}

	id, err := jobid.Parse(msg.Data)
	if err == nil {
		_, err = domain.KindFromID(id)
	}
	if err != nil {
		g.reply(client, Frame{Event: EventError, Data: errorData{Message: "invalid job id"}})
		return
	}
	room := id.String()

	switch msg.Event {
	case EventLeave:
		g.hub.Leave(room, client)
		logger.Debug("Client left job", slog.String("job_id", room))
	case EventJoin:
		// Join before reading the snapshot so no transition falls between them
		g.hub.Join(room, client)
		g.reply(client, Frame{Event: room, Data: Joined{Type: "joined", State: g.snapshot(ctx, id, logger)}})
		logger.Debug("Client joined job", slog.String("job_id", room))
	}
}

// snapshot returns the job state, or "" when there is no live job
func (g *Gateway) snapshot(ctx context.Context, id jobid.ID, logger *slog.Logger) string {
	handle, err := g.jobs.Lookup(ctx, id)
	if err != nil {
		if !errors.Is(err, queue.ErrJobNotFound) {
			logger.Warn("Failed to read job snapshot",
				slog.String("job_id", id.String()),
				slog.Any("error", err),
			)
		}
		return ""
	}
	return string(handle.State())
}

func (g *Gateway) reply(client *Client, frame Frame) {
	msg, err := json.Marshal(frame)
	if err != nil {
		g.logger.Error("Failed to encode frame", slog.Any("error", err))
		return
	}
	client.enqueue(msg)
}

func (g *Gateway) writeLoop(conn *websocket.Conn, client *Client, logger *slog.Logger) {
	ticker := time.NewTicker(g.config.PingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case <-client.done:
			_ = conn.SetWriteDeadline(time.Now().Add(g.config.WriteTimeout))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case msg := <-client.send:
			_ = conn.SetWriteDeadline(time.Now().Add(g.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug("Websocket write failed", slog.Any("error", err))
				client.close()
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(g.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				client.close()
				return
			}
		}
	}
}
